// Package password はパスワードの強度ポリシー検証とargon2idによるハッシュ化を提供する。
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/hitoshi/newsletter/internal/model"
)

const (
	algorithmID = "argon2id"

	// MinLength と MaxLength はパスワード長（文字数）の許容範囲。
	MinLength = 8
	MaxLength = 128

	minMemoryKB    uint32 = 8 * 1024
	maxMemoryKB    uint32 = 1024 * 1024
	minTime        uint32 = 1
	maxTime        uint32 = 16
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// ErrMalformedHash は保存されたハッシュ文字列が解釈できないことを示す。
// パスワード不一致（false）とは区別される内部エラー。
var ErrMalformedHash = errors.New("malformed password hash")

// Config はargon2idのコストパラメータ。リクエストから変更されることはない。
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig は本番用のデフォルトパラメータを返す。
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher はパスワードのハッシュ化と照合を行う。状態を持たず並行利用できる。
type Hasher struct {
	config Config
	rand   io.Reader
}

// NewHasher はHasherを生成する。パラメータが下限を下回る場合はエラーを返す。
func NewHasher(cfg Config) (*Hasher, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg, rand: rand.Reader}, nil
}

// CheckPolicy はパスワードが強度ポリシーを満たすかを検証する。
// 8文字以上128文字以下で、数字・小文字・大文字をそれぞれ1文字以上含む必要がある。
func CheckPolicy(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinLength {
		return model.NewValidationError("password", model.ReasonWeakPassword, "too short")
	}
	if n > MaxLength {
		return model.NewValidationError("password", model.ReasonWeakPassword, "too long")
	}

	var hasDigit, hasLower, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}

	var missing []string
	if !hasDigit {
		missing = append(missing, "digit")
	}
	if !hasLower {
		missing = append(missing, "lowercase")
	}
	if !hasUpper {
		missing = append(missing, "uppercase")
	}
	if len(missing) > 0 {
		return model.NewValidationError("password", model.ReasonWeakPassword,
			"missing "+strings.Join(missing, ", "))
	}
	return nil
}

// Hash はポリシーを検証したうえでパスワードをハッシュ化し、PHC形式の文字列を返す。
func (h *Hasher) Hash(password string) (string, error) {
	if err := CheckPolicy(password); err != nil {
		return "", err
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify はパスワードとハッシュを定数時間で照合する。
// ハッシュ文字列が不正な場合は ErrMalformedHash を返す。
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(key, p.hash) == 1, nil
}

// NeedsRehash は保存済みハッシュのパラメータが現在の設定より弱いかを返す。
func (h *Hasher) NeedsRehash(encoded string) bool {
	p, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return p.memory < h.config.Memory ||
		p.time < h.config.Time ||
		p.parallelism < h.config.Parallelism ||
		uint32(len(p.hash)) != h.config.KeyLength
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("unsupported algorithm %q", parts[1])
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errors.New("unsupported argon2 version")
	}

	var p phc
	if err := parseParams(parts[3], &p); err != nil {
		return nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt")
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) < int(minKeyLength) {
		return nil, errors.New("invalid hash")
	}
	p.salt = salt
	p.hash = hash

	return &p, nil
}

func parseParams(s string, p *phc) error {
	var seen int
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return errors.New("invalid parameter entry")
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minMemoryKB || uint32(n) > maxMemoryKB {
				return errors.New("invalid memory parameter")
			}
			p.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minTime || uint32(n) > maxTime {
				return errors.New("invalid time parameter")
			}
			p.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || uint8(n) < minParallelism {
				return errors.New("invalid parallelism parameter")
			}
			p.parallelism = uint8(n)
		default:
			return fmt.Errorf("unsupported parameter %q", k)
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return errors.New("missing parameters")
	}
	return nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB || cfg.Memory > maxMemoryKB:
		return fmt.Errorf("argon2 memory must be between %d and %d KiB", minMemoryKB, maxMemoryKB)
	case cfg.Time < minTime || cfg.Time > maxTime:
		return fmt.Errorf("argon2 time must be between %d and %d", minTime, maxTime)
	case cfg.Parallelism < minParallelism:
		return errors.New("argon2 parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("argon2 salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("argon2 key length must be >= 16")
	}
	return nil
}
