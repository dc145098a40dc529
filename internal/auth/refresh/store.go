// Package refresh は長命のリフレッシュトークンの発行・検証・失効・ローテーションを行う。
// 平文は利用者にのみ渡し、ストアにはSHA-256ダイジェストだけを保存する。
package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsletter/internal/model"
	"github.com/hitoshi/newsletter/internal/repository"
)

// TokenLength はリフレッシュトークン平文の文字数。
const TokenLength = 64

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxUnbiased は alphabet の長さの倍数で 256 未満の最大値。これ以上のバイトは捨てる。
const maxUnbiased = 256 - 256%len(alphabet)

var (
	// ErrInvalidRefreshToken は存在しない・失効済み・期限切れのトークンを表す。
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrTokenReused はローテーション済みトークンの再提示を表す。
	ErrTokenReused = fmt.Errorf("%w: reused", ErrInvalidRefreshToken)
)

// Store はリフレッシュトークンのストア。
type Store struct {
	repo repository.RefreshTokenRepository
	now  func() time.Time
	rand io.Reader
}

// Option はStoreのオプション。
type Option func(*Store)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRandom は乱数源を差し替える。
func WithRandom(r io.Reader) Option {
	return func(s *Store) { s.rand = r }
}

// NewStore はStoreを生成する。
func NewStore(repo repository.RefreshTokenRepository, opts ...Option) *Store {
	s := &Store{
		repo: repo,
		now:  time.Now,
		rand: rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Digest はトークン平文のSHA-256ダイジェストを16進小文字で返す。
func Digest(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Generate は英数字64文字のトークン平文を生成する。
func (s *Store) Generate() (string, error) {
	out := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength)
	for len(out) < TokenLength {
		if _, err := io.ReadFull(s.rand, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == TokenLength {
				break
			}
		}
	}
	return string(out), nil
}

// Persist はトークンのダイジェストを有効期限付きで保存する。
func (s *Store) Persist(ctx context.Context, userID, plaintext string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %s", ttl)
	}
	now := s.now()
	token := &model.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: Digest(plaintext),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return nil
}

// Issue は新しいトークンを生成して保存し、平文を返す。
func (s *Store) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	plaintext, err := s.Generate()
	if err != nil {
		return "", err
	}
	if err := s.Persist(ctx, userID, plaintext, ttl); err != nil {
		return "", err
	}
	return plaintext, nil
}

// Validate はトークンが有効であれば所有ユーザーIDを返す。
func (s *Store) Validate(ctx context.Context, plaintext string) (string, error) {
	token, err := s.repo.FindByHash(ctx, Digest(plaintext))
	if err != nil {
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}
	if token == nil {
		return "", rejected("not found", ErrInvalidRefreshToken)
	}
	if token.IsRevoked {
		return "", rejected("revoked", ErrInvalidRefreshToken)
	}
	if !s.now().Before(token.ExpiresAt) {
		return "", rejected("expired", ErrInvalidRefreshToken)
	}
	return token.UserID, nil
}

// Revoke はトークンを失効させる。存在しない・失効済みの場合も成功扱い。
func (s *Store) Revoke(ctx context.Context, plaintext string) error {
	if err := s.repo.Revoke(ctx, Digest(plaintext), s.now()); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll はユーザーの有効なトークンを全て失効させ、失効件数を返す。
func (s *Store) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return n, nil
}

// Rotate は旧トークンを1回の条件付き更新で消費し、新しいトークンを発行する。
// 同じトークンの同時ローテーションはちょうど1つだけが成功する。
//
// ローテーションで消費済みのトークンの再提示は ErrTokenReused になり、このとき
// userID には元の所有者が入る。呼び出し側はそのユーザーの全トークンを失効させる。
// ログアウトや一括失効で失効したトークンは通常の無効トークンとして扱う。
func (s *Store) Rotate(ctx context.Context, plaintext string, ttl time.Duration) (userID, next string, err error) {
	digest := Digest(plaintext)

	userID, err = s.repo.Consume(ctx, digest, s.now())
	if err != nil {
		return "", "", fmt.Errorf("failed to consume refresh token: %w", err)
	}
	if userID == "" {
		owner, reused, err := s.Reused(ctx, digest)
		if err != nil {
			return "", "", err
		}
		if reused {
			slog.Warn("refresh token reuse detected", slog.String("user_id", owner))
			return owner, "", rejected("reused", ErrTokenReused)
		}
		return "", "", rejected("not rotatable", ErrInvalidRefreshToken)
	}

	next, err = s.Issue(ctx, userID, ttl)
	if err != nil {
		return "", "", err
	}
	return userID, next, nil
}

// Reused はダイジェストがローテーションで消費済みの行に一致するかを調べ、所有ユーザーIDを返す。
func (s *Store) Reused(ctx context.Context, digest string) (string, bool, error) {
	token, err := s.repo.FindByHash(ctx, digest)
	if err != nil {
		return "", false, fmt.Errorf("failed to find refresh token: %w", err)
	}
	if token == nil || !token.IsRevoked || token.RevokedReason != model.RevokeRotated {
		return "", false, nil
	}
	return token.UserID, true, nil
}

func rejected(detail string, err error) error {
	slog.Debug("refresh token rejected", slog.String("reason", detail))
	return &model.TokenError{Detail: detail, Err: err}
}
