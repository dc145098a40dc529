// Package token はHS256で署名された短命のアクセストークンを発行・検証する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/newsletter/internal/model"
)

// MinSecretLength は署名鍵の最小バイト数。
const MinSecretLength = 32

// ErrInvalidToken は検証失敗を表す唯一のエラー。
// 署名・アルゴリズム・発行者・有効期限のどれで失敗したかは呼び出し側に伝えない。
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims はアクセストークンのクレーム。sub, email, iat, exp, iss を持つ。
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID はsubクレームのユーザーIDを返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// Signer はアクセストークンの発行と検証を行う。状態を持たず並行利用できる。
type Signer struct {
	secret []byte
	now    func() time.Time
}

// Option はSignerのオプション。
type Option func(*Signer)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner は共有秘密鍵からSignerを生成する。
func NewSigner(secret []byte, opts ...Option) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	s := &Signer{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue はユーザーのアクセストークンを発行する。
// iat は現在時刻、exp は iat + ttl となる。
func (s *Signer) Issue(userID, email string, ttl time.Duration, issuer string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive: %s", ttl)
	}

	now := s.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、クレームを返す。
// 署名、アルゴリズム固定、発行者、有効期限の順に検証し、
// いずれの失敗も同一の *model.TokenError（ErrInvalidToken をラップ）になる。
func (s *Signer) Verify(tokenString, expectedIssuer string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)

	claims := &Claims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, invalid("parse: " + err.Error())
	}
	if !tok.Valid {
		return nil, invalid("signature not valid")
	}

	if claims.Issuer != expectedIssuer {
		return nil, invalid(fmt.Sprintf("issuer mismatch: %q", claims.Issuer))
	}

	if claims.ExpiresAt == nil {
		return nil, invalid("missing exp")
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, invalid("expired")
	}

	if claims.Subject == "" {
		return nil, invalid("missing sub")
	}

	return claims, nil
}

func invalid(detail string) error {
	return &model.TokenError{Detail: detail, Err: ErrInvalidToken}
}
