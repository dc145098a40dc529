package security

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrRateLimited はレート制限によりリクエストが拒否されたことを示す。
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrPayloadTooLarge は宣言されたボディサイズが上限を超えたことを示す。
	ErrPayloadTooLarge = errors.New("payload too large")
)

// DefaultMaxContentLength はリクエストボディサイズのデフォルト上限（バイト）。
const DefaultMaxContentLength int64 = 1024

// securityHeaders は全レスポンスに付与する固定のヘッダー。
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'self'",
	"Permissions-Policy":        "camera=(), microphone=(), geolocation=()",
}

// SecurityHeaders は固定のセキュリティヘッダーのコピーを返す。
func SecurityHeaders() http.Header {
	h := make(http.Header, len(securityHeaders))
	for k, v := range securityHeaders {
		h.Set(k, v)
	}
	return h
}

// GuardConfig はGuardの設定を保持する。
type GuardConfig struct {
	RateLimit        RateLimiterConfig
	MaxContentLength int64
}

// Guard はリクエスト単位の受け付け制御を行う。
// レート制限とボディサイズ上限は互いに独立して判定する。
type Guard struct {
	limiter          *RateLimiter
	maxContentLength int64
}

// NewGuard は新しいGuardを生成する。
func NewGuard(config GuardConfig) *Guard {
	maxLen := config.MaxContentLength
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLength
	}
	return &Guard{
		limiter:          NewRateLimiter(config.RateLimit),
		maxContentLength: maxLen,
	}
}

// CheckRateLimit はクライアントアドレスのトークンを1つ消費する。
// トークンが残っていない場合は ErrRateLimited を返す。
func (g *Guard) CheckRateLimit(clientAddr string) error {
	if !g.limiter.Allow(clientAddr) {
		return ErrRateLimited
	}
	return nil
}

// CheckContentLength は宣言されたボディサイズが上限以内かを判定する。
func (g *Guard) CheckContentLength(size int64) error {
	if size > g.maxContentLength {
		return ErrPayloadTooLarge
	}
	return nil
}

// MaxContentLength はボディサイズの上限を返す。
func (g *Guard) MaxContentLength() int64 {
	return g.maxContentLength
}

// RetryAfter はレート制限時にクライアントへ提示する待ち時間を返す。
func (g *Guard) RetryAfter() time.Duration {
	return g.limiter.RetryAfter()
}

// BucketCount は現在管理しているバケット数を返す。
func (g *Guard) BucketCount() int {
	return g.limiter.Len()
}

// Stop はバックグラウンドの掃除を停止する。
func (g *Guard) Stop() {
	g.limiter.Stop()
}
