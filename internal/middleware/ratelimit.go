package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/newsletter/internal/metrics"
	"github.com/hitoshi/newsletter/internal/model"
	"github.com/hitoshi/newsletter/internal/security"
)

// RateLimitGuard はクライアントアドレス単位のレート制限を判定するインターフェース。
type RateLimitGuard interface {
	CheckRateLimit(clientAddr string) error
	BucketCount() int
	RetryAfter() time.Duration
}

// NewRateLimitMiddleware はクライアントアドレスごとのレート制限ミドルウェアを返す。
// 認証の前段に配置し、未認証のリクエストも制限対象とする。
func NewRateLimitMiddleware(guard RateLimitGuard, recorder metrics.Recorder) func(next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := ClientAddr(r)
			err := guard.CheckRateLimit(addr)
			recorder.SetRateLimitBuckets(guard.BucketCount())
			if err != nil {
				recorder.RecordRateLimitRejection()
				slog.Warn("rate limit exceeded",
					slog.String("client_addr", addr),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w, guard.RetryAfter())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientAddr はリクエスト元のアドレスを返す。
// 転送ヘッダーは偽装できるため参照せず、接続元のホスト部のみを使う。
func ClientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが1つ補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitExceededError())
}

var _ RateLimitGuard = (*security.Guard)(nil)
