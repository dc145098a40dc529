package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsletter/internal/model"
	"github.com/hitoshi/newsletter/internal/security"
)

// ContentLengthChecker は宣言されたボディサイズを判定するインターフェース。
type ContentLengthChecker interface {
	CheckContentLength(size int64) error
	MaxContentLength() int64
}

// NewBodyLimitMiddleware はリクエストボディのサイズを制限するミドルウェアを返す。
// Content-Lengthが上限を超える場合は本文を読まずに413を返す。
// 長さが宣言されていない場合も読み取り量を上限で打ち切る。
func NewBodyLimitMiddleware(checker ContentLengthChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := checker.CheckContentLength(r.ContentLength); err != nil {
				slog.Warn("request body too large",
					slog.String("client_addr", ClientAddr(r)),
					slog.String("path", r.URL.Path),
					slog.Int64("content_length", r.ContentLength),
					slog.Int64("limit", checker.MaxContentLength()),
				)
				WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError())
				return
			}

			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, checker.MaxContentLength())
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentLimit は固定の上限で判定するContentLengthChecker。
// ルートごとに異なる上限を適用する場合に使う。
type ContentLimit int64

// CheckContentLength は上限を超えていれば security.ErrPayloadTooLarge を返す。
func (l ContentLimit) CheckContentLength(size int64) error {
	if size > int64(l) {
		return security.ErrPayloadTooLarge
	}
	return nil
}

// MaxContentLength は上限を返す。
func (l ContentLimit) MaxContentLength() int64 {
	return int64(l)
}
