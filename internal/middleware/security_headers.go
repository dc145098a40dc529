package middleware

import (
	"net/http"

	"github.com/hitoshi/newsletter/internal/security"
)

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// エラーレスポンスを含むすべてのレスポンスに付与される。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	headers := security.SecurityHeaders()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k := range headers {
				w.Header().Set(k, headers.Get(k))
			}
			next.ServeHTTP(w, r)
		})
	}
}
