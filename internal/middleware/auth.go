// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/newsletter/internal/auth/token"
	"github.com/hitoshi/newsletter/internal/model"
)

// contextKey はコンテキストキーの型。
type contextKey string

const userIDContextKey = contextKey("user_id")

// ErrNoUserID はコンテキストに認証済みユーザーがないことを示す。
var ErrNoUserID = errors.New("user ID not found in context")

// TokenVerifier はアクセストークンを検証するインターフェース。
type TokenVerifier interface {
	VerifyAccessToken(accessToken string) (*token.Claims, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 検証に成功した場合、ユーザーIDとメールアドレスをコンテキストに注入する。
// 失敗理由に関わらず401と同一のレスポンスを返す。
func NewBearerAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			claims, err := verifier.VerifyAccessToken(raw)
			if err != nil {
				slog.Debug("access token rejected",
					slog.String("client_addr", ClientAddr(r)),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				return
			}

			if info := requestInfoFrom(r.Context()); info != nil {
				info.userID = claims.UserID()
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), claims.UserID())))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// コンテキストにユーザーIDが存在しない場合は ErrNoUserID を返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUserID
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやハンドラー単体の呼び出しで使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
