package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/newsletter/internal/metrics"
	"github.com/hitoshi/newsletter/internal/middleware"
	"github.com/hitoshi/newsletter/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Guard                      *security.Guard
	TokenVerifier              middleware.TokenVerifier
	NewsletterMaxContentLength int64
	Metrics                    metrics.Recorder
	Gatherer                   prometheus.Gatherer

	// ヘルスチェック
	DB Pinger

	// サービス
	AuthService         AuthServiceInterface
	SubscriptionService SubscriptionServiceInterface
	NewsletterService   NewsletterServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → RateLimit → BodyLimit → (BearerAuth)
//
// BodyLimitは /newsletters のみ NewsletterMaxContentLength を上限とし、それ以外はGuardの上限を使う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default(), deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRateLimitMiddleware(deps.Guard, deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	newsletterHandler := NewNewsletterHandler(deps.NewsletterService)
	bearer := middleware.NewBearerAuthMiddleware(deps.TokenVerifier)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBodyLimitMiddleware(deps.Guard))

		r.Get("/health", NewHealthHandler(deps.DB))
		if deps.Gatherer != nil {
			r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
		}

		// 購読
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Subscribe)
			r.Get("/confirm", subHandler.Confirm)
		})

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)

			r.With(bearer).Get("/me", authHandler.Me)
			r.With(bearer).Post("/logout-all", authHandler.LogoutAll)
		})
	})

	// ニュースレターは専用の上限
	r.With(
		middleware.NewBodyLimitMiddleware(middleware.ContentLimit(deps.NewsletterMaxContentLength)),
		bearer,
	).Post("/newsletters", newsletterHandler.Publish)

	return r
}
