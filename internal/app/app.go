// Package app はアプリケーションの初期化と各サブコマンドの起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/newsletter/internal/auth"
	"github.com/hitoshi/newsletter/internal/auth/password"
	"github.com/hitoshi/newsletter/internal/auth/refresh"
	"github.com/hitoshi/newsletter/internal/auth/token"
	"github.com/hitoshi/newsletter/internal/config"
	"github.com/hitoshi/newsletter/internal/database"
	"github.com/hitoshi/newsletter/internal/email"
	"github.com/hitoshi/newsletter/internal/events"
	"github.com/hitoshi/newsletter/internal/handler"
	"github.com/hitoshi/newsletter/internal/logger"
	"github.com/hitoshi/newsletter/internal/metrics"
	"github.com/hitoshi/newsletter/internal/newsletter"
	"github.com/hitoshi/newsletter/internal/repository"
	"github.com/hitoshi/newsletter/internal/security"
	"github.com/hitoshi/newsletter/internal/subscription"
	"github.com/hitoshi/newsletter/internal/telemetry"
	"github.com/hitoshi/newsletter/internal/worker/cleanup"
)

const (
	serviceName     = "newsletter"
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 24 * time.Hour
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定値のログレベルで再設定
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newEmailSender はメール送信APIのクライアントを返す。
// 送信先が未設定の場合はログ出力のみのNoopSenderを返す。
func newEmailSender(cfg *config.Config) email.Sender {
	if cfg.EmailAPIBaseURL == "" {
		slog.Warn("EMAIL_API_BASE_URL is not set; emails will only be logged")
		return email.NoopSender{Logger: slog.Default()}
	}
	client := email.NewClient(
		&http.Client{Timeout: cfg.EmailTimeout},
		slog.Default(),
		cfg.EmailAPIBaseURL,
		cfg.EmailSender,
	)
	return email.NewRetryingSender(client, slog.Default(), email.RetryConfig{
		MaxAttempts: cfg.EmailMaxAttempts,
	})
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. トレーシング
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	// 2. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	// 4. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	refreshRepo := repository.NewPostgresRefreshTokenRepo(db)
	subscriberRepo := repository.NewPostgresSubscriberRepo(db)
	tokenRepo := repository.NewPostgresSubscriptionTokenRepo(db)

	// 5. 認証コンポーネントの初期化
	hasher, err := password.NewHasher(password.Config{
		Memory:      uint32(cfg.Argon2MemoryKB),
		Time:        uint32(cfg.Argon2Iterations),
		Parallelism: uint8(cfg.Argon2Parallelism),
		SaltLength:  password.DefaultConfig().SaltLength,
		KeyLength:   password.DefaultConfig().KeyLength,
	})
	if err != nil {
		return fmt.Errorf("invalid password hashing parameters: %w", err)
	}
	signer, err := token.NewSigner([]byte(cfg.JWTSecret))
	if err != nil {
		return fmt.Errorf("invalid JWT secret: %w", err)
	}
	refreshStore := refresh.NewStore(refreshRepo)

	// 6. 外部連携
	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	sender := newEmailSender(cfg)

	// 7. ドメインサービスの初期化
	authService := auth.NewService(userRepo, hasher, signer, refreshStore, publisher, recorder, auth.ServiceConfig{
		Issuer:          cfg.JWTIssuer,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	})
	subService := subscription.NewService(subscriberRepo, tokenRepo, sender, publisher, subscription.Config{
		BaseURL:              cfg.BaseURL,
		ConfirmationTokenTTL: cfg.ConfirmationTokenTTL,
	})
	newsletterService := newsletter.NewService(subscriberRepo, sender, security.NewContentSanitizer(), publisher, recorder)

	// 8. ルーターの構築
	guard := security.NewGuard(security.GuardConfig{
		RateLimit: security.RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			CleanupInterval:   cfg.RateLimitCleanupInterval,
			IdleTTL:           cfg.RateLimitIdleTTL,
		},
		MaxContentLength: cfg.MaxContentLength,
	})

	router := handler.NewRouter(&handler.RouterDeps{
		Guard:                      guard,
		TokenVerifier:              authService,
		NewsletterMaxContentLength: cfg.NewsletterMaxContentLength,
		Metrics:                    recorder,
		Gatherer:                   registry,
		DB:                         db,
		AuthService:                authService,
		SubscriptionService:        subService,
		NewsletterService:          newsletterService,
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down API server...")
	case listenErr = <-serveErr:
		slog.Error("server listen error", slog.String("error", listenErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := []error{listenErr}
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
	}
	guard.Stop()
	if err := publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event publisher close failed: %w", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown failed: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れの購読確認トークンを日次で削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(db, slog.Default())
	if cfg.TokenRetentionDays > 0 {
		job.RetentionDays = cfg.TokenRetentionDays
	}

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanupInterval),
		slog.Int("retention_days", job.RetentionDays),
	)

	// キャンセルされるまでブロックする
	job.Loop(ctx, cleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	latest, err := database.LatestVersion()
	if err != nil {
		return err
	}
	if version != latest {
		return fmt.Errorf("schema version %d does not match embedded migrations %d", version, latest)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	hasUser := u.User != nil
	u.User = nil
	u.RawQuery = ""
	masked := u.String()
	if hasUser {
		masked = strings.Replace(masked, "://", "://***@", 1)
	}
	return masked
}
