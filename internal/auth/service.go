// Package auth はユーザー登録、ログイン、トークンの更新と失効を統括する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/newsletter/internal/auth/password"
	"github.com/hitoshi/newsletter/internal/auth/refresh"
	"github.com/hitoshi/newsletter/internal/auth/token"
	"github.com/hitoshi/newsletter/internal/events"
	"github.com/hitoshi/newsletter/internal/metrics"
	"github.com/hitoshi/newsletter/internal/model"
	"github.com/hitoshi/newsletter/internal/repository"
	"github.com/hitoshi/newsletter/internal/security"
)

// dummyPassword は未登録メールアドレスでのログイン時に照合するダミー。
const dummyPassword = "Dummy-Passw0rd-For-Timing"

// TokenPair はログイン・登録・更新で返すトークンの組。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users     repository.UserRepository
	hasher    *password.Hasher
	signer    *token.Signer
	refresh   *refresh.Store
	publisher events.Publisher
	metrics   metrics.Recorder
	config    ServiceConfig
	tracer    trace.Tracer
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	hasher *password.Hasher,
	signer *token.Signer,
	refreshStore *refresh.Store,
	publisher events.Publisher,
	recorder metrics.Recorder,
	config ServiceConfig,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		users:     users,
		hasher:    hasher,
		signer:    signer,
		refresh:   refreshStore,
		publisher: publisher,
		metrics:   recorder,
		config:    config,
		tracer:    otel.Tracer("auth-service"),
		now:       time.Now,
	}
}

// Register はユーザーを登録し、トークンを発行する。
func (s *Service) Register(ctx context.Context, email, name, plain string) (*TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "Register")
	defer span.End()

	pair, err := s.register(ctx, email, name, plain)
	s.finish(span, "register", err)
	return pair, err
}

func (s *Service) register(ctx context.Context, rawEmail, rawName, plain string) (*TokenPair, error) {
	email, err := security.ValidateEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	name, err := security.ValidateName(rawName)
	if err != nil {
		return nil, err
	}
	if err := password.CheckPolicy(plain); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:       events.TypeUserRegistered,
		Key:        user.ID,
		OccurredAt: now,
		Attributes: map[string]string{"user_id": user.ID},
	})

	slog.Info("user registered", slog.String("user_id", user.ID))
	return pair, nil
}

// Login はメールアドレスとパスワードを照合し、トークンを発行する。
// 未登録とパスワード不一致は区別しない。無効化されたアカウントは
// パスワードが正しい場合にのみそれと分かるエラーを返す。
func (s *Service) Login(ctx context.Context, email, plain string) (*TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "Login")
	defer span.End()

	pair, err := s.login(ctx, email, plain)
	s.finish(span, "login", err)
	return pair, err
}

func (s *Service) login(ctx context.Context, rawEmail, plain string) (*TokenPair, error) {
	email, err := security.ValidateEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.verifyDummy(plain)
		slog.Warn("login failed", slog.String("reason", "unknown email"))
		return nil, &model.CredentialError{Reason: model.CredentialInvalid, Detail: "unknown email"}
	}

	ok, err := s.hasher.Verify(plain, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password for user %s: %w", user.ID, err)
	}
	if !ok {
		slog.Warn("login failed", slog.String("reason", "wrong password"), slog.String("user_id", user.ID))
		return nil, &model.CredentialError{Reason: model.CredentialInvalid, Detail: "wrong password"}
	}
	if !user.IsActive {
		slog.Warn("login failed", slog.String("reason", "inactive account"), slog.String("user_id", user.ID))
		return nil, &model.CredentialError{Reason: model.CredentialInactive, Detail: "inactive account"}
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		slog.Info("password hash uses outdated parameters", slog.String("user_id", user.ID))
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	slog.Info("user logged in", slog.String("user_id", user.ID))
	return pair, nil
}

// Refresh はリフレッシュトークンをローテーションし、新しいトークンの組を返す。
// 失効済みトークンの再提示を検出した場合は所有者の全トークンを失効させる。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "Refresh")
	defer span.End()

	pair, err := s.rotate(ctx, refreshToken)
	s.finish(span, "refresh", err)
	return pair, err
}

func (s *Service) rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, next, err := s.refresh.Rotate(ctx, refreshToken, s.config.RefreshTokenTTL)
	if errors.Is(err, refresh.ErrTokenReused) {
		s.metrics.RecordRefreshReuse()
		n, rErr := s.refresh.RevokeAll(ctx, userID)
		if rErr != nil {
			slog.Error("failed to revoke tokens after reuse",
				slog.String("user_id", userID),
				slog.String("error", rErr.Error()),
			)
		}
		slog.Warn("refresh token reuse, all sessions revoked",
			slog.String("user_id", userID),
			slog.Int64("revoked", n),
		)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		if rErr := s.refresh.Revoke(ctx, next); rErr != nil {
			slog.Error("failed to revoke refresh token", slog.String("error", rErr.Error()))
		}
		return nil, &model.TokenError{Detail: "user missing or inactive", Err: refresh.ErrInvalidRefreshToken}
	}

	access, err := s.signer.Issue(user.ID, user.Email, s.config.AccessTokenTTL, s.config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	return s.pair(access, next), nil
}

// Logout はリフレッシュトークンを1つ失効させる。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := s.tracer.Start(ctx, "Logout")
	defer span.End()

	err := s.refresh.Revoke(ctx, refreshToken)
	s.finish(span, "logout", err)
	return err
}

// LogoutAll はユーザーの全リフレッシュトークンを失効させ、失効件数を返す。
func (s *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "LogoutAll")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	n, err := s.refresh.RevokeAll(ctx, userID)
	s.finish(span, "logout_all", err)
	if err != nil {
		return 0, err
	}
	slog.Info("all sessions revoked", slog.String("user_id", userID), slog.Int64("revoked", n))
	return n, nil
}

// CurrentUser はユーザーIDから有効なユーザーを取得する。無効化済みのアカウントは拒否する。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if !user.IsActive {
		return nil, &model.CredentialError{Reason: model.CredentialInactive}
	}
	return user, nil
}

// VerifyAccessToken はアクセストークンを検証しクレームを返す。
func (s *Service) VerifyAccessToken(accessToken string) (*token.Claims, error) {
	return s.signer.Verify(accessToken, s.config.Issuer)
}

func (s *Service) issuePair(ctx context.Context, user *model.User) (*TokenPair, error) {
	access, err := s.signer.Issue(user.ID, user.Email, s.config.AccessTokenTTL, s.config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	rt, err := s.refresh.Issue(ctx, user.ID, s.config.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return s.pair(access, rt), nil
}

func (s *Service) pair(access, rt string) *TokenPair {
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rt,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenTTL / time.Second),
	}
}

// verifyDummy は未登録ユーザーでも照合と同程度の時間をかける。
func (s *Service) verifyDummy(plain string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			slog.Error("failed to prepare dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(plain, s.dummyHash)
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.Error("failed to publish event",
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()),
		)
	}
}

// finish はスパンの状態と認証イベントのメトリクスを記録する。
func (s *Service) finish(span trace.Span, event string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, event+" failed")
		s.metrics.RecordAuthEvent(event, "failure")
		return
	}
	s.metrics.RecordAuthEvent(event, "success")
}
