// Package subscription はニュースレター購読の受付と確認のドメインロジックを提供する。
package subscription

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/newsletter/internal/email"
	"github.com/hitoshi/newsletter/internal/events"
	"github.com/hitoshi/newsletter/internal/model"
	"github.com/hitoshi/newsletter/internal/repository"
	"github.com/hitoshi/newsletter/internal/security"
)

const confirmationSubject = "購読の確認"

// Config は購読サービスの設定。
type Config struct {
	BaseURL              string
	ConfirmationTokenTTL time.Duration
}

// Service は購読管理のサービス層。
type Service struct {
	subscribers repository.SubscriberRepository
	tokens      repository.SubscriptionTokenRepository
	sender      email.Sender
	publisher   events.Publisher
	config      Config
	tracer      trace.Tracer
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	subscribers repository.SubscriberRepository,
	tokens repository.SubscriptionTokenRepository,
	sender email.Sender,
	publisher events.Publisher,
	config Config,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		subscribers: subscribers,
		tokens:      tokens,
		sender:      sender,
		publisher:   publisher,
		config:      config,
		tracer:      otel.Tracer("subscription-service"),
		now:         time.Now,
	}
}

// Subscribe は購読を受け付け、確認メールを送信する。
// 既に確認済みの購読者はそのまま返し、メールは送らない。
// 未確認の購読者には新しい確認トークンでメールを再送する。
func (s *Service) Subscribe(ctx context.Context, rawEmail, rawName string) (*model.Subscriber, error) {
	ctx, span := s.tracer.Start(ctx, "Subscribe")
	defer span.End()

	sub, err := s.subscribe(ctx, rawEmail, rawName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscribe failed")
	}
	return sub, err
}

func (s *Service) subscribe(ctx context.Context, rawEmail, rawName string) (*model.Subscriber, error) {
	emailAddr, err := security.ValidateEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	name, err := security.ValidateName(rawName)
	if err != nil {
		return nil, err
	}

	sub, err := s.findOrCreate(ctx, emailAddr, name)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubscriberConfirmed {
		slog.Info("subscriber already confirmed", slog.String("subscriber_id", sub.ID))
		return sub, nil
	}

	now := s.now()
	token := &model.SubscriptionToken{
		Token:        uuid.New().String(),
		SubscriberID: sub.ID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.config.ConfirmationTokenTTL),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store confirmation token: %w", err)
	}

	if err := s.sender.Send(ctx, sub.Email, confirmationSubject, s.confirmationBody(token.Token)); err != nil {
		return nil, fmt.Errorf("failed to send confirmation email: %w", err)
	}

	slog.Info("subscription pending confirmation", slog.String("subscriber_id", sub.ID))
	return sub, nil
}

// findOrCreate は既存の購読者を返すか、未確認の購読者を作成する。
func (s *Service) findOrCreate(ctx context.Context, emailAddr, name string) (*model.Subscriber, error) {
	existing, err := s.subscribers.FindByEmail(ctx, emailAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to find subscriber: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	sub := &model.Subscriber{
		ID:           uuid.New().String(),
		Email:        emailAddr,
		Name:         name,
		Status:       model.SubscriberPending,
		SubscribedAt: s.now(),
	}
	err = s.subscribers.Create(ctx, sub)

	// 同時登録で先を越された場合は相手の行を使う
	var sErr *model.StoreError
	if errors.As(err, &sErr) && sErr.Kind == model.StoreDuplicate {
		existing, findErr := s.subscribers.FindByEmail(ctx, emailAddr)
		if findErr != nil {
			return nil, fmt.Errorf("failed to find subscriber: %w", findErr)
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}
	return sub, nil
}

func (s *Service) confirmationBody(token string) string {
	link := fmt.Sprintf("%s/subscriptions/confirm?token=%s", s.config.BaseURL, url.QueryEscape(token))
	escaped := html.EscapeString(link)
	return fmt.Sprintf(`<p>ニュースレターへのご登録ありがとうございます。</p><p><a href="%s">こちらのリンク</a>から購読を確定してください。</p>`, escaped)
}

// Confirm は確認トークンを検証して購読を確定する。
// 不正・期限切れのトークンは理由を区別せず同じエラーになる。
func (s *Service) Confirm(ctx context.Context, token string) error {
	ctx, span := s.tracer.Start(ctx, "Confirm")
	defer span.End()

	err := s.confirm(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
	}
	return err
}

func (s *Service) confirm(ctx context.Context, token string) error {
	if token == "" {
		return model.NewInvalidConfirmationTokenError()
	}
	if _, err := uuid.Parse(token); err != nil {
		slog.Warn("malformed confirmation token")
		return model.NewInvalidConfirmationTokenError()
	}

	found, err := s.tokens.FindValid(ctx, token, s.now())
	if err != nil {
		return fmt.Errorf("failed to find confirmation token: %w", err)
	}
	if found == nil {
		return model.NewInvalidConfirmationTokenError()
	}

	if err := s.subscribers.Confirm(ctx, found.SubscriberID); err != nil {
		var sErr *model.StoreError
		if errors.As(err, &sErr) && sErr.Kind == model.StoreNotFound {
			return model.NewInvalidConfirmationTokenError()
		}
		return fmt.Errorf("failed to confirm subscriber: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Type:       events.TypeSubscriberConfirmed,
		Key:        found.SubscriberID,
		OccurredAt: s.now(),
	}); err != nil {
		slog.Error("failed to publish event",
			slog.String("event_type", events.TypeSubscriberConfirmed),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("subscription confirmed", slog.String("subscriber_id", found.SubscriberID))
	return nil
}
