// Package newsletter は確認済み購読者へのニュースレター配信を提供する。
package newsletter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/newsletter/internal/email"
	"github.com/hitoshi/newsletter/internal/events"
	"github.com/hitoshi/newsletter/internal/metrics"
	"github.com/hitoshi/newsletter/internal/model"
	"github.com/hitoshi/newsletter/internal/repository"
	"github.com/hitoshi/newsletter/internal/security"
)

// MaxSubjectLength は件名の最大文字数。
const MaxSubjectLength = 200

// Result は配信結果の件数。
type Result struct {
	SentCount   int `json:"sent_count"`
	FailedCount int `json:"failed_count"`
}

// Service はニュースレター配信のサービス層。
type Service struct {
	subscribers repository.SubscriberRepository
	sender      email.Sender
	sanitizer   security.HTMLSanitizer
	publisher   events.Publisher
	metrics     metrics.Recorder
	tracer      trace.Tracer
}

// NewService はServiceを生成する。
func NewService(
	subscribers repository.SubscriberRepository,
	sender email.Sender,
	sanitizer security.HTMLSanitizer,
	publisher events.Publisher,
	recorder metrics.Recorder,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		subscribers: subscribers,
		sender:      sender,
		sanitizer:   sanitizer,
		publisher:   publisher,
		metrics:     recorder,
		tracer:      otel.Tracer("newsletter-service"),
	}
}

// Publish は本文をサニタイズし、確認済みの全購読者に送信する。
// 個々の送信失敗は FailedCount に数え、配信全体は止めない。
func (s *Service) Publish(ctx context.Context, subject, htmlContent string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "Publish")
	defer span.End()

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, model.NewValidationError("subject", model.ReasonEmpty, "")
	}
	if utf8.RuneCountInString(subject) > MaxSubjectLength {
		return nil, model.NewValidationError("subject", model.ReasonTooLong,
			fmt.Sprintf("%d runes", utf8.RuneCountInString(subject)))
	}
	if strings.ContainsAny(subject, "\r\n\x00") {
		return nil, model.NewValidationError("subject", model.ReasonSuspiciousContent, "line break or null byte")
	}

	body := strings.TrimSpace(s.sanitizer.Sanitize(htmlContent))
	if body == "" {
		return nil, model.NewValidationError("content", model.ReasonEmpty, "empty after sanitizing")
	}

	recipients, err := s.subscribers.ListConfirmed(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list subscribers failed")
		return nil, fmt.Errorf("failed to list confirmed subscribers: %w", err)
	}

	result := &Result{}
	for _, sub := range recipients {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// 保存後に形式が変わったアドレスには送らない
		if _, err := security.ValidateEmail(sub.Email); err != nil {
			slog.Warn("skipping subscriber with invalid stored email",
				slog.String("subscriber_id", sub.ID),
				slog.String("error", err.Error()),
			)
			result.FailedCount++
			s.metrics.RecordEmailSent("skipped")
			continue
		}
		if err := s.sender.Send(ctx, sub.Email, subject, body); err != nil {
			slog.Error("failed to send newsletter",
				slog.String("subscriber_id", sub.ID),
				slog.String("error", err.Error()),
			)
			result.FailedCount++
			s.metrics.RecordEmailSent("failure")
			continue
		}
		result.SentCount++
		s.metrics.RecordEmailSent("success")
	}

	span.SetAttributes(
		attribute.Int("newsletter.sent", result.SentCount),
		attribute.Int("newsletter.failed", result.FailedCount),
	)

	if err := s.publisher.Publish(ctx, events.Event{
		Type:       events.TypeNewsletterPublished,
		Key:        subject,
		OccurredAt: time.Now().UTC(),
		Attributes: map[string]string{
			"sent_count":   strconv.Itoa(result.SentCount),
			"failed_count": strconv.Itoa(result.FailedCount),
		},
	}); err != nil {
		slog.Error("failed to publish event",
			slog.String("event_type", events.TypeNewsletterPublished),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("newsletter published",
		slog.Int("sent_count", result.SentCount),
		slog.Int("failed_count", result.FailedCount),
	)
	return result, nil
}
