package email

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/newsletter/internal/model"
)

const (
	// DefaultMaxAttempts は一時的な失敗に対する既定の最大送信試行回数。
	DefaultMaxAttempts = 3
	// defaultInitialBackoff は指数バックオフの初回遅延。
	defaultInitialBackoff = 500 * time.Millisecond
	// defaultMaxBackoff は指数バックオフの最大遅延。
	defaultMaxBackoff = 5 * time.Second
)

// RetryConfig は再送の設定。ゼロ値の項目には既定値が使われる。
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RetryingSender は一時的な配信失敗を指数バックオフで再送するSender。
// 4xxなど恒久的な失敗は再送しない。
type RetryingSender struct {
	next   Sender
	logger *slog.Logger
	cfg    RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ Sender = (*RetryingSender)(nil)

// NewRetryingSender は next をラップするRetryingSenderを生成する。
func NewRetryingSender(next Sender, logger *slog.Logger, cfg RetryConfig) *RetryingSender {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(defaultMaxBackoff, cfg.InitialBackoff)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingSender{
		next:   next,
		logger: logger,
		cfg:    cfg,
		sleep:  sleepContext,
	}
}

// Send はメールを送信する。一時的な失敗の場合のみ最大 MaxAttempts 回まで試行する。
func (s *RetryingSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err = s.next.Send(ctx, to, subject, htmlBody)
		if err == nil || !IsTransient(err) || attempt == s.cfg.MaxAttempts {
			return err
		}

		delay := s.Backoff(attempt - 1)
		s.logger.Warn("email delivery failed; retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
	}
	return err
}

// Backoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回 InitialBackoff、2倍ずつ増加し、MaxBackoff で頭打ちになる。
func (s *RetryingSender) Backoff(consecutiveFailures int) time.Duration {
	delay := s.cfg.InitialBackoff
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	return delay
}

// IsTransient は err が再送で回復しうる失敗かどうかを返す。
// 配信APIの5xx/429とネットワーク層の失敗が対象。宛先不正とキャンセルは対象外。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var dErr *DeliveryError
	if errors.As(err, &dErr) {
		return dErr.Transient()
	}
	var vErr *model.ValidationError
	if errors.As(err, &vErr) {
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
