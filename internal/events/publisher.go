// Package events はドメインイベントをKafkaへ発行する。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// イベント種別。
const (
	TypeUserRegistered      = "user.registered"
	TypeSubscriberConfirmed = "subscriber.confirmed"
	TypeNewsletterPublished = "newsletter.published"
)

// Event はドメインイベントのエンベロープ。
type Event struct {
	Type       string            `json:"event_type"`
	Key        string            `json:"key"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Publisher はドメインイベントの発行先。
// 発行失敗は呼び出し元の処理を失敗させない。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// messageWriter は kafka.Writer のうち利用するメソッド。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher はKafkaトピックへイベントを書き込む。
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher はブローカーとトピックからKafkaPublisherを生成する。
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				slog.Error("failed to deliver events",
					slog.String("topic", topic),
					slog.Int("count", len(msgs)),
					slog.String("error", err.Error()),
				)
			}
		},
	}
	return &KafkaPublisher{writer: writer, topic: topic}
}

// Publish はイベントをJSONにしてキー付きで書き込む。
// 同じキーのイベントは同じパーティションに入る。
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event %s: %w", event.Type, err)
	}

	slog.Debug("event published",
		slog.String("topic", p.topic),
		slog.String("event_type", event.Type),
	)
	return nil
}

// Close は未送信のメッセージを送り切ってから接続を閉じる。
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

// NopPublisher はイベントを捨てるPublisher。Kafkaが未設定の場合に使う。
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(_ context.Context, event Event) error {
	slog.Debug("event discarded", slog.String("event_type", event.Type))
	return nil
}

func (NopPublisher) Close() error { return nil }

// New はブローカーが空ならNopPublisher、そうでなければKafkaPublisherを返す。
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}
