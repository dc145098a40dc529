package model

import "time"

// SubscriberStatus は購読者の確認状態を表す。
type SubscriberStatus string

const (
	// SubscriberPending は確認メール送信済みで未確認の状態。
	SubscriberPending SubscriberStatus = "pending"
	// SubscriberConfirmed は確認リンクが踏まれた状態。
	SubscriberConfirmed SubscriberStatus = "confirmed"
)

// Subscriber はニュースレターの購読者を表す。
type Subscriber struct {
	ID           string
	Email        string
	Name         string
	Status       SubscriberStatus
	SubscribedAt time.Time
}

// SubscriptionToken は購読確認用のワンタイムトークンを表す。
type SubscriptionToken struct {
	Token        string
	SubscriberID string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}
