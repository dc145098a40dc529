package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/newsletter/internal/model"
)

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)

// Create は購読者を作成する。
func (r *PostgresSubscriberRepo) Create(ctx context.Context, s *model.Subscriber) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, email, name, status, subscribed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.Email, s.Name, string(s.Status), s.SubscribedAt,
	)
	return classify("create subscriber", err)
}

// FindByEmail はメールアドレスで購読者を取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	s := &model.Subscriber{}
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, status, subscribed_at
		 FROM subscriptions
		 WHERE lower(email) = lower($1)`,
		email,
	).Scan(&s.ID, &s.Email, &s.Name, &status, &s.SubscribedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find subscriber", err)
	}
	s.Status = model.SubscriberStatus(status)
	return s, nil
}

// ListConfirmed は確認済みの購読者を登録順に返す。
func (r *PostgresSubscriberRepo) ListConfirmed(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, name, status, subscribed_at
		 FROM subscriptions
		 WHERE status = $1
		 ORDER BY subscribed_at`,
		string(model.SubscriberConfirmed),
	)
	if err != nil {
		return nil, classify("list confirmed subscribers", err)
	}
	defer rows.Close()

	var subscribers []model.Subscriber
	for rows.Next() {
		var s model.Subscriber
		var status string
		if err := rows.Scan(&s.ID, &s.Email, &s.Name, &status, &s.SubscribedAt); err != nil {
			return nil, classify("scan subscriber", err)
		}
		s.Status = model.SubscriberStatus(status)
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate subscribers", err)
	}
	return subscribers, nil
}

// Confirm は購読者を確認済みにし、確認トークンを同一トランザクションで削除する。
func (r *PostgresSubscriberRepo) Confirm(ctx context.Context, subscriberID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin confirm", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1 WHERE id = $2`,
		string(model.SubscriberConfirmed), subscriberID,
	)
	if err != nil {
		return classify("confirm subscriber", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify("confirm subscriber", err)
	}
	if n == 0 {
		return &model.StoreError{
			Op:   "confirm subscriber",
			Kind: model.StoreNotFound,
			Err:  fmt.Errorf("subscriber %s not found", subscriberID),
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subscription_tokens WHERE subscriber_id = $1`,
		subscriberID,
	); err != nil {
		return classify("delete subscription tokens", err)
	}

	if err := tx.Commit(); err != nil {
		return classify("commit confirm", err)
	}
	return nil
}
