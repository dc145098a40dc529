package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/newsletter/internal/model"
)

// PostgresSubscriptionTokenRepo はPostgreSQLを使用した購読確認トークンリポジトリ。
type PostgresSubscriptionTokenRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionTokenRepo はPostgresSubscriptionTokenRepoを生成する。
func NewPostgresSubscriptionTokenRepo(db *sql.DB) *PostgresSubscriptionTokenRepo {
	return &PostgresSubscriptionTokenRepo{db: db}
}

var _ SubscriptionTokenRepository = (*PostgresSubscriptionTokenRepo)(nil)

// Create は確認トークンを作成する。
func (r *PostgresSubscriptionTokenRepo) Create(ctx context.Context, t *model.SubscriptionToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscription_tokens (subscription_token, subscriber_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		t.Token, t.SubscriberID, t.CreatedAt, t.ExpiresAt,
	)
	return classify("create subscription token", err)
}

// FindValid は期限内の確認トークンを取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionTokenRepo) FindValid(ctx context.Context, token string, now time.Time) (*model.SubscriptionToken, error) {
	t := &model.SubscriptionToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT subscription_token, subscriber_id, created_at, expires_at
		 FROM subscription_tokens
		 WHERE subscription_token = $1 AND expires_at > $2`,
		token, now,
	).Scan(&t.Token, &t.SubscriberID, &t.CreatedAt, &t.ExpiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find subscription token", err)
	}
	return t, nil
}
