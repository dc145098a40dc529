package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/newsletter/internal/model"
)

// PostgresRefreshTokenRepo はPostgreSQLを使用したリフレッシュトークンリポジトリ。
type PostgresRefreshTokenRepo struct {
	db *sql.DB
}

// NewPostgresRefreshTokenRepo はPostgresRefreshTokenRepoを生成する。
func NewPostgresRefreshTokenRepo(db *sql.DB) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db}
}

var _ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)

// Create はトークン行を is_revoked = false で挿入する。
func (r *PostgresRefreshTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, is_revoked)
		 VALUES ($1, $2, $3, $4, $5, false)`,
		token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt,
	)
	return classify("create refresh token", err)
}

// FindByHash はダイジェストでトークン行を取得する。見つからない場合はnilを返す。
func (r *PostgresRefreshTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	token := &model.RefreshToken{}
	var revokedAt sql.NullTime
	var reason sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, is_revoked, revoked_at, revoked_reason
		 FROM refresh_tokens
		 WHERE token_hash = $1`,
		tokenHash,
	).Scan(&token.ID, &token.UserID, &token.TokenHash, &token.CreatedAt, &token.ExpiresAt, &token.IsRevoked, &revokedAt, &reason)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find refresh token", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}
	token.RevokedReason = model.RevokeReason(reason.String)
	return token, nil
}

// Revoke は未失効のトークンを reason 'logout' で失効させる。既に失効済み・存在しない場合は何もしない。
func (r *PostgresRefreshTokenRepo) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET is_revoked = true, revoked_at = $2, revoked_reason = $3
		 WHERE token_hash = $1 AND is_revoked = false`,
		tokenHash, at, string(model.RevokeLogout),
	)
	return classify("revoke refresh token", err)
}

// RevokeAllForUser はユーザーの有効なトークンを全て失効させる。
func (r *PostgresRefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET is_revoked = true, revoked_at = $2, revoked_reason = $3
		 WHERE user_id = $1 AND is_revoked = false AND expires_at > $2`,
		userID, at, string(model.RevokeAll),
	)
	if err != nil {
		return 0, classify("revoke all refresh tokens", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, classify("revoke all refresh tokens", err)
	}
	return n, nil
}

// Consume は有効なトークンを条件付きUPDATEで reason 'rotated' として失効させ、所有ユーザーIDを返す。
// 同じトークンに対する同時実行では、ちょうど1つだけがユーザーIDを受け取る。
func (r *PostgresRefreshTokenRepo) Consume(ctx context.Context, tokenHash string, at time.Time) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`UPDATE refresh_tokens
		 SET is_revoked = true, revoked_at = $2, revoked_reason = $3
		 WHERE token_hash = $1 AND is_revoked = false AND expires_at > $2
		 RETURNING user_id`,
		tokenHash, at, string(model.RevokeRotated),
	).Scan(&userID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classify("consume refresh token", err)
	}
	return userID, nil
}
