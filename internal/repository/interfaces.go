// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
// 全てのクエリはプレースホルダ付きで発行し、エラーは *model.StoreError に分類して返す。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/newsletter/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。メールアドレスが重複する場合は
	// Kind が model.StoreDuplicate の *model.StoreError を返す。
	Create(ctx context.Context, user *model.User) error

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
// 行を削除するメソッドは持たない。
type RefreshTokenRepository interface {
	// Create はトークン行を挿入する。
	Create(ctx context.Context, token *model.RefreshToken) error

	// FindByHash はダイジェストでトークン行を取得する。見つからない場合はnilを返す。
	FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)

	// Revoke は未失効のトークンを失効させる。対象がなくてもエラーにしない。
	Revoke(ctx context.Context, tokenHash string, at time.Time) error

	// RevokeAllForUser はユーザーの有効なトークンを全て失効させ、件数を返す。
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)

	// Consume は有効なトークンを1文で失効させ、所有ユーザーIDを返す。
	// 有効なトークンがない場合は空文字列を返す。
	Consume(ctx context.Context, tokenHash string, at time.Time) (string, error)
}

// SubscriberRepository はニュースレター購読者の永続化インターフェース。
type SubscriberRepository interface {
	// Create は購読者を作成する。
	Create(ctx context.Context, subscriber *model.Subscriber) error

	// FindByEmail はメールアドレスで購読者を取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Subscriber, error)

	// ListConfirmed は確認済みの購読者を全て返す。
	ListConfirmed(ctx context.Context) ([]model.Subscriber, error)

	// Confirm は購読者を確認済みにし、その購読者の確認トークンを同一トランザクションで削除する。
	Confirm(ctx context.Context, subscriberID string) error
}

// SubscriptionTokenRepository は購読確認トークンの永続化インターフェース。
type SubscriptionTokenRepository interface {
	// Create は確認トークンを作成する。
	Create(ctx context.Context, token *model.SubscriptionToken) error

	// FindValid は期限内の確認トークンを取得する。見つからない場合はnilを返す。
	FindValid(ctx context.Context, token string, now time.Time) (*model.SubscriptionToken, error)
}
