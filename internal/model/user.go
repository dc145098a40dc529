// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHash は自己記述形式のハッシュ文字列で、平文のパスワードは保持しない。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken は永続化されたリフレッシュトークンを表す。
// 平文のトークンは保存せず、SHA-256ダイジェストのみを持つ。
// 行は削除されず、失効時は IsRevoked を true にする。
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	IsRevoked bool
	RevokedAt *time.Time

	// RevokedReason は失効の経緯。未失効の行では空。
	RevokedReason RevokeReason
}

// RevokeReason はリフレッシュトークンが失効した経緯を表す。
type RevokeReason string

const (
	// RevokeRotated はローテーションで消費されたことを表す。再提示は盗用とみなす。
	RevokeRotated RevokeReason = "rotated"
	// RevokeLogout は明示的なログアウトまたは発行直後の取り消し。
	RevokeLogout RevokeReason = "logout"
	// RevokeAll は全セッションの一括失効。
	RevokeAll RevokeReason = "revoked_all"
)

// Active は指定時刻においてトークンが利用可能かどうかを返す。
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.ExpiresAt)
}
