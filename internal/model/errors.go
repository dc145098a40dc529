// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// クライアントに返すのはこの構造体の内容のみで、内部の詳細は含めない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, subscription, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation               = "VALIDATION_ERROR"
	ErrCodePossibleInjection        = "POSSIBLE_INJECTION"
	ErrCodeInvalidCredentials       = "INVALID_CREDENTIALS"
	ErrCodeAccountInactive          = "ACCOUNT_INACTIVE"
	ErrCodeInvalidToken             = "INVALID_TOKEN"
	ErrCodeUnauthorized             = "UNAUTHORIZED"
	ErrCodeAlreadyRegistered        = "ALREADY_REGISTERED"
	ErrCodeInvalidConfirmationToken = "INVALID_CONFIRMATION_TOKEN"
	ErrCodeUserNotFound             = "USER_NOT_FOUND"
	ErrCodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	ErrCodePayloadTooLarge          = "PAYLOAD_TOO_LARGE"
	ErrCodeServiceUnavailable       = "SERVICE_UNAVAILABLE"
	ErrCodeInternal                 = "INTERNAL_ERROR"
)

// NewValidationAPIError は入力検証エラーを生成する。
// 検証に失敗したフィールド名のみを含め、どのチェックで失敗したかは含めない。
func NewValidationAPIError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", field),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewPossibleInjectionAPIError は不正な文字列パターンを含む入力のエラーを生成する。
func NewPossibleInjectionAPIError(field string) *APIError {
	return &APIError{
		Code:     ErrCodePossibleInjection,
		Message:  fmt.Sprintf("入力に使用できない文字列が含まれています: %s", field),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewWeakPasswordAPIError はパスワードポリシー違反のエラーを生成する。
func NewWeakPasswordAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "パスワードが要件を満たしていません。",
		Category: "validation",
		Action:   "8文字以上128文字以下で、数字・小文字・大文字をそれぞれ1文字以上含めてください。",
	}
}

// NewInvalidCredentialsError は認証情報が正しくない場合のエラーを生成する。
// メールアドレスの未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewAccountInactiveError は無効化されたアカウントのエラーを生成する。
func NewAccountInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountInactive,
		Message:  "このアカウントは現在利用できません。",
		Category: "auth",
		Action:   "管理者にお問い合わせください。",
	}
}

// NewInvalidTokenError はトークン検証失敗のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンが無効か期限切れです。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewUnauthorizedError は認証情報がないリクエストのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewAlreadyRegisteredError はメールアドレスが登録済みの場合のエラーを生成する。
func NewAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRegistered,
		Message:  "このメールアドレスは使用できません。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewInvalidConfirmationTokenError は購読確認トークンが無効な場合のエラーを生成する。
func NewInvalidConfirmationTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidConfirmationToken,
		Message:  "確認リンクが無効か期限切れです。",
		Category: "subscription",
		Action:   "もう一度購読登録を行ってください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRateLimitExceededError はレート制限超過のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエスト数が制限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPayloadTooLargeError はリクエストボディが上限を超えた場合のエラーを生成する。
func NewPayloadTooLargeError() *APIError {
	return &APIError{
		Code:     ErrCodePayloadTooLarge,
		Message:  "リクエストのサイズが大きすぎます。",
		Category: "validation",
		Action:   "送信する内容を小さくしてください。",
	}
}

// NewServiceUnavailableError は一時的な障害のエラーを生成する。
func NewServiceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeServiceUnavailable,
		Message:  "サービスが一時的に利用できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// ToAPIError はドメインエラーをクライアント向けのAPIErrorに変換する。
// 各エラー種別は必ず1つの表現に対応し、Detailなどの内部情報は含めない。
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		switch vErr.Reason {
		case ReasonPossibleInjection:
			return NewPossibleInjectionAPIError(vErr.Field)
		case ReasonWeakPassword:
			return NewWeakPasswordAPIError()
		default:
			return NewValidationAPIError(vErr.Field)
		}
	}

	var cErr *CredentialError
	if errors.As(err, &cErr) {
		if cErr.Reason == CredentialInactive {
			return NewAccountInactiveError()
		}
		return NewInvalidCredentialsError()
	}

	var tErr *TokenError
	if errors.As(err, &tErr) {
		return NewInvalidTokenError()
	}

	var sErr *StoreError
	if errors.As(err, &sErr) {
		switch {
		case sErr.Kind == StoreDuplicate:
			return NewAlreadyRegisteredError()
		case sErr.Transient():
			return NewServiceUnavailableError()
		}
	}

	return NewInternalError()
}
