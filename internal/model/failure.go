package model

import "fmt"

// ValidationReason は入力検証の失敗理由。
type ValidationReason string

const (
	ReasonEmpty             ValidationReason = "empty"
	ReasonTooShort          ValidationReason = "too_short"
	ReasonTooLong           ValidationReason = "too_long"
	ReasonInvalidFormat     ValidationReason = "invalid_format"
	ReasonSuspiciousContent ValidationReason = "suspicious_content"
	ReasonPossibleInjection ValidationReason = "possible_injection"
	ReasonWeakPassword      ValidationReason = "weak_password"
)

// ValidationError はクライアント側で修正可能な入力エラー。
// Detail はログ専用で、レスポンスには含めない。
type ValidationError struct {
	Field  string
	Reason ValidationReason
	Detail string
}

// NewValidationError はValidationErrorを生成する。
func NewValidationError(field string, reason ValidationReason, detail string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Detail: detail}
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s (%s)", e.Field, e.Reason, e.Detail)
}

// CredentialReason は認証失敗の理由。
type CredentialReason string

const (
	CredentialInvalid  CredentialReason = "invalid_credentials"
	CredentialInactive CredentialReason = "inactive_account"
)

// CredentialError はログイン失敗を表す。
// 未登録のメールアドレスとパスワード不一致は同じ CredentialInvalid になる。
type CredentialError struct {
	Reason CredentialReason
	Detail string
}

func (e *CredentialError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("credential check failed: %s", e.Reason)
	}
	return fmt.Sprintf("credential check failed: %s (%s)", e.Reason, e.Detail)
}

// TokenError はトークン検証の失敗を表す。
// 改ざん・期限切れ・失効などの原因に関わらずメッセージは常に同一。
type TokenError struct {
	Detail string
	Err    error
}

func (e *TokenError) Error() string { return "invalid or expired token" }

func (e *TokenError) Unwrap() error { return e.Err }

// StoreErrorKind はストア操作の失敗種別。
type StoreErrorKind string

const (
	StoreDuplicate   StoreErrorKind = "duplicate"
	StoreNotFound    StoreErrorKind = "not_found"
	StoreUnavailable StoreErrorKind = "unavailable"
	StoreUnexpected  StoreErrorKind = "unexpected"
)

// StoreError は永続化層の失敗を表す。
type StoreError struct {
	Op   string
	Kind StoreErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Transient は再試行で回復しうる障害かどうかを返す。
func (e *StoreError) Transient() bool {
	return e.Kind == StoreUnavailable
}
