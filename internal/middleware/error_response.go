package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/newsletter/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusByCode はエラーコードとHTTPステータスの対応。
var statusByCode = map[string]int{
	model.ErrCodeValidation:               http.StatusBadRequest,
	model.ErrCodePossibleInjection:        http.StatusBadRequest,
	model.ErrCodeInvalidConfirmationToken: http.StatusBadRequest,
	model.ErrCodeInvalidCredentials:       http.StatusUnauthorized,
	model.ErrCodeInvalidToken:             http.StatusUnauthorized,
	model.ErrCodeUnauthorized:             http.StatusUnauthorized,
	model.ErrCodeAccountInactive:          http.StatusForbidden,
	model.ErrCodeUserNotFound:             http.StatusNotFound,
	model.ErrCodeAlreadyRegistered:        http.StatusConflict,
	model.ErrCodePayloadTooLarge:          http.StatusRequestEntityTooLarge,
	model.ErrCodeRateLimitExceeded:        http.StatusTooManyRequests,
	model.ErrCodeServiceUnavailable:       http.StatusServiceUnavailable,
	model.ErrCodeInternal:                 http.StatusInternalServerError,
}

// StatusFor はAPIErrorに対応するHTTPステータスを返す。
func StatusFor(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteError はドメインエラーをAPIErrorに変換し、対応するステータスで書き込む。
func WriteError(w http.ResponseWriter, err error) {
	apiErr := model.ToAPIError(err)
	WriteErrorResponse(w, StatusFor(apiErr), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
