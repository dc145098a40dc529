package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsletter/internal/middleware"
	"github.com/hitoshi/newsletter/internal/model"
)

// messageResponse は本文のみを返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをJSONとして読み込む。
// 上限超過は413、構文エラーは400として書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBodyError(w, err)
		return false
	}
	return true
}

// writeBodyError はボディ読み込み失敗のレスポンスを書き込む。
func writeBodyError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError())
		return
	}
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationAPIError("body"))
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// 内部情報はログにのみ記録する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := model.ToAPIError(err)
	status := middleware.StatusFor(apiErr)

	switch {
	case status >= http.StatusInternalServerError:
		slog.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	case apiErr.Code == model.ErrCodePossibleInjection:
		// 入力値そのものは記録しない
		var vErr *model.ValidationError
		errors.As(err, &vErr)
		field := ""
		if vErr != nil {
			field = vErr.Field
		}
		slog.Warn("possible injection rejected",
			slog.String("path", r.URL.Path),
			slog.String("field", field),
			slog.String("client_addr", middleware.ClientAddr(r)),
		)
	default:
		slog.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	}

	middleware.WriteError(w, err)
}

// requireUserID は認証済みユーザーIDを返す。存在しない場合は401を書き込む。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}
