package handler

import (
	"context"
	"mime"
	"net/http"

	"github.com/hitoshi/newsletter/internal/model"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// Subscribe は購読者を登録し確認メールを送信する。
	Subscribe(ctx context.Context, email, name string) (*model.Subscriber, error)
	// Confirm は確認トークンで購読を確定する。
	Confirm(ctx context.Context, token string) error
}

// SubscriptionHandler は購読管理のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
	}
}

// subscribeRequest は購読登録リクエストのボディ。
type subscribeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// 登録済みかどうかに関わらず同じ文面を返す
const subscribeAcceptedMessage = "購読を受け付けました。確認メールをご確認ください。"

// Subscribe は購読登録を受け付ける。JSONとフォームの両方を受け付ける。
// POST /subscriptions
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if isFormRequest(r) {
		if err := r.ParseForm(); err != nil {
			writeBodyError(w, err)
			return
		}
		req.Email = r.PostForm.Get("email")
		req.Name = r.PostForm.Get("name")
	} else if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.service.Subscribe(r.Context(), req.Email, req.Name); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, messageResponse{Message: subscribeAcceptedMessage})
}

// Confirm は確認リンクのトークンで購読を確定する。
// GET /subscriptions/confirm?token=...
func (h *SubscriptionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	if err := h.service.Confirm(r.Context(), token); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "購読が確認されました。"})
}

func isFormRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}
