package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/newsletter/internal/newsletter"
)

// NewsletterServiceInterface はニュースレター配信ハンドラーが必要とするサービスインターフェース。
type NewsletterServiceInterface interface {
	Publish(ctx context.Context, subject, htmlContent string) (*newsletter.Result, error)
}

// NewsletterHandler はニュースレター配信のHTTPハンドラー。
type NewsletterHandler struct {
	service NewsletterServiceInterface
}

// NewNewsletterHandler はNewsletterHandlerを生成する。
func NewNewsletterHandler(service NewsletterServiceInterface) *NewsletterHandler {
	return &NewsletterHandler{service: service}
}

type publishRequest struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Publish は確認済みの全購読者にニュースレターを送信する。
// POST /newsletters
func (h *NewsletterHandler) Publish(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req publishRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Publish(r.Context(), req.Subject, req.Content)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
