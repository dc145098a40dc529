package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/newsletter/internal/middleware"
	"github.com/hitoshi/newsletter/internal/model"
	"github.com/hitoshi/newsletter/internal/newsletter"
)

func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "editor-1"))
}

func TestNewsletterHandler_Publish_Success(t *testing.T) {
	h := NewNewsletterHandler(&mockNewsletterService{
		publishFn: func(ctx context.Context, subject, htmlContent string) (*newsletter.Result, error) {
			if subject != "今週の号" || htmlContent != "<p>本文</p>" {
				t.Errorf("Publish(%q, %q)", subject, htmlContent)
			}
			return &newsletter.Result{SentCount: 2, FailedCount: 1}, nil
		},
	})

	w := httptest.NewRecorder()
	h.Publish(w, authedRequest(http.MethodPost, "/newsletters", `{"subject":"今週の号","content":"<p>本文</p>"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got newsletter.Result
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got.SentCount != 2 || got.FailedCount != 1 {
		t.Errorf("result = %+v, want sent 2 failed 1", got)
	}
}

func TestNewsletterHandler_Publish_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "件名なし", err: model.NewValidationError("subject", model.ReasonEmpty, ""), wantStatus: http.StatusBadRequest},
		{name: "DB障害", err: &model.StoreError{Op: "list confirmed", Kind: model.StoreUnavailable}, wantStatus: http.StatusServiceUnavailable},
		{name: "想定外", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewNewsletterHandler(&mockNewsletterService{
				publishFn: func(ctx context.Context, subject, htmlContent string) (*newsletter.Result, error) {
					return nil, tt.err
				},
			})

			w := httptest.NewRecorder()
			h.Publish(w, authedRequest(http.MethodPost, "/newsletters", `{"subject":"","content":"x"}`))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if strings.Contains(w.Body.String(), "boom") {
				t.Errorf("response leaked internal error: %s", w.Body.String())
			}
		})
	}
}

func TestNewsletterHandler_Publish_RequiresUser(t *testing.T) {
	called := false
	h := NewNewsletterHandler(&mockNewsletterService{
		publishFn: func(ctx context.Context, subject, htmlContent string) (*newsletter.Result, error) {
			called = true
			return nil, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/newsletters", strings.NewReader(`{"subject":"s","content":"c"}`))
	w := httptest.NewRecorder()
	h.Publish(w, req)

	if called {
		t.Error("service should not be called")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	t.Run("DB到達可能", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewHealthHandler(&mockPinger{})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("DB到達不能", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewHealthHandler(&mockPinger{err: errors.New("connection refused")})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}
