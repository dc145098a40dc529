package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/newsletter/internal/model"
)

// captureDefaultLogger はテスト中のデフォルトロガー出力をバッファに切り替える。
func captureDefaultLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestHandleServiceError_PossibleInjectionIsWarned(t *testing.T) {
	buf := captureDefaultLogger(t)

	err := model.NewValidationError("name", model.ReasonPossibleInjection, "John'; DROP TABLE subscribers--")
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	w := httptest.NewRecorder()

	handleServiceError(w, req, err)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	entries := decodeLogLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if entry["field"] != "name" {
		t.Errorf("field = %v, want name", entry["field"])
	}
	if entry["client_addr"] != "192.0.2.10" {
		t.Errorf("client_addr = %v, want 192.0.2.10", entry["client_addr"])
	}
	// 入力値は記録しない
	if strings.Contains(buf.String(), "DROP TABLE") {
		t.Errorf("log should not contain the rejected input: %s", buf.String())
	}
	if strings.Contains(w.Body.String(), "DROP TABLE") {
		t.Errorf("response should not contain the rejected input: %s", w.Body.String())
	}
}

func TestHandleServiceError_LogLevels(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantLevel  string
	}{
		{
			name:       "検証エラーはDEBUG",
			err:        model.NewValidationError("email", model.ReasonInvalidFormat, ""),
			wantStatus: http.StatusBadRequest,
			wantLevel:  "DEBUG",
		},
		{
			name:       "無効化アカウントはDEBUG",
			err:        &model.CredentialError{Reason: model.CredentialInactive},
			wantStatus: http.StatusForbidden,
			wantLevel:  "DEBUG",
		},
		{
			name:       "未分類のエラーはERROR",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantLevel:  "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureDefaultLogger(t)
			w := httptest.NewRecorder()

			handleServiceError(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil), tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			entries := decodeLogLines(t, buf)
			if len(entries) != 1 || entries[0]["level"] != tt.wantLevel {
				t.Errorf("log = %s, want one %s entry", buf.String(), tt.wantLevel)
			}
		})
	}
}
