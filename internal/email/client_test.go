package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/newsletter/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestClient_Send_PostsJSON(t *testing.T) {
	var got sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/email" {
			t.Errorf("path = %s, want /email", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "editor@example.com")

	err := c.Send(context.Background(), " reader@example.com ", "件名", "<p>本文</p>")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	want := sendRequest{From: "editor@example.com", To: "reader@example.com", Subject: "件名", HtmlBody: "<p>本文</p>"}
	if got != want {
		t.Errorf("request = %+v, want %+v", got, want)
	}
}

func TestClient_Send_StatusErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{name: "サーバーエラーは一時的", status: http.StatusBadGateway, wantTransient: true},
		{name: "429は一時的", status: http.StatusTooManyRequests, wantTransient: true},
		{name: "400は恒久的", status: http.StatusBadRequest, wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			var buf bytes.Buffer
			c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "editor@example.com")

			err := c.Send(context.Background(), "reader@example.com", "s", "b")
			var dErr *DeliveryError
			if !errors.As(err, &dErr) {
				t.Fatalf("error = %v, want *DeliveryError", err)
			}
			if dErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", dErr.StatusCode, tt.status)
			}
			if dErr.Transient() != tt.wantTransient {
				t.Errorf("Transient() = %v, want %v", dErr.Transient(), tt.wantTransient)
			}
		})
	}
}

func TestClient_Send_InvalidRecipientIsNotSent(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, "editor@example.com")

	err := c.Send(context.Background(), "x' OR '1'='1@example.com", "s", "b")
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *model.ValidationError", err)
	}
	if called {
		t.Error("invalid recipient must not reach the email api")
	}
}

func TestClient_Send_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	var buf bytes.Buffer
	httpClient := server.Client()
	httpClient.Timeout = 20 * time.Millisecond
	c := NewClient(httpClient, newTestLogger(&buf), server.URL, "editor@example.com")

	if err := c.Send(context.Background(), "reader@example.com", "s", "b"); err == nil {
		t.Fatal("Send() error = nil, want timeout error")
	}
}

func TestNoopSender(t *testing.T) {
	var buf bytes.Buffer
	s := NoopSender{Logger: newTestLogger(&buf)}

	if err := s.Send(context.Background(), "reader@example.com", "件名", "<p>x</p>"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("件名")) {
		t.Errorf("log should contain subject, got %s", buf.String())
	}
}
