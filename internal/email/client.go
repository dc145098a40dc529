// Package email はメール配信APIへの送信クライアントを提供する。
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsletter/internal/security"
)

// maxErrorBody はエラー時にログへ残すレスポンスボディの最大バイト数。
const maxErrorBody = 512

// Sender はメール送信のインターフェース。
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// DeliveryError は配信APIが2xx以外を返したことを表す。
type DeliveryError struct {
	StatusCode int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("email api returned status %d", e.StatusCode)
}

// Transient は5xxなど再試行で回復しうる失敗かどうかを返す。
func (e *DeliveryError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type sendRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
}

// Client はHTTP経由でメール配信APIを呼び出す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	sender     string
}

var _ Sender = (*Client)(nil)

// NewClient はClientを生成する。タイムアウトは httpClient 側で設定する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, sender string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		sender:     sender,
	}
}

// Send は宛先を検証したうえで {baseURL}/email にJSONをPOSTする。
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string) error {
	recipient, err := security.ValidateEmail(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	payload, err := json.Marshal(sendRequest{
		From:     c.sender,
		To:       recipient,
		Subject:  subject,
		HtmlBody: htmlBody,
	})
	if err != nil {
		return fmt.Errorf("failed to encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("メール配信APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to call email api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("メール配信APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return &DeliveryError{StatusCode: resp.StatusCode}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NoopSender は送信せずにログだけを残すSender。配信APIが未設定の場合に使う。
type NoopSender struct {
	Logger *slog.Logger
}

var _ Sender = NoopSender{}

func (s NoopSender) Send(_ context.Context, to, subject, _ string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email delivery disabled, message dropped",
		slog.String("subject", subject),
		slog.Int("recipient_length", len(to)),
	)
	return nil
}
