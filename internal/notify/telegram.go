package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bonafide55/shop-api/internal/resilience"
)

// ErrNotConfigured is returned when the bot token or chat id is missing.
var ErrNotConfigured = errors.New("notify: telegram not configured")

// Telegram posts messages through the Bot API.
type Telegram struct {
	BaseURL string
	Token   string
	HTTP    resilience.HTTPClient
}

// NewTelegram builds a client with a traced transport, a 10s attempt timeout
// and a breaker that opens once most of the recent attempts fail.
func NewTelegram(baseURL, token string) *Telegram {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Telegram{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(5, 0.6, 30*time.Second).WithTarget("telegram"),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     10 * time.Second,
			MaxWait:     30 * time.Second,
		},
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage delivers text to chatID in HTML parse mode.
func (t *Telegram) SendMessage(ctx context.Context, chatID, text string) error {
	if t == nil || t.Token == "" || chatID == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out apiResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("telegram send: status %d: %s", resp.StatusCode, desc)
	}
	return nil
}
