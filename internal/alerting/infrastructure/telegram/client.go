// Package telegram sends messages through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	access "github.com/felixgeelhaar/mtgate/internal/access/domain"
	"github.com/felixgeelhaar/mtgate/internal/alerting/domain"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// DefaultExpiryText is sent to subscribers whose entitlement ended.
const DefaultExpiryText = "⏰ Your proxy subscription has expired.\n\nRenew via /tariffs to keep using it."

// ErrNotConfigured is returned when no bot token is set.
var ErrNotConfigured = errors.New("telegram bot token not configured")

// Config configures the Bot API client.
type Config struct {
	Token      string
	APIURL     string
	AdminID    int64
	ExpiryText string
	Timeout    time.Duration
}

// APIError is a non-ok Bot API response.
type APIError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.ErrorCode, e.Description)
}

// Client delivers operator alerts to the admin chat and expiry notices to subscribers.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a Bot API client. httpClient may be nil.
func NewClient(config Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	if config.ExpiryText == "" {
		config.ExpiryText = DefaultExpiryText
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{config: config, http: httpClient, logger: logger}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// SendMessage posts a plain text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if c.config.Token == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.config.APIURL, c.config.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport errors embed the URL, which carries the token.
		return fmt.Errorf("telegram sendMessage: %w", redact(err, c.config.Token))
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return fmt.Errorf("telegram sendMessage: status %d: %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		return &APIError{
			Method:      "sendMessage",
			StatusCode:  resp.StatusCode,
			ErrorCode:   parsed.ErrorCode,
			Description: parsed.Description,
		}
	}
	c.logger.Debug("telegram message sent", "chat_id", chatID)
	return nil
}

func (c *Client) Name() string { return "telegram" }

// Send delivers an operator alert to the admin chat.
func (c *Client) Send(ctx context.Context, alert domain.Alert) error {
	if c.config.AdminID == 0 {
		return fmt.Errorf("%w: admin chat id missing", ErrNotConfigured)
	}
	return c.SendMessage(ctx, c.config.AdminID, FormatAlert(alert))
}

// NotifyExpired tells a subscriber their entitlement ended.
func (c *Client) NotifyExpired(ctx context.Context, e access.Entitlement) error {
	return c.SendMessage(ctx, int64(e.SubscriberID), c.config.ExpiryText)
}

// FormatAlert renders an alert for a chat message.
func FormatAlert(alert domain.Alert) string {
	var icon string
	switch alert.Severity {
	case domain.SeverityCritical:
		icon = "🚨"
	case domain.SeverityWarning:
		icon = "⚠️"
	default:
		icon = "ℹ️"
	}
	return icon + " " + alert.Message
}

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

var _ domain.Sink = (*Client)(nil)
