package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/screener-back/pkg/config"
)

// TelegramClient sends messages through the Telegram Bot API
type TelegramClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	parseMode  string
	logger     *logrus.Entry
}

type telegramSendMessage struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// NewTelegramClient creates a new Telegram client
func NewTelegramClient(cfg *config.AlertsConfig, logger *logrus.Logger) *TelegramClient {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &TelegramClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   strings.TrimRight(cfg.TelegramAPIURL, "/"),
		token:     cfg.TelegramToken,
		parseMode: cfg.ParseMode,
		logger:    logger.WithField("component", "telegram"),
	}
}

// Send posts text to a chat. Non-2xx responses and API-level failures are
// returned as errors.
func (c *TelegramClient) Send(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(telegramSendMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: c.parseMode,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token, keep it out of the error
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, redact(err, c.token))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var result telegramResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("telegram error: status=%d, failed to decode response: %w, body=%s", resp.StatusCode, err, string(raw))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !result.OK {
		if result.Description != "" {
			return fmt.Errorf("telegram error: status=%d, code=%d, description=%s", resp.StatusCode, result.ErrorCode, result.Description)
		}
		return fmt.Errorf("telegram error: status=%d, body=%s", resp.StatusCode, string(raw))
	}

	c.logger.WithField("chat_id", chatID).Debug("Message sent")
	return nil
}

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "***"))
}
