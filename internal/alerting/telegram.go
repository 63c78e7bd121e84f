package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramNotifier 通过 Telegram Bot API 推送消息，作为邮件之外的可选通道。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (t *TelegramNotifier) Notify(ctx context.Context, n Notification) error {
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    n.Subject() + "\n\n" + n.Body(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &DispatchError{Kind: KindTransportFailure, Channel: "telegram", Err: err}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &DispatchError{Kind: KindTransportFailure, Channel: "telegram", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &DispatchError{Kind: KindTransportFailure, Channel: "telegram", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &DispatchError{Kind: KindAuthFailure, Channel: "telegram", Err: fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DispatchError{Kind: KindTransportFailure, Channel: "telegram", Err: fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)}
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return &DispatchError{Kind: KindTransportFailure, Channel: "telegram", Err: fmt.Errorf("telegram 返回 ok=false")}
		}
	}

	t.logger.Info().
		Str("action", n.Action.String()).
		Msg("告警已发送 (Telegram)")
	return nil
}

var _ Notifier = (*TelegramNotifier)(nil)
