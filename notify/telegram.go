package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/transport"
)

const (
	TelegramBaseURL        = "https://api.telegram.org"
	defaultTelegramTimeout = 10 * time.Second
)

type TelegramConfig struct {
	BotToken string
	BaseURL  string
	Timeout  time.Duration
}

// TelegramNotifier sends the resolution summary to the chat named by the
// intent's user reference.
type TelegramNotifier struct {
	cfg    TelegramConfig
	client transport.Client
}

type TelegramOption func(*TelegramNotifier)

func WithTelegramClient(client transport.Client) TelegramOption {
	return func(n *TelegramNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

func NewTelegramNotifier(cfg TelegramConfig, opts ...TelegramOption) (*TelegramNotifier, error) {
	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("notify: telegram bot token is required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = TelegramBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTelegramTimeout
	}
	notifier := &TelegramNotifier{
		cfg:    cfg,
		client: transport.NewRESTAdapter(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(notifier)
		}
	}
	return notifier, nil
}

func (n *TelegramNotifier) Name() string {
	return "telegram"
}

func (n *TelegramNotifier) Notify(ctx context.Context, event core.ResolutionEvent) error {
	chatID := strings.TrimSpace(event.UserRef)
	if chatID == "" {
		return fmt.Errorf("notify: telegram chat id is empty for intent %d", event.IntentID)
	}
	body, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    core.FormatResolutionMessage(event),
	})
	if err != nil {
		return fmt.Errorf("notify: encode telegram message: %w", err)
	}
	res, err := n.client.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/bot%s/sendMessage", n.cfg.BaseURL, n.cfg.BotToken),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
		Timeout: n.cfg.Timeout,
	})
	if err != nil {
		return err
	}
	if !res.Success() {
		return transport.StatusError(res, "notify: telegram sendMessage rejected")
	}
	return nil
}

var (
	_ core.Notifier      = (*TelegramNotifier)(nil)
	_ core.NamedNotifier = (*TelegramNotifier)(nil)
)
