// Package telegram delivers rendered payloads to a single chat.
//
// The messenger is built for one-shot runs: no poller, no handlers, just
// authenticated sends. Token verification happens at construction, so a
// revoked token fails the run before any portal work is done.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Config carries bot credentials and the target chat.
type Config struct {
	Token  string
	ChatID int64

	// Timeout bounds each Bot API call.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Messenger sends messages to the configured chat.
type Messenger struct {
	cfg Config
	log *slog.Logger
	bot *tele.Bot
}

// New verifies the token against the Bot API and returns a Messenger.
func New(cfg Config, log *slog.Logger) (*Messenger, error) {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram: chat id is not set")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	log.Debug("telegram: bot ready", "chat_id", cfg.ChatID)
	return &Messenger{cfg: cfg, log: log, bot: bot}, nil
}

// Send delivers one HTML payload. Web page previews are disabled so
// attachment URLs do not unfurl the portal's login page under every
// notification.
func (m *Messenger) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.bot.Send(&tele.Chat{ID: m.cfg.ChatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}
