// Package browser manages the Chrome session for one notifier run:
// launch, stealth-patched pages, teardown. There is no recycling or
// crash recovery; a run is short-lived and the next cron tick gets a
// fresh process anyway.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrUnavailable is returned when Chrome cannot be launched or reached.
var ErrUnavailable = errors.New("browser: chrome unavailable")

// Config configures the Chrome launch.
type Config struct {
	Headless bool

	// BinPath points at a specific Chrome binary. Empty = let the
	// launcher find or download one.
	BinPath string

	// UserAgent overrides the reported user agent on every page.
	UserAgent string

	WindowWidth  int
	WindowHeight int
}

func (c *Config) applyDefaults() {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
}

// Session owns one Chrome process and its control connection.
type Session struct {
	cfg     Config
	log     *slog.Logger
	lnch    *launcher.Launcher
	browser *rod.Browser
}

// Start launches Chrome and connects to it. The caller must Close the
// session to reap the process and its temp profile.
func Start(ctx context.Context, cfg Config, log *slog.Logger) (*Session, error) {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch: %v", ErrUnavailable, err)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("%w: connect: %v", ErrUnavailable, err)
	}

	// The portal runs behind institutional TLS that is routinely
	// misconfigured; a cert hiccup should not kill the run.
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "err", err)
	}

	log.Info("browser: chrome ready", "headless", cfg.Headless)
	return &Session{cfg: cfg, log: log, lnch: l, browser: b}, nil
}

// NewPage opens a stealth-patched tab with the configured user agent.
func (s *Session) NewPage(ctx context.Context) (*rod.Page, error) {
	if s.browser == nil {
		return nil, fmt.Errorf("%w: session closed", ErrUnavailable)
	}
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	page = page.Context(ctx)
	if s.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
			s.log.Warn("browser: user agent override failed", "err", err)
		}
	}
	return page, nil
}

// Close shuts Chrome down and removes the launcher's temp profile.
func (s *Session) Close() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.log.Warn("browser: close", "err", err)
		}
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}
