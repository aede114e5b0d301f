// Package config loads notifier configuration: YAML file first, then
// environment overrides, then defaults. Running without a file is fully
// supported; the environment alone can carry a deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Browser modes.
const (
	ModeHeadless = "headless"
	ModeHeadful  = "headful"
)

// Chrome masquerades as a regular desktop browser; the portal serves a
// reduced page to clients it flags as automation.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config is the top-level notifier configuration.
type Config struct {
	Portal   PortalConfig   `yaml:"portal"`
	Telegram TelegramConfig `yaml:"telegram"`
	Browser  BrowserConfig  `yaml:"browser"`
	Detect   DetectConfig   `yaml:"detect"`
	Delivery DeliveryConfig `yaml:"delivery"`
	State    StateConfig    `yaml:"state"`
	Journal  JournalConfig  `yaml:"journal"`
}

// PortalConfig locates the Sakai instance and its credentials.
type PortalConfig struct {
	URL            string        `yaml:"url"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
	ElementTimeout time.Duration `yaml:"element_timeout"`
}

// TelegramConfig carries bot credentials and the target chat.
type TelegramConfig struct {
	Token   string        `yaml:"token"`
	ChatID  int64         `yaml:"chat_id"`
	Timeout time.Duration `yaml:"timeout"`
}

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig struct {
	Mode         string `yaml:"mode"` // headless | headful
	BinPath      string `yaml:"bin_path"`
	UserAgent    string `yaml:"user_agent"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
}

// Headless reports whether Chrome should run without a display.
func (b BrowserConfig) Headless() bool { return b.Mode != ModeHeadful }

// DetectConfig tunes panel discovery.
type DetectConfig struct {
	MaxAnnouncements int  `yaml:"max_announcements"`
	AllowPageSearch  bool `yaml:"allow_page_search"`
}

// DeliveryConfig tunes Telegram pacing.
type DeliveryConfig struct {
	MessageDelay time.Duration `yaml:"message_delay"`
}

// StateConfig locates the seen-set file.
type StateConfig struct {
	Path       string `yaml:"path"`
	MaxRecords int    `yaml:"max_records"`
}

// JournalConfig locates the run history database.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Default returns a Config with every default applied, ignoring files
// and the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file when path is non-empty, then applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("config: TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	if v := os.Getenv("SAKAI_URL"); v != "" {
		c.Portal.URL = v
	}
	if v := os.Getenv("SAKAI_USERNAME"); v != "" {
		c.Portal.Username = v
	}
	if v := os.Getenv("SAKAI_PASSWORD"); v != "" {
		c.Portal.Password = v
	}
	if v := os.Getenv("HEADLESS"); v != "" {
		if parseBool(v) {
			c.Browser.Mode = ModeHeadless
		} else {
			c.Browser.Mode = ModeHeadful
		}
	}
	if v := os.Getenv("ALLOW_PAGE_SEARCH"); v != "" {
		c.Detect.AllowPageSearch = parseBool(v)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Portal.URL == "" {
		c.Portal.URL = "https://online.deu.edu.tr/portal"
	}
	if c.Portal.PageTimeout <= 0 {
		c.Portal.PageTimeout = 10 * time.Second
	}
	if c.Portal.ElementTimeout <= 0 {
		c.Portal.ElementTimeout = 15 * time.Second
	}
	if c.Telegram.Timeout <= 0 {
		c.Telegram.Timeout = 10 * time.Second
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = ModeHeadless
	}
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = defaultUserAgent
	}
	if c.Browser.WindowWidth <= 0 {
		c.Browser.WindowWidth = 1920
	}
	if c.Browser.WindowHeight <= 0 {
		c.Browser.WindowHeight = 1080
	}
	if c.Detect.MaxAnnouncements <= 0 {
		c.Detect.MaxAnnouncements = 20
	}
	if c.Delivery.MessageDelay <= 0 {
		c.Delivery.MessageDelay = time.Second
	}
	if c.State.Path == "" {
		c.State.Path = "duyurular.json"
	}
	if c.State.MaxRecords <= 0 {
		c.State.MaxRecords = 500
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "bullhorn.db"
	}
}

// Validate checks the fields a run cannot start without. Telegram
// credentials are exempt on dry runs, where nothing is sent.
func (c *Config) Validate(dryRun bool) error {
	if c.Portal.Username == "" || c.Portal.Password == "" {
		return errors.New("config: portal credentials are required (portal.username/password or SAKAI_USERNAME/SAKAI_PASSWORD)")
	}
	if !dryRun {
		if c.Telegram.Token == "" {
			return errors.New("config: telegram token is required (telegram.token or TELEGRAM_TOKEN)")
		}
		if c.Telegram.ChatID == 0 {
			return errors.New("config: telegram chat id is required (telegram.chat_id or TELEGRAM_CHAT_ID)")
		}
	}
	return nil
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
