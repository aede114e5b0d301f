package bullhorn

import (
	"github.com/hazyhaar/bullhorn/internal/config"
)

// Config is the top-level bullhorn configuration. Re-exported from internal.
type Config = config.Config

// PortalConfig locates the Sakai portal and its credentials.
type PortalConfig = config.PortalConfig

// TelegramConfig addresses the destination chat.
type TelegramConfig = config.TelegramConfig

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// DetectConfig tunes announcement discovery.
type DetectConfig = config.DetectConfig

// DeliveryConfig paces outbound messages.
type DeliveryConfig = config.DeliveryConfig

// StateConfig locates the seen-set file.
type StateConfig = config.StateConfig

// JournalConfig locates the run history database.
type JournalConfig = config.JournalConfig

// Browser modes for BrowserConfig.Mode.
const (
	ModeHeadless = config.ModeHeadless
	ModeHeadful  = config.ModeHeadful
)

// LoadConfig reads a YAML configuration file, then applies environment
// overrides and defaults. An empty path configures from the environment
// and defaults alone.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
