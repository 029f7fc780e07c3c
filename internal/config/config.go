package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken         string        `envconfig:"BOT_TOKEN" required:"true"`
	ChannelID        int64         `envconfig:"CHANNEL_ID"`                            // managed channel (e.g. -1001234567890)
	AdminIDs         []int64       `envconfig:"ADMIN_IDS"`                             // comma-separated Telegram user ids
	DBPath           string        `envconfig:"DB_PATH" default:"./data/gatekeeper.db"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	MailingSendDelay time.Duration `envconfig:"MAILING_SEND_DELAY" default:"50ms"`
	ExportDir        string        `envconfig:"EXPORT_DIR" default:"./exports"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// IsAdmin reports whether the given user id may use admin commands.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
