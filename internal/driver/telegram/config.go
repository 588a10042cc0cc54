package telegram

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/caarlos0/env/v11"
)

const (
	defaultSessionFile    = ".cache/telegram/session.json"
	defaultPublishTimeout = 2 * time.Second
	defaultAuthTimeout    = 3 * time.Minute
)

// Config configures one Telegram userbot runtime.
//
// Credentials may also come from the environment, prefixed with the driver
// name: driver "tg-main" reads NANOBOT_TG_MAIN_PHONE and so on.
type Config struct {
	AppID          int      `json:"app_id" env:"APP_ID"`
	AppHash        string   `json:"app_hash" env:"APP_HASH"`
	Phone          string   `json:"phone" env:"PHONE"`
	Password       string   `json:"password" env:"PASSWORD"`
	Code           string   `json:"code" env:"CODE"`
	SessionFile    string   `json:"session_file" env:"SESSION_FILE"`
	UpdateBuffer   int      `json:"update_buffer"`
	PublishTimeout Duration `json:"publish_timeout"`
	AuthTimeout    Duration `json:"auth_timeout"`
}

// Duration is a positive time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalJSON parses strings such as "2s".
func (d *Duration) UnmarshalJSON(raw []byte) error {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("duration %q must be > 0", text)
	}
	*d = Duration(parsed)

	return nil
}

// ParseConfig decodes raw, applies environment overrides for driver name and
// fills defaults. environment may be nil to read the process environment.
func ParseConfig(name string, raw []byte, environment map[string]string) (Config, error) {
	if len(raw) == 0 {
		return Config{}, fmt.Errorf("parse telegram config: missing config")
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse telegram config: %w", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      envPrefix(name),
		Environment: environment,
	}); err != nil {
		return Config{}, fmt.Errorf("parse telegram config env: %w", err)
	}

	cfg.AppHash = strings.TrimSpace(cfg.AppHash)
	cfg.Phone = strings.TrimSpace(cfg.Phone)
	cfg.Password = strings.TrimSpace(cfg.Password)
	cfg.Code = strings.TrimSpace(cfg.Code)
	cfg.SessionFile = strings.TrimSpace(cfg.SessionFile)
	if cfg.SessionFile == "" {
		cfg.SessionFile = defaultSessionFile
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = defaultQueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = Duration(defaultPublishTimeout)
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = Duration(defaultAuthTimeout)
	}

	if cfg.AppID <= 0 {
		return Config{}, fmt.Errorf("parse telegram config: app_id must be > 0")
	}
	if cfg.AppHash == "" {
		return Config{}, fmt.Errorf("parse telegram config: app_hash is required")
	}

	return cfg, nil
}

// envPrefix upper-cases name and replaces every non-alphanumeric rune with "_".
func envPrefix(name string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, name)

	return "NANOBOT_" + mapped + "_"
}
