package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"nanobot/internal/driver"
	"nanobot/modules/wordcount"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
)

const envConfigFile = "NANOBOT_CONFIG_FILE"

// configSearchPath is tried in order when neither --config nor
// NANOBOT_CONFIG_FILE names a file.
var configSearchPath = []string{"config/bot.json", "bin/config/bot.json"}

const (
	defaultModuleHookTimeout  = 3 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultHandlerTimeout     = 15 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 2
)

// appConfig is the resolved process configuration: file, then environment,
// then flags.
type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	handlerTimeout      time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	drivers   []driver.Definition
	adminIDs  []string
	wordcount wordcount.Config
}

type cliFlags struct {
	configFile string
	logLevel   string
}

// envOverrides holds the NANOBOT_* variables read on top of the file.
// Zero values leave the file setting alone.
type envOverrides struct {
	ConfigFile       string        `env:"NANOBOT_CONFIG_FILE"`
	LogLevel         string        `env:"NANOBOT_LOG_LEVEL"`
	WordcountBaseURL string        `env:"NANOBOT_WORDCOUNT_BASE_URL"`
	WordcountTimeout time.Duration `env:"NANOBOT_WORDCOUNT_TIMEOUT"`
}

// fileConfig mirrors the JSON config file. Comments and trailing commas are
// allowed.
type fileConfig struct {
	LogLevel string `json:"log_level"`
	Kernel   struct {
		ModuleHookTimeout   string `json:"module_hook_timeout"`
		ShutdownTimeout     string `json:"shutdown_timeout"`
		HandlerTimeout      string `json:"handler_timeout"`
		SubscriptionBuffer  *int   `json:"subscription_buffer"`
		SubscriptionWorkers *int   `json:"subscription_workers"`
	} `json:"kernel"`
	Drivers []struct {
		Name    string          `json:"name"`
		Type    string          `json:"type"`
		Enabled *bool           `json:"enabled"`
		Config  json.RawMessage `json:"config"`
	} `json:"drivers"`
	Identity struct {
		AdminIDs []string `json:"admin_ids"`
	} `json:"identity"`
	Wordcount struct {
		BaseURL    string   `json:"base_url"`
		Regions    []string `json:"regions"`
		Timeout    string   `json:"timeout"`
		Format     string   `json:"format"`
		RegionPath string   `json:"region_path"`
		UserPath   string   `json:"user_path"`
		Retry      *struct {
			MaxAttempts     int    `json:"max_attempts"`
			InitialInterval string `json:"initial_interval"`
		} `json:"retry"`
	} `json:"wordcount"`
}

func parseFlags(args []string) (cliFlags, error) {
	var flags cliFlags

	set := pflag.NewFlagSet("nanobot", pflag.ContinueOnError)
	set.StringVar(&flags.configFile, "config", "", "path to the JSON config file (overrides "+envConfigFile+")")
	set.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	if err := set.Parse(args); err != nil {
		return cliFlags{}, err
	}

	return flags, nil
}

func loadConfig(flags cliFlags, registry *driver.Registry) (appConfig, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return appConfig{}, fmt.Errorf("parse env: %w", err)
	}

	path, err := findConfigFile(flags.configFile, overrides.ConfigFile)
	if err != nil {
		return appConfig{}, err
	}
	file, err := readConfigFile(path)
	if err != nil {
		return appConfig{}, err
	}

	cfg := appConfig{
		logLevel:            slog.LevelInfo,
		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		handlerTimeout:      defaultHandlerTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,
		wordcount:           wordcount.DefaultConfig(),
	}
	if err := cfg.applyFile(file); err != nil {
		return appConfig{}, err
	}
	if err := cfg.applyOverrides(overrides, flags); err != nil {
		return appConfig{}, err
	}
	if err := cfg.validate(registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", path, err)
	}

	return cfg, nil
}

func findConfigFile(flagValue, envValue string) (string, error) {
	if explicit := cmp.Or(strings.TrimSpace(flagValue), strings.TrimSpace(envValue)); explicit != "" {
		return explicit, nil
	}

	for _, candidate := range configSearchPath {
		info, err := os.Stat(candidate)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		case info.IsDir():
			return "", fmt.Errorf("config file %s is a directory", candidate)
		default:
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config file not found; create %s, or set --config or %s",
		strings.Join(configSearchPath, " or "), envConfigFile)
}

func readConfigFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var file fileConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return file, nil
}

func (c *appConfig) applyFile(file fileConfig) error {
	if raw := strings.TrimSpace(file.LogLevel); raw != "" {
		level, err := parseLogLevel(raw)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		c.logLevel = level
	}

	kernel := file.Kernel
	for _, setting := range []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"kernel.module_hook_timeout", kernel.ModuleHookTimeout, &c.moduleHookTimeout},
		{"kernel.shutdown_timeout", kernel.ShutdownTimeout, &c.shutdownTimeout},
		{"kernel.handler_timeout", kernel.HandlerTimeout, &c.handlerTimeout},
	} {
		if err := setDuration(setting.key, setting.raw, setting.target); err != nil {
			return err
		}
	}
	if err := setPositive("kernel.subscription_buffer", kernel.SubscriptionBuffer, &c.subscriptionBuffer); err != nil {
		return err
	}
	if err := setPositive("kernel.subscription_workers", kernel.SubscriptionWorkers, &c.subscriptionWorkers); err != nil {
		return err
	}

	c.drivers = make([]driver.Definition, 0, len(file.Drivers))
	for index, entry := range file.Drivers {
		if len(entry.Config) == 0 {
			return fmt.Errorf("parse drivers[%d].config: required", index)
		}
		c.drivers = append(c.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: entry.Enabled == nil || *entry.Enabled,
			Config:  []byte(entry.Config),
		})
	}

	c.adminIDs = nil
	for _, id := range file.Identity.AdminIDs {
		if id = strings.TrimSpace(id); id != "" {
			c.adminIDs = append(c.adminIDs, id)
		}
	}

	return c.applyWordcount(file)
}

func (c *appConfig) applyWordcount(file fileConfig) error {
	section, target := file.Wordcount, &c.wordcount

	target.BaseURL = cmp.Or(strings.TrimSpace(section.BaseURL), target.BaseURL)
	target.RegionPath = cmp.Or(strings.TrimSpace(section.RegionPath), target.RegionPath)
	target.UserPath = cmp.Or(strings.TrimSpace(section.UserPath), target.UserPath)
	if len(section.Regions) > 0 {
		target.Regions = make([]string, len(section.Regions))
		for index, region := range section.Regions {
			target.Regions[index] = strings.TrimSpace(region)
		}
	}
	if format := strings.ToLower(strings.TrimSpace(section.Format)); format != "" && format != "auto" {
		target.Format = wordcount.PayloadFormat(format)
	}
	if err := setDuration("wordcount.timeout", section.Timeout, &target.Timeout); err != nil {
		return err
	}
	if retry := section.Retry; retry != nil {
		target.Retry.MaxAttempts = retry.MaxAttempts
		if err := setDuration("wordcount.retry.initial_interval", retry.InitialInterval, &target.Retry.InitialInterval); err != nil {
			return err
		}
	}

	return nil
}

func (c *appConfig) applyOverrides(overrides envOverrides, flags cliFlags) error {
	for _, raw := range []string{overrides.LogLevel, flags.logLevel} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		level, err := parseLogLevel(raw)
		if err != nil {
			return fmt.Errorf("parse log level override: %w", err)
		}
		c.logLevel = level
	}

	c.wordcount.BaseURL = cmp.Or(strings.TrimSpace(overrides.WordcountBaseURL), c.wordcount.BaseURL)
	switch {
	case overrides.WordcountTimeout < 0:
		return fmt.Errorf("NANOBOT_WORDCOUNT_TIMEOUT: must be > 0")
	case overrides.WordcountTimeout > 0:
		c.wordcount.Timeout = overrides.WordcountTimeout
	}

	return nil
}

func (c *appConfig) validate(registry *driver.Registry) error {
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	enabled := 0
	names := make(map[string]bool, len(c.drivers))
	for _, definition := range c.drivers {
		switch {
		case definition.Name == "":
			return fmt.Errorf("drivers[].name is required")
		case definition.Type == "":
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		case names[definition.Name]:
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		names[definition.Name] = true
		if !definition.Enabled {
			continue
		}
		if _, err := registry.Platform(definition.Type); err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabled++
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	if err := c.wordcount.Validate(); err != nil {
		return fmt.Errorf("wordcount: %w", err)
	}
	if budget := c.wordcount.BatchBudget(); budget > c.handlerTimeout {
		return fmt.Errorf("wordcount: batch budget %s exceeds kernel.handler_timeout %s", budget, c.handlerTimeout)
	}

	return nil
}

// setDuration parses raw into target when raw is set.
func setDuration(key, raw string, target *time.Duration) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err == nil && value <= 0 {
		err = fmt.Errorf("must be > 0")
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*target = value

	return nil
}

func setPositive(key string, value *int, target *int) error {
	if value == nil {
		return nil
	}
	if *value <= 0 {
		return fmt.Errorf("parse %s: must be > 0", key)
	}
	*target = *value

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
