package wordcount

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public word-count API root.
	DefaultBaseURL = "https://nanowrimo.org/wordcount_api"
	// DefaultFetchTimeout bounds one remote fetch.
	DefaultFetchTimeout = 5 * time.Second
	// DefaultRegionPath addresses one region record below the base URL.
	DefaultRegionPath = "wcregion/{key}"
	// DefaultUserPath addresses one writer history record below the base URL.
	DefaultUserPath = "wchistory/{key}"
)

// DefaultRegions are the regions reported when none are configured.
var DefaultRegions = []string{
	"usa-alaska-anchorage",
	"usa-alaska-fairbanks",
	"usa-alaska-elsewhere",
}

// Config holds wordcount module settings.
type Config struct {
	BaseURL    string
	Regions    []string
	Timeout    time.Duration
	Format     PayloadFormat
	RegionPath string
	UserPath   string
	Retry      RetryPolicy
}

// DefaultConfig returns settings matching the public API.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Regions:    append([]string(nil), DefaultRegions...),
		Timeout:    DefaultFetchTimeout,
		Format:     FormatAuto,
		RegionPath: DefaultRegionPath,
		UserPath:   DefaultUserPath,
		Retry:      RetryPolicy{MaxAttempts: 1},
	}
}

// BatchBudget returns the worst-case duration of one region batch: every
// attempt timing out plus the longest backoff between attempts.
func (c Config) BatchBudget() time.Duration {
	attempts := max(c.Retry.MaxAttempts, 1)

	return time.Duration(attempts)*c.Timeout + c.Retry.MaxBackoff() + batchTimeoutSlack
}

// Validate checks config coherence.
func (c Config) Validate() error {
	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url: scheme must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("base_url: host is required")
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("regions: at least one region is required")
	}
	for index, region := range c.Regions {
		if strings.TrimSpace(region) == "" {
			return fmt.Errorf("regions[%d]: empty region", index)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout: must be > 0")
	}
	switch c.Format {
	case FormatAuto, FormatXML, FormatJSON:
	default:
		return fmt.Errorf("format: unsupported %q", c.Format)
	}
	for name, path := range map[string]string{"region_path": c.RegionPath, "user_path": c.UserPath} {
		if !strings.Contains(path, "{key}") {
			return fmt.Errorf("%s: must contain {key}", name)
		}
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts: must be >= 0")
	}
	if c.Retry.InitialInterval < 0 {
		return fmt.Errorf("retry.initial_interval: must be >= 0")
	}

	return nil
}
