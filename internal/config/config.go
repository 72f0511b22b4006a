// Package config loads runtime settings from the environment and the selector
// profile from YAML.
package config

import (
	"fmt"
	"os"
	"time"
)

// Default values, overridable through the environment.
const (
	DefaultCDPURL        = "ws://127.0.0.1:9222"
	DefaultReportDir     = "."
	DefaultLedgerDataset = "console_ledger"
	DefaultLogLevel      = "info"
)

// Waits are the per-kind wait budgets. Each kind of wait has its own bound.
type Waits struct {
	Overlay time.Duration
	Element time.Duration
	Modal   time.Duration
	Page    time.Duration
	Rows    time.Duration
	Settle  time.Duration
	Poll    time.Duration
}

// DefaultWaits mirrors what the console needs in practice.
func DefaultWaits() Waits {
	return Waits{
		Overlay: 10 * time.Second,
		Element: 10 * time.Second,
		Modal:   5 * time.Second,
		Page:    10 * time.Second,
		Rows:    20 * time.Second,
		Settle:  2 * time.Second,
		Poll:    100 * time.Millisecond,
	}
}

// Config is the process configuration.
type Config struct {
	LogLevel string

	// CDPURL is the DevTools endpoint of a browser the operator already logged into.
	CDPURL string
	// ConsoleURL, when set, is opened before any work starts.
	ConsoleURL string

	// SelectorsPath overrides the embedded selector profile.
	SelectorsPath string

	ReportDir    string
	ReportBucket string

	ProjectID     string
	LedgerDataset string

	Waits Waits
}

// LedgerEnabled reports whether BigQuery ledgers should be used.
func (c *Config) LedgerEnabled() bool {
	return c.ProjectID != ""
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:      getEnv("LOG_LEVEL", DefaultLogLevel),
		CDPURL:        getEnv("CONSOLE_CDP_URL", DefaultCDPURL),
		ConsoleURL:    os.Getenv("CONSOLE_URL"),
		SelectorsPath: os.Getenv("CONSOLE_SELECTORS"),
		ReportDir:     getEnv("REPORT_DIR", DefaultReportDir),
		ReportBucket:  os.Getenv("REPORT_BUCKET"),
		ProjectID:     os.Getenv("GCP_PROJECT_ID"),
		LedgerDataset: getEnv("LEDGER_DATASET", DefaultLedgerDataset),
		Waits:         DefaultWaits(),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"OVERLAY_TIMEOUT", &cfg.Waits.Overlay},
		{"ELEMENT_TIMEOUT", &cfg.Waits.Element},
		{"MODAL_TIMEOUT", &cfg.Waits.Modal},
		{"PAGE_TIMEOUT", &cfg.Waits.Page},
		{"ROWS_TIMEOUT", &cfg.Waits.Rows},
		{"SETTLE_WINDOW", &cfg.Waits.Settle},
		{"POLL_INTERVAL", &cfg.Waits.Poll},
	}
	for _, d := range durations {
		raw := os.Getenv(d.key)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("config: %s must be positive, got %s", d.key, raw)
		}
		*d.dst = v
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
