package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/convoctl/internal/agent"
	"github.com/danmuck/convoctl/internal/controlplane"
)

// RuntimeConfig is the resolved convoctl.toml. Credentials never live here;
// see Secrets.
type RuntimeConfig struct {
	BaseURL            string
	AppID              string
	RequestTimeout     time.Duration
	ListState          int
	ListLimit          int
	CAFile             string
	InsecureSkipVerify bool

	MaxConflictStops int
	Retry            agent.RetryPolicy

	AdminAddr   string
	CorsOrigins []string
	ProfilePath string
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		BaseURL:          controlplane.DefaultBaseURL,
		RequestTimeout:   controlplane.DefaultTimeout,
		ListState:        controlplane.ListStateRunning,
		ListLimit:        controlplane.DefaultListLimit,
		MaxConflictStops: 1,
		Retry:            agent.DefaultRetryPolicy(),
		AdminAddr:        "127.0.0.1:9080",
		CorsOrigins:      []string{"http://localhost:3000"},
		ProfilePath:      "profile.toml",
	}
}

// convoctl.toml key mapping to RuntimeConfig.
type runtimeFile struct {
	BaseURL            string   `toml:"base_url"`
	AppID              string   `toml:"app_id"`
	RequestTimeout     string   `toml:"request_timeout"`
	ListState          int      `toml:"list_state"`
	ListLimit          int      `toml:"list_limit"`
	CAFile             string   `toml:"ca_file"`
	InsecureSkipVerify bool     `toml:"insecure_skip_verify"`
	MaxConflictStops   int      `toml:"max_conflict_stops"`
	ConflictRetryDelay string   `toml:"conflict_retry_delay"`
	StaleRetryDelay    string   `toml:"stale_retry_delay"`
	RetryMultiplier    float64  `toml:"retry_multiplier"`
	RetryMaxDelay      string   `toml:"retry_max_delay"`
	RetryJitter        bool     `toml:"retry_jitter"`
	MaxAttempts        int      `toml:"max_attempts"`
	AdminAddr          string   `toml:"admin_addr"`
	CorsOrigins        []string `toml:"cors_origins"`
	ProfilePath        string   `toml:"profile_path"`
}

// LoadRuntimeConfig decodes path over DefaultRuntimeConfig. Only keys present
// in the file replace defaults.
func LoadRuntimeConfig(path string) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()

	var raw runtimeFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("load runtime config: %w", err)
	}

	if meta.IsDefined("base_url") {
		cfg.BaseURL = strings.TrimSpace(raw.BaseURL)
	}
	if meta.IsDefined("app_id") {
		cfg.AppID = strings.TrimSpace(raw.AppID)
	}
	if meta.IsDefined("request_timeout") {
		if cfg.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout); err != nil {
			return RuntimeConfig{}, err
		}
	}
	if meta.IsDefined("list_state") {
		cfg.ListState = raw.ListState
	}
	if meta.IsDefined("list_limit") {
		cfg.ListLimit = raw.ListLimit
	}
	if meta.IsDefined("ca_file") {
		cfg.CAFile = strings.TrimSpace(raw.CAFile)
	}
	if meta.IsDefined("insecure_skip_verify") {
		cfg.InsecureSkipVerify = raw.InsecureSkipVerify
	}
	if meta.IsDefined("max_conflict_stops") {
		cfg.MaxConflictStops = raw.MaxConflictStops
	}
	if meta.IsDefined("conflict_retry_delay") {
		if cfg.Retry.ConflictDelay, err = parseDuration("conflict_retry_delay", raw.ConflictRetryDelay); err != nil {
			return RuntimeConfig{}, err
		}
	}
	if meta.IsDefined("stale_retry_delay") {
		if cfg.Retry.StaleDelay, err = parseDuration("stale_retry_delay", raw.StaleRetryDelay); err != nil {
			return RuntimeConfig{}, err
		}
	}
	if meta.IsDefined("retry_multiplier") {
		cfg.Retry.Multiplier = raw.RetryMultiplier
	}
	if meta.IsDefined("retry_max_delay") {
		if cfg.Retry.MaxDelay, err = parseDuration("retry_max_delay", raw.RetryMaxDelay); err != nil {
			return RuntimeConfig{}, err
		}
	}
	if meta.IsDefined("retry_jitter") {
		cfg.Retry.Jitter = raw.RetryJitter
	}
	if meta.IsDefined("max_attempts") {
		cfg.Retry.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("profile_path") {
		cfg.ProfilePath = strings.TrimSpace(raw.ProfilePath)
	}

	if err := ValidateRuntimeConfig(cfg); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

func ValidateRuntimeConfig(cfg RuntimeConfig) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("runtime config missing base_url")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("runtime config request_timeout must be positive")
	}
	if cfg.ListLimit <= 0 {
		return fmt.Errorf("runtime config list_limit must be positive")
	}
	if cfg.MaxConflictStops <= 0 {
		return fmt.Errorf("runtime config max_conflict_stops must be positive")
	}
	if cfg.MaxConflictStops > cfg.ListLimit {
		return fmt.Errorf("runtime config max_conflict_stops (%d) exceeds list_limit (%d)", cfg.MaxConflictStops, cfg.ListLimit)
	}
	if cfg.Retry.MaxAttempts < 0 {
		return fmt.Errorf("runtime config max_attempts must not be negative")
	}
	if cfg.Retry.Multiplier != 0 && cfg.Retry.Multiplier < 1.0 {
		return fmt.Errorf("runtime config retry_multiplier must be >= 1")
	}
	if addr := strings.TrimSpace(cfg.AdminAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("runtime config admin_addr %q: %w", addr, err)
		}
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("load runtime config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("load runtime config: %s must be positive", key)
	}
	return d, nil
}
