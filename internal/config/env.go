package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/danmuck/convoctl/internal/controlplane"
)

// Secrets are read from the environment only.
type Secrets struct {
	APIKey    string `env:"CONVOCTL_API_KEY"`
	APISecret string `env:"CONVOCTL_API_SECRET"`
	AppID     string `env:"CONVOCTL_APP_ID"`
	BaseURL   string `env:"CONVOCTL_BASE_URL"`
	RTCToken  string `env:"CONVOCTL_RTC_TOKEN"`
	LLMAPIKey string `env:"CONVOCTL_LLM_API_KEY"`
	TTSAPIKey string `env:"CONVOCTL_TTS_API_KEY"`
	// AdminToken guards the admin API session routes when set.
	AdminToken string `env:"CONVOCTL_ADMIN_TOKEN"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := ParseEnv(&s); err != nil {
		return Secrets{}, err
	}
	return s, nil
}

func (s Secrets) Credentials() controlplane.Credentials {
	return controlplane.Credentials{
		Key:    strings.TrimSpace(s.APIKey),
		Secret: strings.TrimSpace(s.APISecret),
	}
}

// ApplyRuntime lets the environment override the app id and endpoint.
func (s Secrets) ApplyRuntime(cfg RuntimeConfig) RuntimeConfig {
	if v := strings.TrimSpace(s.AppID); v != "" {
		cfg.AppID = v
	}
	if v := strings.TrimSpace(s.BaseURL); v != "" {
		cfg.BaseURL = v
	}
	return cfg
}

// ApplyProfile fills profile secrets that are set in the environment.
func (s Secrets) ApplyProfile(p controlplane.Profile) controlplane.Profile {
	if v := strings.TrimSpace(s.RTCToken); v != "" {
		p.Token = v
	}
	if v := strings.TrimSpace(s.LLMAPIKey); v != "" {
		p.LLM.APIKey = v
	}
	if v := strings.TrimSpace(s.TTSAPIKey); v != "" {
		p.TTS.APIKey = v
	}
	return p
}
