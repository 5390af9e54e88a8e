package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danmuck/convoctl/internal/admin"
	"github.com/danmuck/convoctl/internal/agent"
	"github.com/danmuck/convoctl/internal/auth"
	"github.com/danmuck/convoctl/internal/config"
	"github.com/danmuck/convoctl/internal/controlplane"
	"github.com/danmuck/convoctl/internal/version"
)

// settings is the runtime file plus environment overlay for one invocation.
type settings struct {
	configPath string
	runtime    config.RuntimeConfig
	secrets    config.Secrets
}

// loadSettings reads path (built-in defaults when empty) and applies the
// environment on top.
func loadSettings(path string) (settings, error) {
	path = strings.TrimSpace(path)
	rt := config.DefaultRuntimeConfig()
	if path != "" {
		loaded, err := config.LoadRuntimeConfig(path)
		if err != nil {
			return settings{}, err
		}
		rt = loaded
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return settings{}, err
	}
	rt = secrets.ApplyRuntime(rt)
	if err := config.ValidateRuntimeConfig(rt); err != nil {
		return settings{}, err
	}
	return settings{configPath: path, runtime: rt, secrets: secrets}, nil
}

func (s settings) clientConfig() controlplane.ClientConfig {
	return controlplane.ClientConfig{
		BaseURL:            s.runtime.BaseURL,
		AppID:              s.runtime.AppID,
		Credentials:        s.secrets.Credentials(),
		Timeout:            s.runtime.RequestTimeout,
		ListState:          s.runtime.ListState,
		ListLimit:          s.runtime.ListLimit,
		CAFile:             s.resolve(s.runtime.CAFile),
		InsecureSkipVerify: s.runtime.InsecureSkipVerify,
		UserAgent:          "convoctl/" + version.Version,
	}
}

func (s settings) newClient() (*controlplane.Client, error) {
	client, err := controlplane.NewClient(s.clientConfig())
	if err != nil {
		return nil, fmt.Errorf("control plane client: %w", err)
	}
	return client, nil
}

// profile loads the agent profile and fills secrets from the environment.
func (s settings) profile() (controlplane.Profile, error) {
	path := s.resolve(s.runtime.ProfilePath)
	if path == "" {
		return controlplane.Profile{}, fmt.Errorf("profile_path is required")
	}
	p, err := config.LoadProfile(path)
	if err != nil {
		return controlplane.Profile{}, err
	}
	return s.secrets.ApplyProfile(p), nil
}

func (s settings) newController(remote agent.Remote) (*agent.Controller, error) {
	p, err := s.profile()
	if err != nil {
		return nil, err
	}
	cfg := agent.DefaultConfig()
	cfg.Remote = remote
	cfg.Builder = controlplane.ProfileBuilder{Profile: p}
	cfg.Retry = s.runtime.Retry
	cfg.MaxConflictStops = s.runtime.MaxConflictStops
	return agent.NewController(cfg)
}

func (s settings) adminConfig(lister admin.Lister) admin.Config {
	cfg := admin.Config{
		Addr:        s.runtime.AdminAddr,
		CorsOrigins: s.runtime.CorsOrigins,
		Version:     version.Version,
		Lister:      lister,
	}
	if token := strings.TrimSpace(s.secrets.AdminToken); token != "" {
		cfg.Auth = auth.StaticToken{Token: token}
	}
	return cfg
}

// resolve makes p relative to the config file's directory.
func (s settings) resolve(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) || s.configPath == "" {
		return p
	}
	return filepath.Join(filepath.Dir(s.configPath), p)
}
