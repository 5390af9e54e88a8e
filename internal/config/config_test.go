package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/convoctl/internal/controlplane"
	"github.com/danmuck/convoctl/internal/testutil/testlog"
	"github.com/tidwall/gjson"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadRuntimeConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "convoctl.toml", `
app_id = " app-123 "
request_timeout = "3s"
conflict_retry_delay = "500ms"
max_attempts = 0
max_conflict_stops = 2
cors_origins = ["https://panel.local"]
`)

	cfg, err := LoadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AppID != "app-123" {
		t.Fatalf("unexpected app id: %q", cfg.AppID)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.RequestTimeout)
	}
	if cfg.Retry.ConflictDelay != 500*time.Millisecond {
		t.Fatalf("unexpected conflict delay: %v", cfg.Retry.ConflictDelay)
	}
	if cfg.Retry.StaleDelay != time.Second {
		t.Fatalf("stale delay default lost: %v", cfg.Retry.StaleDelay)
	}
	if cfg.Retry.MaxAttempts != 0 {
		t.Fatalf("explicit zero max_attempts should be kept, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.MaxConflictStops != 2 {
		t.Fatalf("unexpected max conflict stops: %d", cfg.MaxConflictStops)
	}
	if cfg.BaseURL != controlplane.DefaultBaseURL {
		t.Fatalf("base url default lost: %q", cfg.BaseURL)
	}
	if cfg.ListLimit != controlplane.DefaultListLimit || cfg.ListState != controlplane.ListStateRunning {
		t.Fatalf("list defaults lost: state=%d limit=%d", cfg.ListState, cfg.ListLimit)
	}
	if len(cfg.CorsOrigins) != 1 || cfg.CorsOrigins[0] != "https://panel.local" {
		t.Fatalf("unexpected cors origins: %v", cfg.CorsOrigins)
	}
}

func TestLoadRuntimeConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bad duration", content: `request_timeout = "soon"`, want: "request_timeout"},
		{name: "negative delay", content: `stale_retry_delay = "-1s"`, want: "stale_retry_delay"},
		{name: "stops over list limit", content: "list_limit = 2\nmax_conflict_stops = 3", want: "exceeds list_limit"},
		{name: "zero stops", content: `max_conflict_stops = 0`, want: "max_conflict_stops"},
		{name: "bad admin addr", content: `admin_addr = "localhost"`, want: "admin_addr"},
		{name: "shrinking multiplier", content: `retry_multiplier = 0.5`, want: "retry_multiplier"},
		{name: "not toml", content: `app_id = `, want: "load runtime config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			_, err := LoadRuntimeConfig(writeFile(t, "convoctl.toml", tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestTemplatesValidate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for _, kind := range []string{KindRuntime, KindProfile} {
		path := filepath.Join(dir, kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		if err := Validate(path, kind); err != nil {
			t.Fatalf("%s template does not validate: %v", kind, err)
		}
		if err := WriteTemplate(path, kind, false); err == nil {
			t.Fatalf("expected refusal to overwrite %s", path)
		}
		if err := WriteTemplate(path, kind, true); err != nil {
			t.Fatalf("forced overwrite: %v", err)
		}
	}
	if _, err := Template("mirage"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLoadProfileBuildsJoinDocument(t *testing.T) {
	testlog.Start(t)
	p, err := LoadProfile(writeFile(t, "profile.toml", profileTemplate))
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if p.Name != "convo-agent" || p.Channel != "convo-room" {
		t.Fatalf("unexpected profile identity: %+v", p)
	}

	doc, err := controlplane.BuildJoinDocument(p)
	if err != nil {
		t.Fatalf("build join document: %v", err)
	}
	if got := gjson.GetBytes(doc, "properties.llm.params.max_tokens").Int(); got != 256 {
		t.Fatalf("override not applied, got %d in %s", got, doc)
	}
	if got := gjson.GetBytes(doc, "properties.tts.vendor").String(); got != "microsoft" {
		t.Fatalf("unexpected tts vendor %q", got)
	}
}

func TestLoadProfileRequiresChannel(t *testing.T) {
	testlog.Start(t)
	_, err := LoadProfile(writeFile(t, "profile.toml", `name = "agent"`))
	if err == nil || !strings.Contains(err.Error(), "channel required") {
		t.Fatalf("expected channel error, got %v", err)
	}
}

func TestSecretsFromEnvironment(t *testing.T) {
	testlog.Start(t)
	t.Setenv("CONVOCTL_API_KEY", " key ")
	t.Setenv("CONVOCTL_API_SECRET", "secret")
	t.Setenv("CONVOCTL_APP_ID", "env-app")
	t.Setenv("CONVOCTL_RTC_TOKEN", "rtc-token")
	t.Setenv("CONVOCTL_LLM_API_KEY", "llm-key")

	s, err := LoadSecrets()
	if err != nil {
		t.Fatalf("load secrets: %v", err)
	}
	creds := s.Credentials()
	if creds.Key != "key" || creds.Secret != "secret" {
		t.Fatalf("unexpected credentials: %s", creds)
	}

	rt := s.ApplyRuntime(RuntimeConfig{AppID: "file-app", BaseURL: "https://file"})
	if rt.AppID != "env-app" || rt.BaseURL != "https://file" {
		t.Fatalf("unexpected runtime overlay: %+v", rt)
	}

	p := s.ApplyProfile(controlplane.Profile{Token: "file-token", TTS: controlplane.TTSProfile{APIKey: "file-tts"}})
	if p.Token != "rtc-token" || p.LLM.APIKey != "llm-key" || p.TTS.APIKey != "file-tts" {
		t.Fatalf("unexpected profile overlay: %+v", p)
	}
}
