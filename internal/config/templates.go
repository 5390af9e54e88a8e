package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	KindRuntime = "runtime"
	KindProfile = "profile"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindRuntime:
		return runtimeTemplate, nil
	case KindProfile:
		return profileTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as kind and reports the first problem.
func Validate(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindRuntime:
		_, err := LoadRuntimeConfig(path)
		return err
	case KindProfile:
		_, err := LoadProfile(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

// Credentials are read from CONVOCTL_API_KEY / CONVOCTL_API_SECRET.
const runtimeTemplate = `base_url = "https://api.agora.io/api/conversational-ai-agent/v2/projects"
app_id = "your-app-id"
request_timeout = "10s"
list_state = 2
list_limit = 20
max_conflict_stops = 1
conflict_retry_delay = "2s"
stale_retry_delay = "1s"
retry_multiplier = 1.0
retry_max_delay = "30s"
max_attempts = 5
admin_addr = "127.0.0.1:9080"
cors_origins = ["http://localhost:3000"]
profile_path = "profile.toml"
`

const profileTemplate = `name = "convo-agent"
channel = "convo-room"
token = ""
agent_rtc_uid = 0
remote_rtc_uids = [1002]
idle_timeout = 120
output_audio_codec = "PCMU"
enable_aivad = true

[llm]
url = "https://api.openai.com/v1/chat/completions"
api_key = ""
model = "gpt-4o-mini"
system_message = "You are a friendly voice assistant. Keep answers short."
greeting_message = "Hello, how can I help?"
failure_message = "Sorry, something went wrong."
max_history = 10

[tts]
vendor = "microsoft"
api_key = ""
region = "eastus"
voice_name = "en-US-AndrewMultilingualNeural"

[asr]
language = "en-US"

[overrides]
"properties.llm.params.max_tokens" = 256
`
