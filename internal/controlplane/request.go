package controlplane

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/sjson"
)

const (
	TTSVendorMicrosoft = "microsoft"
	TTSVendorCartesia  = "cartesia"

	defaultOutputCodec = "PCMU"
)

// Profile is the create-session configuration for one agent. Only Name and
// Channel are interpreted; the rest is forwarded to the remote side.
type Profile struct {
	Name          string         `toml:"name"`
	Channel       string         `toml:"channel"`
	Token         string         `toml:"token"`
	AgentRTCUID   int            `toml:"agent_rtc_uid"`
	RemoteRTCUIDs []int          `toml:"remote_rtc_uids"`
	IdleTimeout   int            `toml:"idle_timeout"`
	OutputCodec   string         `toml:"output_audio_codec"`
	EnableAIVAD   bool           `toml:"enable_aivad"`
	LLM           LLMProfile     `toml:"llm"`
	TTS           TTSProfile     `toml:"tts"`
	ASR           ASRProfile     `toml:"asr"`
	Overrides     map[string]any `toml:"overrides"`
}

type LLMProfile struct {
	URL             string `toml:"url"`
	APIKey          string `toml:"api_key"`
	Model           string `toml:"model"`
	SystemMessage   string `toml:"system_message"`
	GreetingMessage string `toml:"greeting_message"`
	FailureMessage  string `toml:"failure_message"`
	MaxHistory      int    `toml:"max_history"`
}

type TTSProfile struct {
	Vendor string `toml:"vendor"`
	APIKey string `toml:"api_key"`

	// microsoft
	Region    string `toml:"region"`
	VoiceName string `toml:"voice_name"`

	// cartesia
	ModelID    string `toml:"model_id"`
	VoiceMode  string `toml:"voice_mode"`
	VoiceID    string `toml:"voice_id"`
	Container  string `toml:"container"`
	SampleRate int    `toml:"sample_rate"`
	Language   string `toml:"language"`
}

type ASRProfile struct {
	Language string `toml:"language"`
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Channel) == "" {
		return fmt.Errorf("%w: channel required", ErrInvalidProfile)
	}
	switch strings.ToLower(strings.TrimSpace(p.TTS.Vendor)) {
	case "", TTSVendorMicrosoft, TTSVendorCartesia:
	default:
		return fmt.Errorf("%w: unsupported tts vendor %q", ErrInvalidProfile, p.TTS.Vendor)
	}
	return nil
}

// DocumentBuilder produces the serialized create-session request.
type DocumentBuilder interface {
	Build() ([]byte, error)
}

// BuilderFunc adapts a function into a DocumentBuilder.
type BuilderFunc func() ([]byte, error)

func (f BuilderFunc) Build() ([]byte, error) {
	return f()
}

// ProfileBuilder builds the join document from a static Profile.
type ProfileBuilder struct {
	Profile Profile
}

func (b ProfileBuilder) Build() ([]byte, error) {
	return BuildJoinDocument(b.Profile)
}

type joinDocument struct {
	Name       string         `json:"name"`
	Properties joinProperties `json:"properties"`
}

type joinProperties struct {
	Channel          string            `json:"channel"`
	Token            string            `json:"token"`
	AgentRTCUID      string            `json:"agent_rtc_uid"`
	RemoteRTCUIDs    []string          `json:"remote_rtc_uids"`
	Parameters       map[string]string `json:"parameters"`
	IdleTimeout      int               `json:"idle_timeout"`
	AdvancedFeatures map[string]bool   `json:"advanced_features"`
	LLM              joinLLM           `json:"llm"`
	TTS              joinTTS           `json:"tts"`
	ASR              map[string]string `json:"asr"`
}

type joinLLM struct {
	URL             string            `json:"url"`
	APIKey          string            `json:"api_key"`
	SystemMessages  []joinChatMessage `json:"system_messages"`
	MaxHistory      int               `json:"max_history"`
	GreetingMessage string            `json:"greeting_message"`
	FailureMessage  string            `json:"failure_message"`
	Params          map[string]string `json:"params"`
}

type joinChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type joinTTS struct {
	Vendor string         `json:"vendor"`
	Params map[string]any `json:"params"`
}

// BuildJoinDocument serializes p into the create-session body, then applies
// p.Overrides as dotted JSON paths in key order.
func BuildJoinDocument(p Profile) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	codec := strings.TrimSpace(p.OutputCodec)
	if codec == "" {
		codec = defaultOutputCodec
	}
	remote := make([]string, 0, len(p.RemoteRTCUIDs))
	for _, uid := range p.RemoteRTCUIDs {
		remote = append(remote, strconv.Itoa(uid))
	}

	doc := joinDocument{
		Name: strings.TrimSpace(p.Name),
		Properties: joinProperties{
			Channel:          strings.TrimSpace(p.Channel),
			Token:            p.Token,
			AgentRTCUID:      strconv.Itoa(p.AgentRTCUID),
			RemoteRTCUIDs:    remote,
			Parameters:       map[string]string{"output_audio_codec": codec},
			IdleTimeout:      p.IdleTimeout,
			AdvancedFeatures: map[string]bool{"enable_aivad": p.EnableAIVAD},
			LLM: joinLLM{
				URL:    p.LLM.URL,
				APIKey: p.LLM.APIKey,
				SystemMessages: []joinChatMessage{
					{Role: "system", Content: p.LLM.SystemMessage},
				},
				MaxHistory:      p.LLM.MaxHistory,
				GreetingMessage: p.LLM.GreetingMessage,
				FailureMessage:  p.LLM.FailureMessage,
				Params:          map[string]string{"model": p.LLM.Model},
			},
			TTS: buildTTS(p.TTS),
			ASR: map[string]string{"language": p.ASR.Language},
		},
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("controlplane: encode join document: %w", err)
	}
	return applyOverrides(out, p.Overrides)
}

func buildTTS(t TTSProfile) joinTTS {
	vendor := strings.ToLower(strings.TrimSpace(t.Vendor))
	if vendor == TTSVendorCartesia {
		return joinTTS{
			Vendor: TTSVendorCartesia,
			Params: map[string]any{
				"api_key":  t.APIKey,
				"model_id": t.ModelID,
				"voice": map[string]string{
					"mode": t.VoiceMode,
					"id":   t.VoiceID,
				},
				"output_format": map[string]any{
					"container":   t.Container,
					"sample_rate": t.SampleRate,
				},
				"language": t.Language,
			},
		}
	}
	return joinTTS{
		Vendor: TTSVendorMicrosoft,
		Params: map[string]any{
			"key":        t.APIKey,
			"region":     t.Region,
			"voice_name": t.VoiceName,
		},
	}
}

func applyOverrides(doc []byte, overrides map[string]any) ([]byte, error) {
	if len(overrides) == 0 {
		return doc, nil
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var err error
	for _, path := range keys {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: empty override path", ErrInvalidProfile)
		}
		doc, err = sjson.SetBytes(doc, trimmed, overrides[path])
		if err != nil {
			return nil, fmt.Errorf("%w: override %q: %v", ErrInvalidProfile, trimmed, err)
		}
	}
	return doc, nil
}
