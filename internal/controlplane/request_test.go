package controlplane

import (
	"errors"
	"testing"

	"github.com/danmuck/convoctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testProfile() Profile {
	return Profile{
		Name:          "convo-agent",
		Channel:       "room-1",
		Token:         "rtc-token",
		AgentRTCUID:   1001,
		RemoteRTCUIDs: []int{1002},
		IdleTimeout:   120,
		EnableAIVAD:   true,
		LLM: LLMProfile{
			URL:             "https://llm.example/v1/chat/completions",
			APIKey:          "llm-key",
			Model:           "gpt-4o-mini",
			SystemMessage:   "You are a helpful assistant.",
			GreetingMessage: "Hello!",
			FailureMessage:  "Sorry.",
			MaxHistory:      10,
		},
		TTS: TTSProfile{
			Vendor:    TTSVendorMicrosoft,
			APIKey:    "tts-key",
			Region:    "eastus",
			VoiceName: "en-US-AndrewMultilingualNeural",
		},
		ASR: ASRProfile{Language: "en-US"},
	}
}

func TestBuildJoinDocument(t *testing.T) {
	testlog.Start(t)

	doc, err := BuildJoinDocument(testProfile())
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(doc))

	root := gjson.ParseBytes(doc)
	require.Equal(t, "convo-agent", root.Get("name").String())
	require.Equal(t, "room-1", root.Get("properties.channel").String())
	require.Equal(t, gjson.String, root.Get("properties.agent_rtc_uid").Type)
	require.Equal(t, "1001", root.Get("properties.agent_rtc_uid").String())
	require.Equal(t, "1002", root.Get("properties.remote_rtc_uids.0").String())
	require.Equal(t, "PCMU", root.Get("properties.parameters.output_audio_codec").String())
	require.True(t, root.Get("properties.advanced_features.enable_aivad").Bool())
	require.Equal(t, "system", root.Get("properties.llm.system_messages.0.role").String())
	require.Equal(t, "gpt-4o-mini", root.Get("properties.llm.params.model").String())
	require.Equal(t, "microsoft", root.Get("properties.tts.vendor").String())
	require.Equal(t, "eastus", root.Get("properties.tts.params.region").String())
	require.Equal(t, "en-US", root.Get("properties.asr.language").String())
}

func TestBuildJoinDocumentCartesia(t *testing.T) {
	testlog.Start(t)

	p := testProfile()
	p.TTS = TTSProfile{
		Vendor:     "Cartesia",
		APIKey:     "c-key",
		ModelID:    "sonic-2",
		VoiceMode:  "id",
		VoiceID:    "voice-1",
		Container:  "raw",
		SampleRate: 16000,
		Language:   "en",
	}
	doc, err := BuildJoinDocument(p)
	require.NoError(t, err)

	root := gjson.ParseBytes(doc)
	require.Equal(t, "cartesia", root.Get("properties.tts.vendor").String())
	require.Equal(t, "voice-1", root.Get("properties.tts.params.voice.id").String())
	require.EqualValues(t, 16000, root.Get("properties.tts.params.output_format.sample_rate").Int())
}

func TestBuildJoinDocumentOverrides(t *testing.T) {
	testlog.Start(t)

	p := testProfile()
	p.Overrides = map[string]any{
		"properties.llm.params.max_tokens": int64(512),
		"properties.parameters.data_channel": "rtm",
	}
	doc, err := BuildJoinDocument(p)
	require.NoError(t, err)

	root := gjson.ParseBytes(doc)
	require.EqualValues(t, 512, root.Get("properties.llm.params.max_tokens").Int())
	require.Equal(t, "rtm", root.Get("properties.parameters.data_channel").String())
	require.Equal(t, "gpt-4o-mini", root.Get("properties.llm.params.model").String())
}

func TestBuildJoinDocumentValidation(t *testing.T) {
	testlog.Start(t)

	p := testProfile()
	p.Channel = " "
	_, err := BuildJoinDocument(p)
	require.True(t, errors.Is(err, ErrInvalidProfile))

	p = testProfile()
	p.TTS.Vendor = "espeak"
	_, err = ProfileBuilder{Profile: p}.Build()
	require.ErrorIs(t, err, ErrInvalidProfile)
}
