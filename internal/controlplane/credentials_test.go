package controlplane

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/convoctl/internal/testutil/testlog"
)

func TestBasicToken(t *testing.T) {
	testlog.Start(t)

	token, err := BasicToken("key123", "secret456")
	if err != nil {
		t.Fatalf("basic token: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if string(raw) != "key123:secret456" {
		t.Fatalf("unexpected token payload: %q", raw)
	}
}

func TestBasicTokenRequiresBothParts(t *testing.T) {
	testlog.Start(t)

	for _, tc := range []struct{ key, secret string }{
		{"", "s"},
		{"k", ""},
		{"  ", "  "},
	} {
		if _, err := BasicToken(tc.key, tc.secret); !errors.Is(err, ErrCredentialsRequired) {
			t.Fatalf("BasicToken(%q,%q): expected ErrCredentialsRequired, got %v", tc.key, tc.secret, err)
		}
	}
}

func TestCredentialsStringMasksSecret(t *testing.T) {
	testlog.Start(t)

	s := Credentials{Key: "abcdefgh", Secret: "topsecret"}.String()
	if strings.Contains(s, "topsecret") || strings.Contains(s, "abcdefgh") {
		t.Fatalf("credentials leaked: %s", s)
	}
}
