package controlplane

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrCredentialsRequired = errors.New("controlplane: api key and secret required")

// Credentials is the customer key/secret pair used for Basic auth.
type Credentials struct {
	Key    string
	Secret string
}

// String masks the secret so credentials can be logged.
func (c Credentials) String() string {
	key := strings.TrimSpace(c.Key)
	if len(key) > 4 {
		key = key[:4] + "..."
	}
	return "key=" + key + " secret=***"
}

// Token returns the reusable Basic auth token for c.
func (c Credentials) Token() (string, error) {
	return BasicToken(c.Key, c.Secret)
}

// BasicToken returns base64("key:secret").
func BasicToken(key, secret string) (string, error) {
	key = strings.TrimSpace(key)
	secret = strings.TrimSpace(secret)
	if key == "" || secret == "" {
		return "", ErrCredentialsRequired
	}
	return base64.StdEncoding.EncodeToString([]byte(key + ":" + secret)), nil
}
