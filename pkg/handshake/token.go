package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PropertiesCodec serializes caller properties into an opaque string.
//
// The handshake only derives session tokens from the output, so the codec
// does not need to be reversible; it needs to be stable: identical
// properties must protect to identical strings.
type PropertiesCodec interface {
	Protect(props Properties) (string, error)
}

// JSONCodec protects properties as canonical JSON. encoding/json emits map
// keys in sorted order, which gives the stability Protect requires.
type JSONCodec struct{}

// Protect serializes props to a deterministic string.
func (JSONCodec) Protect(props Properties) (string, error) {
	data, err := json.Marshal(struct {
		RedirectURL string            `json:"redirect_url"`
		Items       map[string]string `json:"items,omitempty"`
	}{props.RedirectURL, props.Items})
	if err != nil {
		return "", fmt.Errorf("failed to protect properties: %w", err)
	}
	return string(data), nil
}

// TokenSource produces the session token a new handshake is cached under.
type TokenSource interface {
	Token(props Properties) (string, error)
}

// DeterministicTokenSource derives tokens as a keyed hash of the protected
// properties: identical properties yield identical tokens, so a retried
// challenge-trigger redirects to the same handshake instead of orphaning
// the first one.
//
// The HMAC key keeps tokens unguessable to anyone who knows the redirect
// target. Tokens are not secrets (entries are short-lived and single-use)
// but should not be trivially forgeable either.
type DeterministicTokenSource struct {
	codec  PropertiesCodec
	secret []byte
}

// NewDeterministicTokenSource creates a token source keyed with secret.
// A nil codec defaults to JSONCodec.
func NewDeterministicTokenSource(secret []byte, codec PropertiesCodec) *DeterministicTokenSource {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &DeterministicTokenSource{codec: codec, secret: secret}
}

// Token derives the session token for props.
func (s *DeterministicTokenSource) Token(props Properties) (string, error) {
	protected, err := s.codec.Protect(props)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(protected))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// RandomTokenSource issues a fresh random token per handshake. Stronger
// against token guessing than the deterministic source, at the cost of
// idempotent redirect retries: each trigger starts a new handshake.
type RandomTokenSource struct{}

// Token returns a random UUID.
func (RandomTokenSource) Token(Properties) (string, error) {
	return uuid.NewString(), nil
}
