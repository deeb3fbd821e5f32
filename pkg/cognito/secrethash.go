package cognito

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// SecretHasher computes the keyed signature confidential clients must attach
// to user pool calls: HMAC-SHA256 over username+clientID keyed by the client
// secret, base64-encoded.
type SecretHasher struct {
	clientID string
	secret   []byte
}

// NewSecretHasher creates a hasher. Missing configuration is a startup
// error, not a runtime one.
func NewSecretHasher(clientID, clientSecret string) (*SecretHasher, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if clientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	return &SecretHasher{
		clientID: clientID,
		secret:   []byte(clientSecret),
	}, nil
}

// Sign returns the secret hash binding username to this client. Deterministic
// and side-effect free.
func (s *SecretHasher) Sign(username string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(username + s.clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
