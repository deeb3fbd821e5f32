package cognito

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretHasherDeterministic(t *testing.T) {
	hasher, err := NewSecretHasher("client-id", "client-secret")
	require.NoError(t, err)

	first := hasher.Sign("user@example.com")
	second := hasher.Sign("user@example.com")

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestSecretHasherDependsOnSecret(t *testing.T) {
	a, err := NewSecretHasher("client-id", "secret-a")
	require.NoError(t, err)
	b, err := NewSecretHasher("client-id", "secret-b")
	require.NoError(t, err)

	assert.NotEqual(t, a.Sign("user@example.com"), b.Sign("user@example.com"))
}

func TestSecretHasherDependsOnUsername(t *testing.T) {
	hasher, err := NewSecretHasher("client-id", "client-secret")
	require.NoError(t, err)

	assert.NotEqual(t, hasher.Sign("alice@example.com"), hasher.Sign("bob@example.com"))
}

func TestSecretHasherMatchesReference(t *testing.T) {
	hasher, err := NewSecretHasher("client-id", "client-secret")
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("client-secret"))
	mac.Write([]byte("user@example.com" + "client-id"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, hasher.Sign("user@example.com"))
}

func TestSecretHasherRequiresConfiguration(t *testing.T) {
	_, err := NewSecretHasher("", "secret")
	assert.Error(t, err)

	_, err = NewSecretHasher("client-id", "")
	assert.Error(t, err)
}
