package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESGCM("unit-test-key")
	require.NoError(t, err)

	for _, plaintext := range []string{"", "api-key-123", "multi word secret with symbols !@#"} {
		blob, err := enc.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, blob)

		got, err := enc.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	enc, err := NewAESGCM("unit-test-key")
	require.NoError(t, err)

	a, err := enc.Encrypt("same secret")
	require.NoError(t, err)
	b, err := enc.Encrypt("same secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must differ per message")
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	enc, err := NewAESGCM("key-one")
	require.NoError(t, err)
	other, err := NewAESGCM("key-two")
	require.NoError(t, err)

	blob, err := enc.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(blob)
	require.Error(t, err)
}

func TestDecryptRejectsMalformedBlob(t *testing.T) {
	enc, err := NewAESGCM("unit-test-key")
	require.NoError(t, err)

	_, err = enc.Decrypt("not base64 ***")
	require.Error(t, err)
	_, err = enc.Decrypt("c2hvcnQ")
	require.Error(t, err)
}

func TestCredentialMapRoundTrip(t *testing.T) {
	enc, err := NewAESGCM("unit-test-key")
	require.NoError(t, err)

	creds := map[string]string{"api_key": "k-123", "api_secret": "s-456"}
	sealed, err := EncryptMap(enc, creds)
	require.NoError(t, err)
	assert.NotEqual(t, creds["api_key"], sealed["api_key"])

	opened, err := DecryptMap(enc, sealed)
	require.NoError(t, err)
	assert.Equal(t, creds, opened)
}

func TestNewAESGCMRequiresKey(t *testing.T) {
	_, err := NewAESGCM("")
	require.Error(t, err)
}
