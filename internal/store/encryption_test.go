package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wamirror/internal/models"
)

const testSecret = "an-encryption-secret-of-sufficient-length"

func TestPayloadCipher_Disabled(t *testing.T) {
	c, err := newPayloadCipher(false)
	require.NoError(t, err)

	out, err := c.Encrypt(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)

	out, err = c.Decrypt(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestPayloadCipher_RoundTrip(t *testing.T) {
	t.Setenv(EncryptionSecretEnv, testSecret)
	c, err := newPayloadCipher(true)
	require.NoError(t, err)

	sealed, err := c.Encrypt(`{"entry":[]}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, cipherPrefix))
	assert.NotContains(t, sealed, "entry")

	again, err := c.Encrypt(`{"entry":[]}`)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces must differ")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"entry":[]}`, plain)
}

func TestPayloadCipher_LegacyPlaintextPassesThrough(t *testing.T) {
	t.Setenv(EncryptionSecretEnv, testSecret)
	c, err := newPayloadCipher(true)
	require.NoError(t, err)

	plain, err := c.Decrypt(`{"legacy":true}`)
	require.NoError(t, err)
	assert.Equal(t, `{"legacy":true}`, plain)
}

func TestPayloadCipher_Errors(t *testing.T) {
	t.Setenv(EncryptionSecretEnv, "")
	_, err := newPayloadCipher(true)
	assert.Error(t, err)

	t.Setenv(EncryptionSecretEnv, "short")
	_, err = newPayloadCipher(true)
	assert.Error(t, err)

	disabled, err := newPayloadCipher(false)
	require.NoError(t, err)
	_, err = disabled.Decrypt(cipherPrefix + "AAAA")
	assert.Error(t, err)

	t.Setenv(EncryptionSecretEnv, testSecret)
	c, err := newPayloadCipher(true)
	require.NoError(t, err)
	_, err = c.Decrypt(cipherPrefix + "not base64!")
	assert.Error(t, err)
	_, err = c.Decrypt(cipherPrefix + "AAAA")
	assert.Error(t, err)
}

func TestPayloadCipher_StatusHistory(t *testing.T) {
	t.Setenv(EncryptionSecretEnv, testSecret)
	c, err := newPayloadCipher(true)
	require.NoError(t, err)

	history := []models.StatusEntry{
		{Status: "sent", Raw: map[string]any{"recipient_id": "15550001111"}},
		{Status: "delivered"},
	}
	sealed, err := c.sealHistory(history)
	require.NoError(t, err)
	assert.Equal(t, "15550001111", history[0].Raw["recipient_id"], "input is not mutated")
	require.Contains(t, sealed[0].Raw, sealedRawKey)
	assert.NotContains(t, sealed[0].Raw[sealedRawKey], "15550001111")
	assert.Nil(t, sealed[1].Raw)

	legacy := models.StatusEntry{Status: "read", Raw: map[string]any{"sealed": "not ciphertext"}}
	sealed = append(sealed, legacy)
	require.NoError(t, c.openHistory(sealed))
	assert.Equal(t, "15550001111", sealed[0].Raw["recipient_id"])
	assert.Equal(t, "not ciphertext", sealed[2].Raw["sealed"])

	disabled, err := newPayloadCipher(false)
	require.NoError(t, err)
	same, err := disabled.sealHistory(history)
	require.NoError(t, err)
	assert.Equal(t, history, same)
}
