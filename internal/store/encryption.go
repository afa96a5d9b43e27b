package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"wamirror/internal/constants"
	"wamirror/internal/models"
)

// EncryptionSecretEnv names the variable holding the payload encryption passphrase.
const EncryptionSecretEnv = "WAMIRROR_ENCRYPTION_SECRET"

const cipherPrefix = "enc:v1:"

// sealedRawKey holds the ciphertext of a status entry's raw unit.
const sealedRawKey = "sealed"

const (
	keySize      = 32 // AES-256
	nonceSize    = 12
	pbkdf2Rounds = 100000
)

// payloadCipher seals raw payload columns with AES-GCM. A nil gcm passes
// values through unchanged.
type payloadCipher struct {
	gcm cipher.AEAD
}

func newPayloadCipher(enabled bool) (*payloadCipher, error) {
	if !enabled {
		return &payloadCipher{}, nil
	}

	key, err := deriveKey(os.Getenv(EncryptionSecretEnv))
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &payloadCipher{gcm: gcm}, nil
}

func deriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required when payload encryption is enabled", EncryptionSecretEnv)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}
	return pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), pbkdf2Rounds, keySize, sha256.New), nil
}

func (c *payloadCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || c.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens values written by Encrypt. Unprefixed values are rows stored
// before encryption was turned on and are returned as is.
func (c *payloadCipher) Decrypt(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, cipherPrefix)
	if !ok {
		return value, nil
	}
	if c.gcm == nil {
		return "", fmt.Errorf("payload is encrypted but %s is not configured", EncryptionSecretEnv)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// sealEntry replaces entry.Raw with a single sealed field. The entry is
// returned unchanged when encryption is off.
func (c *payloadCipher) sealEntry(entry models.StatusEntry) (models.StatusEntry, error) {
	if c.gcm == nil || entry.Raw == nil {
		return entry, nil
	}
	encoded, err := json.Marshal(entry.Raw)
	if err != nil {
		return entry, fmt.Errorf("failed to encode status raw: %w", err)
	}
	sealed, err := c.Encrypt(string(encoded))
	if err != nil {
		return entry, fmt.Errorf("failed to encrypt status raw: %w", err)
	}
	entry.Raw = map[string]any{sealedRawKey: sealed}
	return entry, nil
}

func (c *payloadCipher) sealHistory(history []models.StatusEntry) ([]models.StatusEntry, error) {
	if c.gcm == nil {
		return history, nil
	}
	out := make([]models.StatusEntry, len(history))
	for i, entry := range history {
		sealed, err := c.sealEntry(entry)
		if err != nil {
			return nil, err
		}
		out[i] = sealed
	}
	return out, nil
}

// openHistory unseals entries written by sealEntry in place. Entries stored in
// the clear are left alone.
func (c *payloadCipher) openHistory(history []models.StatusEntry) error {
	for i := range history {
		if len(history[i].Raw) != 1 {
			continue
		}
		value, ok := history[i].Raw[sealedRawKey].(string)
		if !ok || !strings.HasPrefix(value, cipherPrefix) {
			continue
		}
		plain, err := c.Decrypt(value)
		if err != nil {
			return err
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(plain), &raw); err != nil {
			return fmt.Errorf("failed to decode status raw: %w", err)
		}
		history[i].Raw = raw
	}
	return nil
}
