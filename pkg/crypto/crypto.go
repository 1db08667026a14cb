// Package crypto provides the symmetric secret-encryption primitive used for
// project API keys and per-access credential maps. Ciphertext is opaque to
// callers; plaintext secrets are held only for the duration of an outbound call.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	dErrors "github.com/hafizsameer11/superCrm/pkg/domain-errors"
)

// Encryptor encrypts and decrypts short secret strings.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AESGCM is an AES-256-GCM Encryptor with a random nonce per message.
// Output is base64url(nonce || ciphertext).
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM derives a 256-bit key from the given key material.
// Accepts any non-empty key string so deployments can use passphrase-style keys.
func NewAESGCM(key string) (*AESGCM, error) {
	if key == "" {
		return nil, dErrors.New(dErrors.CodeConfigInvalid, "encryption key cannot be empty")
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize gcm")
	}
	return &AESGCM{aead: aead}, nil
}

// Encrypt seals the plaintext with a fresh random nonce.
func (e *AESGCM) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate nonce")
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob previously produced by Encrypt.
func (e *AESGCM) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "malformed ciphertext")
	}
	if len(raw) < e.aead.NonceSize() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "malformed ciphertext")
	}
	nonce, sealed := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "could not decrypt secret")
	}
	return string(plain), nil
}

// EncryptMap encrypts every value of a credential map, keeping keys intact.
func EncryptMap(e Encryptor, creds map[string]string) (map[string]string, error) {
	if creds == nil {
		return nil, nil
	}
	out := make(map[string]string, len(creds))
	for k, v := range creds {
		enc, err := e.Encrypt(v)
		if err != nil {
			return nil, err
		}
		out[k] = enc
	}
	return out, nil
}

// DecryptMap decrypts every value of a credential map, keeping keys intact.
func DecryptMap(e Encryptor, creds map[string]string) (map[string]string, error) {
	if creds == nil {
		return nil, nil
	}
	out := make(map[string]string, len(creds))
	for k, v := range creds {
		dec, err := e.Decrypt(v)
		if err != nil {
			return nil, err
		}
		out[k] = dec
	}
	return out, nil
}
