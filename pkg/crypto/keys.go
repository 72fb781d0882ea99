// Package crypto encrypts exchange API credentials at rest. Secrets are
// AES-256-GCM sealed under a process master key and decrypted only in memory
// for the duration of a signing call.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// KeyManager seals and opens credential strings.
type KeyManager struct {
	key [32]byte
}

// NewKeyManager derives the AES key from the MASTER_ENCRYPTION_KEY environment
// variable.
func NewKeyManager() (*KeyManager, error) {
	raw := os.Getenv("MASTER_ENCRYPTION_KEY")
	if raw == "" {
		return nil, fmt.Errorf("MASTER_ENCRYPTION_KEY is not set")
	}
	return &KeyManager{key: sha256.Sum256([]byte(raw))}, nil
}

// Encrypt seals plaintext and returns a base64 blob of nonce||ciphertext.
func (k *KeyManager) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt.
func (k *KeyManager) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode credential blob: %w", err)
	}
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("credential blob too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open credential blob: %w", err)
	}
	return string(plain), nil
}
