package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/certvault/custody-backend/interfaces"
	"golang.org/x/crypto/hkdf"
)

// sealingInfo binds the derived sealing key to its single purpose.
const sealingInfo = "custody-backend/user-key-sealing/v1"

// Sealer wraps user keys at rest. Key stores never see raw key material:
// they hold base64(nonce || ciphertext || tag) produced here, encrypted
// under a key derived from the service master seed with HKDF-SHA256.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from the master seed.
// The seed must be at least 32 bytes.
func NewSealer(masterSeed []byte) (*Sealer, error) {
	if len(masterSeed) < 32 {
		return nil, errors.New("master seed must be at least 32 bytes")
	}

	sealingKey := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterSeed, nil, []byte(sealingInfo))
	if _, err := io.ReadFull(kdf, sealingKey); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	block, err := aes.NewCipher(sealingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create sealing cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create sealing GCM: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts a user key for storage and encodes it as base64.
func (s *Sealer) Seal(key interfaces.UserKey) (string, error) {
	if len(key) != interfaces.UserKeySize {
		return "", fmt.Errorf("user key must be %d bytes, got %d", interfaces.UserKeySize, len(key))
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate sealing nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, key, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal decodes and decrypts a stored sealed key.
func (s *Sealer) Unseal(sealed string) (interfaces.UserKey, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sealed key: %w", err)
	}

	if len(raw) < s.aead.NonceSize() {
		return nil, errors.New("sealed key too short")
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	key, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal user key: %w", err)
	}

	return interfaces.UserKey(key), nil
}
