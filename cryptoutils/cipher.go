package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/certvault/custody-backend/interfaces"
)

const (
	// AlgorithmAESGCM is the only algorithm identifier this service
	// produces or accepts.
	AlgorithmAESGCM = "aes-256-gcm"

	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// EncryptionResult carries the three outputs of one encryption call. The
// tag is split from the ciphertext because registry records and envelopes
// store them separately.
type EncryptionResult struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// GenerateUserKey draws a fresh 256-bit user key from crypto/rand.
func GenerateUserKey() (interfaces.UserKey, error) {
	key := make([]byte, interfaces.UserKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate user key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under the user key with AES-256-GCM and a fresh
// random nonce.
func Encrypt(key interfaces.UserKey, plaintext []byte) (*EncryptionResult, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)

	// Seal appends the tag to the ciphertext; peel it off.
	split := len(sealed) - TagSize
	return &EncryptionResult{
		Ciphertext: sealed[:split],
		IV:         iv,
		Tag:        sealed[split:],
	}, nil
}

// Decrypt verifies the tag and recovers plaintext. It fails closed: on tag
// mismatch it returns ErrIntegrityFailure and no data. The algorithm
// identifier travels with the ciphertext; anything but AES-256-GCM is
// rejected with ErrUnsupportedAlgorithm.
func Decrypt(key interfaces.UserKey, ciphertext, iv, tag []byte, algorithm string) ([]byte, error) {
	if !strings.EqualFold(algorithm, AlgorithmAESGCM) {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrUnsupportedAlgorithm, algorithm)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(iv) != NonceSize {
		return nil, fmt.Errorf("%w: IV must be %d bytes, got %d", interfaces.ErrIntegrityFailure, NonceSize, len(iv))
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", interfaces.ErrIntegrityFailure, TagSize, len(tag))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrIntegrityFailure, err)
	}

	return plaintext, nil
}

func newGCM(key interfaces.UserKey) (cipher.AEAD, error) {
	if len(key) != interfaces.UserKeySize {
		return nil, fmt.Errorf("user key must be %d bytes, got %d", interfaces.UserKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}
