package cryptoutils

import (
	"bytes"
	"testing"

	"github.com/certvault/custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateUserKey()
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "empty", plaintext: []byte{}},
		{name: "short text", plaintext: []byte("hello custody")},
		{name: "binary", plaintext: []byte{0x00, 0xff, 0x10, 0x80, 0x7f}},
		{name: "large", plaintext: bytes.Repeat([]byte("certificate "), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Encrypt(key, tt.plaintext)
			require.NoError(t, err)
			assert.Len(t, result.IV, NonceSize)
			assert.Len(t, result.Tag, TagSize)

			plaintext, err := Decrypt(key, result.Ciphertext, result.IV, result.Tag, AlgorithmAESGCM)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, plaintext)
		})
	}
}

func TestEncryptNonceUniqueness(t *testing.T) {
	key, err := GenerateUserKey()
	require.NoError(t, err)

	const trials = 10000
	seen := make(map[string]struct{}, trials)
	plaintext := []byte("same plaintext every time")

	for i := 0; i < trials; i++ {
		result, err := Encrypt(key, plaintext)
		require.NoError(t, err)

		_, dup := seen[string(result.IV)]
		require.False(t, dup, "nonce collision after %d encryptions", i)
		seen[string(result.IV)] = struct{}{}
	}
}

func TestDecryptTamperDetection(t *testing.T) {
	key, err := GenerateUserKey()
	require.NoError(t, err)

	plaintext := []byte("issued by the university registrar")
	result, err := Encrypt(key, plaintext)
	require.NoError(t, err)

	t.Run("ciphertext bit flips", func(t *testing.T) {
		for i := range result.Ciphertext {
			tampered := append([]byte(nil), result.Ciphertext...)
			tampered[i] ^= 0x01

			_, err := Decrypt(key, tampered, result.IV, result.Tag, AlgorithmAESGCM)
			require.ErrorIs(t, err, interfaces.ErrIntegrityFailure, "flipped byte %d went undetected", i)
		}
	})

	t.Run("tag bit flips", func(t *testing.T) {
		for i := range result.Tag {
			tampered := append([]byte(nil), result.Tag...)
			tampered[i] ^= 0x01

			_, err := Decrypt(key, result.Ciphertext, result.IV, tampered, AlgorithmAESGCM)
			require.ErrorIs(t, err, interfaces.ErrIntegrityFailure, "flipped tag byte %d went undetected", i)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		otherKey, err := GenerateUserKey()
		require.NoError(t, err)

		_, err = Decrypt(otherKey, result.Ciphertext, result.IV, result.Tag, AlgorithmAESGCM)
		assert.ErrorIs(t, err, interfaces.ErrIntegrityFailure)
	})
}

func TestDecryptAlgorithmGate(t *testing.T) {
	key, err := GenerateUserKey()
	require.NoError(t, err)

	result, err := Encrypt(key, []byte("diploma"))
	require.NoError(t, err)

	tests := []struct {
		name      string
		algorithm string
		wantErr   error
	}{
		{name: "canonical", algorithm: "aes-256-gcm", wantErr: nil},
		{name: "upper case accepted", algorithm: "AES-256-GCM", wantErr: nil},
		{name: "unknown mode", algorithm: "aes-256-cbc", wantErr: interfaces.ErrUnsupportedAlgorithm},
		{name: "empty", algorithm: "", wantErr: interfaces.ErrUnsupportedAlgorithm},
		{name: "garbage", algorithm: "rot13", wantErr: interfaces.ErrUnsupportedAlgorithm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(key, result.Ciphertext, result.IV, result.Tag, tt.algorithm)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecryptRejectsBadParameterLengths(t *testing.T) {
	key, err := GenerateUserKey()
	require.NoError(t, err)

	result, err := Encrypt(key, []byte("transcript"))
	require.NoError(t, err)

	_, err = Decrypt(key, result.Ciphertext, result.IV[:8], result.Tag, AlgorithmAESGCM)
	assert.ErrorIs(t, err, interfaces.ErrIntegrityFailure)

	_, err = Decrypt(key, result.Ciphertext, result.IV, result.Tag[:8], AlgorithmAESGCM)
	assert.ErrorIs(t, err, interfaces.ErrIntegrityFailure)
}

func TestGenerateUserKey(t *testing.T) {
	k1, err := GenerateUserKey()
	require.NoError(t, err)
	k2, err := GenerateUserKey()
	require.NoError(t, err)

	assert.Len(t, k1, interfaces.UserKeySize)
	assert.NotEqual(t, k1, k2)
}
