package cryptoutils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)
	sealer, err := NewSealer(seed)
	require.NoError(t, err)

	key, err := GenerateUserKey()
	require.NoError(t, err)

	sealed, err := sealer.Seal(key)
	require.NoError(t, err)
	assert.NotContains(t, sealed, string(key))

	unsealed, err := sealer.Unseal(sealed)
	require.NoError(t, err)
	assert.Equal(t, key, unsealed)
}

func TestSealerSeedSeparation(t *testing.T) {
	sealerA, err := NewSealer(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	sealerB, err := NewSealer(bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)

	key, err := GenerateUserKey()
	require.NoError(t, err)

	sealed, err := sealerA.Seal(key)
	require.NoError(t, err)

	// A key sealed under one seed must not open under another.
	_, err = sealerB.Unseal(sealed)
	assert.Error(t, err)
}

func TestSealerRejectsShortSeed(t *testing.T) {
	_, err := NewSealer([]byte("too short"))
	assert.Error(t, err)
}

func TestUnsealRejectsGarbage(t *testing.T) {
	sealer, err := NewSealer(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	tests := []struct {
		name   string
		sealed string
	}{
		{name: "not base64", sealed: "%%%not-base64%%%"},
		{name: "too short", sealed: "AAAA"},
		{name: "empty", sealed: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sealer.Unseal(tt.sealed)
			assert.Error(t, err)
		})
	}
}
