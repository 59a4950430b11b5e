package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/certvault/custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFactory_StorageBackendFor(t *testing.T) {
	factory := NewFactory(testLogger())

	tests := []struct {
		name     string
		uri      string
		wantName string
		wantErr  bool
	}{
		{
			name:     "memory backend",
			uri:      "memory://envelopes",
			wantName: "envelopes",
		},
		{
			name:     "file backend",
			uri:      "file://" + t.TempDir(),
			wantName: "",
		},
		{
			name:     "ipfs backend",
			uri:      "ipfs://127.0.0.1:5001/?timeout=5s",
			wantName: "ipfs-127.0.0.1-5001",
		},
		{
			name:     "ipfs gateway backend",
			uri:      "ipfs://gateway.example.com:8080/?gateway=true",
			wantName: "ipfs-gateway.example.com-8080",
		},
		{
			name:     "s3 backend",
			uri:      "s3://my-bucket/envelopes/?region=eu-west-1",
			wantName: "s3-my-bucket",
		},
		{
			name:    "unsupported scheme",
			uri:     "gopher://example.com",
			wantErr: true,
		},
		{
			name:    "invalid ipfs timeout",
			uri:     "ipfs://127.0.0.1:5001/?timeout=banana",
			wantErr: true,
		},
		{
			name:    "s3 without bucket",
			uri:     "s3:///envelopes",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := factory.StorageBackendFor(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, backend)
			if tt.wantName != "" {
				assert.Equal(t, tt.wantName, backend.Name())
			}
		})
	}
}

func TestFactory_CreateMultiBackend(t *testing.T) {
	factory := NewFactory(testLogger())

	t.Run("skips invalid URIs", func(t *testing.T) {
		multi, err := factory.CreateMultiBackend([]string{
			"gopher://bad",
			"memory://a",
			"memory://b",
		})
		require.NoError(t, err)
		assert.Equal(t, "multi-storage", multi.Name())
	})

	t.Run("fails when nothing is valid", func(t *testing.T) {
		_, err := factory.CreateMultiBackend([]string{"gopher://bad"})
		require.Error(t, err)
	})
}

func TestMemoryBackend_RoundTrip(t *testing.T) {
	backend := NewMemoryBackend("test")
	ctx := context.Background()

	data := []byte(`{"encryptedData":"c2VjcmV0"}`)
	id, err := backend.Put(ctx, data)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := backend.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Mutating the returned slice must not affect the stored copy.
	got[0] = 'X'
	again, err := backend.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	_, err = backend.Get(ctx, interfaces.ContentID("missing"))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestFileBackend_RoundTrip(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte(`{"encryptedData":"c2VjcmV0","iv":"aXY="}`)
	id, err := backend.Put(ctx, data)
	require.NoError(t, err)

	got, err := backend.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = backend.Get(ctx, interfaces.ContentID("0000000000000000"))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = backend.Get(ctx, interfaces.ContentID("../escape"))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	assert.True(t, backend.Available(ctx))
}
