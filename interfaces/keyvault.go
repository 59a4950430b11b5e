package interfaces

import "context"

// UserKeySize is the length in bytes of every user key (AES-256).
const UserKeySize = 32

// UserKey is the single long-lived symmetric key scoped to one identity. It
// encrypts and decrypts every document that identity owns and is never
// rotated once provisioned.
type UserKey []byte

// KeyVault provisions and serves per-identity user keys.
type KeyVault interface {
	// GetOrCreateKey returns the identity's key, generating and persisting
	// one if none exists yet. Provisioning is idempotent: concurrent first
	// calls for the same identity observe the same key.
	GetOrCreateKey(ctx context.Context, identityID string) (UserKey, error)

	// GetKey returns the identity's key. The key must already exist; absence
	// is reported as ErrKeyMissing, an invariant violation on decrypt paths.
	GetKey(ctx context.Context, identityID string) (UserKey, error)
}

// KeyStore is the persistence boundary under a KeyVault. Values are sealed
// key strings, opaque to the store.
type KeyStore interface {
	// Get returns the stored sealed key for an identity.
	// Returns ErrKeyMissing when the identity holds no key.
	Get(ctx context.Context, identityID string) (string, error)

	// PutIfAbsent stores the sealed key only when the identity holds none.
	// Losing a concurrent race is not an error: the store keeps the first
	// writer's value, and callers re-read after writing.
	PutIfAbsent(ctx context.Context, identityID string, sealed string) error
}
