package keyvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/certvault/custody-backend/cryptoutils"
	"github.com/certvault/custody-backend/interfaces"
)

// Vault implements interfaces.KeyVault over a pluggable KeyStore, sealing
// keys before they reach the store.
type Vault struct {
	store  interfaces.KeyStore
	sealer *cryptoutils.Sealer
	log    *slog.Logger
}

// New creates a key vault over the given store and sealer.
func New(store interfaces.KeyStore, sealer *cryptoutils.Sealer, log *slog.Logger) *Vault {
	return &Vault{
		store:  store,
		sealer: sealer,
		log:    log,
	}
}

// GetOrCreateKey returns the identity's key, provisioning one on first use.
// Provisioning is create-if-absent, else read existing: when two callers
// race, both end up with whichever key the store kept, never two keys
// shadowing each other.
func (v *Vault) GetOrCreateKey(ctx context.Context, identityID string) (interfaces.UserKey, error) {
	key, err := v.GetKey(ctx, identityID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, interfaces.ErrKeyMissing) {
		return nil, err
	}

	fresh, err := cryptoutils.GenerateUserKey()
	if err != nil {
		return nil, err
	}

	sealed, err := v.sealer.Seal(fresh)
	if err != nil {
		return nil, err
	}

	if err := v.store.PutIfAbsent(ctx, identityID, sealed); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStorageFailure, err)
	}

	// Re-read rather than returning fresh: if a concurrent caller won the
	// create race, the store kept their key and ours must be discarded.
	key, err = v.GetKey(ctx, identityID)
	if err != nil {
		return nil, err
	}

	v.log.Debug("Provisioned user key", slog.String("identity_id", identityID))
	return key, nil
}

// GetKey returns the identity's existing key. Absence is ErrKeyMissing.
func (v *Vault) GetKey(ctx context.Context, identityID string) (interfaces.UserKey, error) {
	sealed, err := v.store.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStorageFailure, err)
	}

	key, err := v.sealer.Unseal(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal key for identity %s: %w", identityID, err)
	}

	return key, nil
}
