package keyvault

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/certvault/custody-backend/interfaces"
	"github.com/hashicorp/vault/api"
)

// VaultStore keeps sealed user keys in a HashiCorp Vault KV v2 mount, one
// secret per identity.
type VaultStore struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultStore creates a key store backed by Vault KV v2.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault client token
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path prefix within the mount (e.g. "custody/user-keys")
//   - log: structured logger
func NewVaultStore(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultStore{
		client:    client,
		mountPath: strings.TrimSuffix(mountPath, "/"),
		dataPath:  strings.Trim(dataPath, "/"),
		log:       log,
	}, nil
}

// Get returns the identity's sealed key from Vault.
func (s *VaultStore) Get(ctx context.Context, identityID string) (string, error) {
	path := s.keyPath(identityID)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("Failed to read key from Vault",
			slog.String("path", path),
			"err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		return "", interfaces.ErrKeyMissing
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid data format in Vault response")
	}

	sealed, ok := data["sealed_key"].(string)
	if !ok || sealed == "" {
		return "", interfaces.ErrKeyMissing
	}

	return sealed, nil
}

// PutIfAbsent writes the sealed key with check-and-set version 0, which
// Vault rejects if the secret already exists. A CAS conflict means a
// concurrent writer won; callers re-read and adopt that key.
func (s *VaultStore) PutIfAbsent(ctx context.Context, identityID string, sealed string) error {
	path := s.keyPath(identityID)

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"sealed_key": sealed,
		},
		"options": map[string]interface{}{
			"cas": 0,
		},
	}

	_, err := s.client.Logical().WriteWithContext(ctx, path, payload)
	if err != nil {
		if strings.Contains(err.Error(), "check-and-set") {
			s.log.Debug("Lost key provisioning race, keeping existing key",
				slog.String("identity_id", identityID))
			return nil
		}
		s.log.Error("Failed to write key to Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	return nil
}

// Available checks whether Vault is initialized and unsealed.
func (s *VaultStore) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := s.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		s.log.Debug("Vault health check failed", "err", err)
		return false
	}

	return health.Initialized && !health.Sealed
}

// keyPath builds the KV v2 data path for an identity's key.
func (s *VaultStore) keyPath(identityID string) string {
	return fmt.Sprintf("%s/data/%s/%s", s.mountPath, s.dataPath, identityID)
}
