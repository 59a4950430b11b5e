// Package keyvault provisions and serves the per-user symmetric keys that
// encrypt all of a user's documents.
//
// Key lifecycle is deliberately minimal: a key is generated lazily the first
// time an identity needs one, reused forever after, and never rotated. The
// only race that matters is concurrent first provisioning, which the backing
// KeyStore resolves with create-if-absent semantics: the second writer
// observes and reuses the first writer's key.
//
// Keys are sealed at rest (cryptoutils.Sealer) under a service master seed.
// The seed is supplied directly or reassembled from Shamir shares at boot.
// Two stores are provided: a postgres column on the identity row, and a
// HashiCorp Vault KV v2 mount.
package keyvault
