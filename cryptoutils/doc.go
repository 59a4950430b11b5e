// Package cryptoutils implements the authenticated encryption used for
// document custody: AES-256-GCM envelope encryption under per-user keys,
// user key generation, and sealing of user keys at rest under a service
// master seed.
//
// Every encryption call draws a fresh 12-byte nonce from crypto/rand. Nonce
// reuse under the same key breaks GCM confidentiality outright, so nothing
// in this package accepts a caller-supplied nonce for encryption.
package cryptoutils
