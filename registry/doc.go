// Package registry persists the relational side of the custody service:
// identities, document metadata, and pending verification requests.
//
// The PostgreSQL implementation is the production registry; repositories
// take a dbx.Querier so the same code runs standalone or inside a
// transaction. Schema changes are embedded goose migrations applied at
// startup. An in-memory implementation backs tests.
//
// Document rows carry the blob store content id and a copy of the AEAD
// parameters; the encrypted payload itself never enters the database.
package registry
