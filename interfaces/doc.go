// Package interfaces defines the shared types and contracts of the
// certificate custody service: identities and their roles, document and
// verification-request records, the envelope wire format stored in the blob
// store, the storage backend and key vault abstractions, the repository
// interfaces backing the document registry, and the error taxonomy every
// operation reports against.
//
// Packages in this module depend on interfaces and on each other only
// through the contracts declared here, so implementations (postgres vs.
// in-memory registry, IPFS vs. S3 blob storage, postgres vs. Vault key
// store) stay swappable.
package interfaces
