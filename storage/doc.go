// Package storage implements the blob store client: content-addressed
// backends that hold encrypted envelopes off-box.
//
// Backends are created from location URIs by the factory:
//
//   - ipfs://host:port/?gateway=true&timeout=30s (IPFS node API, or an
//     HTTP gateway, read-only, when gateway=true)
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix/?region=..&endpoint=..
//   - file:///var/lib/custody/blobs
//   - memory:// (in-process, for tests)
//
// Several backends can be aggregated behind MultiBackend: stores go to all
// available backends, fetches return the first hit. Content ids are opaque
// handles assigned by each backend; this package never promises the same
// bytes yield the same id twice.
package storage
