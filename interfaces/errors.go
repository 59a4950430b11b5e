package interfaces

import "errors"

// Operation error taxonomy. Every pipeline and workflow operation fails with
// exactly one of these (possibly wrapped), so callers can render "not
// yours", "already pending" and "content corrupted" distinctly.
var (
	// ErrUnauthenticated means no usable caller identity was presented.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the caller is authenticated but not entitled to
	// this document or role-gated action.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the referenced identity, document or verification
	// request does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a pending verification request already exists for
	// the same document, student and institution.
	ErrConflict = errors.New("duplicate pending request")

	// ErrIntegrityFailure means AEAD tag verification failed: the envelope
	// was tampered with or corrupted. Deliberately distinct from ErrNotFound.
	ErrIntegrityFailure = errors.New("integrity check failed")

	// ErrUnsupportedAlgorithm means the envelope names a cipher this service
	// does not implement. A hard decrypt failure, never a fallback.
	ErrUnsupportedAlgorithm = errors.New("unsupported encryption algorithm")

	// ErrUpstreamUnavailable means the blob store could not be reached or
	// timed out.
	ErrUpstreamUnavailable = errors.New("blob store unavailable")

	// ErrStorageFailure means the persistence layer failed.
	ErrStorageFailure = errors.New("storage failure")

	// ErrKeyMissing means an identity that must already own a key does not.
	// On the decrypt path this is an invariant violation, not a NotFound.
	ErrKeyMissing = errors.New("user key missing")

	// ErrInvalidRequest means the caller's input failed validation before any
	// side effect took place.
	ErrInvalidRequest = errors.New("invalid request")
)

// Storage boundary errors, surfaced by StorageBackend implementations and
// mapped onto the taxonomy above by the pipeline.
var (
	// ErrContentNotFound is returned when the requested content id cannot be
	// resolved by the storage backend (absent or unpinned content).
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible: network failure, timeout or service outage.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrMalformedEnvelope is returned when fetched content does not decode
	// as an envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or names an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)
