package interfaces

import (
	"context"
	"fmt"
	"net/url"
)

// ContentID is the opaque handle the blob store assigns to stored content.
// It is whatever the remote store returns (an IPFS CID, an object key) and
// must never be derived or compared structurally by callers: identical
// uploads are not guaranteed to yield identical ids.
type ContentID string

// String returns the raw handle.
func (id ContentID) String() string {
	return string(id)
}

// StorageBackend provides content-addressed storage for encrypted envelopes.
// Backends surface ErrContentNotFound and ErrBackendUnavailable so callers
// can tell absent content from an unreachable store.
type StorageBackend interface {
	// Put stores the envelope bytes and returns the handle assigned by the
	// backing store.
	Put(ctx context.Context, data []byte) (ContentID, error)

	// Get retrieves previously stored bytes by their handle.
	Get(ctx context.Context, id ContentID) ([]byte, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory interface {
	// StorageBackendFor creates a backend from a URI.
	// Supports ipfs://, s3://, file://, memory://
	StorageBackendFor(locationURI string) (StorageBackend, error)

	// CreateMultiBackend aggregates several backends behind one interface.
	// Fetches come from the first backend that has the content and stores go
	// to all of them.
	CreateMultiBackend(locationURIs []string) (StorageBackend, error)
}

// BackendLocation is a parsed storage backend URI.
type BackendLocation struct {
	Raw    string     // original URI
	Scheme string     // protocol
	Host   string     // hostname[:port]
	Path   string     // resource path
	Query  url.Values // query parameters
	User   *url.Userinfo
}

// ParseBackendLocation parses and validates a storage backend URI.
func ParseBackendLocation(uri string) (BackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return BackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "ipfs", "s3", "file", "memory":
	default:
		return BackendLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return BackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		User:   parsed.User,
	}, nil
}

// String returns the original URI.
func (loc BackendLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc BackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc BackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}
