package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/certvault/custody-backend/interfaces"
)

// Factory creates storage backends from location URIs and assembles
// multi-backend configurations for redundant envelope storage.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a factory instance that can create storage backends.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{log: logger}
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - ipfs://   - IPFS node API or read-only gateway
//   - s3://     - Amazon S3 or compatible object storage
//   - file://   - Local filesystem storage
//   - memory:// - In-memory storage for tests and local development
//
// Returns ErrInvalidLocationURI if the URI is malformed or the scheme is
// unsupported.
func (sf *Factory) StorageBackendFor(locationURI string) (interfaces.StorageBackend, error) {
	loc, err := interfaces.ParseBackendLocation(locationURI)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "ipfs":
		return sf.createIPFSBackend(loc)
	case "s3":
		return sf.createS3Backend(loc)
	case "file":
		return sf.createFileBackend(loc)
	case "memory":
		return sf.createMemoryBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location
// URIs. URIs that fail to produce a backend are skipped with a warning.
// Returns an error if no valid backends could be created.
func (sf *Factory) CreateMultiBackend(locationURIs []string) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locationURIs))

	for _, uri := range locationURIs {
		backend, err := sf.StorageBackendFor(uri)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", uri))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return NewMultiBackend(backends, sf.log), nil
}

// createIPFSBackend creates an IPFS storage backend.
// URI format: ipfs://host:port/?gateway=true&timeout=30s
func (sf *Factory) createIPFSBackend(loc interfaces.BackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", loc.Raw))

	host, port := splitHostPort(loc.Host)
	if port == "" {
		port = "5001"
	}

	useGateway := loc.GetParamBool("gateway")

	timeoutStr := loc.GetParam("timeout")
	if timeoutStr == "" {
		timeoutStr = "30s"
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timeout %q: %v", interfaces.ErrInvalidLocationURI, timeoutStr, err)
	}

	return NewIPFSBackend(host, port, useGateway, timeout, sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix/?region=us-west-2&endpoint=custom.s3.com
func (sf *Factory) createS3Backend(loc interfaces.BackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", loc.Raw))

	bucketName := loc.Host
	if bucketName == "" {
		return nil, fmt.Errorf("%w: missing bucket name in %s", interfaces.ErrInvalidLocationURI, loc.Raw)
	}

	prefix := strings.TrimPrefix(loc.Path, "/")

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	endpoint := loc.GetParam("endpoint")

	var accessKey, secretKey string
	if loc.User != nil {
		accessKey = loc.User.Username()
		secretKey, _ = loc.User.Password()
		sf.log.Debug("Using embedded credentials for write access")
	} else {
		sf.log.Debug("No credentials provided, S3 bucket assumed to be public, write operations may fail")
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *Factory) createFileBackend(loc interfaces.BackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", loc.Raw))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, loc.Raw)
	}

	return NewFileBackend(path, sf.log)
}

// createMemoryBackend creates an in-memory storage backend.
// URI format: memory://name
func (sf *Factory) createMemoryBackend(loc interfaces.BackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating memory backend", slog.String("uri", loc.Raw))
	return NewMemoryBackend(loc.Host), nil
}

func splitHostPort(hostport string) (host, port string) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return hostport, ""
	}
	return hostport[:idx], hostport[idx+1:]
}
