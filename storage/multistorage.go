package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/certvault/custody-backend/interfaces"
)

// MultiBackend implements interfaces.StorageBackend over multiple backends
// with fallback. Reads return the first hit; writes go to every available
// backend and the first successful backend's content id is the one recorded
// in the registry.
type MultiBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiBackend creates a multi-storage backend with fallback.
func NewMultiBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiBackend{
		backends: backends,
		log:      logger,
	}
}

// Get tries each backend in order and returns the first successful fetch.
// A backend that does not hold the content does not stop the scan. If every
// backend misses, the result is ErrContentNotFound; otherwise the result
// wraps ErrBackendUnavailable.
func (m *MultiBackend) Get(ctx context.Context, id interfaces.ContentID) ([]byte, error) {
	start := time.Now()
	var errs []error
	allMissing := true

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("content_id", id.String()))
			allMissing = false
			continue
		}

		data, err := backend.Get(ctx, id)
		if err == nil {
			m.log.Info("Successfully fetched content",
				slog.String("backend_name", backend.Name()),
				slog.String("content_id", id.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if !errors.Is(err, interfaces.ErrContentNotFound) {
			allMissing = false
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("content_id", id.String()),
			"err", err)
	}

	m.log.Error("All backends failed to fetch content",
		slog.String("content_id", id.String()),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	if allMissing && len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s missing from all backends", interfaces.ErrContentNotFound, id)
	}

	return nil, fmt.Errorf("%w: all backends failed to fetch %s: %v", interfaces.ErrBackendUnavailable, id, errs)
}

// Put stores data to all available backends. The first backend to succeed
// determines the returned content id; ids reported by later backends may
// differ (a CID versus a digest) and are logged, not reconciled.
func (m *MultiBackend) Put(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	start := time.Now()
	var result interfaces.ContentID
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		id, err := backend.Put(ctx, data)
		if err == nil {
			if !success {
				result = id
				success = true
				m.log.Info("Successfully stored content",
					slog.String("backend_name", backend.Name()),
					slog.String("content_id", id.String()),
					slog.Duration("duration", time.Since(start)))
			} else if result != id {
				m.log.Debug("Backend assigned a different content id",
					slog.String("backend_name", backend.Name()),
					slog.String("primary_id", result.String()),
					slog.String("secondary_id", id.String()))
			}
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
		}
	}

	if !success {
		m.log.Error("All backends failed to store data",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("%w: all backends failed to store data: %v", interfaces.ErrBackendUnavailable, errs)
	}

	return result, nil
}

// Available checks if any backend is available.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the combined URI of all member backends.
func (m *MultiBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
