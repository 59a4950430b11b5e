package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/certvault/custody-backend/interfaces"
	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSBackend stores envelopes in the InterPlanetary File System. It talks
// to a node's API for reads and writes, or to an HTTP gateway for reads
// only (gateways cannot pin new content).
type IPFSBackend struct {
	shell       *shell.Shell
	gateway     *http.Client
	gatewayURL  string
	host        string
	port        string
	useGateway  bool
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates an IPFS storage backend connected to the specified
// host and port. When useGateway is true, fetches go through the IPFS HTTP
// gateway instead of the node API and stores are rejected.
func NewIPFSBackend(host, port string, useGateway bool, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	var uri string
	if useGateway {
		uri = fmt.Sprintf("ipfs://%s/?gateway=true&timeout=%s", apiURL, timeout)
	} else {
		uri = fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout)
	}

	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)

	return &IPFSBackend{
		shell:       sh,
		gateway:     &http.Client{Timeout: timeout},
		gatewayURL:  fmt.Sprintf("http://%s/ipfs", apiURL),
		host:        host,
		port:        port,
		useGateway:  useGateway,
		log:         log,
		locationURI: uri,
	}, nil
}

// Put adds envelope bytes to IPFS and returns the CID the node assigned.
func (b *IPFSBackend) Put(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	if b.useGateway {
		return "", fmt.Errorf("%w: gateway backends are read-only", interfaces.ErrBackendUnavailable)
	}

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return "", interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: failed to add data to IPFS: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored envelope in IPFS",
		slog.String("cid", cid),
		slog.Int("size", len(data)))

	return interfaces.ContentID(cid), nil
}

// Get retrieves envelope bytes from IPFS by CID. Returns ErrContentNotFound
// when the content does not exist or is not resolvable, and
// ErrBackendUnavailable when the node or gateway cannot be reached.
func (b *IPFSBackend) Get(ctx context.Context, id interfaces.ContentID) ([]byte, error) {
	start := time.Now()

	if b.useGateway {
		return b.getViaGateway(ctx, id, start)
	}

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.Cat(fmt.Sprintf("/ipfs/%s", id))
	if err != nil {
		if isIPFSNotFound(err) {
			b.log.Debug("Content not found in IPFS",
				slog.String("cid", id.String()),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}

		b.log.Error("Failed to fetch data from IPFS",
			slog.String("cid", id.String()),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read data from IPFS: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Fetched envelope from IPFS",
		slog.String("cid", id.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// getViaGateway fetches content through the IPFS HTTP gateway.
func (b *IPFSBackend) getViaGateway(ctx context.Context, id interfaces.ContentID, start time.Time) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", b.gatewayURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.gateway.Do(req)
	if err != nil {
		b.log.Error("IPFS gateway request failed",
			slog.String("cid", id.String()),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, interfaces.ErrContentNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: gateway returned %s", interfaces.ErrBackendUnavailable, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read gateway response: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Fetched envelope via IPFS gateway",
		slog.String("cid", id.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Available checks if the IPFS node is accessible. Gateway backends are
// assumed available; a failed fetch reports the real state.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	if b.useGateway {
		return true
	}
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func isIPFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no link named") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "invalid path")
}
