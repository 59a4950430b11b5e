// Package metrics exposes Prometheus counters for the custody operations
// and a dedicated metrics HTTP server, kept off the API listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DocumentsIssued counts successfully issued documents.
	DocumentsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "documents_issued_total",
		Help: "Number of documents issued and registered",
	})

	// DocumentsDecrypted counts successful single-document decrypts.
	DocumentsDecrypted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "documents_decrypted_total",
		Help: "Number of successful document decrypts",
	})

	// DecryptFailures counts failed decrypts by failure class.
	DecryptFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decrypt_failures_total",
		Help: "Number of failed document decrypts by reason",
	}, []string{"reason"})

	// VerificationRequests counts verification request transitions.
	VerificationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_requests_total",
		Help: "Number of verification request transitions by outcome",
	}, []string{"outcome"})
)

// MetricsServer serves the Prometheus registry on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server bound to the given address.
func New(name, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving metrics until Shutdown or failure.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
