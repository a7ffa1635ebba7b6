package main

import (
	"log"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds counters about what modules do.
type Metrics struct {
	Registry *prometheus.Registry

	// Messages blocked because the sender has an unsolved problem.
	GateBlocked prometheus.Counter

	// SOLVE attempts by result: correct, wrong, solved, exempt.
	SolveAttempts *prometheus.CounterVec

	// Group ban checks by result: match, no_match.
	BanChecks *prometheus.CounterVec

	// METADATA changes by key.
	MetadataUpdates *prometheus.CounterVec

	server *http.Server
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		GateBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "catbox_gate_blocked_total",
			Help: "Messages blocked until the sender solves their problem.",
		}),
		SolveAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catbox_solve_attempts_total",
			Help: "SOLVE attempts by result.",
		}, []string{"result"}),
		BanChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catbox_ban_checks_total",
			Help: "Group ban checks by result.",
		}, []string{"result"}),
		MetadataUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catbox_metadata_updates_total",
			Help: "User metadata changes by key.",
		}, []string{"key"}),
	}
}

// serve starts serving /metrics on the address.
func (m *Metrics) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "unable to listen for metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{Handler: mux}

	go func() {
		if err := m.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server: %s", err)
		}
	}()

	log.Printf("Serving metrics on %s", ln.Addr())
	return nil
}

func (m *Metrics) shutdown() {
	if m.server == nil {
		return
	}
	if err := m.server.Close(); err != nil {
		log.Printf("Problem closing metrics server: %s", err)
	}
}
