// Command node runs one replica of the file-integrity ledger: it loads
// configuration from the environment, wires attestation, signing,
// agreement, transport, and the commit sink, and serves until
// interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sfim/ledger/pkg/config"
	"github.com/sfim/ledger/pkg/node"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sup, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	if cfg.MetricsEnabled {
		go serveMetrics(cfg.Port + 1000)
	}

	<-ctx.Done()
	return sup.Stop()
}

// serveMetrics hosts the Prometheus /metrics endpoint on a separate port
// from the peer listener, per §4.9's ambient instrumentation note.
func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
