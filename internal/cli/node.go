package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/mixsync/internal/gate"
	"github.com/roach88/mixsync/internal/metrics"
	"github.com/roach88/mixsync/internal/propagate"
	"github.com/roach88/mixsync/internal/schema"
	"github.com/roach88/mixsync/internal/store"
)

// openStore opens the database at c.DB, validating fields against c.Schema
// when one is set.
func openStore(c *PeerConfig, logger *slog.Logger) (*store.Store, error) {
	opts := []store.Option{store.WithLogger(logger)}
	if c.Schema != "" {
		v, err := schema.Load(c.Schema)
		if err != nil {
			return nil, err
		}
		opts = append(opts, store.WithValidator(v))
	}
	return store.Open(c.DB, opts...)
}

// node is the propagation side of a peer: a gate, the metrics registry and
// the translator/applier pair writing to one store.
type node struct {
	gate       *gate.Switch
	registry   *prometheus.Registry
	translator *propagate.Translator
	dispatcher *propagate.Dispatcher
}

func newNode(st *store.Store, out propagate.Outbox, c *PeerConfig, logger *slog.Logger) *node {
	reg := prometheus.NewRegistry()
	opts := []propagate.Option{
		propagate.WithLogger(logger),
		propagate.WithRecorder(metrics.NewPrometheus(reg)),
		propagate.WithDumpSize(c.DumpSize),
	}
	sw := gate.NewSwitch(c.Sync)
	t := propagate.NewTranslator(sw, out, opts...)
	a := propagate.NewApplier(sw, st, st, opts...)
	return &node{
		gate:       sw,
		registry:   reg,
		translator: t,
		dispatcher: propagate.NewDispatcher(a, t, opts...),
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or when the
// command's own context ends (for tests).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// serveMetrics serves reg on addr until ctx is done. An empty addr is a
// no-op.
func serveMetrics(ctx context.Context, addr string, reg prometheus.Gatherer) error {
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go serveUntilDone(ctx, srv, ln)
	slog.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server stopped", "addr", ln.Addr().String(), "error", err)
	}
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
