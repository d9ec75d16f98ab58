package cli

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/mixsync/internal/metrics"
	"github.com/roach88/mixsync/internal/transport"
)

// RelayOptions holds flags for the relay command.
type RelayOptions struct {
	*RootOptions
	Listen      string
	Path        string
	MetricsAddr string
	Origins     []string
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the websocket relay peers connect to",
		Long: `Run the relay hub. Every message received from one peer is forwarded
to all other connected peers in arrival order.

Metrics are served on /metrics of the listen address unless
--metrics-addr moves them to a separate listener.

Browser clients are refused unless their Origin is given with
--allow-origin; peers that send no Origin header are always accepted.

Example:
  mixsync relay --listen :9000
  mixsync relay --listen :9000 --metrics-addr 127.0.0.1:9100
  mixsync relay --allow-origin https://studio.example`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", ":9000", "address to listen on")
	cmd.Flags().StringVar(&opts.Path, "path", "/sync", "websocket endpoint path")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve metrics on a separate address")
	cmd.Flags().StringSliceVar(&opts.Origins, "allow-origin", nil, "browser origin allowed to connect (repeatable)")

	return cmd
}

func runRelay(opts *RelayOptions, cmd *cobra.Command) error {
	logger := setupLogger(cmd.ErrOrStderr(), opts.Verbose)

	reg := prometheus.NewRegistry()
	hub := transport.NewHub(nil,
		transport.WithHubLogger(logger),
		transport.WithHubRecorder(metrics.NewPrometheus(reg)),
		transport.WithCheckOrigin(relayOriginCheck(opts.Origins)),
	)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle(opts.Path, hub)
	if opts.MetricsAddr == "" {
		mux.Handle("/metrics", metrics.Handler(reg))
	}

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err := serveMetrics(ctx, opts.MetricsAddr, reg); err != nil {
		ln.Close()
		return WrapExitError(ExitCommandError, "failed to serve metrics", err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	done := make(chan struct{})
	go func() {
		defer close(done)
		serveUntilDone(ctx, srv, ln)
	}()

	logger.Info("relay started", "addr", ln.Addr().String(), "path", opts.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "Relay listening on %s%s\n", ln.Addr(), opts.Path)

	<-ctx.Done()
	hub.Close()
	<-done
	logger.Info("relay stopped")
	return nil
}

// relayOriginCheck refuses browser origins unless listed. Requests without
// an Origin header come from peers and are accepted.
func relayOriginCheck(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(r *http.Request) bool { return r.Header.Get("Origin") == "" }
	}
	return transport.AllowOrigins(origins...)
}
