package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mixsync/internal/transport"
	"github.com/roach88/mixsync/internal/wire"
)

// PeerOptions holds flags for the peer command.
type PeerOptions struct {
	*RootOptions
	PeerConfig
}

// NewPeerCommand creates the peer command.
func NewPeerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PeerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Connect a store to a relay and apply inbound changes",
		Long: `Connect to a relay and apply every change other peers send to the
local store until interrupted.

Creations that collide with a local name are stored under the next free
"Name.NNN" and the rename is sent back so the other peers follow.
With --sync=false inbound messages are read but ignored.

Settings can come from a YAML file; flags given explicitly override it:

  db: ./a.db
  url: ws://localhost:9000/sync
  schema: ./schema.cue
  sync: true
  metrics_addr: 127.0.0.1:9101
  dump_size: 200

Example:
  mixsync peer --db ./a.db --url ws://localhost:9000/sync
  mixsync peer --config peer.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeer(opts, cmd)
		},
	}

	addPeerFlags(cmd, &opts.PeerConfig)

	return cmd
}

func runPeer(opts *PeerOptions, cmd *cobra.Command) error {
	if err := opts.resolve(cmd); err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DB == "" {
		return NewExitError(ExitCommandError, "database path is required (--db or db: in --config)")
	}
	if opts.URL == "" {
		return NewExitError(ExitCommandError, "relay URL is required (--url or url: in --config)")
	}

	logger := setupLogger(cmd.ErrOrStderr(), opts.Verbose)

	st, err := openStore(&opts.PeerConfig, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	link, err := transport.Dial(ctx, opts.URL, nil, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to connect", err)
	}

	n := newNode(st, link, &opts.PeerConfig, logger)
	if err := serveMetrics(ctx, opts.MetricsAddr, n.registry); err != nil {
		link.Close()
		return WrapExitError(ExitCommandError, "failed to serve metrics", err)
	}

	st.OnDirty(func() {
		logger.Debug("store modified by inbound change")
	})

	logger.Info("peer started", "db", opts.DB, "url", opts.URL, "sync", opts.Sync)
	fmt.Fprintf(cmd.OutOrStdout(), "Peer connected to %s. Press Ctrl-C to stop.\n", opts.URL)

	// The read loop only queues; store writes happen on the dispatcher so
	// a slow apply never stalls keepalives.
	inbound := transport.NewQueue()
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		// Failures are logged and counted by the applier.
		_ = n.dispatcher.Run(ctx, inbound.Chan(ctx))
	}()

	err = link.Run(ctx, func(_ context.Context, msg wire.Message) {
		inbound.Enqueue(msg)
	})
	inbound.Close()
	<-dispatched
	if err != nil {
		return WrapExitError(ExitFailure, "link error", err)
	}

	logger.Info("peer stopped")
	return nil
}
