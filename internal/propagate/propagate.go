package propagate

import (
	"context"
	"log/slog"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/metrics"
	"github.com/roach88/mixsync/internal/wire"
)

// Outbox is the transport's outbound queue. Enqueue must not block on I/O.
type Outbox interface {
	Enqueue(msg wire.Message)
}

// Store is the data store the Applier writes to.
type Store interface {
	// CreateEntity creates an entity from a snapshot. If the store had to
	// choose another name, it returns the renames peers must apply.
	CreateEntity(ctx context.Context, s change.Snapshot) (change.Identity, change.RenameChangeset, error)

	// PatchEntity applies a delta to the entity it names.
	PatchEntity(ctx context.Context, d change.Delta) error

	// RemoveEntity removes the entity with the given uuid.
	RemoveEntity(ctx context.Context, uuid string) error

	// RenameEntity renames the entity with the given uuid.
	RenameEntity(ctx context.Context, uuid, newName string) error
}

// DirtyNotifier is told whenever an inbound change modified the store.
type DirtyNotifier interface {
	MarkDirty()
}

// DefaultDumpSize is how many payload bytes are logged from each end of a
// discarded message.
const DefaultDumpSize = 200

type config struct {
	logger   *slog.Logger
	recorder metrics.Recorder
	dumpSize int
}

// Option configures a Translator, Applier or Dispatcher.
type Option func(*config)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder. Default: metrics.Nop.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *config) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithDumpSize sets how many bytes of a discarded payload's head and tail
// are logged.
func WithDumpSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.dumpSize = n
		}
	}
}

func newConfig(opts []Option) config {
	c := config{
		logger:   slog.Default(),
		recorder: metrics.Nop{},
		dumpSize: DefaultDumpSize,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
