package propagate

import (
	"context"
	"log/slog"

	"github.com/roach88/mixsync/internal/wire"
)

// Dispatcher routes inbound messages to an Applier and sends any renames a
// creation produced back out through a Translator.
type Dispatcher struct {
	applier    *Applier
	translator *Translator
	log        *slog.Logger
}

// NewDispatcher returns a Dispatcher. translator may be nil, in which case
// renames produced by inbound creations are dropped with a warning.
func NewDispatcher(a *Applier, t *Translator, opts ...Option) *Dispatcher {
	cfg := newConfig(opts)
	return &Dispatcher{applier: a, translator: t, log: cfg.logger}
}

// Dispatch applies msg. The returned error is informational; it has already
// been logged by the Applier.
func (d *Dispatcher) Dispatch(ctx context.Context, msg wire.Message) error {
	secondary, err := d.applier.Apply(ctx, msg)
	if len(secondary) == 0 {
		return err
	}
	if d.translator == nil {
		d.log.Warn("dropping renames from inbound creation", "count", len(secondary))
		return err
	}
	d.translator.SendRenames(secondary)
	return err
}

// Run dispatches messages from in until it is closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, in <-chan wire.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			_ = d.Dispatch(ctx, msg)
		}
	}
}
