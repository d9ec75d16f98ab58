package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/store"
	"github.com/roach88/mixsync/internal/transport"
	"github.com/roach88/mixsync/internal/value"
	"github.com/roach88/mixsync/internal/wire"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	PeerConfig
	FlushTimeout time.Duration
}

// BatchFile is a YAML list of local mutations.
type BatchFile struct {
	Changes []BatchChange `yaml:"changes"`
}

// BatchChange is one local mutation. UUID names an existing entity; Ref
// names one created earlier in the same file with As.
type BatchChange struct {
	Op         string         `yaml:"op"` // create | update | rename | remove
	As         string         `yaml:"as,omitempty"`
	UUID       string         `yaml:"uuid,omitempty"`
	Ref        string         `yaml:"ref,omitempty"`
	Collection string         `yaml:"collection,omitempty"`
	Name       string         `yaml:"name,omitempty"`
	Fields     map[string]any `yaml:"fields,omitempty"`
	Set        map[string]any `yaml:"set,omitempty"`
	Unset      []string       `yaml:"unset,omitempty"`
}

// ApplyResult summarizes an apply run.
type ApplyResult struct {
	Creations int               `json:"creations"`
	Updates   int               `json:"updates"`
	Renames   int               `json:"renames"`
	Removals  int               `json:"removals"`
	Sent      int               `json:"sent"`
	Created   map[string]string `json:"created,omitempty"` // alias -> uuid
}

// Text implements Texter.
func (r ApplyResult) Text(w io.Writer) {
	fmt.Fprintf(w, "Applied %d creation(s), %d update(s), %d rename(s), %d removal(s)\n",
		r.Creations, r.Updates, r.Renames, r.Removals)
	fmt.Fprintf(w, "Sent %d message(s)\n", r.Sent)
	aliases := make([]string, 0, len(r.Created))
	for alias := range r.Created {
		aliases = append(aliases, alias)
	}
	slices.Sort(aliases)
	for _, alias := range aliases {
		fmt.Fprintf(w, "  %s = %s\n", alias, r.Created[alias])
	}
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <batch.yaml>",
		Short: "Apply a batch of local changes and send them to a relay",
		Long: `Apply a YAML batch of local mutations to the store and, when --url is
set, send the resulting changes to the relay.

Changes to the same entity are folded before sending: an update of an
entity created in the batch is merged into its creation, and removing it
cancels both. Messages are sent as removals, renames, creations, then
updates.

  changes:
    - {op: create, collection: objects, name: Cube, fields: {pass_index: 1}, as: cube}
    - {op: update, ref: cube, set: {hide_render: true}}
    - {op: rename, uuid: 0190..., name: Light}
    - {op: remove, uuid: 0190...}

Example:
  mixsync apply --db ./a.db changes.yaml
  mixsync apply --config peer.yaml changes.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	addPeerFlags(cmd, &opts.PeerConfig)
	cmd.Flags().DurationVar(&opts.FlushTimeout, "flush-timeout", 10*time.Second, "how long to wait for messages to be written")

	return cmd
}

// LoadBatch reads and validates a batch file.
func LoadBatch(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var batch BatchFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to parse batch %s: %w", path, err)
	}

	for i, c := range batch.Changes {
		if err := validateBatchChange(c); err != nil {
			return nil, fmt.Errorf("change %d (%s): %w", i+1, c.Op, err)
		}
	}
	return &batch, nil
}

func validateBatchChange(c BatchChange) error {
	switch c.Op {
	case "create":
		if c.Collection == "" || c.Name == "" {
			return fmt.Errorf("collection and name are required")
		}
		return nil
	case "update", "remove":
	case "rename":
		if c.Name == "" {
			return fmt.Errorf("name is required")
		}
	default:
		return fmt.Errorf("unknown op")
	}
	if (c.UUID == "") == (c.Ref == "") {
		return fmt.Errorf("exactly one of uuid and ref is required")
	}
	return nil
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if err := opts.resolve(cmd); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.DB == "" {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "database path is required (--db or db: in --config)", nil)
	}

	batch, err := LoadBatch(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBatch, "invalid batch", err)
	}

	logger := setupLogger(formatter.GetErrWriter(), opts.Verbose)
	st, err := openStore(&opts.PeerConfig, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer closeStore(st)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var pending change.Batch
	result := ApplyResult{Created: map[string]string{}}
	for i, c := range batch.Changes {
		if err := applyLocal(ctx, st, c, &pending, result.Created); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeBatch, fmt.Sprintf("change %d (%s) failed", i+1, c.Op), err)
		}
		formatter.VerboseLog("applied change %d: %s", i+1, c.Op)
	}
	result.Creations = len(pending.Creations)
	result.Updates = len(pending.Updates)
	result.Renames = len(pending.Renames)
	result.Removals = len(pending.Removals)

	if opts.URL != "" && pending.Len() > 0 {
		sent, err := sendBatch(ctx, opts, st, &pending, logger)
		if err != nil {
			// The edits are already committed; say so, since peers will only
			// see them once they are sent again.
			msg := fmt.Sprintf("failed to send changes: %d local change(s) were saved to %s but not delivered", pending.Len(), opts.DB)
			logger.Warn("local changes not delivered", "db", opts.DB, "changes", pending.Len(), "sent", sent, "error", err)
			return formatter.Fail(ExitFailure, ErrCodeLink, msg, err)
		}
		result.Sent = sent
	}

	return formatter.Success(result)
}

func applyLocal(ctx context.Context, st *store.Store, c BatchChange, b *change.Batch, aliases map[string]string) error {
	id := c.UUID
	if c.Ref != "" {
		var ok bool
		if id, ok = aliases[c.Ref]; !ok {
			return fmt.Errorf("unknown ref %q", c.Ref)
		}
	}

	switch c.Op {
	case "create":
		fields, err := value.ObjectFromMap(c.Fields)
		if err != nil {
			return fmt.Errorf("fields: %w", err)
		}
		snap, err := st.Create(ctx, c.Collection, c.Name, fields)
		if err != nil {
			return err
		}
		if c.As != "" {
			aliases[c.As] = snap.UUID
		}
		b.Create(snap)
	case "update":
		set, err := value.ObjectFromMap(c.Set)
		if err != nil {
			return fmt.Errorf("set: %w", err)
		}
		d, err := st.Update(ctx, id, set, c.Unset)
		if err != nil {
			return err
		}
		return b.Update(d)
	case "rename":
		r, err := st.Rename(ctx, id, c.Name)
		if err != nil {
			return err
		}
		b.Rename(r)
	case "remove":
		r, err := st.Remove(ctx, id)
		if err != nil {
			return err
		}
		b.Remove(r)
	}
	return nil
}

// sendBatch connects to the relay, sends b and waits until every message
// has been written. Messages other peers send meanwhile are applied.
func sendBatch(ctx context.Context, opts *ApplyOptions, st *store.Store, b *change.Batch, logger *slog.Logger) (int, error) {
	link, err := transport.Dial(ctx, opts.URL, nil, logger)
	if err != nil {
		return 0, err
	}
	n := newNode(st, link, &opts.PeerConfig, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx, func(ctx context.Context, msg wire.Message) {
			_ = n.dispatcher.Dispatch(ctx, msg)
		})
	}()

	sent := n.translator.SendBatch(b)

	flushCtx, stop := context.WithTimeout(ctx, opts.FlushTimeout)
	err = link.Flush(flushCtx)
	stop()
	cancel()
	if runErr := <-done; err == nil {
		err = runErr
	}
	if err != nil {
		return sent, err
	}
	logger.Info("batch sent", "url", opts.URL, "messages", sent)
	return sent, nil
}
