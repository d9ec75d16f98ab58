package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/codec"
	"github.com/roach88/mixsync/internal/value"
	"github.com/roach88/mixsync/internal/wire"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	Type  string
	Frame bool
}

// DecodeResult is what could be read from a payload.
type DecodeResult struct {
	Type     string `json:"type"`
	Bytes    int    `json:"bytes"`
	UUID     string `json:"uuid,omitempty"`
	Label    string `json:"label,omitempty"`
	NewName  string `json:"new_name,omitempty"`
	Digest   string `json:"digest,omitempty"`
	Record   any    `json:"record,omitempty"`
	Reserved int32  `json:"reserved,omitempty"`

	canonical string
}

// Text implements Texter.
func (r DecodeResult) Text(w io.Writer) {
	fmt.Fprintf(w, "type:     %s (%d bytes)\n", r.Type, r.Bytes)
	if r.UUID != "" {
		fmt.Fprintf(w, "uuid:     %s\n", r.UUID)
	}
	if r.Label != "" {
		fmt.Fprintf(w, "label:    %s\n", r.Label)
	}
	if r.NewName != "" {
		fmt.Fprintf(w, "new name: %s\n", r.NewName)
	}
	if r.Digest != "" {
		fmt.Fprintf(w, "digest:   %s\n", r.Digest)
	}
	if r.canonical != "" {
		fmt.Fprintf(w, "record:   %s\n", r.canonical)
	}
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a message payload for inspection",
		Long: `Decode a hex-encoded message payload, as logged when an inbound message
is discarded, and print what it holds. With --frame the input is a whole
link frame and the type is read from it.

Exit codes:
  0 - Payload decoded
  1 - Payload is malformed
  2 - Command error (bad hex, unknown type)

Example:
  mixsync decode --type update 2a000000...
  mixsync decode --frame 0802121a...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "message type: create, update, remove, rename (or DATA_*)")
	cmd.Flags().BoolVar(&opts.Frame, "frame", false, "input is a full link frame")

	return cmd
}

func runDecode(opts *DecodeOptions, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	raw, err := hex.DecodeString(strings.Join(strings.Fields(input), ""))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDecode, "input is not hex", err)
	}

	var msg wire.Message
	switch {
	case opts.Frame:
		msg, err = wire.UnmarshalMessage(raw)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeDecode, "malformed frame", err)
		}
	case opts.Type != "":
		typ, err := parseTypeName(opts.Type)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDecode, "unknown type", err)
		}
		msg = wire.New(typ, raw)
	default:
		return formatter.Fail(ExitCommandError, ErrCodeDecode, "one of --type and --frame is required", nil)
	}

	result, err := DecodeMessage(msg)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDecode, string(change.CodeOf(err)), err)
	}
	return formatter.Success(result)
}

// parseTypeName accepts "update" as well as "DATA_UPDATE".
func parseTypeName(s string) (wire.MessageType, error) {
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "DATA_") {
		name = "DATA_" + name
	}
	return wire.ParseMessageType(name)
}

// DecodeMessage decodes msg the way the applier would, without applying it.
func DecodeMessage(msg wire.Message) (DecodeResult, error) {
	result := DecodeResult{
		Type:     msg.Type.String(),
		Bytes:    len(msg.Payload),
		Reserved: msg.Reserved,
	}
	kind := msg.Type.Kind()

	switch msg.Type {
	case wire.DataCreate, wire.DataUpdate:
		fields, err := wire.DecodeStrings(msg.Payload, 1)
		if err != nil {
			return result, change.NewDecodingError(kind, err)
		}
		blob := []byte(fields[0])
		rec, err := codec.New().Decode(blob)
		if err != nil {
			return result, err
		}
		if rec.Kind() != kind {
			return result, change.NewDecodingError(kind, fmt.Errorf("payload holds a %s", rec.Kind()))
		}
		body, err := value.Unmarshal(blob)
		if err != nil {
			return result, change.NewDecodingError(kind, err)
		}
		result.UUID, result.Label = rec.ID(), rec.Label()
		result.Digest = codec.DigestBytes(kind, blob)
		result.Record = value.ToAny(body)
		result.canonical = string(blob)
	case wire.DataRemove:
		fields, err := wire.DecodeStrings(msg.Payload, 2)
		if err != nil {
			return result, change.NewDecodingError(kind, err)
		}
		result.UUID, result.Label = fields[0], fields[1]
	case wire.DataRename:
		fields, err := wire.DecodeStrings(msg.Payload, 3)
		if err != nil {
			return result, change.NewDecodingError(kind, err)
		}
		result.UUID, result.NewName, result.Label = fields[0], fields[1], fields[2]
	default:
		return result, change.NewDecodingError(0, fmt.Errorf("unknown message type %s", msg.Type))
	}
	return result, nil
}
