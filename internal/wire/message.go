package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/roach88/mixsync/internal/change"
)

// MessageType is the stable wire tag of a message.
type MessageType int32

// Tag values are part of the wire format and must not change.
const (
	DataCreate MessageType = 1
	DataUpdate MessageType = 2
	DataRemove MessageType = 3
	DataRename MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case DataCreate:
		return "DATA_CREATE"
	case DataUpdate:
		return "DATA_UPDATE"
	case DataRemove:
		return "DATA_REMOVE"
	case DataRename:
		return "DATA_RENAME"
	default:
		return fmt.Sprintf("MessageType(%d)", int32(t))
	}
}

// ParseMessageType parses the String form of a message type.
func ParseMessageType(s string) (MessageType, error) {
	for _, t := range []MessageType{DataCreate, DataUpdate, DataRemove, DataRename} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown message type %q", s)
}

// Kind maps a message type to the change kind it carries, or 0.
func (t MessageType) Kind() change.Kind {
	switch t {
	case DataCreate:
		return change.KindCreation
	case DataUpdate:
		return change.KindUpdate
	case DataRemove:
		return change.KindRemoval
	case DataRename:
		return change.KindRename
	default:
		return 0
	}
}

// TypeFor returns the message type carrying kind.
func TypeFor(kind change.Kind) (MessageType, error) {
	switch kind {
	case change.KindCreation:
		return DataCreate, nil
	case change.KindUpdate:
		return DataUpdate, nil
	case change.KindRemoval:
		return DataRemove, nil
	case change.KindRename:
		return DataRename, nil
	default:
		return 0, fmt.Errorf("no message type for %s", kind)
	}
}

// Message is the envelope of one change on the transport. Reserved is unused,
// written as zero, and carried through unchanged.
type Message struct {
	Type     MessageType
	Payload  []byte
	Reserved int32
}

// New builds a message with a zero reserved field.
func New(t MessageType, payload []byte) Message {
	return Message{Type: t, Payload: payload}
}

// Link encoding field numbers.
const (
	fieldType     protowire.Number = 1
	fieldPayload  protowire.Number = 2
	fieldReserved protowire.Number = 3
)

// MarshalMessage encodes m in protobuf wire format for one transport frame:
// field 1 varint type, field 2 bytes payload, field 3 zigzag reserved.
func MarshalMessage(m Message) []byte {
	b := make([]byte, 0, len(m.Payload)+16)
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(m.Type)))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Payload)
	if m.Reserved != 0 {
		b = protowire.AppendTag(b, fieldReserved, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.Reserved)))
	}
	return b
}

// UnmarshalMessage decodes one transport frame. Unknown fields are skipped.
func UnmarshalMessage(b []byte) (Message, error) {
	var (
		m       Message
		sawType bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("unmarshal message: tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("unmarshal message: type: %w", protowire.ParseError(n))
			}
			m.Type = MessageType(int32(uint32(v)))
			sawType = true
			b = b[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, fmt.Errorf("unmarshal message: payload: %w", protowire.ParseError(n))
			}
			m.Payload = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldReserved && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("unmarshal message: reserved: %w", protowire.ParseError(n))
			}
			m.Reserved = int32(protowire.DecodeZigZag(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, fmt.Errorf("unmarshal message: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !sawType {
		return Message{}, fmt.Errorf("unmarshal message: missing type field")
	}
	if m.Payload == nil {
		m.Payload = []byte{}
	}
	return m, nil
}
