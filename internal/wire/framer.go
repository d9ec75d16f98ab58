package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// lengthSize is the width of the little-endian byte-length prefix.
const lengthSize = 4

// EncodeString frames s as a uint32 little-endian byte length followed by
// its UTF-8 bytes.
func EncodeString(s string) []byte {
	return AppendString(make([]byte, 0, lengthSize+len(s)), s)
}

// AppendString appends the framed form of s to b.
func AppendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// DecodeString reads one framed string from b at offset and returns it with
// the offset of the next field.
func DecodeString(b []byte, offset int) (string, int, error) {
	if offset < 0 || offset > len(b) {
		return "", offset, fmt.Errorf("decode string: offset %d out of range (len %d)", offset, len(b))
	}
	if len(b)-offset < lengthSize {
		return "", offset, fmt.Errorf("decode string: need %d length bytes at offset %d, have %d",
			lengthSize, offset, len(b)-offset)
	}
	n := int(binary.LittleEndian.Uint32(b[offset:]))
	start := offset + lengthSize
	if n > len(b)-start {
		return "", offset, fmt.Errorf("decode string: length %d at offset %d exceeds remaining %d bytes",
			n, offset, len(b)-start)
	}
	s := string(b[start : start+n])
	if !utf8.ValidString(s) {
		return "", offset, fmt.Errorf("decode string: invalid UTF-8 at offset %d", offset)
	}
	return s, start + n, nil
}

// EncodeStrings concatenates the framed form of each string.
func EncodeStrings(ss ...string) []byte {
	size := 0
	for _, s := range ss {
		size += lengthSize + len(s)
	}
	b := make([]byte, 0, size)
	for _, s := range ss {
		b = AppendString(b, s)
	}
	return b
}

// DecodeStrings reads exactly n framed strings from b. Trailing bytes are an
// error so that a payload of the wrong shape is not silently accepted.
func DecodeStrings(b []byte, n int) ([]string, error) {
	out := make([]string, 0, n)
	offset := 0
	for i := 0; i < n; i++ {
		s, next, err := DecodeString(b, offset)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out = append(out, s)
		offset = next
	}
	if offset != len(b) {
		return nil, fmt.Errorf("%d trailing bytes after %d fields", len(b)-offset, n)
	}
	return out, nil
}
