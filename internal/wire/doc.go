// Package wire frames primitive fields and carries the message envelope.
//
// Strings are framed as a uint32 little-endian byte length followed by
// UTF-8 bytes; several strings are simply concatenated. A Message is a
// stable type tag, an opaque payload and a reserved integer. On a transport
// link each Message is one protobuf-wire-format frame.
//
// Payload layouts:
//
//	DATA_CREATE, DATA_UPDATE  string(codec blob)
//	DATA_REMOVE               string(uuid) string(debug_label)
//	DATA_RENAME               string(uuid) string(new_name) string(debug_label)
package wire
