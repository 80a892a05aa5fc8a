// Package protocol owns the wire contract shared by the framing layers.
//
// Ownership boundary:
// - error codes carried by error frames
// - byte buffer and device address primitives (buffer, address)
// - frame codec (frame)
// - command payload primitives (tlv, schema, command)
//
// Every multi-byte integer on the wire is big-endian.
package protocol
