// Package command maps command tags to the factories that serve them.
//
// A command payload is the 2-byte big-endian tag followed by TLV fields.
package command

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/syndesi/internal/protocol/buffer"
	"github.com/danmuck/syndesi/internal/protocol/schema"
	"github.com/danmuck/syndesi/internal/protocol/tlv"
)

// TagSize is the wire size of the leading command tag.
const TagSize = 2

var ErrShortPayload = errors.New("command: payload shorter than tag")

// Payload is one decoded command request or reply.
type Payload struct {
	Tag    schema.Tag
	Fields []tlv.Field
}

func New(tag schema.Tag, fields ...tlv.Field) *Payload {
	return &Payload{Tag: tag, Fields: fields}
}

// Len is the encoded size.
func (p *Payload) Len() int {
	return TagSize + tlv.FieldsSize(p.Fields)
}

// Build writes the payload into dst and returns the bytes written.
func (p *Payload) Build(dst []byte) (int, error) {
	if len(dst) < p.Len() {
		return 0, fmt.Errorf("%w: command %s needs %d bytes, have %d", buffer.ErrOutOfRange, p.Tag, p.Len(), len(dst))
	}
	binary.BigEndian.PutUint16(dst, uint16(p.Tag))
	out := tlv.AppendFields(dst[TagSize:TagSize], p.Fields)
	return TagSize + len(out), nil
}

// Bytes is Build into a freshly sized slice. Build fails only on a short
// destination, which an exactly sized slice cannot be.
func (p *Payload) Bytes() []byte {
	out := make([]byte, p.Len())
	n, _ := p.Build(out)
	return out[:n]
}

// Field returns the first field with id.
func (p *Payload) Field(id uint16) (tlv.Field, bool) {
	return tlv.GetField(p.Fields, id)
}

// Message validates the fields for dir and decodes them into typed values.
func (p *Payload) Message(dir schema.Direction) (*schema.Message, error) {
	return schema.Decode(p.Tag, dir, p.Fields)
}

func (p *Payload) String() string {
	return fmt.Sprintf("%s{fields=%d}", p.Tag, len(p.Fields))
}

// PeekTag reads the tag without decoding the fields.
func PeekTag(b []byte) (schema.Tag, error) {
	if len(b) < TagSize {
		return schema.CmdNone, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(b))
	}
	return schema.Tag(binary.BigEndian.Uint16(b)), nil
}

// Decode parses a command payload. Field values are copied out of b.
func Decode(b []byte) (*Payload, error) {
	tag, err := PeekTag(b)
	if err != nil {
		return nil, err
	}
	fields, err := tlv.DecodeFields(b[TagSize:])
	if err != nil {
		return nil, fmt.Errorf("command: %s fields: %w", tag, err)
	}
	return &Payload{Tag: tag, Fields: fields}, nil
}
