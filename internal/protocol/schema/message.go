package schema

import (
	"errors"
	"fmt"

	"github.com/danmuck/syndesi/internal/protocol/tlv"
)

var ErrMissingField = errors.New("schema: missing field")

// Value is a decoded field value.
type Value struct {
	Type   uint8
	U8     uint8
	U16    uint16
	U32    uint32
	U64    uint64
	Bool   bool
	String string
	Bytes  []byte
}

// Message is a command payload whose required fields were validated and
// decoded into typed values.
type Message struct {
	Tag       Tag
	Direction Direction
	Values    map[uint16]Value
	Unknown   []tlv.Field
}

// Decode validates fields for tag and decodes every required field. Fields
// the schema does not name are kept in Unknown.
func Decode(tag Tag, dir Direction, fields []tlv.Field) (*Message, error) {
	if err := Validate(tag, dir, fields); err != nil {
		return nil, err
	}
	reqs, _ := Requirements(tag, dir)
	known := make(map[uint16]uint8, len(reqs))
	for _, req := range reqs {
		known[req.ID] = req.Type
	}

	msg := &Message{Tag: tag, Direction: dir, Values: make(map[uint16]Value, len(reqs))}
	for _, f := range fields {
		want, ok := known[f.ID]
		if !ok {
			msg.Unknown = append(msg.Unknown, f)
			continue
		}
		if _, dup := msg.Values[f.ID]; dup {
			continue
		}
		v, err := decodeValue(f, want)
		if err != nil {
			return nil, ValidationError{Tag: tag, Direction: dir, FieldID: f.ID, Reason: err.Error()}
		}
		msg.Values[f.ID] = v
	}
	return msg, nil
}

func decodeValue(f tlv.Field, want uint8) (Value, error) {
	if err := tlv.MustType(f, want); err != nil {
		return Value{}, err
	}
	value := Value{Type: f.Type}
	var err error
	switch f.Type {
	case tlv.TypeU8:
		value.U8, err = f.AsU8()
	case tlv.TypeU16:
		value.U16, err = f.AsU16()
	case tlv.TypeU32:
		value.U32, err = f.AsU32()
	case tlv.TypeU64:
		value.U64, err = f.AsU64()
	case tlv.TypeBool:
		value.Bool, err = f.AsBool()
	case tlv.TypeString:
		value.String, err = f.AsString()
	case tlv.TypeBytes:
		value.Bytes, err = f.AsBytes()
	default:
		err = fmt.Errorf("%w: field %d", tlv.ErrTypeMismatch, f.ID)
	}
	if err != nil {
		return Value{}, err
	}
	return value, nil
}

func (m *Message) value(id uint16) (Value, error) {
	v, ok := m.Values[id]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s field %d", ErrMissingField, m.Tag, id)
	}
	return v, nil
}

func (m *Message) U8(id uint16) (uint8, error) {
	v, err := m.value(id)
	return v.U8, err
}

func (m *Message) U16(id uint16) (uint16, error) {
	v, err := m.value(id)
	return v.U16, err
}

func (m *Message) U32(id uint16) (uint32, error) {
	v, err := m.value(id)
	return v.U32, err
}

func (m *Message) String(id uint16) (string, error) {
	v, err := m.value(id)
	return v.String, err
}

func (m *Message) Bytes(id uint16) ([]byte, error) {
	v, err := m.value(id)
	return v.Bytes, err
}
