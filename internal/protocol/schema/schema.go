// Package schema declares the command tags, their TLV field IDs, and the
// fields each request and reply must carry.
package schema

import (
	"fmt"
	"sort"

	"github.com/danmuck/syndesi/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Tag is the 16-bit command identifier leading every command payload.
type Tag uint16

// Command tags.
const (
	CmdNone            Tag = 0x0000
	CmdError           Tag = 0x0001
	CmdDeviceDiscover  Tag = 0x0002
	CmdRegisterRead16  Tag = 0x0100
	CmdRegisterWrite16 Tag = 0x0101
	CmdSPIReadWrite    Tag = 0x0110
	CmdSPIWriteOnly    Tag = 0x0111
	CmdI2CRead         Tag = 0x0120
	CmdI2CWrite        Tag = 0x0121
)

var tagNames = map[Tag]string{
	CmdNone:            "NO_COMMAND",
	CmdError:           "ERROR",
	CmdDeviceDiscover:  "DEVICE_DISCOVER",
	CmdRegisterRead16:  "REGISTER_READ_16",
	CmdRegisterWrite16: "REGISTER_WRITE_16",
	CmdSPIReadWrite:    "SPI_READ_WRITE",
	CmdSPIWriteOnly:    "SPI_WRITE_ONLY",
	CmdI2CRead:         "I2C_READ",
	CmdI2CWrite:        "I2C_WRITE",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("CMD_0x%04X", uint16(t))
}

// ParseTag accepts a command name as printed by Tag.String.
func ParseTag(name string) (Tag, bool) {
	for tag, n := range tagNames {
		if n == name {
			return tag, true
		}
	}
	return CmdNone, false
}

// Tags lists every known tag in ascending order.
func Tags() []Tag {
	out := make([]Tag, 0, len(tagNames))
	for tag := range tagNames {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Field IDs.
const (
	FieldAddress uint16 = 1
	FieldValue   uint16 = 2
	FieldStatus  uint16 = 3

	FieldInterface uint16 = 10
	FieldData      uint16 = 11

	FieldI2CAddress uint16 = 20
	FieldLength     uint16 = 21

	FieldDeviceID        uint16 = 100
	FieldProtocolVersion uint16 = 101
	FieldDeviceVersion   uint16 = 102
	FieldName            uint16 = 103
	FieldDescription     uint16 = 104

	FieldErrorCode uint16 = 200
)

var fieldNames = map[uint16]string{
	FieldAddress:         "address",
	FieldValue:           "value",
	FieldStatus:          "status",
	FieldInterface:       "interface",
	FieldData:            "data",
	FieldI2CAddress:      "i2c_address",
	FieldLength:          "length",
	FieldDeviceID:        "device_id",
	FieldProtocolVersion: "protocol_version",
	FieldDeviceVersion:   "device_version",
	FieldName:            "name",
	FieldDescription:     "description",
	FieldErrorCode:       "error_code",
}

// FieldLabel is the snake_case name of a field id, or "field_<id>".
func FieldLabel(id uint16) string {
	if n, ok := fieldNames[id]; ok {
		return n
	}
	return fmt.Sprintf("field_%d", id)
}

// Status values carried by FieldStatus.
const (
	StatusOK  uint8 = 0
	StatusNOK uint8 = 1
)

// Command error codes carried by FieldErrorCode of an ERROR reply.
const (
	ErrCodeInvalidFrame uint8 = 0
	ErrCodeOther        uint8 = 1
	ErrCodeNoCallback   uint8 = 2
)

// Direction distinguishes the request and reply shapes of one tag.
type Direction uint8

const (
	Request Direction = iota
	Reply
)

func (d Direction) String() string {
	if d == Reply {
		return "reply"
	}
	return "request"
}

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	Tag       Tag
	Direction Direction
	FieldID   uint16
	Reason    string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: %s %s: %s", e.Tag, e.Direction, e.Reason)
	}
	return fmt.Sprintf("schema: %s %s field=%d: %s", e.Tag, e.Direction, e.FieldID, e.Reason)
}

type key struct {
	tag Tag
	dir Direction
}

var requirements = map[key][]Requirement{
	{CmdError, Reply}: {
		{FieldErrorCode, tlv.TypeU8},
	},
	{CmdDeviceDiscover, Request}: {},
	{CmdDeviceDiscover, Reply}: {
		{FieldDeviceID, tlv.TypeBytes},
		{FieldProtocolVersion, tlv.TypeU32},
		{FieldDeviceVersion, tlv.TypeU32},
		{FieldName, tlv.TypeString},
		{FieldDescription, tlv.TypeString},
	},
	{CmdRegisterRead16, Request}: {
		{FieldAddress, tlv.TypeU16},
	},
	{CmdRegisterRead16, Reply}: {
		{FieldValue, tlv.TypeU16},
	},
	{CmdRegisterWrite16, Request}: {
		{FieldAddress, tlv.TypeU16},
		{FieldValue, tlv.TypeU16},
	},
	{CmdRegisterWrite16, Reply}: {
		{FieldStatus, tlv.TypeU8},
	},
	{CmdSPIReadWrite, Request}: {
		{FieldInterface, tlv.TypeU8},
		{FieldData, tlv.TypeBytes},
	},
	{CmdSPIReadWrite, Reply}: {
		{FieldData, tlv.TypeBytes},
	},
	{CmdSPIWriteOnly, Request}: {
		{FieldInterface, tlv.TypeU8},
		{FieldData, tlv.TypeBytes},
	},
	{CmdSPIWriteOnly, Reply}: {
		{FieldStatus, tlv.TypeU8},
	},
	{CmdI2CRead, Request}: {
		{FieldInterface, tlv.TypeU8},
		{FieldI2CAddress, tlv.TypeU8},
		{FieldLength, tlv.TypeU16},
	},
	{CmdI2CRead, Reply}: {
		{FieldData, tlv.TypeBytes},
	},
	{CmdI2CWrite, Request}: {
		{FieldInterface, tlv.TypeU8},
		{FieldI2CAddress, tlv.TypeU8},
		{FieldData, tlv.TypeBytes},
	},
	{CmdI2CWrite, Reply}: {
		{FieldStatus, tlv.TypeU8},
	},
}

// Requirements returns the fields a tag must carry in the given direction.
func Requirements(tag Tag, dir Direction) ([]Requirement, bool) {
	reqs, ok := requirements[key{tag, dir}]
	return reqs, ok
}

// Validate enforces required fields and required field types for a tag.
// Unknown fields are ignored.
func Validate(tag Tag, dir Direction, fields []tlv.Field) error {
	log.Debug().Stringer("cmd", tag).Stringer("dir", dir).Int("fields", len(fields)).Msg("schema.validate")
	reqs, ok := requirements[key{tag, dir}]
	if !ok {
		log.Warn().Stringer("cmd", tag).Stringer("dir", dir).Msg("schema.validate unknown command")
		return ValidationError{Tag: tag, Direction: dir, Reason: "unknown command"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Warn().Stringer("cmd", tag).Uint16("field", req.ID).Msg("schema.validate missing field")
			return ValidationError{Tag: tag, Direction: dir, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Warn().
				Stringer("cmd", tag).
				Uint16("field", req.ID).
				Str("got", tlv.TypeName(f.Type)).
				Str("want", tlv.TypeName(req.Type)).
				Msg("schema.validate type mismatch")
			return ValidationError{Tag: tag, Direction: dir, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
