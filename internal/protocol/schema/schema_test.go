package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/syndesi/internal/protocol/tlv"
	"github.com/danmuck/syndesi/internal/testutil/testlog"
)

func TestValidateRegisterWriteRequiredFields(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U16(FieldAddress, 0x10),
		tlv.U16(FieldValue, 0xBEEF),
	}
	if err := Validate(CmdRegisterWrite16, Request, fields); err != nil {
		t.Fatalf("validate register write: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U16(FieldAddress, 0x10),
		{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}},
	}
	if err := Validate(CmdRegisterRead16, Request, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.U8(FieldInterface, 0)}
	err := Validate(CmdI2CRead, Request, fields)
	if err == nil {
		t.Fatalf("expected error")
	}
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldI2CAddress || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.U32(FieldAddress, 1)}
	err := Validate(CmdRegisterRead16, Request, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.FieldID != FieldAddress || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateUnknownCommand(t *testing.T) {
	testlog.Start(t)
	err := Validate(Tag(0x7777), Request, nil)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "unknown command" {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(CmdError, Request, nil); err == nil {
		t.Fatalf("ERROR has no request shape")
	}
}

func TestValidateDiscoverRequestNeedsNoFields(t *testing.T) {
	testlog.Start(t)
	if err := Validate(CmdDeviceDiscover, Request, nil); err != nil {
		t.Fatalf("discover request: %v", err)
	}
}

func TestDecodeTypedValues(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.Bytes(FieldDeviceID, []byte{1, 2, 3, 4}),
		tlv.U32(FieldProtocolVersion, 1),
		tlv.U32(FieldDeviceVersion, 7),
		tlv.String(FieldName, "bench"),
		tlv.String(FieldDescription, "test device"),
		tlv.Bool(500, true),
	}
	msg, err := Decode(CmdDeviceDiscover, Reply, fields)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, _ := msg.U32(FieldDeviceVersion); v != 7 {
		t.Fatalf("device version=%d", v)
	}
	if name, _ := msg.String(FieldName); name != "bench" {
		t.Fatalf("name=%q", name)
	}
	if len(msg.Unknown) != 1 || msg.Unknown[0].ID != 500 {
		t.Fatalf("unknown=%+v", msg.Unknown)
	}
	if _, err := msg.U16(FieldValue); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestDecodeRejectsBadWidth(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{{ID: FieldAddress, Type: tlv.TypeU16, Value: []byte{1}}}
	if _, err := Decode(CmdRegisterRead16, Request, fields); err == nil {
		t.Fatalf("expected width error")
	}
}

func TestTagNames(t *testing.T) {
	testlog.Start(t)
	if CmdRegisterRead16.String() != "REGISTER_READ_16" {
		t.Fatalf("name=%s", CmdRegisterRead16)
	}
	if tag, ok := ParseTag("I2C_WRITE"); !ok || tag != CmdI2CWrite {
		t.Fatalf("parse tag=%v ok=%t", tag, ok)
	}
	tags := Tags()
	for i := 1; i < len(tags); i++ {
		if tags[i-1] >= tags[i] {
			t.Fatalf("tags not sorted: %v", tags)
		}
	}
	if Tag(0x0999).String() != "CMD_0x0999" {
		t.Fatalf("unknown tag name=%s", Tag(0x0999))
	}
}

func TestFieldLabels(t *testing.T) {
	testlog.Start(t)
	if FieldLabel(FieldI2CAddress) != "i2c_address" {
		t.Fatalf("name=%s", FieldLabel(FieldI2CAddress))
	}
	if FieldLabel(999) != "field_999" {
		t.Fatalf("unknown field name=%s", FieldLabel(999))
	}
}
