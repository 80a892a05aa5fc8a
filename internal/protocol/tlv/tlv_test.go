package tlv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/syndesi/internal/testutil/testlog"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	testlog.Start(t)
	in := []Field{
		U16(1, 0x1234),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b := EncodeFields(in)
	if len(b) != FieldsSize(in) {
		t.Fatalf("encoded %d bytes, size=%d", len(b), FieldsSize(in))
	}
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestEncodeFieldLayout(t *testing.T) {
	testlog.Start(t)
	got := EncodeField(U16(0x0102, 0xBEEF))
	want := []byte{0x01, 0x02, TypeU16, 0, 0, 0, 2, 0xBE, 0xEF}
	if !bytes.Equal(got, want) {
		t.Fatalf("layout=%X want=%X", got, want)
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	testlog.Start(t)
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestTypedAccessors(t *testing.T) {
	testlog.Start(t)
	if v, err := U8(1, 7).AsU8(); err != nil || v != 7 {
		t.Fatalf("u8=%d err=%v", v, err)
	}
	if v, err := U32(1, 0xDEADBEEF).AsU32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("u32=%x err=%v", v, err)
	}
	if v, err := U64(1, 1<<40).AsU64(); err != nil || v != 1<<40 {
		t.Fatalf("u64=%d err=%v", v, err)
	}
	if v, err := Bool(1, true).AsBool(); err != nil || !v {
		t.Fatalf("bool=%t err=%v", v, err)
	}
	if v, err := String(1, "dev").AsString(); err != nil || v != "dev" {
		t.Fatalf("string=%q err=%v", v, err)
	}

	src := []byte{1, 2, 3}
	f := Bytes(1, src)
	src[0] = 9
	if v, _ := f.AsBytes(); v[0] != 1 {
		t.Fatalf("Bytes must copy its input")
	}
}

func TestTypedAccessorErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := U8(1, 1).AsU16(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	short := Field{ID: 2, Type: TypeU32, Value: []byte{1}}
	if _, err := short.AsU32(); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	bad := Field{ID: 3, Type: TypeBool, Value: []byte{2}}
	if _, err := bad.AsBool(); !errors.Is(err, ErrInvalidBool) {
		t.Fatalf("expected ErrInvalidBool, got %v", err)
	}
}
