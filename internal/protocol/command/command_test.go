package command

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/syndesi/internal/protocol/schema"
	"github.com/danmuck/syndesi/internal/protocol/tlv"
	"github.com/danmuck/syndesi/internal/testutil/testlog"
)

func TestPayloadWireLayout(t *testing.T) {
	testlog.Start(t)
	p := New(schema.CmdRegisterRead16, tlv.U16(schema.FieldAddress, 0x0010))
	want := []byte{0x01, 0x00, 0x00, 0x01, tlv.TypeU16, 0, 0, 0, 2, 0x00, 0x10}
	if got := p.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("wire=%X want=%X", got, want)
	}
	if p.Len() != len(want) {
		t.Fatalf("len=%d want=%d", p.Len(), len(want))
	}
}

func TestPayloadDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := New(schema.CmdI2CWrite,
		tlv.U8(schema.FieldInterface, 0),
		tlv.U8(schema.FieldI2CAddress, 0x50),
		tlv.Bytes(schema.FieldData, []byte{1, 2, 3}),
	)
	out, err := Decode(in.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Tag != schema.CmdI2CWrite || len(out.Fields) != 3 {
		t.Fatalf("decoded=%s", out)
	}
	msg, err := out.Message(schema.Request)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if data, _ := msg.Bytes(schema.FieldData); !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("data=%X", data)
	}
}

func TestPayloadBuildShortDestination(t *testing.T) {
	testlog.Start(t)
	p := New(schema.CmdDeviceDiscover)
	if _, err := p.Build(make([]byte, 1)); err == nil {
		t.Fatalf("expected short destination error")
	}
}

func TestDecodeShortPayload(t *testing.T) {
	testlog.Start(t)
	if _, err := Decode([]byte{0x01}); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
	if _, err := Decode([]byte{0x01, 0x00, 0x00}); !errors.Is(err, tlv.ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestRegistryRegisterResolveList(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	echo := func(req *Payload) (*Payload, error) { return New(req.Tag), nil }
	if err := r.Register(Entry{Tag: schema.CmdRegisterWrite16, ParseRequest: echo}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(Entry{Tag: schema.CmdDeviceDiscover, Name: "discover", ParseRequest: echo}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(Entry{Tag: schema.CmdDeviceDiscover, ParseRequest: echo}); !errors.Is(err, ErrEntryExists) {
		t.Fatalf("expected ErrEntryExists, got %v", err)
	}
	if err := r.Register(Entry{Tag: schema.CmdI2CRead}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if err := r.Register(Entry{Tag: schema.CmdNone, ParseRequest: echo}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("NO_COMMAND: expected ErrInvalidEntry, got %v", err)
	}

	e, ok := r.Resolve(schema.CmdRegisterWrite16)
	if !ok || e.Name != "REGISTER_WRITE_16" {
		t.Fatalf("resolve=%+v ok=%t", e, ok)
	}
	list := r.List()
	if len(list) != 2 || list[0].Name != "discover" || list[1].Tag != "0x0101" {
		t.Fatalf("list=%+v", list)
	}
	if !list[0].Requests || list[0].Replies {
		t.Fatalf("capabilities=%+v", list[0])
	}
}
