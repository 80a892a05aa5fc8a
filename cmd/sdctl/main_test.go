package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/syndesi/internal/capture"
	"github.com/danmuck/syndesi/internal/protocol"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/command"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/danmuck/syndesi/internal/protocol/schema"
	"github.com/danmuck/syndesi/internal/protocol/tlv"
	"github.com/danmuck/syndesi/internal/testutil/testlog"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestBuildPayload(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name  string
		flags requestFlags
		want  []byte
	}{
		{"hex", requestFlags{hexPayload: "0x48656c6c6f"}, []byte("Hello")},
		{"text", requestFlags{text: "hi"}, []byte("hi")},
		{"discover", requestFlags{discover: true}, command.New(schema.CmdDeviceDiscover).Bytes()},
		{"read", requestFlags{read: "0x10"}, command.New(schema.CmdRegisterRead16, tlv.U16(schema.FieldAddress, 0x10)).Bytes()},
		{"write", requestFlags{write: "16=0xBEEF"}, command.New(schema.CmdRegisterWrite16,
			tlv.U16(schema.FieldAddress, 16), tlv.U16(schema.FieldValue, 0xBEEF)).Bytes()},
		{"spi", requestFlags{spi: "1:a0b1"}, command.New(schema.CmdSPIReadWrite,
			tlv.U8(schema.FieldInterface, 1), tlv.Bytes(schema.FieldData, []byte{0xA0, 0xB1})).Bytes()},
		{"i2c read", requestFlags{i2cRead: "0:0x50:4"}, command.New(schema.CmdI2CRead,
			tlv.U8(schema.FieldInterface, 0), tlv.U8(schema.FieldI2CAddress, 0x50), tlv.U16(schema.FieldLength, 4)).Bytes()},
		{"i2c write", requestFlags{i2cWrite: "0:0x50:ff"}, command.New(schema.CmdI2CWrite,
			tlv.U8(schema.FieldInterface, 0), tlv.U8(schema.FieldI2CAddress, 0x50), tlv.Bytes(schema.FieldData, []byte{0xFF})).Bytes()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := buildPayload(&tc.flags)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			got := make([]byte, p.Len())
			if _, err := p.Build(got); err != nil {
				t.Fatalf("encode: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("payload = %x, want %x", got, tc.want)
			}
		})
	}
}

func TestBuildPayloadRejects(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name  string
		flags requestFlags
	}{
		{"none", requestFlags{}},
		{"two", requestFlags{text: "a", discover: true}},
		{"bad hex", requestFlags{hexPayload: "zz"}},
		{"read overflow", requestFlags{read: "0x10000"}},
		{"write shape", requestFlags{write: "16"}},
		{"spi shape", requestFlags{spi: "00"}},
		{"i2c iface overflow", requestFlags{i2cRead: "300:1:1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := buildPayload(&tc.flags); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecodeCommand(t *testing.T) {
	testlog.Start(t)
	out, err := runCLI(t, "decode", "04 00 01")
	if err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if !strings.Contains(out, protocol.NoInterpreter.String()) {
		t.Fatalf("output = %q", out)
	}

	route, _ := address.ParseRoute("10.0.0.1>192.168.0.9", address.DefaultSettings())
	f, err := frame.Build(command.New(schema.CmdRegisterRead16, tlv.U16(schema.FieldAddress, 7)), route)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	out, err = runCLI(t, "decode", hex.EncodeToString(f.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, want := range []string{"route    192.168.0.9", "REGISTER_READ_16", "address (u16) = 7"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCLI(t, "decode", "f80000"); err == nil {
		t.Fatalf("expected reserved-bit error")
	}
}

func TestPcapListing(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "frames.pcap")
	w, err := capture.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	peer, _ := address.Parse("10.1.2.3", address.DefaultSettings())
	req, _ := frame.Build(frame.Bytes("ping"), address.Address{})
	if err := w.Record(capture.Out, peer, req.Bytes()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := w.Record(capture.In, peer, frame.BuildError(protocol.InvalidPayload, peer).Bytes()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out, err := runCLI(t, "pcap", "-v", path)
	if err != nil {
		t.Fatalf("pcap: %v", err)
	}
	for _, want := range []string{"10.1.2.3", "payload 4 B", "error " + protocol.InvalidPayload.String(), "2 frames", "1 error frames"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "device.toml")
	if _, err := runCLI(t, "config", "init", path, "--role", "device"); err != nil {
		t.Fatalf("init: %v", err)
	}
	out, err := runCLI(t, "config", "validate", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "ok: role=device") || !strings.Contains(out, "node.id is not set") {
		t.Fatalf("validate output:\n%s", out)
	}
	if _, err := runCLI(t, "config", "init", path); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
}

func TestConfigValidateNotesUnknownKeys(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "node.toml")
	body := "[node]\nid = \"n1\"\nrole = \"host\"\ncolour = \"blue\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := runCLI(t, "config", "validate", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, `unknown key "node.colour"`) || strings.Contains(out, "node.id is not set") {
		t.Fatalf("validate output:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	testlog.Start(t)
	out, err := runCLI(t, "version")
	if err != nil || !strings.HasPrefix(out, "sdctl version "+version) {
		t.Fatalf("version = %q, %v", out, err)
	}
}
