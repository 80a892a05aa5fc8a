package capture

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/danmuck/syndesi/internal/protocol"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/danmuck/syndesi/internal/testutil/testlog"
)

func TestWriteReadFramesRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "session.pcap")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	v4, _ := address.Parse("192.168.4.20:4000", address.DefaultSettings())
	v6, _ := address.Parse("[fe80::7]", address.DefaultSettings())
	bus, _ := address.Parse("bus:9", address.DefaultSettings())

	req, err := frame.Build(frame.Bytes("ping"), v4)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	errFrame := frame.BuildError(protocol.NoInterpreter, v6)

	if err := w.Record(Out, v4, req.Bytes()); err != nil {
		t.Fatalf("record out: %v", err)
	}
	if err := w.Record(In, v6, errFrame.Bytes()); err != nil {
		t.Fatalf("record in: %v", err)
	}
	if err := w.Record(In, bus, []byte{0x00, 0x00, 0x01, 'x'}); err != nil {
		t.Fatalf("record bus: %v", err)
	}
	if w.Count() != 3 {
		t.Fatalf("count=%d", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := ReadFrames(path, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frames: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records=%d", len(recs))
	}

	if recs[0].Direction != Out || recs[0].Peer.String() != "192.168.4.20:4000" {
		t.Fatalf("rec0 dir=%s peer=%s", recs[0].Direction, recs[0].Peer)
	}
	if recs[0].Err != nil || string(recs[0].Frame.PayloadBytes()) != "ping" {
		t.Fatalf("rec0 frame err=%v", recs[0].Err)
	}

	if recs[1].Direction != In || recs[1].Peer.Addr().String() != "fe80::7" {
		t.Fatalf("rec1 dir=%s peer=%s", recs[1].Direction, recs[1].Peer)
	}
	if code, err := recs[1].Frame.ErrorCode(); err != nil || code != protocol.NoInterpreter {
		t.Fatalf("rec1 code=%v err=%v", code, err)
	}

	if recs[2].Peer.Addr().String() != "0.0.0.0" || !bytes.Equal(recs[2].Wire, []byte{0x00, 0x00, 0x01, 'x'}) {
		t.Fatalf("rec2 peer=%s wire=%X", recs[2].Peer, recs[2].Wire)
	}
}

func TestDecodeKeepsUnparsableFrames(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	peer, _ := address.Parse("10.0.0.1", address.DefaultSettings())
	if err := w.Record(Out, peer, []byte{0x00, 0x00, 0x09, 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	recs, err := Decode(&buf, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 || recs[0].Frame != nil || recs[0].Err == nil {
		t.Fatalf("records=%+v", recs)
	}
}

func TestRecordRejectsOversizedFrame(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	peer, _ := address.Parse("10.0.0.1", address.DefaultSettings())
	if err := w.Record(Out, peer, make([]byte, 0xFFFF)); err == nil {
		t.Fatalf("expected oversize error")
	}
	if w.Count() != 0 {
		t.Fatalf("count=%d", w.Count())
	}
}
