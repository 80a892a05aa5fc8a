package buffer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/syndesi/internal/testutil/testlog"
)

func TestAllocateOwnsZeroedMemory(t *testing.T) {
	testlog.Start(t)
	b, err := New(8)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if b.Len() != 8 || b.Ownership() != Owned {
		t.Fatalf("unexpected buffer len=%d ownership=%s", b.Len(), b.Ownership())
	}
	if !bytes.Equal(b.Bytes(), make([]byte, 8)) {
		t.Fatalf("expected zeroed bytes, got %v", b.Bytes())
	}
}

func TestAllocateFailureLeavesEmptyBuffer(t *testing.T) {
	testlog.Start(t)
	b, err := New(4)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.Allocate(MaxAlloc + 1); !errors.Is(err, ErrAllocSize) {
		t.Fatalf("expected ErrAllocSize, got %v", err)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after failed allocate, len=%d", b.Len())
	}
	if err := b.Set(0, 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("write into empty buffer must fail, got %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	testlog.Start(t)
	b, _ := New(4)
	b.Release()
	b.Release()
	if b.Len() != 0 || !b.Released() {
		t.Fatalf("expected released buffer, len=%d", b.Len())
	}
}

func TestViewBorrowsFromParent(t *testing.T) {
	testlog.Start(t)
	parent := Wrap([]byte{1, 2, 3, 4, 5, 6}, true, false)

	tests := []struct {
		name   string
		offset int
		length int
		want   []byte
	}{
		{"to end", 2, 0, []byte{3, 4, 5, 6}},
		{"clipped", 1, 2, []byte{2, 3}},
		{"clip past end", 4, 10, []byte{5, 6}},
		{"offset at end", 6, 0, nil},
		{"offset past end", 7, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := View(parent, tt.offset, tt.length)
			if v.Ownership() != Borrowed {
				t.Fatalf("view must borrow")
			}
			if !bytes.Equal(v.Bytes(), tt.want) {
				t.Fatalf("view bytes=%v want=%v", v.Bytes(), tt.want)
			}
			if v.Len() != len(tt.want) {
				t.Fatalf("view len=%d want=%d", v.Len(), len(tt.want))
			}
		})
	}
}

func TestViewWritesThroughAndNeverReleases(t *testing.T) {
	testlog.Start(t)
	parent, _ := New(4)
	v := View(parent, 1, 2)
	if err := v.WriteAt(0, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("write view: %v", err)
	}
	if !bytes.Equal(parent.Bytes(), []byte{0, 0xAA, 0xBB, 0}) {
		t.Fatalf("view write not visible in parent: %v", parent.Bytes())
	}
	if err := v.WriteAt(1, []byte{1, 2}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}

	v.Release()
	if parent.Len() != 4 {
		t.Fatalf("releasing a view must not touch the parent")
	}

	nested := View(v, 1, 0)
	parent.Release()
	if v.Len() != 0 || nested.Len() != 0 {
		t.Fatalf("views must be empty once the owner is released")
	}
}

func TestWrapAliasOwnership(t *testing.T) {
	testlog.Start(t)
	ext := []byte{9, 8, 7}
	alias := Wrap(ext, false, false)
	if alias.Ownership() != Borrowed {
		t.Fatalf("alias without ownership must borrow")
	}
	_ = alias.Set(0, 1)
	if ext[0] != 1 {
		t.Fatalf("alias must share memory")
	}

	cp := Wrap(ext, true, false)
	_ = cp.Set(0, 2)
	if ext[0] != 1 || cp.Ownership() != Owned {
		t.Fatalf("copy must own separate memory")
	}

	adopted := Wrap(ext, false, true)
	if adopted.Ownership() != Owned {
		t.Fatalf("adopted slice must be owned")
	}
}

func TestAtBoundsChecked(t *testing.T) {
	testlog.Start(t)
	b := Wrap([]byte{0x10, 0x20}, false, false)
	if v, err := b.At(1); err != nil || v != 0x20 {
		t.Fatalf("at(1)=%x err=%v", v, err)
	}
	if _, err := b.At(2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := b.At(-1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if b.String() != "10 20" {
		t.Fatalf("unexpected string %q", b.String())
	}
}
