// Package buffer provides a byte region with explicit ownership.
//
// A Buffer either owns its memory (allocated or adopted) or borrows it from
// a parent buffer or external slice. Views created with View always borrow:
// they never release memory and report zero length once the owning buffer
// has been released.
package buffer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// MaxAlloc bounds a single allocation. Frames carry a 16-bit length, so
// anything past this is a caller bug rather than a real frame.
const MaxAlloc = 1 << 20

var (
	ErrOutOfRange = errors.New("buffer: index out of range")
	ErrAllocSize  = errors.New("buffer: invalid allocation size")
)

// Ownership tags who releases the memory behind a Buffer.
type Ownership uint8

const (
	Borrowed Ownership = iota
	Owned
)

func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

// Buffer is a view over a contiguous byte region.
type Buffer struct {
	data      []byte
	offset    int
	clip      int
	clipped   bool
	ownership Ownership
	released  bool
	root      *Buffer
}

// New allocates an owning buffer of n zeroed bytes. On failure the buffer
// is empty and the error is returned alongside it.
func New(n int) (*Buffer, error) {
	b := &Buffer{}
	return b, b.Allocate(n)
}

// Allocate releases any memory the buffer owns and obtains n zeroed bytes.
// On failure the buffer is left at length 0.
func (b *Buffer) Allocate(n int) error {
	b.Release()
	b.reset()
	if n < 0 || n > MaxAlloc {
		return fmt.Errorf("%w: %d", ErrAllocSize, n)
	}
	b.data = make([]byte, n)
	b.ownership = Owned
	b.released = false
	return nil
}

// Wrap builds a buffer over external bytes. With copyData the bytes are
// copied into a freshly owned region. Otherwise the slice is aliased and
// takeOwnership decides whether this buffer is responsible for releasing it.
func Wrap(ext []byte, copyData, takeOwnership bool) *Buffer {
	if copyData {
		b := &Buffer{data: make([]byte, len(ext)), ownership: Owned}
		copy(b.data, ext)
		return b
	}
	b := &Buffer{data: ext, ownership: Borrowed}
	if takeOwnership {
		b.ownership = Owned
	}
	return b
}

// View returns a borrowed view of parent starting at offset. A length of 0
// means "to the end of parent". An offset past the end of parent yields an
// empty view; a length past the end is clipped.
func View(parent *Buffer, offset, length int) *Buffer {
	v := &Buffer{ownership: Borrowed, root: parent.owner()}
	avail := parent.Len()
	if offset < 0 || offset > avail {
		v.clipped = true
		return v
	}
	v.data = parent.Bytes()
	v.offset = offset
	if length > 0 {
		v.clip = length
		v.clipped = true
	}
	return v
}

// Release frees owned memory exactly once. It is a no-op for views and for
// buffers that were already released.
func (b *Buffer) Release() {
	if b == nil || b.ownership != Owned || b.released {
		return
	}
	b.released = true
	b.data = nil
}

// Ownership reports whether the buffer owns or borrows its memory.
func (b *Buffer) Ownership() Ownership { return b.ownership }

// Released reports whether the owning buffer behind b has been released.
func (b *Buffer) Released() bool {
	return b.owner().released
}

// Len is min(capacity-offset, clip) and 0 once the owner was released.
func (b *Buffer) Len() int {
	if b == nil || b.Released() {
		return 0
	}
	n := len(b.data) - b.offset
	if n < 0 {
		return 0
	}
	if b.clipped && b.clip < n {
		n = b.clip
	}
	return n
}

// Bytes returns the effective region, data[offset:offset+Len()].
func (b *Buffer) Bytes() []byte {
	n := b.Len()
	if n == 0 {
		return nil
	}
	return b.data[b.offset : b.offset+n : b.offset+n]
}

// At returns the byte at index i of the effective region.
func (b *Buffer) At(i int) (byte, error) {
	if i < 0 || i >= b.Len() {
		return 0, fmt.Errorf("%w: read %d of %d", ErrOutOfRange, i, b.Len())
	}
	return b.data[b.offset+i], nil
}

// Set writes v at index i of the effective region.
func (b *Buffer) Set(i int, v byte) error {
	if i < 0 || i >= b.Len() {
		return fmt.Errorf("%w: write %d of %d", ErrOutOfRange, i, b.Len())
	}
	b.data[b.offset+i] = v
	return nil
}

// WriteAt copies src into the effective region starting at off. The whole
// write is rejected when it does not fit.
func (b *Buffer) WriteAt(off int, src []byte) error {
	if off < 0 || off+len(src) > b.Len() {
		return fmt.Errorf("%w: write [%d:%d] of %d", ErrOutOfRange, off, off+len(src), b.Len())
	}
	copy(b.data[b.offset+off:], src)
	return nil
}

// String renders the effective region as space separated hex bytes.
func (b *Buffer) String() string {
	raw := hex.EncodeToString(b.Bytes())
	var sb strings.Builder
	for i := 0; i < len(raw); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.ToUpper(raw[i : i+2]))
	}
	return sb.String()
}

func (b *Buffer) owner() *Buffer {
	if b.root != nil {
		return b.root
	}
	return b
}

func (b *Buffer) reset() {
	b.data = nil
	b.offset = 0
	b.clip = 0
	b.clipped = false
	b.root = nil
}
