// Package frame builds and parses wire frames.
//
// Layout, big-endian:
//
//	byte 0     network header {routing, follow, error, reserved:5}
//	bytes 1-2  addressing+payload length, or the error code when error=1
//	...        address chain when routing=1
//	...        opaque payload
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/syndesi/internal/protocol"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/buffer"
	"github.com/danmuck/syndesi/internal/transport"
)

// HeaderSize is fixed for every frame kind.
const HeaderSize = 3

// MaxLength is the largest addressing+payload length the 16-bit field carries.
const MaxLength = 0xFFFF

var (
	ErrShortHeader     = errors.New("frame: short fixed header")
	ErrShortPayload    = errors.New("frame: short payload")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrLengthMismatch  = errors.New("frame: length does not match frame size")
	ErrReservedBits    = errors.New("frame: reserved header bits set")
	ErrNotError        = errors.New("frame: not an error frame")
)

// Header is the one byte network header.
type Header byte

const (
	FlagRouting Header = 0x01
	// FlagFollow marks a continuation frame. It is carried but not acted on.
	FlagFollow Header = 0x02
	FlagError  Header = 0x04

	reservedMask Header = 0xF8
)

func (h Header) Routing() bool { return h&FlagRouting != 0 }
func (h Header) Follow() bool  { return h&FlagFollow != 0 }
func (h Header) Error() bool   { return h&FlagError != 0 }

func (h Header) String() string {
	return fmt.Sprintf("routing=%t follow=%t error=%t", h.Routing(), h.Follow(), h.Error())
}

// Limits constrains inbound frames.
type Limits struct {
	MaxLength int
	Address   address.Settings
}

func DefaultLimits() Limits {
	return Limits{
		MaxLength: MaxLength,
		Address:   address.DefaultSettings(),
	}
}

func (l Limits) maxLength() int {
	if l.MaxLength <= 0 || l.MaxLength > MaxLength {
		return MaxLength
	}
	return l.MaxLength
}

// Payload writes itself into a pre-sized region.
type Payload interface {
	Len() int
	Build(dst []byte) (int, error)
}

// Bytes is an opaque payload.
type Bytes []byte

func (b Bytes) Len() int { return len(b) }

func (b Bytes) Build(dst []byte) (int, error) {
	if len(dst) < len(b) {
		return 0, fmt.Errorf("%w: payload %d into %d", buffer.ErrOutOfRange, len(b), len(dst))
	}
	return copy(dst, b), nil
}

// Frame is one wire message. The buffer holds the full wire image; Addr is the
// peer the frame is sent to or was received from.
type Frame struct {
	Addr address.Address

	buf      *buffer.Buffer
	route    address.Chain
	addrSize int
}

// Build lays out a request or reply for addr: header, length, addr's route,
// then payload. The buffer is sized exactly before any byte is written.
func Build(p Payload, addr address.Address) (*Frame, error) {
	addrSize := addr.TotalAddressingSize()
	plen := 0
	if p != nil {
		plen = p.Len()
	}
	length := addrSize + plen
	if length > MaxLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}
	buf, err := buffer.New(HeaderSize + length)
	if err != nil {
		return nil, fmt.Errorf("frame: allocate: %w", err)
	}
	wire := buf.Bytes()

	var h Header
	if addr.Reroutes() > 0 {
		h |= FlagRouting
	}
	wire[0] = byte(h)
	binary.BigEndian.PutUint16(wire[1:HeaderSize], uint16(length))

	n, err := addr.BuildAddressing(wire[HeaderSize : HeaderSize+addrSize])
	if err != nil {
		buf.Release()
		return nil, fmt.Errorf("frame: addressing: %w", err)
	}
	if n != addrSize {
		buf.Release()
		return nil, fmt.Errorf("frame: addressing wrote %d of %d bytes", n, addrSize)
	}
	if plen > 0 {
		n, err = p.Build(wire[HeaderSize+addrSize:])
		if err != nil {
			buf.Release()
			return nil, fmt.Errorf("frame: payload: %w", err)
		}
		if n != plen {
			buf.Release()
			return nil, fmt.Errorf("frame: payload wrote %d of %d bytes", n, plen)
		}
	}
	return &Frame{Addr: addr, buf: buf, route: addr.Clone().Hops, addrSize: addrSize}, nil
}

// BuildError lays out a three byte error frame. Error frames never carry a
// route.
func BuildError(code protocol.ErrorCode, addr address.Address) *Frame {
	wire := make([]byte, HeaderSize)
	wire[0] = byte(FlagError)
	binary.BigEndian.PutUint16(wire[1:], uint16(code))
	return &Frame{Addr: addr, buf: buffer.Wrap(wire, false, true)}
}

// ReadFrame reads one frame from r: exactly HeaderSize bytes first, then,
// unless the error bit is set, exactly the declared length. An io.EOF before
// the first header byte is returned unwrapped.
func ReadFrame(r io.Reader, lim Limits) (*Frame, error) {
	var fixed [HeaderSize]byte
	if err := transport.ReadExact(r, fixed[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %w", ErrShortHeader, err)
	}
	h := Header(fixed[0])
	if h&reservedMask != 0 {
		return nil, fmt.Errorf("%w: 0x%02X", ErrReservedBits, fixed[0])
	}
	if h.Error() {
		return decode(buffer.Wrap(fixed[:], true, true), lim)
	}

	length := int(binary.BigEndian.Uint16(fixed[1:]))
	if length > lim.maxLength() {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, length, lim.maxLength())
	}
	buf, err := buffer.New(HeaderSize + length)
	if err != nil {
		return nil, fmt.Errorf("frame: allocate: %w", err)
	}
	wire := buf.Bytes()
	copy(wire, fixed[:])
	if length > 0 {
		if err := transport.ReadExact(r, wire[HeaderSize:]); err != nil {
			buf.Release()
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: %w", transport.ErrShortRead, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrShortPayload, err)
		}
	}
	return decode(buf, lim)
}

// Parse decodes a complete wire image. The bytes are copied.
func Parse(wire []byte, lim Limits) (*Frame, error) {
	if len(wire) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(wire))
	}
	h := Header(wire[0])
	if h&reservedMask != 0 {
		return nil, fmt.Errorf("%w: 0x%02X", ErrReservedBits, wire[0])
	}
	want := HeaderSize
	if !h.Error() {
		want += int(binary.BigEndian.Uint16(wire[1:HeaderSize]))
	}
	if len(wire) != want {
		return nil, fmt.Errorf("%w: declared %d, have %d", ErrLengthMismatch, want, len(wire))
	}
	if want-HeaderSize > lim.maxLength() {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, want-HeaderSize, lim.maxLength())
	}
	return decode(buffer.Wrap(wire, true, true), lim)
}

// decode measures the route of a complete wire image held by buf.
func decode(buf *buffer.Buffer, lim Limits) (*Frame, error) {
	f := &Frame{buf: buf}
	h := f.Header()
	if h.Error() || !h.Routing() {
		return f, nil
	}
	body := buf.Bytes()[HeaderSize:]
	route, n, err := address.ParseChain(body, lim.Address)
	if err != nil {
		buf.Release()
		return nil, fmt.Errorf("frame: route: %w", err)
	}
	f.route = route
	f.addrSize = n
	return f, nil
}

// Header returns the network header byte.
func (f *Frame) Header() Header {
	b, _ := f.buf.At(0)
	return Header(b)
}

// IsError reports whether the frame carries an error code.
func (f *Frame) IsError() bool {
	return f.Header().Error()
}

// ErrorCode returns the code of an error frame.
func (f *Frame) ErrorCode() (protocol.ErrorCode, error) {
	if !f.IsError() {
		return protocol.NoError, ErrNotError
	}
	v, ok := f.field()
	if !ok {
		return protocol.NoError, ErrShortHeader
	}
	return protocol.ErrorCode(v), nil
}

// Length is the value of the length field, 0 for error frames.
func (f *Frame) Length() int {
	if f.IsError() {
		return 0
	}
	v, _ := f.field()
	return int(v)
}

// field is the 2-byte length or error code. ok is false once the frame has
// been released.
func (f *Frame) field() (uint16, bool) {
	b := f.buf.Bytes()
	if len(b) < HeaderSize {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[1:HeaderSize]), true
}

// Route is the address chain carried by the frame.
func (f *Frame) Route() address.Chain {
	return f.route
}

// AddressingSize is the number of route bytes between header and payload.
func (f *Frame) AddressingSize() int {
	return f.addrSize
}

// Payload is a borrowed view past the header and route. For error frames it
// is the two code bytes.
func (f *Frame) Payload() *buffer.Buffer {
	if f.IsError() {
		return buffer.View(f.buf, 1, protocol.ErrorCodeSize)
	}
	return buffer.View(f.buf, HeaderSize+f.addrSize, 0)
}

// PayloadBytes returns the payload view's bytes. The slice aliases the frame.
func (f *Frame) PayloadBytes() []byte {
	return f.Payload().Bytes()
}

// Bytes is the complete wire image.
func (f *Frame) Bytes() []byte {
	return f.buf.Bytes()
}

// Len is the wire size.
func (f *Frame) Len() int {
	return f.buf.Len()
}

// Release frees the wire image. Views taken from the frame become empty.
func (f *Frame) Release() {
	f.buf.Release()
}

func (f *Frame) String() string {
	if f.buf.Len() < HeaderSize {
		return fmt.Sprintf("frame{released addr=%s}", f.Addr)
	}
	if code, err := f.ErrorCode(); err == nil {
		return fmt.Sprintf("frame{error=%s addr=%s}", code, f.Addr)
	}
	return fmt.Sprintf("frame{%s len=%d route=%d payload=%d addr=%s}",
		f.Header(), f.Length(), len(f.route), f.Len()-HeaderSize-f.addrSize, f.Addr)
}
