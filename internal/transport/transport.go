// Package transport defines the controller contract the router consumes.
//
// A Controller owns one physical link (TCP, UART, RS-485). Reads block until
// the requested byte count is available or the link fails; partial reads and
// writes are surfaced as ErrShortRead / ErrShortWrite and are fatal for the
// frame in flight, never for the process.
package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/syndesi/internal/protocol/address"
)

var (
	ErrShortRead  = errors.New("transport: short read")
	ErrShortWrite = errors.New("transport: short write")
	ErrClosed     = errors.New("transport: controller closed")
)

// Kind selects the controller slot a destination is routed to.
type Kind uint8

const (
	KindIP Kind = iota + 1
	KindUART
	KindRS485
)

// Kinds lists every slot in table order.
var Kinds = []Kind{KindIP, KindUART, KindRS485}

func (k Kind) String() string {
	switch k {
	case KindIP:
		return "ip"
	case KindUART:
		return "uart"
	case KindRS485:
		return "rs485"
	default:
		return fmt.Sprintf("transport(%d)", uint8(k))
	}
}

// ParseKind accepts the lowercase names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("transport: unknown kind %q", s)
}

// Controller is one transport link.
type Controller interface {
	Kind() Kind
	// Read fills p completely or returns an error.
	Read(p []byte) (int, error)
	// Write sends p to dst and returns the bytes accepted by the link.
	Write(dst address.Address, p []byte) (int, error)
	Close() error
}

// Notifier receives inbound data-ready events. The controller calls it with
// the peer address and a byte count hint (0 when unknown); the callee reads
// the frame from the controller before returning.
type Notifier interface {
	DataAvailable(c Controller, src address.Address, hint int) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(c Controller, src address.Address, hint int) error

func (f NotifierFunc) DataAvailable(c Controller, src address.Address, hint int) error {
	return f(c, src, hint)
}

// ReadExact reads exactly len(p) bytes. A clean EOF before the first byte is
// returned as io.EOF; any other shortfall wraps ErrShortRead.
func ReadExact(r io.Reader, p []byte) error {
	n, err := io.ReadFull(r, p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && n == 0:
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, n, len(p))
	default:
		return fmt.Errorf("%w: got %d of %d bytes: %w", ErrShortRead, n, len(p), err)
	}
}

// WriteFull writes p to dst through c and fails with ErrShortWrite when the
// link accepted fewer bytes.
func WriteFull(c Controller, dst address.Address, p []byte) error {
	n, err := c.Write(dst, p)
	if err != nil {
		return fmt.Errorf("%w: wrote %d of %d bytes: %w", ErrShortWrite, n, len(p), err)
	}
	if n != len(p) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(p))
	}
	return nil
}
