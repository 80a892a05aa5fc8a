// Package stream is a transport controller over a byte stream such as a
// serial device. Frames are delimited only by their length prefix.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/transport"
	"github.com/rs/zerolog/log"
)

// Controller serves one stream. Every inbound frame is attributed to peer.
type Controller struct {
	kind transport.Kind
	rw   io.ReadWriteCloser
	peer address.Address

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// New wraps rw. kind must be KindUART or KindRS485.
func New(kind transport.Kind, rw io.ReadWriteCloser, peer address.Address) (*Controller, error) {
	if kind != transport.KindUART && kind != transport.KindRS485 {
		return nil, fmt.Errorf("stream: unsupported kind %s", kind)
	}
	return &Controller{kind: kind, rw: rw, peer: peer}, nil
}

// Open opens a character device that was configured outside the process
// (baud rate, parity) and wraps it.
func Open(kind transport.Kind, path string, peer address.Address) (*Controller, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("stream: open %s: %w", path, err)
	}
	c, err := New(kind, f, peer)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *Controller) Kind() transport.Kind { return c.kind }

// Peer is the address inbound frames are attributed to.
func (c *Controller) Peer() address.Address { return c.peer }

func (c *Controller) Read(p []byte) (int, error) {
	return c.rw.Read(p)
}

// Write puts p on the line. Every station on a bus sees it; dst only labels
// the log line.
func (c *Controller) Write(dst address.Address, p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	n, err := c.rw.Write(p)
	log.Trace().Stringer("kind", c.kind).Str("addr", dst.String()).Int("len", n).Msg("stream.write")
	return n, err
}

func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rw.Close()
	})
	return c.closeErr
}

// Pump notifies n once per inbound frame until the stream ends or ctx is
// done. Cancelling ctx closes the stream. A stream has no delimiter to
// resynchronise on, so any read or decode failure ends the pump; failed
// replies are logged and the pump continues.
func (c *Controller) Pump(ctx context.Context, n transport.Notifier) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		err := n.DataAvailable(c, c.peer, 0)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, os.ErrClosed):
			return nil
		case errors.Is(err, transport.ErrShortWrite):
			log.Warn().Err(err).Stringer("kind", c.kind).Str("peer", c.peer.String()).Msg("stream.pump reply failed")
		default:
			return fmt.Errorf("stream: framing lost: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
