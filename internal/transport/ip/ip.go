// Package ip is the TCP transport controller.
//
// One exchange runs at a time. A device accepts a connection, hands it to
// the notifier for exactly one frame, then closes it. A host dials the
// destination on Write and collects the reply with AwaitReply.
package ip

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoConnection = errors.New("ip: no open connection")
	ErrNotListening = errors.New("ip: controller is not listening")
)

// Options configures a Controller.
type Options struct {
	Settings    address.Settings
	DialTimeout time.Duration
	// IOTimeout bounds each accepted exchange. Zero disables the deadline.
	IOTimeout time.Duration
	Retry     transport.Backoff
}

func DefaultOptions() Options {
	return Options{
		Settings:    address.DefaultSettings(),
		DialTimeout: 3 * time.Second,
		IOTimeout:   10 * time.Second,
		Retry:       transport.DefaultBackoff(),
	}
}

// Controller is a transport.Controller over TCP.
type Controller struct {
	opts Options

	mu     sync.Mutex
	ln     net.Listener
	conn   net.Conn
	peer   address.Address
	rng    *rand.Rand
	closed bool
}

func New(opts Options) *Controller {
	if opts.Settings == (address.Settings{}) {
		opts.Settings = address.DefaultSettings()
	}
	return &Controller{opts: opts, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (c *Controller) Kind() transport.Kind { return transport.KindIP }

// Listen binds the device side. An empty addr listens on the default port.
func (c *Controller) Listen(addr string) error {
	if addr == "" {
		addr = fmt.Sprintf(":%d", c.opts.Settings.DefaultPort)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ip: listen %s: %w", addr, err)
	}
	c.mu.Lock()
	c.ln = ln
	c.mu.Unlock()
	log.Info().Str("addr", ln.Addr().String()).Msg("ip.listen")
	return nil
}

// Addr is the bound listener address, nil before Listen.
func (c *Controller) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Serve accepts connections until ctx is done or the listener is closed.
// Each connection carries one frame: notify, then close.
func (c *Controller) Serve(ctx context.Context, n transport.Notifier) error {
	c.mu.Lock()
	ln := c.ln
	c.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ip: accept: %w", err)
		}
		c.exchange(conn, n)
	}
}

func (c *Controller) exchange(conn net.Conn, n transport.Notifier) {
	peer, err := c.fromNetAddr(conn.RemoteAddr())
	if err != nil {
		log.Warn().Err(err).Msg("ip.accept unknown peer")
		conn.Close()
		return
	}
	if c.opts.IOTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.opts.IOTimeout))
	}
	if !c.attach(conn, peer) {
		return
	}
	defer c.detach()

	if err := n.DataAvailable(c, peer, 0); err != nil {
		log.Warn().Err(err).Str("addr", peer.String()).Msg("ip.exchange failed")
	}
}

// Connect dials dst, retrying with backoff, and makes it the open
// connection.
func (c *Controller) Connect(ctx context.Context, dst address.Address) error {
	_, err := c.dial(ctx, dst)
	return err
}

func (c *Controller) dial(ctx context.Context, dst address.Address) (net.Conn, error) {
	ip, ok := dst.IP()
	if !ok {
		return nil, fmt.Errorf("ip: %s is not an IP address", dst)
	}
	port := dst.Port
	if port == 0 {
		port = c.opts.Settings.DefaultPort
	}
	target := netip.AddrPortFrom(ip, port).String()
	dialer := net.Dialer{Timeout: c.opts.DialTimeout}

	attempts := c.opts.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err == nil {
			if !c.attach(conn, address.Address{Node: dst.Node}) {
				return nil, transport.ErrClosed
			}
			log.Debug().Str("addr", target).Int("attempt", attempt).Msg("ip.connect")
			return conn, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		c.mu.Lock()
		delay := c.opts.Retry.NextDelay(attempt, c.rng)
		c.mu.Unlock()
		log.Debug().Err(err).Str("addr", target).Int("attempt", attempt).Dur("retry_in", delay).Msg("ip.connect retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("ip: dial %s: %w", target, lastErr)
}

// AwaitReply hands the open connection to n for one frame and closes it.
// The read is cut short once ctx is done, and ctx.Err is returned.
func (c *Controller) AwaitReply(ctx context.Context, n transport.Notifier) error {
	c.mu.Lock()
	conn, peer := c.conn, c.peer
	c.mu.Unlock()
	if conn == nil {
		return ErrNoConnection
	}
	defer c.detach()

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	err := n.DataAvailable(c, peer, 0)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Controller) Read(p []byte) (int, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, ErrNoConnection
	}
	return conn.Read(p)
}

// Write sends p on the open connection when it leads to dst, otherwise it
// dials dst first.
func (c *Controller) Write(dst address.Address, p []byte) (int, error) {
	c.mu.Lock()
	conn, peer, closed := c.conn, c.peer, c.closed
	c.mu.Unlock()
	if closed {
		return 0, transport.ErrClosed
	}
	if conn == nil || !peer.Equal(dst) {
		var err error
		if conn, err = c.dial(context.Background(), dst); err != nil {
			return 0, err
		}
	}
	return conn.Write(p)
}

// Close stops the listener and drops the open connection.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	var err error
	if c.ln != nil {
		err = c.ln.Close()
		c.ln = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return err
}

// attach makes conn the open connection. A closed controller refuses it.
func (c *Controller) attach(conn net.Conn, peer address.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return false
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.peer = peer
	return true
}

func (c *Controller) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.peer = address.Address{}
}

func (c *Controller) fromNetAddr(a net.Addr) (address.Address, error) {
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return address.Address{}, fmt.Errorf("ip: peer %q: %w", a, err)
	}
	ip := ap.Addr().Unmap()
	raw := ip.AsSlice()
	kind := address.KindIPv4
	if ip.Is6() {
		kind = address.KindIPv6
	}
	return address.FromRaw(raw, kind, ap.Port())
}
