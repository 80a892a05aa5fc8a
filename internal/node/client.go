package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/syndesi/internal/capture"
	"github.com/danmuck/syndesi/internal/config"
	"github.com/danmuck/syndesi/internal/interp"
	"github.com/danmuck/syndesi/internal/protocol"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/command"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/danmuck/syndesi/internal/protocol/schema"
	"github.com/danmuck/syndesi/internal/router"
	"github.com/danmuck/syndesi/internal/transport"
	"github.com/danmuck/syndesi/internal/transport/ip"
	"github.com/danmuck/syndesi/internal/transport/stream"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSerial = errors.New("node: bus destination needs a serial device")
	// ErrPeerMismatch means the serial line attributes inbound frames to a
	// different station than the one addressed, so no reply could match.
	ErrPeerMismatch = errors.New("node: bus destination is not the serial line's peer")
)

// Reply is what came back for one request.
type Reply struct {
	Src   address.Address
	Error bool
	// Code is set for error frames.
	Code protocol.ErrorCode
	// Payload holds the raw reply bytes of a payload frame.
	Payload []byte
	// Command is the decoded payload when it carries a known command tag.
	Command *command.Payload
}

// Err is a protocol.RemoteError for error frames and nil otherwise.
func (r Reply) Err() error {
	if !r.Error {
		return nil
	}
	return protocol.RemoteError{Code: r.Code}
}

func (r Reply) String() string {
	switch {
	case r.Error:
		return fmt.Sprintf("error from %s: %s", r.Src, r.Code)
	case r.Command != nil:
		return fmt.Sprintf("%s from %s", r.Command, r.Src)
	default:
		return fmt.Sprintf("%d bytes from %s", len(r.Payload), r.Src)
	}
}

// Client is a host node that sends one request at a time and waits for
// its confirm.
type Client struct {
	cfg     config.Config
	router  *router.Router
	ip      *ip.Controller
	serial  *stream.Controller
	tap     *capture.Writer
	replies chan Reply

	mu        sync.Mutex
	pumpStop  context.CancelFunc
	pumpDone  chan struct{}
	closeOnce sync.Once
}

// NewClient opens the host-side controllers described by cfg. The serial
// line is opened only when serial.device is set.
func NewClient(cfg config.Config) (c *Client, err error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	c = &Client{cfg: cfg, replies: make(chan Reply, 1)}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	opts := router.Options{NodeID: cfg.Node.ID, Limits: cfg.Limits()}
	if cfg.Capture.Path != "" {
		if c.tap, err = capture.Create(cfg.Capture.Path); err != nil {
			return nil, err
		}
		opts.Tap = c.tap
	}
	chain := interp.NewChain(
		&interp.Error{OnError: c.onError},
		&interp.Raw{OnReply: c.onReply},
	)
	c.router = router.New(chain, opts)

	c.ip = ip.New(cfg.IPOptions())
	c.router.RegisterController(c.ip)

	if cfg.Serial.Device != "" {
		peer, perr := cfg.SerialPeer()
		if perr != nil {
			return nil, perr
		}
		if c.serial, err = stream.Open(cfg.SerialKind(), cfg.Serial.Device, peer); err != nil {
			return nil, err
		}
		c.attachSerial(c.serial)
	}
	return c, nil
}

// attachSerial registers s and starts pumping its replies into the router.
func (c *Client) attachSerial(s *stream.Controller) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.serial, c.pumpStop, c.pumpDone = s, cancel, done
	c.mu.Unlock()
	c.router.RegisterController(s)
	go func() {
		defer close(done)
		if err := s.Pump(ctx, c.router); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("node.client serial pump stopped")
		}
	}()
}

func (c *Client) Router() *router.Router { return c.router }

func (c *Client) Settings() address.Settings { return c.cfg.Settings() }

// Do sends p to dst and waits for the matching confirm or ctx. A request
// that ends without a confirm is withdrawn from the pending table.
func (c *Client) Do(ctx context.Context, dst address.Address, p frame.Payload) (Reply, error) {
	select {
	case <-c.replies:
	default:
	}

	ctrl, err := c.router.ControllerFor(dst)
	if err != nil {
		if dst.Node.Kind == address.KindBus {
			return Reply{}, fmt.Errorf("%w: %w", ErrNoSerial, err)
		}
		return Reply{}, err
	}
	if ctrl.Kind() != transport.KindIP {
		c.mu.Lock()
		serial := c.serial
		c.mu.Unlock()
		if serial != nil && !serial.Peer().Node.Equal(dst.Node) {
			return Reply{}, fmt.Errorf("%w: %s, line peer is %s", ErrPeerMismatch, dst.Node, serial.Peer().Node)
		}
	}
	if err := c.router.RequestPayload(p, dst); err != nil {
		return Reply{}, err
	}
	if ctrl.Kind() == transport.KindIP {
		if err := c.ip.AwaitReply(ctx, c.router); err != nil {
			c.router.Cancel(dst)
			return Reply{}, fmt.Errorf("await reply from %s: %w", dst, err)
		}
	}

	select {
	case r := <-c.replies:
		return r, nil
	case <-ctx.Done():
		c.router.Cancel(dst)
		return Reply{}, ctx.Err()
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		stop, done := c.pumpStop, c.pumpDone
		c.mu.Unlock()
		if stop != nil {
			stop()
			<-done
		}
		if c.ip != nil {
			_ = c.ip.Close()
		}
		if c.serial != nil {
			_ = c.serial.Close()
		}
		if c.tap != nil {
			_ = c.tap.Close()
		}
	})
}

func (c *Client) onError(src address.Address, code protocol.ErrorCode) {
	c.deliver(Reply{Src: src, Error: true, Code: code})
}

func (c *Client) onReply(src address.Address, payload []byte) {
	r := Reply{Src: src, Payload: payload}
	if tag, err := command.PeekTag(payload); err == nil {
		if _, known := schema.Requirements(tag, schema.Reply); known {
			if p, err := command.Decode(payload); err == nil {
				r.Command = p
			}
		}
	}
	c.deliver(r)
}

// deliver keeps the newest reply when the caller has stopped waiting.
func (c *Client) deliver(r Reply) {
	for {
		select {
		case c.replies <- r:
			return
		default:
		}
		select {
		case <-c.replies:
		default:
		}
	}
}
