// Package router sends request frames and dispatches inbound frames.
//
// An inbound frame from a peer with a pending request is a confirm and goes
// to the interpreters' reply side. Any other inbound frame is an indication:
// the interpreters produce a reply, or the router answers with an error
// frame, and the answer is written back on the controller that delivered it.
//
// Pending requests match on head address and port only, first match wins.
package router

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/syndesi/internal/capture"
	"github.com/danmuck/syndesi/internal/interp"
	"github.com/danmuck/syndesi/internal/observability"
	"github.com/danmuck/syndesi/internal/protocol"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/danmuck/syndesi/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoController = errors.New("router: no controller for destination")
	ErrUnroutable   = errors.New("router: destination has no routable address")
)

// Class is how an inbound frame was handled.
type Class uint8

const (
	ClassIndication Class = iota + 1
	ClassConfirm
	// ClassDropped is a confirm no interpreter accepted.
	ClassDropped
)

func (c Class) String() string {
	switch c {
	case ClassIndication:
		return "indication"
	case ClassConfirm:
		return "confirm"
	case ClassDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Options configures a Router.
type Options struct {
	// NodeID labels logs and metrics.
	NodeID string
	Limits frame.Limits
	// Tap, when set, receives every frame read or written.
	Tap capture.Tap
	Now func() time.Time
}

// Router owns the controller table, the pending-request table and the
// interpreter chain.
type Router struct {
	opts    Options
	chain   *interp.Chain
	pending *PendingTable

	mu          sync.RWMutex
	controllers map[transport.Kind]transport.Controller
}

func New(chain *interp.Chain, opts Options) *Router {
	if chain == nil {
		chain = interp.NewChain()
	}
	if opts.Limits.MaxLength == 0 && opts.Limits.Address == (address.Settings{}) {
		opts.Limits = frame.DefaultLimits()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{
		opts:        opts,
		chain:       chain,
		pending:     NewPendingTable(),
		controllers: make(map[transport.Kind]transport.Controller, len(transport.Kinds)),
	}
}

// RegisterController installs c in the slot for its kind, replacing any
// previous controller of that kind.
func (r *Router) RegisterController(c transport.Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[c.Kind()] = c
	log.Debug().Str("node", r.opts.NodeID).Stringer("kind", c.Kind()).Msg("router.register_controller")
}

// Controller returns the controller registered for kind.
func (r *Router) Controller(kind transport.Kind) (transport.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[kind]
	return c, ok
}

// ControllerFor picks the controller that reaches dst. Bus stations go to
// RS-485 when registered and UART otherwise.
func (r *Router) ControllerFor(dst address.Address) (transport.Controller, error) {
	switch {
	case dst.Kind.IsIP():
		if c, ok := r.Controller(transport.KindIP); ok {
			return c, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoController, dst)
	case dst.Kind == address.KindBus:
		if c, ok := r.Controller(transport.KindRS485); ok {
			return c, nil
		}
		if c, ok := r.Controller(transport.KindUART); ok {
			return c, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoController, dst)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnroutable, dst)
	}
}

// Interpreters is the dispatch chain.
func (r *Router) Interpreters() *interp.Chain {
	return r.chain
}

// Pending returns the outstanding requests in send order.
func (r *Router) Pending() []PendingRequest {
	return r.pending.List()
}

func (r *Router) NodeID() string {
	return r.opts.NodeID
}

// Request writes f to the controller for f.Addr and records the request as
// pending. The entry is queued before the write so a reply that arrives
// while Request is returning is still a confirm; it is removed again if the
// write fails.
func (r *Router) Request(f *frame.Frame) error {
	c, err := r.ControllerFor(f.Addr)
	if err != nil {
		return err
	}
	n := r.pending.Push(f.Addr, r.opts.Now())
	if err := r.write(c, f); err != nil {
		r.pending.Drop(f.Addr)
		observability.SetPendingRequests(r.opts.NodeID, r.pending.Len())
		log.Warn().Err(err).Str("node", r.opts.NodeID).Str("addr", f.Addr.String()).Msg("router.request failed")
		return fmt.Errorf("router: request to %s: %w", f.Addr, err)
	}
	observability.SetPendingRequests(r.opts.NodeID, n)
	log.Debug().Str("node", r.opts.NodeID).Str("addr", f.Addr.String()).Int("len", f.Len()).Int("pending", n).Msg("router.request")
	return nil
}

// Cancel withdraws the latest pending request to dst, for callers that
// stop waiting before its confirm arrives. It reports whether one was found.
func (r *Router) Cancel(dst address.Address) bool {
	ok := r.pending.Drop(dst)
	if ok {
		observability.SetPendingRequests(r.opts.NodeID, r.pending.Len())
		log.Debug().Str("node", r.opts.NodeID).Str("addr", dst.String()).Msg("router.cancel")
	}
	return ok
}

// Send is Request reporting only success.
func (r *Router) Send(f *frame.Frame) bool {
	return r.Request(f) == nil
}

// RequestPayload builds a frame for p and dst and sends it with Request.
func (r *Router) RequestPayload(p frame.Payload, dst address.Address) error {
	f, err := frame.Build(p, dst)
	if err != nil {
		return err
	}
	defer f.Release()
	return r.Request(f)
}

// DataAvailable implements transport.Notifier.
func (r *Router) DataAvailable(c transport.Controller, src address.Address, _ int) error {
	_, err := r.Dispatch(c, src)
	return err
}

// Dispatch reads one frame from c and handles it as a confirm or an
// indication. Transport failures are returned; protocol failures become
// error frames sent back to src.
func (r *Router) Dispatch(c transport.Controller, src address.Address) (Class, error) {
	f, err := frame.ReadFrame(c, r.opts.Limits)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Warn().Err(err).Str("node", r.opts.NodeID).Str("addr", src.String()).Msg("router.read failed")
		}
		return 0, err
	}
	defer f.Release()
	f.Addr = src
	r.observe(capture.In, f)

	if _, ok := r.pending.Take(src); ok {
		observability.SetPendingRequests(r.opts.NodeID, r.pending.Len())
		return r.confirm(f), nil
	}
	return ClassIndication, r.indication(c, f)
}

func (r *Router) confirm(f *frame.Frame) Class {
	class := ClassConfirm
	if !r.chain.Reply(f.Addr, f.Payload(), f.IsError()) {
		class = ClassDropped
		log.Warn().
			Str("node", r.opts.NodeID).
			Str("addr", f.Addr.String()).
			Bool("error_frame", f.IsError()).
			Int("len", f.Len()).
			Msg("router.confirm dropped: no interpreter accepted the reply")
	} else {
		log.Debug().Str("node", r.opts.NodeID).Str("addr", f.Addr.String()).Msg("router.confirm")
	}
	observability.RecordDispatch(r.opts.NodeID, class.String())
	return class
}

func (r *Router) indication(c transport.Controller, f *frame.Frame) error {
	observability.RecordDispatch(r.opts.NodeID, ClassIndication.String())
	if f.IsError() {
		code, _ := f.ErrorCode()
		log.Warn().Str("node", r.opts.NodeID).Str("addr", f.Addr.String()).Stringer("code", code).Msg("router.indication unsolicited error frame")
		return r.replyError(c, f.Addr, protocol.InvalidPayload)
	}

	reply, ok, err := r.chain.Request(f.Addr, f.Payload())
	switch {
	case err != nil:
		log.Warn().Err(err).Str("node", r.opts.NodeID).Str("addr", f.Addr.String()).Msg("router.indication invalid payload")
		return r.replyError(c, f.Addr, protocol.InvalidPayload)
	case !ok:
		log.Debug().Str("node", r.opts.NodeID).Str("addr", f.Addr.String()).Msg("router.indication no interpreter")
		return r.replyError(c, f.Addr, protocol.NoInterpreter)
	}

	out, err := frame.Build(reply, f.Addr)
	if err != nil {
		log.Error().Err(err).Str("node", r.opts.NodeID).Str("addr", f.Addr.String()).Msg("router.indication reply build failed")
		return r.replyError(c, f.Addr, protocol.InvalidPayload)
	}
	defer out.Release()
	if err := r.write(c, out); err != nil {
		return fmt.Errorf("router: reply to %s: %w", f.Addr, err)
	}
	log.Debug().Str("node", r.opts.NodeID).Str("addr", f.Addr.String()).Int("len", out.Len()).Msg("router.indication replied")
	return nil
}

func (r *Router) replyError(c transport.Controller, dst address.Address, code protocol.ErrorCode) error {
	out := frame.BuildError(code, dst)
	defer out.Release()
	observability.RecordErrorFrame(r.opts.NodeID, code.String())
	if err := r.write(c, out); err != nil {
		return fmt.Errorf("router: error frame to %s: %w", dst, err)
	}
	return nil
}

func (r *Router) write(c transport.Controller, f *frame.Frame) error {
	if err := transport.WriteFull(c, f.Addr, f.Bytes()); err != nil {
		return err
	}
	r.observe(capture.Out, f)
	return nil
}

func (r *Router) observe(dir capture.Direction, f *frame.Frame) {
	direction := observability.DirectionIn
	if dir == capture.Out {
		direction = observability.DirectionOut
	}
	observability.RecordFrame(r.opts.NodeID, direction, f.IsError(), f.Len())
	if r.opts.Tap == nil {
		return
	}
	if err := r.opts.Tap.Record(dir, f.Addr, f.Bytes()); err != nil {
		log.Warn().Err(err).Str("node", r.opts.NodeID).Msg("router.capture failed")
	}
}
