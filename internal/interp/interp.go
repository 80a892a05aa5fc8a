// Package interp holds the payload interpreters a router dispatches to.
//
// Interpreters are kept in an append-only Chain and tried in order. For an
// inbound request the first non-nil reply wins; for an inbound reply the
// first interpreter that accepts it wins. Replies no interpreter accepts are
// dropped: callers must not rely on every reply reaching a handler.
package interp

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/buffer"
	"github.com/danmuck/syndesi/internal/protocol/frame"
)

// ErrInvalidPayload marks a request an interpreter recognised but could not
// serve. The router answers it with an INVALID_PAYLOAD error frame.
var ErrInvalidPayload = errors.New("interp: invalid payload")

// Type tags an interpreter's payload family.
type Type uint8

const (
	TypeError Type = iota + 1
	TypeRaw
	TypeCommand
)

func (t Type) String() string {
	switch t {
	case TypeError:
		return "ERROR"
	case TypeRaw:
		return "RAW"
	case TypeCommand:
		return "COMMAND"
	default:
		return fmt.Sprintf("TYPE_%d", uint8(t))
	}
}

// Interpreter is one payload codec.
type Interpreter interface {
	Type() Type
	// ParseRequest returns the reply to send back, or nil when the request
	// does not belong to this interpreter.
	ParseRequest(src address.Address, payload *buffer.Buffer) (frame.Payload, error)
	// ParseReply reports whether the interpreter accepted the reply.
	ParseReply(src address.Address, payload *buffer.Buffer) bool
}

// Info is the listing form of a chain entry.
type Info struct {
	Position int    `json:"position"`
	Type     string `json:"type"`
}

// Chain is an append-only, ordered list of interpreters.
type Chain struct {
	mu    sync.RWMutex
	items []Interpreter
}

func NewChain(items ...Interpreter) *Chain {
	c := &Chain{}
	for _, it := range items {
		c.Append(it)
	}
	return c
}

// Append adds it at the tail. Nil interpreters are ignored.
func (c *Chain) Append(it Interpreter) {
	if it == nil {
		return
	}
	c.mu.Lock()
	c.items = append(c.items, it)
	c.mu.Unlock()
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Chain) snapshot() []Interpreter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Interpreter(nil), c.items...)
}

// List describes the chain in dispatch order.
func (c *Chain) List() []Info {
	items := c.snapshot()
	out := make([]Info, 0, len(items))
	for i, it := range items {
		out = append(out, Info{Position: i, Type: it.Type().String()})
	}
	return out
}

// Request offers an inbound request to every non-ERROR interpreter in order
// and returns the first reply. ok is false when no interpreter claimed it.
func (c *Chain) Request(src address.Address, payload *buffer.Buffer) (reply frame.Payload, ok bool, err error) {
	for _, it := range c.snapshot() {
		if it.Type() == TypeError {
			continue
		}
		r, err := it.ParseRequest(src, payload)
		if err != nil {
			return nil, true, fmt.Errorf("%s: %w", it.Type(), err)
		}
		if r != nil {
			return r, true, nil
		}
	}
	return nil, false, nil
}

// Reply offers an inbound reply to the chain. Error frames go only to
// ERROR interpreters; other replies go to every interpreter in order until
// one accepts.
func (c *Chain) Reply(src address.Address, payload *buffer.Buffer, isError bool) bool {
	for _, it := range c.snapshot() {
		if (it.Type() == TypeError) != isError {
			continue
		}
		if it.ParseReply(src, payload) {
			return true
		}
	}
	return false
}
