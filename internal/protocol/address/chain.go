package address

import (
	"errors"
	"fmt"
)

// DefaultMaxHops bounds how many nodes are parsed from an untrusted buffer.
const DefaultMaxHops = 8

var (
	ErrMalformed   = errors.New("address: malformed address")
	ErrUnknownKind = errors.New("address: unknown address kind")
	ErrShortBuffer = errors.New("address: short buffer")
	ErrTooManyHops = errors.New("address: too many hops")
)

// Chain is an ordered route of nodes. On the wire every node is written as
// header byte then kind payload, with the follow bit set on all but the last.
type Chain []Node

// Size is the exact number of bytes Build writes.
func (c Chain) Size() int {
	total := 0
	for _, n := range c {
		total += n.WireSize()
	}
	return total
}

// Build serialises the chain into dst and returns the bytes written.
func (c Chain) Build(dst []byte) (int, error) {
	if len(dst) < c.Size() {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, c.Size(), len(dst))
	}
	pos := 0
	for i, n := range c {
		if !n.Kind.Valid() {
			return pos, fmt.Errorf("%w: node %d", ErrUnknownKind, i)
		}
		dst[pos] = n.header(i < len(c)-1)
		pos += HeaderSize
		pos += copy(dst[pos:pos+n.Kind.Size()], n.raw[:n.Kind.Size()])
	}
	return pos, nil
}

// Bytes is Build into a freshly sized slice.
func (c Chain) Bytes() ([]byte, error) {
	out := make([]byte, c.Size())
	if _, err := c.Build(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Equal compares every node of both chains.
func (c Chain) Equal(o Chain) bool {
	if len(c) != len(o) {
		return false
	}
	for i := range c {
		if c[i] != o[i] {
			return false
		}
	}
	return true
}

// ParseChain reads nodes from src while the follow bit is set. Parsed nodes
// of an IP kind get the settings default port. It returns the chain and the bytes consumed.
func ParseChain(src []byte, s Settings) (Chain, int, error) {
	maxHops := s.maxHops()
	var chain Chain
	pos := 0
	for {
		if len(chain) == maxHops {
			return nil, pos, fmt.Errorf("%w: limit %d", ErrTooManyHops, maxHops)
		}
		if pos+HeaderSize > len(src) {
			return nil, pos, fmt.Errorf("%w: node header at %d", ErrShortBuffer, pos)
		}
		kind, follow, err := splitHeader(src[pos])
		if err != nil {
			return nil, pos, err
		}
		if !kind.Valid() {
			return nil, pos, fmt.Errorf("%w: %d at %d", ErrUnknownKind, uint8(kind), pos)
		}
		pos += HeaderSize
		end := pos + kind.Size()
		if end > len(src) {
			return nil, pos, fmt.Errorf("%w: %s payload at %d", ErrShortBuffer, kind, pos)
		}
		var port uint16
		if kind.IsIP() {
			port = s.port(0)
		}
		n, _ := NewNode(kind, src[pos:end], port)
		chain = append(chain, n)
		pos = end
		if !follow {
			return chain, pos, nil
		}
	}
}
