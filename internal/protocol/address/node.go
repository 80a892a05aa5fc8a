package address

import (
	"fmt"
	"net/netip"
)

const (
	// HeaderSize is the size of the per-node header byte.
	HeaderSize = 1

	followBit = 0x01
	kindShift = 4
	// bits 1..3 are reserved and written as zero.
	reservedMask = 0x0E
)

// Node is one hop of a route: an address of a given kind plus the service
// port used to reach it. Node is comparable with ==.
type Node struct {
	Kind Kind
	Port uint16
	raw  [16]byte
}

// NewNode builds a node from raw address bytes of the given kind.
func NewNode(kind Kind, raw []byte, port uint16) (Node, error) {
	if !kind.Valid() {
		return Node{}, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
	if len(raw) != kind.Size() {
		return Node{}, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrMalformed, kind, kind.Size(), len(raw))
	}
	n := Node{Kind: kind, Port: port}
	copy(n.raw[:], raw)
	return n, nil
}

// Raw returns a copy of the address bytes sized for the node kind.
func (n Node) Raw() []byte {
	out := make([]byte, n.Kind.Size())
	copy(out, n.raw[:])
	return out
}

// WireSize is header plus kind payload.
func (n Node) WireSize() int {
	return HeaderSize + n.Kind.Size()
}

// Equal compares address bytes and port.
func (n Node) Equal(o Node) bool {
	return n == o
}

// IP returns the node as a netip.Addr. ok is false for non-IP kinds.
func (n Node) IP() (netip.Addr, bool) {
	switch n.Kind {
	case KindIPv4:
		return netip.AddrFrom4([4]byte(n.raw[:4])), true
	case KindIPv6:
		return netip.AddrFrom16(n.raw), true
	default:
		return netip.Addr{}, false
	}
}

// Host renders the address without the port.
func (n Node) Host() string {
	if ip, ok := n.IP(); ok {
		return ip.String()
	}
	if n.Kind == KindBus {
		return fmt.Sprintf("bus:%d", n.raw[0])
	}
	return "no address"
}

func (n Node) String() string {
	if ip, ok := n.IP(); ok {
		return netip.AddrPortFrom(ip, n.Port).String()
	}
	return n.Host()
}

func (n Node) header(follow bool) byte {
	h := byte(n.Kind) << kindShift
	if follow {
		h |= followBit
	}
	return h
}

func splitHeader(h byte) (Kind, bool, error) {
	if h&reservedMask != 0 {
		return KindNone, false, fmt.Errorf("%w: reserved bits set in 0x%02X", ErrMalformed, h)
	}
	return Kind(h >> kindShift), h&followBit != 0, nil
}
