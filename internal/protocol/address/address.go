package address

import (
	"strings"

	"github.com/danmuck/syndesi/internal/protocol"
)

// Settings carries the process-wide values address parsing depends on.
type Settings struct {
	DefaultPort uint16
	MaxHops     int
}

func DefaultSettings() Settings {
	return Settings{
		DefaultPort: protocol.DefaultPort,
		MaxHops:     DefaultMaxHops,
	}
}

func (s Settings) maxHops() int {
	if s.MaxHops <= 0 {
		return DefaultMaxHops
	}
	return s.MaxHops
}

func (s Settings) port(p uint16) uint16 {
	if p > 0 {
		return p
	}
	if s.DefaultPort > 0 {
		return s.DefaultPort
	}
	return protocol.DefaultPort
}

// Address identifies a peer: the head node is the transport destination and
// Hops is the route the peer forwards along. Only Hops is written into a
// frame; the head is implied by the link the frame travels on.
type Address struct {
	Node
	Hops Chain
}

// FromRaw builds a single node address from wire bytes of a known kind.
func FromRaw(raw []byte, kind Kind, port uint16) (Address, error) {
	n, err := NewNode(kind, raw, port)
	if err != nil {
		return Address{}, err
	}
	return Address{Node: n}, nil
}

// Clone returns a deep copy.
func (a Address) Clone() Address {
	out := Address{Node: a.Node}
	if len(a.Hops) > 0 {
		out.Hops = append(Chain(nil), a.Hops...)
	}
	return out
}

// Append attaches n at the tail of the route.
func (a *Address) Append(n Node) {
	a.Hops = append(a.Hops, n)
}

// Depth is the number of nodes including the head.
func (a Address) Depth() int {
	return 1 + len(a.Hops)
}

// Reroutes is the chain length minus one.
func (a Address) Reroutes() int {
	return len(a.Hops)
}

// TotalAddressingSize is the number of addressing bytes a frame carries for a.
func (a Address) TotalAddressingSize() int {
	return a.Hops.Size()
}

// BuildAddressing writes the route into dst.
func (a Address) BuildAddressing(dst []byte) (int, error) {
	return a.Hops.Build(dst)
}

// Equal compares only the head node (address bytes and port). The route is
// routing metadata, not identity.
func (a Address) Equal(o Address) bool {
	return a.Node == o.Node
}

func (a Address) String() string {
	if len(a.Hops) == 0 {
		return a.Node.String()
	}
	parts := make([]string, 0, a.Depth())
	parts = append(parts, a.Node.String())
	for _, n := range a.Hops {
		parts = append(parts, n.String())
	}
	return strings.Join(parts, RouteSeparator)
}
