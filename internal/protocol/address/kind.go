package address

import "fmt"

// Kind tags the address family of one node. It selects the fixed payload
// size that follows the node header on the wire.
type Kind uint8

const (
	KindNone Kind = 0
	KindIPv4 Kind = 1
	KindIPv6 Kind = 2
	// KindBus is a one byte station id on a UART / RS-485 bus.
	KindBus Kind = 3
)

// Size is the payload size in bytes for k, 0 for unknown kinds.
func (k Kind) Size() int {
	switch k {
	case KindIPv4:
		return 4
	case KindIPv6:
		return 16
	case KindBus:
		return 1
	default:
		return 0
	}
}

func (k Kind) Valid() bool {
	return k.Size() > 0
}

// IsIP reports whether nodes of kind k are delivered by the IP transport.
func (k Kind) IsIP() bool {
	return k == KindIPv4 || k == KindIPv6
}

func (k Kind) String() string {
	switch k {
	case KindIPv4:
		return "ipv4"
	case KindIPv6:
		return "ipv6"
	case KindBus:
		return "bus"
	case KindNone:
		return "none"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}
