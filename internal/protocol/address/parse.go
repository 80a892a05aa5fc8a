package address

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// RouteSeparator joins the nodes of a textual route, head first.
const RouteSeparator = ">"

// Parse reads one node from text: a dotted-quad IPv4 literal with an optional
// ":port", a bracketed IPv6 literal with optional port, a bare IPv6 literal,
// or "bus:<id>". A missing or zero port takes the settings default.
func Parse(text string, s Settings) (Address, error) {
	n, err := parseNode(strings.TrimSpace(text), s)
	if err != nil {
		return Address{}, err
	}
	return Address{Node: n}, nil
}

// ParseRoute reads "head>hop>hop". Every node is parsed with Parse rules.
func ParseRoute(text string, s Settings) (Address, error) {
	parts := strings.Split(text, RouteSeparator)
	if len(parts)-1 > s.maxHops() {
		return Address{}, fmt.Errorf("%w: %d hops, limit %d", ErrTooManyHops, len(parts)-1, s.maxHops())
	}
	head, err := Parse(parts[0], s)
	if err != nil {
		return Address{}, err
	}
	for _, p := range parts[1:] {
		n, err := parseNode(strings.TrimSpace(p), s)
		if err != nil {
			return Address{}, err
		}
		head.Append(n)
	}
	return head, nil
}

func parseNode(text string, s Settings) (Node, error) {
	if text == "" {
		return Node{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if id, ok := strings.CutPrefix(text, "bus:"); ok {
		v, err := strconv.ParseUint(id, 0, 8)
		if err != nil {
			return Node{}, fmt.Errorf("%w: bus id %q", ErrMalformed, id)
		}
		return NewNode(KindBus, []byte{byte(v)}, 0)
	}
	if strings.HasPrefix(text, "[") {
		if ap, err := netip.ParseAddrPort(text); err == nil {
			return nodeFromIP(ap.Addr(), s.port(ap.Port()))
		}
		if strings.HasSuffix(text, "]") {
			if ip, err := netip.ParseAddr(text[1 : len(text)-1]); err == nil {
				return nodeFromIP(ip, s.port(0))
			}
		}
		return Node{}, fmt.Errorf("%w: %q", ErrMalformed, text)
	}
	if strings.Count(text, ":") > 1 {
		ip, err := netip.ParseAddr(text)
		if err != nil || !ip.Is6() {
			return Node{}, fmt.Errorf("%w: %q", ErrMalformed, text)
		}
		return nodeFromIP(ip, s.port(0))
	}

	host, portText, hasPort := strings.Cut(text, ":")
	var port uint64
	if hasPort {
		var err error
		port, err = strconv.ParseUint(portText, 10, 16)
		if err != nil {
			return Node{}, fmt.Errorf("%w: port %q", ErrMalformed, portText)
		}
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Is4() {
		return Node{}, fmt.Errorf("%w: %q", ErrMalformed, host)
	}
	return nodeFromIP(ip, s.port(uint16(port)))
}

func nodeFromIP(ip netip.Addr, port uint16) (Node, error) {
	if ip.Is4() || ip.Is4In6() {
		b := ip.Unmap().As4()
		return NewNode(KindIPv4, b[:], port)
	}
	b := ip.As16()
	return NewNode(KindIPv6, b[:], port)
}
