package config

import (
	"fmt"
	"time"

	"github.com/danmuck/syndesi/internal/protocol"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/danmuck/syndesi/internal/transport"
	"github.com/danmuck/syndesi/internal/transport/ip"
)

const (
	DefaultPort       = protocol.DefaultPort
	DefaultMaxHops    = address.DefaultMaxHops
	DefaultMaxPayload = frame.MaxLength
)

// Settings is the address-parsing view of the network section.
func (c Config) Settings() address.Settings {
	return address.Settings{DefaultPort: c.Network.Port, MaxHops: c.Network.MaxHops}
}

func (c Config) Limits() frame.Limits {
	return frame.Limits{MaxLength: c.Network.MaxPayload, Address: c.Settings()}
}

// IPOptions builds IP controller options. Durations were checked by Validate.
func (c Config) IPOptions() ip.Options {
	opts := ip.DefaultOptions()
	opts.Settings = c.Settings()
	if d, err := time.ParseDuration(c.Network.DialTimeout); err == nil {
		opts.DialTimeout = d
	}
	if d, err := time.ParseDuration(c.Network.IOTimeout); err == nil {
		opts.IOTimeout = d
	}
	return opts
}

func (c Config) SerialKind() transport.Kind {
	if c.Serial.Kind == SerialRS485 {
		return transport.KindRS485
	}
	return transport.KindUART
}

// SerialPeer parses serial.peer as an address.
func (c Config) SerialPeer() (address.Address, error) {
	a, err := address.Parse(c.Serial.Peer, c.Settings())
	if err != nil {
		return address.Address{}, fmt.Errorf("%w: serial.peer: %w", ErrInvalid, err)
	}
	return a, nil
}

// ListenAddr is node.listen, or all interfaces on the network port.
func (c Config) ListenAddr() string {
	if c.Node.Listen != "" {
		return c.Node.Listen
	}
	return fmt.Sprintf(":%d", c.Network.Port)
}

func parseDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s %q is not a positive duration", ErrInvalid, field, v)
	}
	return d, nil
}
