package device

import (
	"errors"
	"fmt"
	"sync"
)

var ErrNoInterface = errors.New("device: no such interface")

// SPI is a set of loopback SPI interfaces: a full-duplex transfer clocks the
// previous write back out, zero-padded or truncated to the new length.
type SPI struct {
	mu   sync.Mutex
	last [][]byte
}

func NewSPI(interfaces int) *SPI {
	return &SPI{last: make([][]byte, interfaces)}
}

// Transfer writes tx and returns what was shifted in during the transfer.
func (s *SPI) Transfer(iface uint8, tx []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(iface) >= len(s.last) {
		return nil, fmt.Errorf("%w: spi %d", ErrNoInterface, iface)
	}
	rx := make([]byte, len(tx))
	copy(rx, s.last[iface])
	s.last[iface] = append([]byte(nil), tx...)
	return rx, nil
}

// Write is a transfer whose received bytes are discarded.
func (s *SPI) Write(iface uint8, tx []byte) error {
	_, err := s.Transfer(iface, tx)
	return err
}

// I2C is a set of I2C buses with one memory per 7-bit target address. A
// write replaces the target's memory; a read returns length bytes from its
// start, zero-padded.
type I2C struct {
	mu     sync.Mutex
	buses  int
	memory map[i2cTarget][]byte
}

type i2cTarget struct {
	iface uint8
	addr  uint8
}

func NewI2C(interfaces int) *I2C {
	return &I2C{buses: interfaces, memory: make(map[i2cTarget][]byte)}
}

func (b *I2C) Read(iface, addr uint8, length uint16) ([]byte, error) {
	if err := b.check(iface, addr); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, length)
	copy(out, b.memory[i2cTarget{iface, addr}])
	return out, nil
}

func (b *I2C) Write(iface, addr uint8, data []byte) error {
	if err := b.check(iface, addr); err != nil {
		return err
	}
	b.mu.Lock()
	b.memory[i2cTarget{iface, addr}] = append([]byte(nil), data...)
	b.mu.Unlock()
	return nil
}

func (b *I2C) check(iface, addr uint8) error {
	if int(iface) >= b.buses {
		return fmt.Errorf("%w: i2c %d", ErrNoInterface, iface)
	}
	if addr > 0x7F {
		return fmt.Errorf("device: i2c address 0x%02X exceeds 7 bits", addr)
	}
	return nil
}
