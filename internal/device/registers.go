package device

import (
	"sort"
	"sync"
)

// RegisterBank is a 16-bit address space of 16-bit registers. Unwritten
// registers read as zero.
type RegisterBank struct {
	mu    sync.RWMutex
	store map[uint16]uint16
}

func NewRegisterBank() *RegisterBank {
	return &RegisterBank{store: make(map[uint16]uint16)}
}

func (b *RegisterBank) Read(addr uint16) uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store[addr]
}

func (b *RegisterBank) Write(addr, value uint16) {
	b.mu.Lock()
	b.store[addr] = value
	b.mu.Unlock()
}

// Register is one populated register.
type Register struct {
	Address uint16 `json:"address"`
	Value   uint16 `json:"value"`
}

// Snapshot lists populated registers in address order.
func (b *RegisterBank) Snapshot() []Register {
	b.mu.RLock()
	out := make([]Register, 0, len(b.store))
	for addr, v := range b.store {
		out = append(out, Register{Address: addr, Value: v})
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
