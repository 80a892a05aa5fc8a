package router

import (
	"sync"
	"time"

	"github.com/danmuck/syndesi/internal/protocol/address"
)

// PendingRequest is one outbound request awaiting its reply.
type PendingRequest struct {
	Addr     address.Address
	QueuedAt time.Time
}

// PendingTable keeps outbound requests in insertion order. Matching is by
// head address and port only, so two requests in flight to the same peer
// are resolved in the order they were sent.
type PendingTable struct {
	mu    sync.Mutex
	items []PendingRequest
}

func NewPendingTable() *PendingTable {
	return &PendingTable{}
}

func (p *PendingTable) Push(addr address.Address, at time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, PendingRequest{Addr: addr.Clone(), QueuedAt: at})
	return len(p.items)
}

// Take removes and returns the earliest entry equal to addr.
func (p *PendingTable) Take(addr address.Address) (PendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, item := range p.items {
		if item.Addr.Equal(addr) {
			p.items = append(p.items[:i], p.items[i+1:]...)
			return item, true
		}
	}
	return PendingRequest{}, false
}

// Drop removes the latest entry equal to addr. It undoes a Push whose
// request failed after being queued.
func (p *PendingTable) Drop(addr address.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.items) - 1; i >= 0; i-- {
		if p.items[i].Addr.Equal(addr) {
			p.items = append(p.items[:i], p.items[i+1:]...)
			return true
		}
	}
	return false
}

func (p *PendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// List returns a copy in insertion order.
func (p *PendingTable) List() []PendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingRequest, len(p.items))
	copy(out, p.items)
	return out
}
