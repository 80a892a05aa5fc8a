package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/syndesi/internal/protocol/schema"
)

var (
	ErrEntryExists    = errors.New("command: entry already exists")
	ErrInvalidEntry   = errors.New("command: invalid entry")
	ErrUnknownCommand = errors.New("command: unknown command")
)

// RequestFunc serves an inbound request and returns the reply to send back.
type RequestFunc func(req *Payload) (*Payload, error)

// ReplyFunc consumes the reply to a request this node sent.
type ReplyFunc func(reply *Payload) error

// Entry binds one command tag to its factories. Either side may be nil: a
// device registers ParseRequest, a host registers HandleReply.
type Entry struct {
	Tag          schema.Tag
	Name         string
	ParseRequest RequestFunc
	HandleReply  ReplyFunc
}

// Info is the listing form of an Entry.
type Info struct {
	Tag      string `json:"tag"`
	Name     string `json:"name"`
	Requests bool   `json:"requests"`
	Replies  bool   `json:"replies"`
}

// Registry stores entries by tag. It is populated at startup and read by the
// command interpreter on every frame.
type Registry struct {
	mu    sync.RWMutex
	items map[schema.Tag]Entry
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[schema.Tag]Entry)}
}

// Register adds an entry. Duplicate tags are rejected.
func (r *Registry) Register(e Entry) error {
	if e.Tag == schema.CmdNone {
		return fmt.Errorf("%w: NO_COMMAND cannot be registered", ErrInvalidEntry)
	}
	if e.ParseRequest == nil && e.HandleReply == nil {
		return fmt.Errorf("%w: %s has no factory", ErrInvalidEntry, e.Tag)
	}
	if strings.TrimSpace(e.Name) == "" {
		e.Name = e.Tag.String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[e.Tag]; ok {
		return fmt.Errorf("%w: %s", ErrEntryExists, e.Tag)
	}
	r.items[e.Tag] = e
	return nil
}

// Resolve returns the entry for tag.
func (r *Registry) Resolve(tag schema.Tag) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[tag]
	return e, ok
}

// Len is the number of registered tags.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// List returns deterministic ordering by tag.
func (r *Registry) List() []Info {
	r.mu.RLock()
	list := make([]Entry, 0, len(r.items))
	for _, e := range r.items {
		list = append(list, e)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Tag < list[j].Tag
	})
	out := make([]Info, 0, len(list))
	for _, e := range list {
		out = append(out, Info{
			Tag:      fmt.Sprintf("0x%04X", uint16(e.Tag)),
			Name:     e.Name,
			Requests: e.ParseRequest != nil,
			Replies:  e.HandleReply != nil,
		})
	}
	return out
}
