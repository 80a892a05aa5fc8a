package interp

import (
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/buffer"
	"github.com/danmuck/syndesi/internal/protocol/frame"
)

// Raw hands payload bytes to callbacks untouched. It accepts every reply, so
// it belongs at the tail of a chain.
type Raw struct {
	// OnRequest returns the reply bytes, or nil to pass the request on.
	OnRequest func(src address.Address, req []byte) []byte
	OnReply   func(src address.Address, reply []byte)
}

func (r *Raw) Type() Type { return TypeRaw }

func (r *Raw) ParseRequest(src address.Address, payload *buffer.Buffer) (frame.Payload, error) {
	if r.OnRequest == nil {
		return nil, nil
	}
	out := r.OnRequest(src, payload.Bytes())
	if out == nil {
		return nil, nil
	}
	return frame.Bytes(out), nil
}

func (r *Raw) ParseReply(src address.Address, payload *buffer.Buffer) bool {
	if r.OnReply != nil {
		r.OnReply(src, append([]byte(nil), payload.Bytes()...))
	}
	return true
}

// Echo is a Raw request callback that answers with the request bytes.
func Echo(_ address.Address, req []byte) []byte {
	return append([]byte{}, req...)
}
