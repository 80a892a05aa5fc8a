package interp

import (
	"encoding/binary"

	"github.com/danmuck/syndesi/internal/protocol"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/buffer"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Error decodes error frames sent by a peer. It never serves requests.
type Error struct {
	OnError func(src address.Address, code protocol.ErrorCode)
}

func (e *Error) Type() Type { return TypeError }

func (e *Error) ParseRequest(address.Address, *buffer.Buffer) (frame.Payload, error) {
	return nil, nil
}

func (e *Error) ParseReply(src address.Address, payload *buffer.Buffer) bool {
	raw := payload.Bytes()
	if len(raw) != protocol.ErrorCodeSize {
		log.Warn().Str("addr", src.String()).Int("len", len(raw)).Msg("interp.error bad code size")
		return false
	}
	code := protocol.ErrorCode(binary.BigEndian.Uint16(raw))
	log.Debug().Str("addr", src.String()).Stringer("code", code).Msg("interp.error")
	if e.OnError != nil {
		e.OnError(src, code)
	}
	return true
}
