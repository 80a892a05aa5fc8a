package interp

import (
	"fmt"

	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/buffer"
	"github.com/danmuck/syndesi/internal/protocol/command"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/danmuck/syndesi/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Command serves tagged command payloads through a registry. Tags the
// registry does not hold are passed on to the next interpreter.
type Command struct {
	Registry *command.Registry
}

func NewCommand(reg *command.Registry) *Command {
	return &Command{Registry: reg}
}

func (c *Command) Type() Type { return TypeCommand }

func (c *Command) ParseRequest(src address.Address, payload *buffer.Buffer) (frame.Payload, error) {
	raw := payload.Bytes()
	tag, err := command.PeekTag(raw)
	if err != nil {
		return nil, nil
	}
	entry, ok := c.Registry.Resolve(tag)
	if !ok || entry.ParseRequest == nil {
		return nil, nil
	}
	req, err := command.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := validate(tag, schema.Request, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	reply, err := entry.ParseRequest(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, tag, err)
	}
	if reply == nil {
		return nil, nil
	}
	log.Debug().Str("addr", src.String()).Stringer("cmd", tag).Stringer("reply", reply.Tag).Msg("interp.command request")
	return reply, nil
}

func (c *Command) ParseReply(src address.Address, payload *buffer.Buffer) bool {
	raw := payload.Bytes()
	tag, err := command.PeekTag(raw)
	if err != nil {
		return false
	}
	entry, ok := c.Registry.Resolve(tag)
	if !ok || entry.HandleReply == nil {
		return false
	}
	reply, err := command.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Str("addr", src.String()).Stringer("cmd", tag).Msg("interp.command bad reply")
		return false
	}
	if err := validate(tag, schema.Reply, reply); err != nil {
		log.Warn().Err(err).Str("addr", src.String()).Stringer("cmd", tag).Msg("interp.command bad reply")
		return false
	}
	if err := entry.HandleReply(reply); err != nil {
		log.Warn().Err(err).Str("addr", src.String()).Stringer("cmd", tag).Msg("interp.command reply handler")
	}
	return true
}

// validate applies the schema when one exists for tag. Tags registered
// without a schema are passed through.
func validate(tag schema.Tag, dir schema.Direction, p *command.Payload) error {
	if _, ok := schema.Requirements(tag, dir); !ok {
		return nil
	}
	return schema.Validate(tag, dir, p.Fields)
}
