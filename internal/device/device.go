// Package device serves the built-in command set on the device side:
// discovery, a 16-bit register bank, and loopback SPI / I2C buses.
package device

import (
	"fmt"

	"github.com/danmuck/syndesi/internal/protocol/command"
	"github.com/danmuck/syndesi/internal/protocol/schema"
	"github.com/danmuck/syndesi/internal/protocol/tlv"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ProtocolVersion is reported in DEVICE_DISCOVER replies.
const ProtocolVersion uint32 = 1

// Identity is what a device answers to DEVICE_DISCOVER.
type Identity struct {
	ID            uuid.UUID `json:"id"`
	DeviceVersion uint32    `json:"device_version"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
}

// IdentityFor derives a stable identity from a node id. Ids that are not
// UUIDs are hashed into a name-based UUID.
func IdentityFor(nodeID, name, description string) Identity {
	id, err := uuid.Parse(nodeID)
	if err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(nodeID))
	}
	return Identity{ID: id, Name: name, Description: description}
}

type Options struct {
	SPIInterfaces int
	I2CInterfaces int
}

func DefaultOptions() Options {
	return Options{SPIInterfaces: 1, I2CInterfaces: 1}
}

// Device holds the state behind the command handlers.
type Device struct {
	identity  Identity
	Registers *RegisterBank
	SPI       *SPI
	I2C       *I2C
}

func New(id Identity, opts Options) *Device {
	return &Device{
		identity:  id,
		Registers: NewRegisterBank(),
		SPI:       NewSPI(opts.SPIInterfaces),
		I2C:       NewI2C(opts.I2CInterfaces),
	}
}

func (d *Device) Identity() Identity { return d.identity }

// Register installs a request handler for every command the device serves.
func (d *Device) Register(reg *command.Registry) error {
	entries := []command.Entry{
		{Tag: schema.CmdDeviceDiscover, ParseRequest: d.discover},
		{Tag: schema.CmdRegisterRead16, ParseRequest: d.registerRead},
		{Tag: schema.CmdRegisterWrite16, ParseRequest: d.registerWrite},
		{Tag: schema.CmdSPIReadWrite, ParseRequest: d.spiReadWrite},
		{Tag: schema.CmdSPIWriteOnly, ParseRequest: d.spiWriteOnly},
		{Tag: schema.CmdI2CRead, ParseRequest: d.i2cRead},
		{Tag: schema.CmdI2CWrite, ParseRequest: d.i2cWrite},
	}
	for _, e := range entries {
		if err := reg.Register(e); err != nil {
			return fmt.Errorf("device: register %s: %w", e.Tag, err)
		}
	}
	return nil
}

func (d *Device) discover(*command.Payload) (*command.Payload, error) {
	id := d.identity.ID
	return command.New(schema.CmdDeviceDiscover,
		tlv.Bytes(schema.FieldDeviceID, id[:]),
		tlv.U32(schema.FieldProtocolVersion, ProtocolVersion),
		tlv.U32(schema.FieldDeviceVersion, d.identity.DeviceVersion),
		tlv.String(schema.FieldName, d.identity.Name),
		tlv.String(schema.FieldDescription, d.identity.Description),
	), nil
}

func (d *Device) registerRead(req *command.Payload) (*command.Payload, error) {
	m, err := req.Message(schema.Request)
	if err != nil {
		return nil, err
	}
	addr, _ := m.U16(schema.FieldAddress)
	v := d.Registers.Read(addr)
	log.Debug().Uint16("reg", addr).Uint16("value", v).Msg("device.register read")
	return command.New(schema.CmdRegisterRead16, tlv.U16(schema.FieldValue, v)), nil
}

func (d *Device) registerWrite(req *command.Payload) (*command.Payload, error) {
	m, err := req.Message(schema.Request)
	if err != nil {
		return nil, err
	}
	addr, _ := m.U16(schema.FieldAddress)
	v, _ := m.U16(schema.FieldValue)
	d.Registers.Write(addr, v)
	log.Debug().Uint16("reg", addr).Uint16("value", v).Msg("device.register write")
	return status(schema.CmdRegisterWrite16, nil), nil
}

func (d *Device) spiReadWrite(req *command.Payload) (*command.Payload, error) {
	m, err := req.Message(schema.Request)
	if err != nil {
		return nil, err
	}
	iface, _ := m.U8(schema.FieldInterface)
	tx, _ := m.Bytes(schema.FieldData)
	rx, err := d.SPI.Transfer(iface, tx)
	if err != nil {
		return failure(schema.CmdSPIReadWrite, err), nil
	}
	return command.New(schema.CmdSPIReadWrite, tlv.Bytes(schema.FieldData, rx)), nil
}

func (d *Device) spiWriteOnly(req *command.Payload) (*command.Payload, error) {
	m, err := req.Message(schema.Request)
	if err != nil {
		return nil, err
	}
	iface, _ := m.U8(schema.FieldInterface)
	tx, _ := m.Bytes(schema.FieldData)
	return status(schema.CmdSPIWriteOnly, d.SPI.Write(iface, tx)), nil
}

func (d *Device) i2cRead(req *command.Payload) (*command.Payload, error) {
	m, err := req.Message(schema.Request)
	if err != nil {
		return nil, err
	}
	iface, _ := m.U8(schema.FieldInterface)
	addr, _ := m.U8(schema.FieldI2CAddress)
	n, _ := m.U16(schema.FieldLength)
	data, err := d.I2C.Read(iface, addr, n)
	if err != nil {
		return failure(schema.CmdI2CRead, err), nil
	}
	return command.New(schema.CmdI2CRead, tlv.Bytes(schema.FieldData, data)), nil
}

func (d *Device) i2cWrite(req *command.Payload) (*command.Payload, error) {
	m, err := req.Message(schema.Request)
	if err != nil {
		return nil, err
	}
	iface, _ := m.U8(schema.FieldInterface)
	addr, _ := m.U8(schema.FieldI2CAddress)
	data, _ := m.Bytes(schema.FieldData)
	return status(schema.CmdI2CWrite, d.I2C.Write(iface, addr, data)), nil
}

// status answers a write command with OK, or NOK when err is set.
func status(tag schema.Tag, err error) *command.Payload {
	s := schema.StatusOK
	if err != nil {
		log.Warn().Err(err).Stringer("cmd", tag).Msg("device.command failed")
		s = schema.StatusNOK
	}
	return command.New(tag, tlv.U8(schema.FieldStatus, s))
}

// failure answers a read command that could not be served with an ERROR
// command reply.
func failure(tag schema.Tag, err error) *command.Payload {
	log.Warn().Err(err).Stringer("cmd", tag).Msg("device.command failed")
	return command.New(schema.CmdError, tlv.U8(schema.FieldErrorCode, schema.ErrCodeOther))
}
