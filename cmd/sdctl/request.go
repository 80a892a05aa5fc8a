package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/syndesi/internal/node"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/command"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/danmuck/syndesi/internal/protocol/schema"
	"github.com/danmuck/syndesi/internal/protocol/tlv"
	"github.com/spf13/cobra"
)

type requestFlags struct {
	hexPayload string
	text       string
	discover   bool
	read       string
	write      string
	spi        string
	spiWrite   string
	i2cRead    string
	i2cWrite   string
	timeout    time.Duration
	serial     string
	kind       string
	capture    string
}

func newRequestCmd(root *rootFlags) *cobra.Command {
	flags := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "request <route>",
		Short: "Send one request and print the reply",
		Long: `Send one frame to a device and print its reply. The route is the device
address followed by optional hops, e.g. "10.0.0.5>bus:3".`,
		Example: `  sdctl request 127.0.0.1 --hex 48656c6c6f
  sdctl request 10.0.0.5:2608 --write 0x10=0xBEEF
  sdctl request bus:3 --serial /dev/ttyUSB0 --kind rs485 --read 0x10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadNodeConfig(root, "host")
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("serial") {
				cfg.Serial.Device = flags.serial
			}
			if fl.Changed("kind") {
				cfg.Serial.Kind = flags.kind
			}
			if fl.Changed("capture") {
				cfg.Capture.Path = flags.capture
			}
			dst, err := address.ParseRoute(args[0], cfg.Settings())
			if err != nil {
				return err
			}
			payload, err := buildPayload(flags)
			if err != nil {
				return err
			}
			// Replies on a serial line are attributed to its peer, which must
			// be the station addressed.
			if dst.Node.Kind == address.KindBus {
				cfg.Serial.Peer = dst.Node.String()
			}

			client, err := node.NewClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			reply, err := client.Do(ctx, dst, payload)
			if err != nil {
				return err
			}
			printReply(cmd.OutOrStdout(), reply)
			return reply.Err()
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.hexPayload, "hex", "", "Raw payload as hex")
	f.StringVar(&flags.text, "text", "", "Raw payload as text")
	f.BoolVar(&flags.discover, "discover", false, "Send DEVICE_DISCOVER")
	f.StringVar(&flags.read, "read", "", "REGISTER_READ_16 at <addr>")
	f.StringVar(&flags.write, "write", "", "REGISTER_WRITE_16 <addr>=<value>")
	f.StringVar(&flags.spi, "spi", "", "SPI_READ_WRITE <iface>:<hex>")
	f.StringVar(&flags.spiWrite, "spi-write", "", "SPI_WRITE_ONLY <iface>:<hex>")
	f.StringVar(&flags.i2cRead, "i2c-read", "", "I2C_READ <iface>:<addr>:<length>")
	f.StringVar(&flags.i2cWrite, "i2c-write", "", "I2C_WRITE <iface>:<addr>:<hex>")
	f.DurationVar(&flags.timeout, "timeout", 5*time.Second, "Time to wait for the reply")
	f.StringVar(&flags.serial, "serial", "", "Serial device for bus destinations")
	f.StringVar(&flags.kind, "kind", "uart", "Serial line kind (uart|rs485)")
	f.StringVar(&flags.capture, "capture", "", "Write the exchange to this pcap file")
	return cmd
}

// buildPayload turns exactly one payload flag into a frame payload.
func buildPayload(flags *requestFlags) (frame.Payload, error) {
	var out []frame.Payload
	add := func(p frame.Payload, err error) error {
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	}

	if flags.hexPayload != "" {
		b, err := hex.DecodeString(strings.TrimPrefix(flags.hexPayload, "0x"))
		if err := add(frame.Bytes(b), err); err != nil {
			return nil, fmt.Errorf("--hex: %w", err)
		}
	}
	if flags.text != "" {
		out = append(out, frame.Bytes(flags.text))
	}
	if flags.discover {
		out = append(out, command.New(schema.CmdDeviceDiscover))
	}
	if flags.read != "" {
		reg, err := parseUint(flags.read, 16)
		if err := add(command.New(schema.CmdRegisterRead16, tlv.U16(schema.FieldAddress, uint16(reg))), err); err != nil {
			return nil, fmt.Errorf("--read: %w", err)
		}
	}
	if flags.write != "" {
		if err := add(registerWrite(flags.write)); err != nil {
			return nil, fmt.Errorf("--write: %w", err)
		}
	}
	if flags.spi != "" {
		if err := add(spiPayload(schema.CmdSPIReadWrite, flags.spi)); err != nil {
			return nil, fmt.Errorf("--spi: %w", err)
		}
	}
	if flags.spiWrite != "" {
		if err := add(spiPayload(schema.CmdSPIWriteOnly, flags.spiWrite)); err != nil {
			return nil, fmt.Errorf("--spi-write: %w", err)
		}
	}
	if flags.i2cRead != "" {
		if err := add(i2cRead(flags.i2cRead)); err != nil {
			return nil, fmt.Errorf("--i2c-read: %w", err)
		}
	}
	if flags.i2cWrite != "" {
		if err := add(i2cWrite(flags.i2cWrite)); err != nil {
			return nil, fmt.Errorf("--i2c-write: %w", err)
		}
	}

	switch len(out) {
	case 0:
		return nil, fmt.Errorf("one payload flag is required (--hex, --text, --discover, --read, --write, --spi, --spi-write, --i2c-read, --i2c-write)")
	case 1:
		return out[0], nil
	default:
		return nil, fmt.Errorf("payload flags are mutually exclusive, got %d", len(out))
	}
}

func registerWrite(arg string) (frame.Payload, error) {
	regText, valText, ok := strings.Cut(arg, "=")
	if !ok {
		return nil, fmt.Errorf("want <addr>=<value>, got %q", arg)
	}
	reg, err := parseUint(regText, 16)
	if err != nil {
		return nil, err
	}
	val, err := parseUint(valText, 16)
	if err != nil {
		return nil, err
	}
	return command.New(schema.CmdRegisterWrite16,
		tlv.U16(schema.FieldAddress, uint16(reg)),
		tlv.U16(schema.FieldValue, uint16(val)),
	), nil
}

func spiPayload(tag schema.Tag, arg string) (frame.Payload, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("want <iface>:<hex>, got %q", arg)
	}
	iface, err := parseUint(parts[0], 8)
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}
	return command.New(tag,
		tlv.U8(schema.FieldInterface, uint8(iface)),
		tlv.Bytes(schema.FieldData, data),
	), nil
}

func i2cRead(arg string) (frame.Payload, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("want <iface>:<addr>:<length>, got %q", arg)
	}
	iface, err := parseUint(parts[0], 8)
	if err != nil {
		return nil, err
	}
	target, err := parseUint(parts[1], 8)
	if err != nil {
		return nil, err
	}
	n, err := parseUint(parts[2], 16)
	if err != nil {
		return nil, err
	}
	return command.New(schema.CmdI2CRead,
		tlv.U8(schema.FieldInterface, uint8(iface)),
		tlv.U8(schema.FieldI2CAddress, uint8(target)),
		tlv.U16(schema.FieldLength, uint16(n)),
	), nil
}

func i2cWrite(arg string) (frame.Payload, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("want <iface>:<addr>:<hex>, got %q", arg)
	}
	iface, err := parseUint(parts[0], 8)
	if err != nil {
		return nil, err
	}
	target, err := parseUint(parts[1], 8)
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, err
	}
	return command.New(schema.CmdI2CWrite,
		tlv.U8(schema.FieldInterface, uint8(iface)),
		tlv.U8(schema.FieldI2CAddress, uint8(target)),
		tlv.Bytes(schema.FieldData, data),
	), nil
}

func parseUint(text string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(text), 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%q is not a %d-bit number", text, bits)
	}
	return v, nil
}

func printReply(w io.Writer, r node.Reply) {
	switch {
	case r.Error:
		note := ""
		if !r.Code.Known() {
			note = " (not a protocol code)"
		}
		fmt.Fprintf(w, "from %s: error frame %s%s\n", r.Src, r.Code, note)
	case r.Command != nil:
		fmt.Fprintf(w, "from %s: %s\n", r.Src, r.Command.Tag)
		printFields(w, "  ", r.Command.Fields)
	default:
		fmt.Fprintf(w, "from %s: %d bytes\n  %s\n", r.Src, len(r.Payload), hex.EncodeToString(r.Payload))
	}
}

func printFields(w io.Writer, indent string, fields []tlv.Field) {
	for _, f := range fields {
		fmt.Fprintf(w, "%s%s (%s) = %s\n", indent, schema.FieldLabel(f.ID), tlv.TypeName(f.Type), fieldValue(f))
	}
}

func fieldValue(f tlv.Field) string {
	switch f.Type {
	case tlv.TypeU8:
		v, err := f.AsU8()
		return numberOrErr(uint64(v), err)
	case tlv.TypeU16:
		v, err := f.AsU16()
		return numberOrErr(uint64(v), err)
	case tlv.TypeU32:
		v, err := f.AsU32()
		return numberOrErr(uint64(v), err)
	case tlv.TypeU64:
		v, err := f.AsU64()
		return numberOrErr(v, err)
	case tlv.TypeBool:
		v, err := f.AsBool()
		if err != nil {
			return err.Error()
		}
		return strconv.FormatBool(v)
	case tlv.TypeString:
		v, _ := f.AsString()
		return strconv.Quote(v)
	default:
		return hex.EncodeToString(f.Value)
	}
}

func numberOrErr(v uint64, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%d (0x%X)", v, v)
}
