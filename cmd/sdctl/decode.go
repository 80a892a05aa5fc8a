package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/syndesi/internal/protocol/command"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/danmuck/syndesi/internal/protocol/schema"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode one frame from hex",
		Example: `  sdctl decode 01000a11c0a80001010000
  sdctl decode "04 00 01"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire, err := parseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			f, err := frame.Parse(wire, frame.DefaultLimits())
			if err != nil {
				return err
			}
			defer f.Release()
			describeFrame(cmd.OutOrStdout(), f)
			return nil
		},
	}
}

func parseHex(text string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(text)
	clean = strings.TrimPrefix(strings.ToLower(clean), "0x")
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

func describeFrame(w io.Writer, f *frame.Frame) {
	fmt.Fprintf(w, "header   %s\n", f.Header())
	if f.IsError() {
		code, _ := f.ErrorCode()
		fmt.Fprintf(w, "error    %s (%d)\n", code, uint16(code))
		return
	}
	fmt.Fprintf(w, "length   %d\n", f.Length())
	if route := f.Route(); len(route) > 0 {
		hops := make([]string, 0, len(route))
		for _, n := range route {
			hops = append(hops, n.Host())
		}
		fmt.Fprintf(w, "route    %s (%d bytes)\n", strings.Join(hops, " > "), f.AddressingSize())
	}
	payload := f.PayloadBytes()
	fmt.Fprintf(w, "payload  %d bytes %s\n", len(payload), hex.EncodeToString(payload))

	tag, err := command.PeekTag(payload)
	if err != nil {
		return
	}
	if _, known := schema.Requirements(tag, schema.Request); !known {
		if _, known := schema.Requirements(tag, schema.Reply); !known {
			return
		}
	}
	p, err := command.Decode(payload)
	if err != nil {
		fmt.Fprintf(w, "command  %s (fields: %v)\n", tag, err)
		return
	}
	fmt.Fprintf(w, "command  %s\n", p.Tag)
	printFields(w, "  ", p.Fields)
}
