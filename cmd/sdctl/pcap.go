package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/danmuck/syndesi/internal/capture"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type pcapFlags struct {
	verbose bool
}

func newPcapCmd() *cobra.Command {
	flags := &pcapFlags{}
	cmd := &cobra.Command{
		Use:   "pcap <file>",
		Short: "List frames recorded in a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := capture.ReadFrames(args[0], frame.DefaultLimits())
			if err != nil {
				return err
			}
			listRecords(cmd.OutOrStdout(), records, flags.verbose)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Decode each frame")
	return cmd
}

func listRecords(w io.Writer, records []capture.Record, verbose bool) {
	var (
		total  uint64
		errs   int
		broken int
	)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIME\tDIR\tPEER\tSIZE\tFRAME")
	for i, r := range records {
		total += uint64(len(r.Wire))
		desc := ""
		switch {
		case r.Frame == nil:
			broken++
			desc = "unparsable: " + r.Err.Error()
		case r.Frame.IsError():
			errs++
			code, _ := r.Frame.ErrorCode()
			desc = "error " + code.String()
		default:
			desc = fmt.Sprintf("payload %s", humanize.Bytes(uint64(len(r.Frame.PayloadBytes()))))
			if n := len(r.Frame.Route()); n > 0 {
				desc += fmt.Sprintf(" via %d hops", n)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			r.Time.Format("15:04:05.000000"),
			r.Direction,
			r.Peer,
			humanize.Bytes(uint64(len(r.Wire))),
			desc,
		)
	}
	_ = tw.Flush()

	if verbose {
		for i, r := range records {
			if r.Frame == nil {
				continue
			}
			fmt.Fprintf(w, "\n#%d %s %s\n", i+1, r.Direction, r.Peer)
			describeFrame(w, r.Frame)
		}
	}
	fmt.Fprintf(w, "\n%s frames, %s, %d error frames, %d unparsable\n",
		humanize.Comma(int64(len(records))), humanize.Bytes(total), errs, broken)
}
