package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewInfoCmd prints the pixel description of a file
func NewInfoCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "describe the frames of a DICOM file",
		Long:  "prints the frame count, pixel geometry, transfer syntax and the layouts of raw and rendered frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := openReader(cmd, args)
			if err != nil {
				return err
			}
			defer done()

			meta, err := r.Metadata()
			if err != nil {
				return err
			}
			g, err := r.Geometry()
			if err != nil {
				return err
			}
			slog.DebugContext(ctx, "Describing file", "file", args[0], "session", r.ID())

			out := cmd.OutOrStdout()
			ts := meta.TransferSyntax()
			fmt.Fprintf(out, "TransferSyntax: %s (%s)\n", ts, ts.Name())
			fmt.Fprintf(out, "Frames: %d\n", g.Frames)
			fmt.Fprintf(out, "Size: %dx%d\n", g.Width, g.Height)
			fmt.Fprintf(out, "Photometric: %s\n", g.Photometric)
			fmt.Fprintf(out, "Samples: %d (banded %t)\n", g.Samples, g.Banded)
			fmt.Fprintf(out, "Bits: %d of %d (signed %t)\n", g.BitsStored, g.BitsAllocated, g.Signed)
			if g.Frames == 0 {
				return nil
			}
			raw, err := r.RawLayout(0)
			if err != nil {
				return err
			}
			display, err := r.ImageLayout(0, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "RawLayout: %s x%d, %d bits, banded %t\n", raw.DataType, raw.Samples, raw.Bits, raw.Banded)
			fmt.Fprintf(out, "ImageLayout: %s x%d, %d bits, banded %t\n", display.DataType, display.Samples, display.Bits, display.Banded)
			return nil
		},
	}
	addSourceFlags(cmd)
	return cmd
}
