package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jpfielding/dcmimage.go/pkg/dicom/compat"
	"github.com/jpfielding/dcmimage.go/pkg/imageio"
	"github.com/spf13/cobra"
)

// addSourceFlags registers the flags choosing how a file is bound
func addSourceFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("parser", "native", "attribute parser (native|suyashkumar)")
	pf.Bool("stream", false, "read the file as a forward-only stream")
}

// openReader binds the file named by args[0] the way the flags ask. The
// returned func releases the session and any open file.
func openReader(cmd *cobra.Command, args []string) (*imageio.Reader, func(), error) {
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("expected one file, got %d arguments", len(args))
	}
	path := args[0]
	parser, _ := cmd.Flags().GetString("parser")
	stream, _ := cmd.Flags().GetBool("stream")

	r := imageio.NewReader(imageio.WithLogger(slog.Default()))
	switch {
	case parser == "suyashkumar":
		meta, err := compat.ParseFile(path)
		if err != nil {
			return nil, nil, err
		}
		r.BindMetadata(meta)
		return r, r.Dispose, nil
	case parser != "native":
		return nil, nil, fmt.Errorf("unknown parser %q", parser)
	case stream:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		r.BindStream(f)
		return r, func() {
			r.Dispose()
			f.Close()
		}, nil
	}
	if err := r.Open(path); err != nil {
		return nil, nil, err
	}
	return r, r.Dispose, nil
}
