package cmd

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/imageio"
	"github.com/spf13/cobra"
	"golang.org/x/image/tiff"
)

// NewRenderCmd renders one frame through the grayscale pipeline to PNG
func NewRenderCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "render a frame to png",
		Long:  "renders a frame through the modality, VOI and presentation transforms with overlays burned in, and writes it as png",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, _ := cmd.Flags().GetInt("frame")
			outPath, _ := cmd.Flags().GetString("out")
			p, err := renderParam(cmd)
			if err != nil {
				return err
			}
			r, done, err := openReader(cmd, args)
			if err != nil {
				return err
			}
			defer done()

			img, err := r.ReadImage(frame, p)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "Rendered frame", "file", args[0], "frame", frame, "session", r.ID(), "out", outPath)
			return writeImage(outPath, func(f *os.File) error { return png.Encode(f, img) })
		},
	}
	pf := cmd.PersistentFlags()
	pf.Int("frame", 0, "zero based frame index")
	pf.StringP("out", "o", "frame.png", "output png path")
	pf.Float64("wc", 0, "window center")
	pf.Float64("ww", 0, "window width, 0 keeps the stored VOI")
	pf.Int("window-index", 0, "stored window to use")
	pf.Int("voi-lut-index", 0, "stored VOI LUT to use")
	pf.Bool("auto-window", true, "derive a window from the pixel range when no VOI applies")
	pf.Int("overlays", 0xFFFF, "overlay activation mask, bit n for group 60nn/2")
	pf.Int("overlay-gray", 0xFFFF, "16 bit gray value overlays are burned with")
	pf.Bool("gray16", false, "render 16 bit gray")
	pf.String("ps", "", "grayscale softcopy presentation state to apply")
	addSourceFlags(cmd)
	return cmd
}

func renderParam(cmd *cobra.Command) (*imageio.ReadParam, error) {
	p := imageio.DefaultReadParam()
	f := cmd.Flags()
	p.WindowCenter, _ = f.GetFloat64("wc")
	p.WindowWidth, _ = f.GetFloat64("ww")
	p.WindowIndex, _ = f.GetInt("window-index")
	p.VOILUTIndex, _ = f.GetInt("voi-lut-index")
	p.AutoWindowing, _ = f.GetBool("auto-window")
	p.OverlayActivationMask, _ = f.GetInt("overlays")
	p.OverlayGrayscaleValue, _ = f.GetInt("overlay-gray")
	if wide, _ := f.GetBool("gray16"); wide {
		p.DestinationFormat = imageio.Gray16
	}
	if ps, _ := f.GetString("ps"); ps != "" {
		meta, err := dicom.ParseFile(ps, dicom.ReadAll)
		if err != nil {
			return nil, fmt.Errorf("reading presentation state %s: %w", ps, err)
		}
		p.PresentationState = meta.Dataset
	}
	return p, nil
}

// NewRasterCmd writes the raw samples of one frame as TIFF
func NewRasterCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raster <file>",
		Short: "export a raw frame to tiff",
		Long:  "writes the decoded samples of a frame, without any grayscale transform, as an 8 or 16 bit tiff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, _ := cmd.Flags().GetInt("frame")
			outPath, _ := cmd.Flags().GetString("out")
			r, done, err := openReader(cmd, args)
			if err != nil {
				return err
			}
			defer done()

			raster, err := r.ReadRaster(frame, nil)
			if err != nil {
				return err
			}
			g, err := r.Geometry()
			if err != nil {
				return err
			}
			img, err := rasterImage(raster, g.BitsStored)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "Exported raster", "file", args[0], "frame", frame, "session", r.ID(), "out", outPath)
			return writeImage(outPath, func(f *os.File) error {
				return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
			})
		},
	}
	pf := cmd.PersistentFlags()
	pf.Int("frame", 0, "zero based frame index")
	pf.StringP("out", "o", "frame.tiff", "output tiff path")
	addSourceFlags(cmd)
	return cmd
}

// rasterImage presents raw samples as an image. Single sample rasters keep
// their stored values as gray; color rasters go through the color model.
func rasterImage(r *imageio.Raster, bitsStored int) (image.Image, error) {
	if r.Samples != 1 {
		return imageio.NewImage(r, bitsStored, nil)
	}
	rect := r.Bounds()
	if r.DataType == imageio.TypeByte {
		img := image.NewGray(rect)
		copy(img.Pix, r.Bytes[0])
		return img, nil
	}
	img := image.NewGray16(rect)
	for i, w := range r.Words[0] {
		img.Pix[2*i], img.Pix[2*i+1] = byte(w>>8), byte(w)
	}
	return img, nil
}

func writeImage(path string, encode func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
