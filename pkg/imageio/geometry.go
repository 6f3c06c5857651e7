package imageio

import (
	"fmt"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
)

// DataType is the storage type of raster samples
type DataType int

// Raster sample types
const (
	TypeByte DataType = iota
	TypeUShort
)

func (d DataType) String() string {
	if d == TypeUShort {
		return "ushort"
	}
	return "byte"
}

// Geometry is the pixel description resolved from the image attributes
type Geometry struct {
	Frames        int
	Width         int
	Height        int
	Samples       int
	Banded        bool
	BitsAllocated int
	BitsStored    int
	Signed        bool
	DataType      DataType
	Photometric   Photometric
	// FrameLength is the byte length of a native frame, -1 when unknown
	// as for encapsulated pixel data
	FrameLength int
}

// ResolveGeometry reads the Image Pixel attributes, applying the defaults
// for absent values
func ResolveGeometry(ds *dicom.Dataset, encapsulated bool) (Geometry, error) {
	g := Geometry{
		Frames:        ds.Int(tag.NumberOfFrames, 1),
		Width:         ds.Int(tag.Columns, 0),
		Height:        ds.Int(tag.Rows, 0),
		Samples:       ds.Int(tag.SamplesPerPixel, 1),
		BitsAllocated: ds.Int(tag.BitsAllocated, 8),
		Signed:        ds.Int(tag.PixelRepresentation, 0) != 0,
		Photometric:   ParsePhotometric(ds.String(tag.PhotometricInterpretation, "")),
	}
	g.Banded = g.Samples > 1 && ds.Int(tag.PlanarConfiguration, 0) != 0
	g.BitsStored = ds.Int(tag.BitsStored, g.BitsAllocated)
	g.DataType = TypeUShort
	if g.BitsAllocated <= 8 {
		g.DataType = TypeByte
	}

	switch {
	case g.BitsAllocated != 8 && g.BitsAllocated != 16:
		return g, fmt.Errorf("%w: %d bits allocated", ErrMalformedPixelData, g.BitsAllocated)
	case g.BitsStored < 1 || g.BitsStored > g.BitsAllocated:
		return g, fmt.Errorf("%w: %d bits stored of %d allocated", ErrMalformedPixelData, g.BitsStored, g.BitsAllocated)
	case g.Samples != 1 && g.Samples != 3:
		return g, fmt.Errorf("%w: %d samples per pixel", ErrMalformedPixelData, g.Samples)
	case g.Frames < 0 || g.Width < 0 || g.Height < 0:
		return g, fmt.Errorf("%w: %d frames of %dx%d", ErrMalformedPixelData, g.Frames, g.Width, g.Height)
	}

	g.FrameLength = -1
	if !encapsulated {
		switch {
		case g.Photometric == YBRPartial420:
			return g, fmt.Errorf("%w: native %s", ErrMalformedPixelData, g.Photometric)
		case g.Photometric.IsSubsampled() && g.Width%2 != 0:
			return g, fmt.Errorf("%w: %s with %d columns", ErrMalformedPixelData, g.Photometric, g.Width)
		}
		g.FrameLength = g.Photometric.FrameLength(g.Width, g.Height, g.Samples, g.BitsAllocated)
		if g.Frames > 0 && g.FrameLength <= 0 {
			return g, fmt.Errorf("%w: empty %dx%d frame", ErrMalformedPixelData, g.Width, g.Height)
		}
	}
	return g, nil
}

// Pixels returns the pixel count of one frame
func (g Geometry) Pixels() int {
	return g.Width * g.Height
}
