package imageio

import (
	"fmt"
	"image"
	"image/color"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
)

// Layout describes the samples of a raster or image
type Layout struct {
	Bits     int
	DataType DataType
	Banded   bool
	Samples  int
}

// Palette holds the Palette Color lookup tables with entries widened to 16
// bits
type Palette struct {
	First int
	Red   []uint16
	Green []uint16
	Blue  []uint16
}

// NewPalette reads the red, green and blue Palette Color LUTs
func NewPalette(ds *dicom.Dataset) (*Palette, error) {
	p := &Palette{}
	descs := []tag.Tag{tag.RedPaletteColorLUTDescriptor, tag.GreenPaletteColorLUTDescriptor, tag.BluePaletteColorLUTDescriptor}
	datas := []tag.Tag{tag.RedPaletteColorLUTData, tag.GreenPaletteColorLUTData, tag.BluePaletteColorLUTData}
	outs := []*[]uint16{&p.Red, &p.Green, &p.Blue}
	for i := range descs {
		desc := ds.Ints(descs[i])
		if len(desc) != 3 {
			return nil, fmt.Errorf("%w: palette descriptor %v", ErrMalformedPixelData, descs[i])
		}
		length := desc[0]
		if length == 0 {
			length = 0x10000
		}
		p.First = desc[1]
		lut := descriptorLUT(storedValue{bits: 16}, []int{desc[0], 0, desc[2]}, ds.Bytes(datas[i]), ds.ByteOrder())
		if lut == nil {
			return nil, fmt.Errorf("%w: palette data %v", ErrMalformedPixelData, datas[i])
		}
		lut.adjustOutBits(16)
		entries := make([]uint16, length)
		for k, v := range lut.data {
			entries[k] = uint16(v)
		}
		*outs[i] = entries
	}
	return p, nil
}

func (p *Palette) color(v int) color.RGBA64 {
	i := min(max(v-p.First, 0), len(p.Red)-1)
	return color.RGBA64{R: p.Red[i], G: p.Green[i], B: p.Blue[i], A: 0xFFFF}
}

// Image presents a raw raster as an image.Image, converting the samples of
// its Photometric Interpretation to RGB without any grayscale pipeline
type Image struct {
	Raster     *Raster
	BitsStored int
	Palette    *Palette
}

// NewImage wraps a raster. PALETTE COLOR rasters need a palette.
func NewImage(r *Raster, bitsStored int, pal *Palette) (*Image, error) {
	switch {
	case r.Photometric == PaletteColor && pal == nil:
		return nil, fmt.Errorf("%w: palette color without palette", ErrMalformedPixelData)
	case r.Photometric.IsSubsampled() && (r.DataType != TypeByte || r.Banded):
		return nil, fmt.Errorf("%w: subsampled %s must be 8 bit interleaved", ErrMalformedPixelData, r.Photometric)
	case r.Photometric == YBRPartial420:
		return nil, fmt.Errorf("%w: %s rasters are not supported", ErrMalformedPixelData, r.Photometric)
	case r.Photometric.IsSubsampled() && (r.Width%2 != 0 || len(r.Bytes) == 0 || len(r.Bytes[0]) < r.Width*r.Height*2):
		return nil, fmt.Errorf("%w: %s %dx%d needs even columns and two bytes per pixel", ErrMalformedPixelData, r.Photometric, r.Width, r.Height)
	case !r.Photometric.IsMonochrome() && r.Photometric != PaletteColor && r.Samples != 3:
		return nil, fmt.Errorf("%w: %s with %d samples", ErrMalformedPixelData, r.Photometric, r.Samples)
	}
	if bitsStored <= 0 {
		bitsStored = 8
		if r.DataType == TypeUShort {
			bitsStored = 16
		}
	}
	return &Image{Raster: r, BitsStored: bitsStored, Palette: pal}, nil
}

// ColorModel returns RGBA64
func (m *Image) ColorModel() color.Model {
	return color.RGBA64Model
}

// Bounds returns the raster rectangle
func (m *Image) Bounds() image.Rectangle {
	return m.Raster.Bounds()
}

// At returns the color of the pixel at x,y
func (m *Image) At(x, y int) color.Color {
	r := m.Raster
	if !(image.Point{x, y}.In(r.Bounds())) {
		return color.RGBA64{}
	}
	switch {
	case r.Photometric.IsMonochrome():
		v := m.widen(r.Sample(x, y, 0))
		if r.Photometric.IsInverse() {
			v = 0xFFFF - v
		}
		return color.Gray16{Y: v}
	case r.Photometric == PaletteColor:
		return m.Palette.color(r.Sample(x, y, 0))
	case r.Photometric.IsSubsampled():
		base := (y*r.Width + x&^1) * 2
		pix := r.Bytes[0]
		return ybrColor(r.Photometric, pix[base+x&1], pix[base+2], pix[base+3])
	case r.Photometric == YBRFull:
		if r.DataType == TypeByte {
			return ybrColor(r.Photometric, byte(r.Sample(x, y, 0)), byte(r.Sample(x, y, 1)), byte(r.Sample(x, y, 2)))
		}
	}
	return color.RGBA64{
		R: m.widen(r.Sample(x, y, 0)),
		G: m.widen(r.Sample(x, y, 1)),
		B: m.widen(r.Sample(x, y, 2)),
		A: 0xFFFF,
	}
}

// widen scales a stored sample to 16 bits
func (m *Image) widen(v int) uint16 {
	bits := m.BitsStored
	v &= 1<<bits - 1
	if bits >= 16 {
		return uint16(v)
	}
	if bits == 8 {
		return uint16(v * 0x101)
	}
	return uint16(v << (16 - bits))
}

// ybrColor converts full or partial range YCbCr to RGB
func ybrColor(p Photometric, y, cb, cr byte) color.Color {
	if p != YBRPartial422 && p != YBRPartial420 {
		r, g, b := color.YCbCrToRGB(y, cb, cr)
		return color.RGBA{R: r, G: g, B: b, A: 0xFF}
	}
	yy := 1.1644 * (float64(y) - 16)
	cbf, crf := float64(cb)-128, float64(cr)-128
	return color.RGBA{
		R: clampByte(yy + 1.5960*crf),
		G: clampByte(yy - 0.3918*cbf - 0.8130*crf),
		B: clampByte(yy + 2.0172*cbf),
		A: 0xFF,
	}
}

func clampByte(f float64) byte {
	return byte(min(max(round(f), 0), 255))
}

// rawLayout is the layout of rasters returned by ReadRaster
func rawLayout(g Geometry, rle bool) Layout {
	return Layout{
		Bits:     g.BitsStored,
		DataType: g.DataType,
		Banded:   rle || (g.Banded && !g.Photometric.IsSubsampled()),
		Samples:  g.Samples,
	}
}

// imageLayout is the layout of images returned by ReadImage
func imageLayout(g Geometry, rle bool, outBits int) Layout {
	if g.Photometric.IsMonochrome() {
		l := Layout{Bits: outBits, DataType: TypeByte, Samples: 1}
		if outBits > 8 {
			l.DataType = TypeUShort
		}
		return l
	}
	return rawLayout(g, rle)
}
