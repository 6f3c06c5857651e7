package imageio

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
)

// Raster holds the raw samples of one frame. Byte data lives in Bytes and
// 16 bit data in Words; banded rasters carry one bank per sample, others a
// single interleaved bank.
type Raster struct {
	Width       int
	Height      int
	Samples     int
	Banded      bool
	DataType    DataType
	Photometric Photometric
	Bytes       [][]byte
	Words       [][]uint16
}

// NewRaster allocates a raster sized for one native frame of g
func NewRaster(g Geometry) *Raster {
	r := &Raster{
		Width:       g.Width,
		Height:      g.Height,
		Samples:     g.Samples,
		Banded:      g.Banded && !g.Photometric.IsSubsampled(),
		DataType:    g.DataType,
		Photometric: g.Photometric,
	}
	length := g.Photometric.FrameLength(g.Width, g.Height, g.Samples, g.BitsAllocated)
	banks := 1
	if r.Banded {
		banks = g.Samples
	}
	for i := 0; i < banks; i++ {
		if r.DataType == TypeUShort {
			r.Words = append(r.Words, make([]uint16, length/2/banks))
		} else {
			r.Bytes = append(r.Bytes, make([]byte, length/banks))
		}
	}
	return r
}

// Len returns the size of the sample data in bytes
func (r *Raster) Len() int {
	n := 0
	for _, b := range r.Bytes {
		n += len(b)
	}
	for _, w := range r.Words {
		n += 2 * len(w)
	}
	return n
}

// Bounds returns the raster rectangle
func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

func (r *Raster) index(x, y, s int) (bank, i int) {
	if r.Banded {
		return s, y*r.Width + x
	}
	return 0, (y*r.Width+x)*r.Samples + s
}

// Sample returns the raw value of sample s at x,y. Subsampled layouts are
// not addressable per pixel.
func (r *Raster) Sample(x, y, s int) int {
	bank, i := r.index(x, y, s)
	if r.DataType == TypeUShort {
		return int(r.Words[bank][i])
	}
	return int(r.Bytes[bank][i])
}

// SetSample stores v as sample s at x,y, ignoring positions outside the
// raster
func (r *Raster) SetSample(x, y, s, v int) {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return
	}
	bank, i := r.index(x, y, s)
	if r.DataType == TypeUShort {
		r.Words[bank][i] = uint16(v)
		return
	}
	r.Bytes[bank][i] = byte(v)
}

// readNative fills a raster from one native frame. Byte data is read
// verbatim, swapping pairs when OW data was written big endian; word data
// is assembled in the dataset byte order.
func readNative(rd io.Reader, g Geometry, order binary.ByteOrder, swap bool) (*Raster, error) {
	r := NewRaster(g)
	for _, b := range r.Bytes {
		if _, err := io.ReadFull(rd, b); err != nil {
			return nil, fmt.Errorf("%w: reading frame: %v", ErrMalformedPixelData, err)
		}
		if swap {
			swapShorts(b)
		}
	}
	for _, w := range r.Words {
		buf := make([]byte, 2*len(w))
		if _, err := io.ReadFull(rd, buf); err != nil {
			return nil, fmt.Errorf("%w: reading frame: %v", ErrMalformedPixelData, err)
		}
		for i := range w {
			w[i] = order.Uint16(buf[2*i:])
		}
	}
	return r, nil
}

func swapShorts(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}

// rasterFromImage converts a decoded image into a raster. Monochrome
// geometries yield a single gray bank, everything else interleaved RGB.
func rasterFromImage(img image.Image, g Geometry) *Raster {
	b := img.Bounds()
	out := Geometry{
		Width:         b.Dx(),
		Height:        b.Dy(),
		Samples:       1,
		BitsAllocated: 8,
		DataType:      TypeByte,
		Photometric:   g.Photometric,
	}
	if !g.Photometric.IsMonochrome() {
		out.Samples = 3
		out.Photometric = RGB
	}
	wide := g.BitsAllocated > 8
	if _, ok := img.(*image.Gray16); ok {
		wide = true
	}
	if wide {
		out.BitsAllocated = 16
		out.DataType = TypeUShort
	}
	r := NewRaster(out)

	switch src := img.(type) {
	case *image.Gray:
		if !wide {
			for y := 0; y < out.Height; y++ {
				copy(r.Bytes[0][y*out.Width:(y+1)*out.Width], src.Pix[y*src.Stride:])
			}
			return r
		}
	case *image.Gray16:
		if out.Samples == 1 {
			for y := 0; y < out.Height; y++ {
				row := src.Pix[y*src.Stride:]
				for x := 0; x < out.Width; x++ {
					r.Words[0][y*out.Width+x] = binary.BigEndian.Uint16(row[2*x:])
				}
			}
			return r
		}
	}

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if out.Samples == 1 {
				v := int(color.Gray16Model.Convert(c).(color.Gray16).Y)
				if !wide {
					v >>= 8
				}
				r.SetSample(x, y, 0, v)
				continue
			}
			cr, cg, cb, _ := c.RGBA()
			for s, v := range []uint32{cr, cg, cb} {
				if !wide {
					v >>= 8
				}
				r.SetSample(x, y, s, int(v))
			}
		}
	}
	return r
}
