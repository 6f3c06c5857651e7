package imageio

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"

	"github.com/jpfielding/dcmimage.go/pkg/compress/rle"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/transfer"
)

// Decoder decodes one compressed frame
type Decoder interface {
	Decode(r io.Reader) (image.Image, error)
}

// RasterDecoder is implemented by decoders that can produce the raw raster
// of a frame without building an image first
type RasterDecoder interface {
	DecodeRaster(r io.Reader) (*Raster, error)
}

// DecoderFunc adapts a function to Decoder
type DecoderFunc func(r io.Reader) (image.Image, error)

// Decode calls f(r)
func (f DecoderFunc) Decode(r io.Reader) (image.Image, error) {
	return f(r)
}

// Codec describes how frames of a transfer syntax are decoded
type Codec struct {
	Name string
	// Native syntaxes carry uncompressed frames and have no decoder
	Native bool
	// PatchJPEGLS inserts missing LSE segments before decoding
	PatchJPEGLS bool
	// New returns a decoder for frames of the given geometry
	New func(g Geometry) Decoder
}

// Registry maps transfer syntaxes to codecs
type Registry struct {
	mu     sync.RWMutex
	codecs map[transfer.Syntax]Codec
}

// NewRegistry returns a registry that knows only the native syntaxes
func NewRegistry() *Registry {
	reg := &Registry{codecs: map[transfer.Syntax]Codec{}}
	for _, ts := range []transfer.Syntax{
		transfer.ImplicitVRLittleEndian,
		transfer.ExplicitVRLittleEndian,
		transfer.ExplicitVRLittleEndianExt,
		transfer.ExplicitVRBigEndian,
	} {
		reg.Register(ts, Codec{Name: ts.Name(), Native: true})
	}
	return reg
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the shared registry with the native syntaxes,
// RLE Lossless and the 8 bit JPEG processes
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		defaultRegistry.RegisterDecoder(transfer.RLELossless, func(g Geometry) Decoder {
			return &RLEDecoder{Geometry: g}
		})
		for _, ts := range []transfer.Syntax{transfer.JPEGBaseline, transfer.JPEGExtended} {
			defaultRegistry.RegisterDecoder(ts, func(Geometry) Decoder {
				return DecoderFunc(jpeg.Decode)
			})
		}
	})
	return defaultRegistry
}

// Register adds or replaces the codec for ts
func (reg *Registry) Register(ts transfer.Syntax, c Codec) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.codecs[ts] = c
}

// RegisterDecoder registers a decoder factory for a compressed syntax.
// JPEG-LS syntaxes get their bitstreams patched.
func (reg *Registry) RegisterDecoder(ts transfer.Syntax, newDecoder func(Geometry) Decoder) {
	reg.Register(ts, Codec{
		Name:        ts.Name(),
		PatchJPEGLS: ts.IsJPEGLS(),
		New:         newDecoder,
	})
}

// Lookup returns the codec for ts
func (reg *Registry) Lookup(ts transfer.Syntax) (Codec, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	c, ok := reg.codecs[ts]
	return c, ok
}

// Supported returns true if frames encoded with ts can be read
func (reg *Registry) Supported(ts transfer.Syntax) bool {
	c, ok := reg.Lookup(ts)
	return ok && (c.Native || c.New != nil)
}

// RLEDecoder decodes RLE Lossless frames into banded rasters
type RLEDecoder struct {
	Geometry Geometry
}

// DecodeRaster decodes one frame. Segments are sample planes, most
// significant byte first, so 16 bit samples are rebuilt from pairs of
// planes.
func (d *RLEDecoder) DecodeRaster(r io.Reader) (*Raster, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	g := d.Geometry
	planes, err := rle.DecodeSegments(data, g.Pixels())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPixelData, err)
	}
	if want := rle.SegmentCount(g.Samples, g.BitsAllocated); len(planes) != want {
		return nil, fmt.Errorf("%w: %d rle segments, expected %d", ErrMalformedPixelData, len(planes), want)
	}

	banded := g
	banded.Banded = true
	if banded.Photometric.IsSubsampled() {
		// RLE planes are never subsampled
		banded.Photometric = YBRFull
	}
	out := NewRaster(banded)
	if g.DataType == TypeByte {
		for s := range out.Bytes {
			copy(out.Bytes[s], planes[s])
		}
		return out, nil
	}
	for s := range out.Words {
		hi, lo := planes[2*s], planes[2*s+1]
		for i := range out.Words[s] {
			out.Words[s][i] = uint16(hi[i])<<8 | uint16(lo[i])
		}
	}
	return out, nil
}

// Decode decodes one frame into an image
func (d *RLEDecoder) Decode(r io.Reader) (image.Image, error) {
	raster, err := d.DecodeRaster(r)
	if err != nil {
		return nil, err
	}
	return NewImage(raster, d.Geometry.BitsStored, nil)
}
