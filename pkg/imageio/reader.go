// Package imageio decodes the frames of DICOM pixel data into rasters and
// displayable images.
//
// A Reader is bound to one input at a time: a forward-only stream, a random
// access source, a file path or an already parsed dataset. Metadata is
// resolved on first use. Frames of a stream must be read in ascending
// order; the other bindings allow any order.
package imageio

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
)

// Reader is a decoding session over one bound input. It is not safe for
// concurrent use.
type Reader struct {
	registry *Registry
	boundary BoundaryFunc
	logger   *slog.Logger

	id  string
	log *slog.Logger

	bound  bool
	stream io.Reader
	at     io.ReaderAt
	size   int64
	path   string
	meta   *dicom.Metadata

	resolved bool
	err      error

	geom    Geometry
	codec   Codec
	decoder Decoder
	rle     bool
	order   binary.ByteOrder
	pixelVR vr.VR

	pixel   *dicom.PixelData // random access
	body    io.Reader        // native pixel data of a stream
	frags   *fragmentStream  // encapsulated pixel data of a stream
	flushed int
}

// Option configures a Reader
type Option func(*Reader)

// WithRegistry sets the codec registry, DefaultRegistry otherwise
func WithRegistry(reg *Registry) Option {
	return func(r *Reader) {
		r.registry = reg
	}
}

// WithLogger sets the logger sessions derive from
func WithLogger(log *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = log
	}
}

// WithFrameBoundary sets how encapsulated fragments map to frames
func WithFrameBoundary(fn BoundaryFunc) Option {
	return func(r *Reader) {
		r.boundary = fn
	}
}

// NewReader returns an unbound Reader
func NewReader(opts ...Option) *Reader {
	r := &Reader{
		registry: DefaultRegistry(),
		boundary: DefaultBoundary,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.logger
	return r
}

// ID returns the id of the current binding
func (r *Reader) ID() string {
	return r.id
}

// BindStream binds a forward-only stream positioned at the start of a DICOM
// file or dataset
func (r *Reader) BindStream(src io.Reader) {
	r.bind()
	r.stream = src
}

// BindRandomAccess binds a source of size bytes readable at any offset
func (r *Reader) BindRandomAccess(ra io.ReaderAt, size int64) {
	r.bind()
	r.at, r.size = ra, size
}

// BindMetadata binds an already parsed file. Its pixel data must be in
// memory or reference a source that can be read at any offset.
func (r *Reader) BindMetadata(meta *dicom.Metadata) {
	r.bind()
	r.meta = meta
}

// Open binds the file at path and resolves its metadata. Pixel data is
// read through a handle opened for each request.
func (r *Reader) Open(path string) error {
	r.bind()
	r.path = path
	return r.readMetadata()
}

func (r *Reader) bind() {
	r.Dispose()
	r.bound = true
	r.id = uuid.NewString()
	r.log = r.logger.With(slog.String("session", r.id))
}

// Dispose releases the decoder and forgets the bound input. The reader can
// be bound again afterwards.
func (r *Reader) Dispose() {
	if c, ok := r.decoder.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.log.Warn("closing decoder", "error", err)
		}
	}
	*r = Reader{
		registry: r.registry,
		boundary: r.boundary,
		logger:   r.logger,
		log:      r.logger,
	}
}

// Metadata returns the file meta information and dataset of the bound input.
// Stream bindings hold no Pixel Data element.
func (r *Reader) Metadata() (*dicom.Metadata, error) {
	if err := r.readMetadata(); err != nil {
		return nil, err
	}
	return r.meta, nil
}

// FrameCount returns the number of frames, 0 without pixel data
func (r *Reader) FrameCount() (int, error) {
	if err := r.readMetadata(); err != nil {
		return 0, err
	}
	return r.geom.Frames, nil
}

// Geometry returns the resolved pixel description
func (r *Reader) Geometry() (Geometry, error) {
	if err := r.readMetadata(); err != nil {
		return Geometry{}, err
	}
	return r.geom, nil
}

// Width returns the columns of frame i
func (r *Reader) Width(i int) (int, error) {
	if err := r.prepare(i); err != nil {
		return 0, err
	}
	return r.geom.Width, nil
}

// Height returns the rows of frame i
func (r *Reader) Height(i int) (int, error) {
	if err := r.prepare(i); err != nil {
		return 0, err
	}
	return r.geom.Height, nil
}

// RawLayout returns the layout of the raster ReadRaster returns for frame i
func (r *Reader) RawLayout(i int) (Layout, error) {
	if err := r.prepare(i); err != nil {
		return Layout{}, err
	}
	return rawLayout(r.geom, r.rle), nil
}

// ImageLayout returns the layout of the image ReadImage renders for frame i
func (r *Reader) ImageLayout(i int, p *ReadParam) (Layout, error) {
	if err := r.prepare(i); err != nil {
		return Layout{}, err
	}
	if p == nil {
		p = DefaultReadParam()
	}
	return imageLayout(r.geom, r.rle, p.DestinationFormat.bits()), nil
}

// ReadRaster returns the raw samples of frame i with no pixel value
// transformation applied
func (r *Reader) ReadRaster(i int, _ *ReadParam) (*Raster, error) {
	if err := r.prepare(i); err != nil {
		return nil, err
	}
	return r.readRaster(i)
}

// ReadImage renders frame i. Monochrome frames pass through the modality,
// VOI and presentation stages and get their overlays burned in; color frames
// are returned in their source color space.
func (r *Reader) ReadImage(i int, p *ReadParam) (image.Image, error) {
	if err := r.prepare(i); err != nil {
		return nil, err
	}
	if p == nil {
		p = DefaultReadParam()
	}

	if !r.geom.Photometric.IsMonochrome() {
		if _, ok := r.decoder.(RasterDecoder); r.decoder != nil && !ok {
			src, release, err := r.frame(i)
			defer release()
			if err != nil {
				return nil, err
			}
			img, _, err := r.decode(i, src, false)
			return img, err
		}
		raster, err := r.readRaster(i)
		if err != nil {
			return nil, err
		}
		var pal *Palette
		if raster.Photometric == PaletteColor {
			if pal, err = NewPalette(r.meta.Dataset); err != nil {
				return nil, err
			}
		}
		return NewImage(raster, r.geom.BitsStored, pal)
	}

	raster, err := r.readRaster(i)
	if err != nil {
		return nil, err
	}
	return r.renderGray(raster, i, p), nil
}

func (r *Reader) prepare(i int) error {
	if err := r.readMetadata(); err != nil {
		return err
	}
	return r.checkIndex(i)
}

func (r *Reader) checkIndex(i int) error {
	switch {
	case r.geom.Frames == 0:
		return ErrMissingPixelData
	case i < 0 || i >= r.geom.Frames:
		return &FrameIndexError{Index: i, Frames: r.geom.Frames}
	case r.stream != nil && i < r.flushed:
		return &SequentialAccessError{Index: i, Flushed: r.flushed}
	}
	return nil
}

func (r *Reader) readMetadata() error {
	if !r.bound {
		return ErrNoInputBound
	}
	if r.resolved || r.err != nil {
		return r.err
	}
	r.err = r.resolve()
	r.resolved = r.err == nil
	return r.err
}

func (r *Reader) resolve() error {
	var hdr *dicom.PixelHeader
	var body io.Reader
	var err error
	switch {
	case r.meta != nil:
	case r.stream != nil:
		dr := dicom.NewReader(r.stream, dicom.WithMode(dicom.StopAtPixelData))
		r.meta, err = dr.ReadMetadata()
		hdr, body = dr.PixelHeader(), dr.Body()
	case r.at != nil:
		r.meta, err = dicom.NewReaderAt(r.at, r.size).ReadMetadata()
	default:
		r.meta, err = dicom.ParseFile(r.path, dicom.BulkDataReferences)
	}
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}
	ds := r.meta.Dataset
	if ds == nil {
		ds = dicom.NewDataset()
		r.meta.Dataset = ds
	}

	var present, encapsulated bool
	var length int64
	if hdr != nil {
		present, encapsulated, length = true, hdr.Encapsulated(), int64(hdr.Length)
		r.pixelVR = hdr.VR
	} else if pd := ds.PixelData(); pd != nil {
		present, encapsulated = true, pd.Encapsulated()
		if !encapsulated {
			length = pd.Bulk.Length
		}
		r.pixel, r.pixelVR = pd, pd.VR
	}

	g, err := ResolveGeometry(ds, encapsulated)
	if err != nil {
		return err
	}
	if !present || (!encapsulated && length == 0) {
		g.Frames = 0
	}
	r.geom = g
	r.order = ds.ByteOrder()

	if encapsulated {
		if r.meta.FileMeta == nil {
			return ErrMissingFileMetaInformation
		}
		ts := r.meta.TransferSyntax()
		codec, ok := r.registry.Lookup(ts)
		if !ok || codec.New == nil {
			return &UnsupportedTransferSyntaxError{UID: string(ts)}
		}
		r.codec, r.decoder, r.rle = codec, codec.New(g), ts.IsRLE()
		if body != nil {
			if r.frags, err = newFragmentStream(body, g.Frames, r.boundary); err != nil {
				return err
			}
		}
	} else if g.Frames > 0 {
		if need := int64(g.Frames) * int64(g.FrameLength); length < need {
			return fmt.Errorf("%w: %d bytes of pixel data for %d frames of %d", ErrMalformedPixelData, length, g.Frames, g.FrameLength)
		}
		r.body = body
	}
	r.log.Debug("Resolved pixel data",
		"frames", g.Frames, "columns", g.Width, "rows", g.Height,
		"photometric", g.Photometric, "encapsulated", encapsulated,
		"transferSyntax", r.meta.TransferSyntax())
	return nil
}

// frame returns a reader over the stored bytes of frame i and a func that
// releases whatever was opened for it
func (r *Reader) frame(i int) (io.Reader, func() error, error) {
	noop := func() error { return nil }
	fl := int64(r.geom.FrameLength)
	switch {
	case r.frags != nil:
		err := r.frags.Seek(i)
		r.flushed = max(r.frags.Frame(), 0)
		if err != nil {
			return nil, noop, err
		}
		return r.frags.Reader(), noop, nil
	case r.body != nil:
		if skip := int64(i-r.flushed) * fl; skip > 0 {
			if _, err := io.CopyN(io.Discard, r.body, skip); err != nil {
				return nil, noop, fmt.Errorf("%w: skipping to frame #%d: %v", ErrMalformedPixelData, i+1, err)
			}
		}
		r.flushed = i + 1
		return io.LimitReader(r.body, fl), noop, nil
	case r.pixel.Encapsulated():
		frags, err := frameFragments(r.pixel, r.boundary(r.geom.Frames, r.pixel.Offsets), i)
		if err != nil {
			return nil, noop, err
		}
		return openFragments(frags)
	}
	sr, release, err := r.pixel.Bulk.Open()
	if err != nil {
		return nil, release, err
	}
	return io.NewSectionReader(sr, int64(i)*fl, fl), release, nil
}

func (r *Reader) readRaster(i int) (*Raster, error) {
	src, release, err := r.frame(i)
	defer release()
	if err != nil {
		return nil, err
	}
	if r.decoder == nil {
		swap := r.pixelVR == vr.OW && r.order == binary.BigEndian
		return readNative(src, r.geom, r.order, swap)
	}
	img, raster, err := r.decode(i, src, true)
	if err != nil {
		return nil, err
	}
	if raster != nil {
		return raster, nil
	}
	return rasterFromImage(img, r.geom), nil
}

// decode runs the decoder over one frame, taking the raster fast path when
// asked for a raster and the decoder offers one
func (r *Reader) decode(i int, src io.Reader, wantRaster bool) (image.Image, *Raster, error) {
	var err error
	if r.codec.PatchJPEGLS {
		if src, err = patchJPEGLSReader(src); err != nil {
			return nil, nil, err
		}
	}
	r.log.Debug("Start decompressing frame", "frame", i+1)
	var img image.Image
	var raster *Raster
	if rd, ok := r.decoder.(RasterDecoder); ok && wantRaster {
		raster, err = rd.DecodeRaster(src)
	} else {
		img, err = r.decoder.Decode(src)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("decoding frame #%d with %s: %w", i+1, r.codec.Name, err)
	}
	r.log.Debug("Finished decompressing frame", "frame", i+1)
	return img, raster, nil
}

// renderGray applies the grayscale pipeline and overlays to a monochrome
// raster
func (r *Reader) renderGray(raster *Raster, i int, p *ReadParam) image.Image {
	ds := r.meta.Dataset
	ps := p.PresentationState
	var groups []uint16
	if ps != nil {
		groups = activeOverlays(ps, tag.OverlayActivationLayer, 0xFFFF)
	} else {
		groups = activeOverlays(ds, tag.OverlayRows, p.OverlayActivationMask)
	}
	embedded := make([]overlayBitmap, len(groups))
	usable := make([]bool, len(groups))
	for k, gg := range groups {
		embedded[k], usable[k] = extractEmbedded(ds, gg, raster, r.geom.BitsStored, r.log)
	}

	outBits := p.DestinationFormat.bits()
	lut := r.grayLUT(raster, i, p, outBits)
	out := Geometry{Width: raster.Width, Height: raster.Height, Samples: 1, BitsAllocated: 8, DataType: TypeByte, Photometric: Monochrome2}
	if outBits > 8 {
		out.BitsAllocated, out.DataType = 16, TypeUShort
	}
	dst := NewRaster(out)
	n := raster.Width * raster.Height
	for k := 0; k < n; k++ {
		var v int
		if raster.DataType == TypeUShort {
			v = lut.lookup(int(raster.Words[0][k]))
		} else {
			v = lut.lookup(int(raster.Bytes[0][k]))
		}
		if dst.DataType == TypeUShort {
			dst.Words[0][k] = uint16(v)
		} else {
			dst.Bytes[0][k] = byte(v)
		}
	}

	for k, gg := range groups {
		if !usable[k] {
			continue
		}
		value := p.OverlayGrayscaleValue
		if ps != nil {
			value = displayGrayscale(ps, gg, value)
		}
		frame := i
		if embedded[k] != nil {
			frame = 0
		}
		burnOverlay(dst, overlaySource(ds, ps, gg), gg, frame, value>>(16-outBits), embedded[k], r.log)
	}

	rect := dst.Bounds()
	if dst.DataType == TypeByte {
		return &image.Gray{Pix: dst.Bytes[0], Stride: dst.Width, Rect: rect}
	}
	img := image.NewGray16(rect)
	for k, v := range dst.Words[0] {
		binary.BigEndian.PutUint16(img.Pix[2*k:], v)
	}
	return img
}

// grayLUT builds the composite table for frame i. A presentation state
// replaces the modality, VOI and presentation stages of the image.
func (r *Reader) grayLUT(raster *Raster, i int, p *ReadParam, outBits int) *lookupTable {
	ds := r.meta.Dataset
	f := newLUTFactory(storedValue{bits: r.geom.BitsStored, signed: r.geom.Signed})
	ps := p.PresentationState
	if ps != nil {
		f.setModalityLUT(ps)
	} else {
		f.setModalityLUT(selectFunctionalGroup(ds, i, tag.PixelValueTransformationSequence))
	}
	switch {
	case p.WindowWidth != 0:
		f.setWindow(p.WindowCenter, p.WindowWidth)
	case ps != nil:
		f.setVOI(selectSoftcopyVOI(ps, ds.String(tag.SOPInstanceUID, ""), i+1), 0, 0, false)
	default:
		f.setVOI(selectFunctionalGroup(ds, i, tag.FrameVOILUTSequence), p.WindowIndex, p.VOILUTIndex, p.PreferWindow)
	}
	if p.AutoWindowing {
		f.autoWindow(ds, raster)
	}
	if ps != nil {
		f.setPresentationLUT(ps)
	} else {
		f.setPresentationLUT(ds)
	}
	return f.build(outBits)
}
