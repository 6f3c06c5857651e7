package dicom

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
)

// UndefinedLength marks sequences, items and encapsulated pixel data whose
// end is found by a delimitation item
const UndefinedLength = 0xFFFFFFFF

// Mode selects how the reader treats the top level Pixel Data element
type Mode int

const (
	// ReadAll loads pixel data into memory
	ReadAll Mode = iota
	// StopAtPixelData returns once the Pixel Data header is read, leaving
	// the stream positioned at the first value byte
	StopAtPixelData
	// BulkDataReferences records pixel data and fragments as offsets into
	// the source and skips over them
	BulkDataReferences
)

// PixelHeader describes a Pixel Data element whose value was left unread
type PixelHeader struct {
	VR     vr.VR
	Length uint32
	// Offset is the stream position of the first value byte
	Offset int64
}

// Encapsulated returns true if the value is a fragment sequence
func (h *PixelHeader) Encapsulated() bool {
	return h.Length == UndefinedLength
}

// Reader reads DICOM Part 10 streams
type Reader struct {
	src    io.Reader
	br     *bufio.Reader
	seeker io.Seeker
	at     io.ReaderAt
	size   int64
	path   string
	pos    int64
	mode   Mode

	explicitVR bool
	order      binary.ByteOrder
	syntax     transfer.Syntax
	pixel      *PixelHeader
	scratch    [8]byte
}

// Option configures a Reader
type Option func(*Reader)

// WithMode sets the pixel data mode
func WithMode(m Mode) Option {
	return func(r *Reader) { r.mode = m }
}

// WithPath makes bulk data references reopen the named file on demand
// instead of holding on to the source
func WithPath(path string) Option {
	return func(r *Reader) { r.path = path }
}

// NewReader creates a reader over a forward-only stream
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{
		src:        r,
		size:       -1,
		explicitVR: true,
		order:      binary.LittleEndian,
	}
	if s, ok := r.(io.Seeker); ok {
		rd.seeker = s
	}
	for _, opt := range opts {
		opt(rd)
	}
	rd.br = bufio.NewReader(rd.src)
	return rd
}

// NewReaderAt creates a reader over a random access source. Pixel data is
// recorded as bulk data references unless another mode is given.
func NewReaderAt(ra io.ReaderAt, size int64, opts ...Option) *Reader {
	sr := io.NewSectionReader(ra, 0, size)
	rd := NewReader(sr, append([]Option{WithMode(BulkDataReferences)}, opts...)...)
	rd.at = ra
	rd.size = size
	return rd
}

// Parse reads a complete stream with pixel data in memory
func Parse(r io.Reader) (*Metadata, error) {
	return NewReader(r).ReadMetadata()
}

// ParseFile reads a file. In BulkDataReferences mode pixel data stays on
// disk and is reopened by path when read.
func ParseFile(path string, mode Mode) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return NewReaderAt(f, fi.Size(), WithMode(mode), WithPath(path)).ReadMetadata()
}

// PixelHeader returns the Pixel Data header in StopAtPixelData mode, or nil
// when the stream had no pixel data
func (r *Reader) PixelHeader() *PixelHeader {
	return r.pixel
}

// Body returns the stream positioned after everything consumed so far
func (r *Reader) Body() io.Reader {
	return r.br
}

// Position returns the number of bytes consumed
func (r *Reader) Position() int64 {
	return r.pos
}

// TransferSyntax returns the syntax the dataset was read with
func (r *Reader) TransferSyntax() transfer.Syntax {
	return r.syntax
}

// ReadMetadata reads the optional preamble, the file meta information and
// the dataset
func (r *Reader) ReadMetadata() (*Metadata, error) {
	if err := r.readPreamble(); err != nil {
		return nil, err
	}
	fmi, err := r.readFileMeta()
	if err != nil {
		return nil, fmt.Errorf("reading file meta information: %w", err)
	}
	meta := &Metadata{FileMeta: fmi}
	if fmi != nil {
		r.syntax = transfer.FromUID(fmi.String(tag.TransferSyntaxUID, ""))
		if r.syntax == transfer.DeflatedExplicitVR {
			return nil, &UnsupportedTransferSyntaxError{UID: string(r.syntax)}
		}
		r.explicitVR = r.syntax.IsExplicitVR()
		r.order = r.syntax.ByteOrder()
	} else {
		// no group 0002: sniff the VR bytes of the first element
		b, _ := r.br.Peek(6)
		r.explicitVR = len(b) == 6 && vr.Valid(b[4:6])
		r.order = binary.LittleEndian
		r.syntax = transfer.ImplicitVRLittleEndian
		if r.explicitVR {
			r.syntax = transfer.ExplicitVRLittleEndian
		}
	}
	ds, err := r.readDataset(-1, 0)
	if err != nil {
		return nil, err
	}
	meta.Dataset = ds
	return meta, nil
}

func (r *Reader) readPreamble() error {
	b, err := r.br.Peek(132)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return fmt.Errorf("reading preamble: %w", err)
	}
	if len(b) == 132 && string(b[128:132]) == "DICM" {
		return r.skip(132)
	}
	return nil
}

// readFileMeta reads group 0002, always explicit VR little endian
func (r *Reader) readFileMeta() (*Dataset, error) {
	var fmi *Dataset
	explicitVR, order := r.explicitVR, r.order
	r.explicitVR, r.order = true, binary.LittleEndian
	defer func() { r.explicitVR, r.order = explicitVR, order }()
	for {
		b, err := r.br.Peek(2)
		if err != nil || binary.LittleEndian.Uint16(b) != 0x0002 {
			return fmi, nil
		}
		t, err := r.readTag()
		if err != nil {
			return nil, err
		}
		elem, err := r.readElement(t, 0)
		if err != nil {
			return nil, err
		}
		if fmi == nil {
			fmi = NewDataset()
		}
		fmi.Elements[t] = elem
	}
}

// readDataset reads elements until length bytes are consumed, an item
// delimitation is found, or (length < 0 at the top level) the stream ends
func (r *Reader) readDataset(length int64, depth int) (*Dataset, error) {
	ds := &Dataset{
		Elements:  make(map[Tag]*Element),
		BigEndian: r.order == binary.BigEndian,
	}
	end := r.pos + length
	for {
		if length >= 0 && r.pos >= end {
			return ds, nil
		}
		t, err := r.readTag()
		if errors.Is(err, io.EOF) && length < 0 && depth == 0 {
			return ds, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading tag at %d: %w", r.pos, err)
		}
		if t == tag.ItemDelimitationItem {
			if _, err := r.readUint32(); err != nil {
				return nil, err
			}
			return ds, nil
		}
		if depth == 0 && t == tag.PixelData && r.mode == StopAtPixelData {
			v, l, err := r.readHeader(t)
			if err != nil {
				return nil, fmt.Errorf("reading pixel data header: %w", err)
			}
			r.pixel = &PixelHeader{VR: v, Length: l, Offset: r.pos}
			return ds, nil
		}
		elem, err := r.readElement(t, depth)
		if err != nil {
			return nil, fmt.Errorf("failed to read element %v: %w", t, err)
		}
		ds.Elements[t] = elem
	}
}

// readHeader reads the VR and value length following a tag
func (r *Reader) readHeader(t Tag) (vr.VR, uint32, error) {
	if t.Group == 0xFFFE {
		l, err := r.readUint32()
		return "", l, err
	}
	if !r.explicitVR {
		l, err := r.readUint32()
		return vr.ForTag(t), l, err
	}
	if err := r.readFull(r.scratch[:2]); err != nil {
		return "", 0, err
	}
	v := vr.VR(r.scratch[:2])
	if v.IsLong() {
		if err := r.skip(2); err != nil {
			return "", 0, err
		}
		l, err := r.readUint32()
		return v, l, err
	}
	l, err := r.readUint16()
	return v, uint32(l), err
}

func (r *Reader) readElement(t Tag, depth int) (*Element, error) {
	v, length, err := r.readHeader(t)
	if err != nil {
		return nil, err
	}
	switch {
	case t == tag.PixelData:
		pd, err := r.readPixelData(v, length, depth)
		if err != nil {
			return nil, err
		}
		return &Element{Tag: t, VR: v, Value: pd}, nil
	case v == vr.SQ, v == vr.UN && length == UndefinedLength:
		items, err := r.readSequence(length, depth, v == vr.UN)
		if err != nil {
			return nil, err
		}
		return &Element{Tag: t, VR: vr.SQ, Value: items}, nil
	case length == UndefinedLength:
		return nil, fmt.Errorf("%w: undefined length for %s", ErrMalformed, v)
	}
	data, err := r.readN(int64(length))
	if err != nil {
		return nil, err
	}
	return &Element{Tag: t, VR: v, Value: r.decodeValue(v, data)}, nil
}

// readSequence reads sequence items. UN sequences of undefined length are
// encoded as implicit VR little endian.
func (r *Reader) readSequence(length uint32, depth int, implicitLE bool) ([]*Dataset, error) {
	if implicitLE {
		explicitVR, order := r.explicitVR, r.order
		r.explicitVR, r.order = false, binary.LittleEndian
		defer func() { r.explicitVR, r.order = explicitVR, order }()
	}
	items := []*Dataset{}
	end := r.pos + int64(length)
	for {
		if length != UndefinedLength && r.pos >= end {
			return items, nil
		}
		t, err := r.readTag()
		if err != nil {
			return nil, fmt.Errorf("reading sequence item tag: %w", err)
		}
		itemLen, err := r.readUint32()
		if err != nil {
			return nil, fmt.Errorf("reading item length: %w", err)
		}
		switch t {
		case tag.SequenceDelimitationItem:
			return items, nil
		case tag.Item:
			l := int64(itemLen)
			if itemLen == UndefinedLength {
				l = -1
			}
			item, err := r.readDataset(l, depth+1)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		default:
			return nil, fmt.Errorf("%w: expected item, got %v", ErrMalformed, t)
		}
	}
}

// readPixelData reads a native value or the offset table and fragments of
// encapsulated pixel data
func (r *Reader) readPixelData(v vr.VR, length uint32, depth int) (*PixelData, error) {
	pd := &PixelData{VR: v}
	if length != UndefinedLength {
		b, err := r.bulk(int64(length), depth)
		if err != nil {
			return nil, err
		}
		pd.Bulk = &b
		return pd, nil
	}

	t, err := r.readTag()
	if err != nil {
		return nil, err
	}
	if t != tag.Item {
		return nil, fmt.Errorf("%w: expected BOT item tag, got %v", ErrMalformed, t)
	}
	botLen, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	bot, err := r.readN(int64(botLen))
	if err != nil {
		return nil, err
	}
	for i := 0; i+4 <= len(bot); i += 4 {
		pd.Offsets = append(pd.Offsets, r.order.Uint32(bot[i:]))
	}

	for {
		t, err := r.readTag()
		if err != nil {
			return nil, fmt.Errorf("reading fragment tag: %w", err)
		}
		itemLen, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		if t == tag.SequenceDelimitationItem {
			break
		}
		if t != tag.Item {
			return nil, fmt.Errorf("%w: expected item tag, got %v", ErrMalformed, t)
		}
		frag, err := r.bulk(int64(itemLen), depth)
		if err != nil {
			return nil, err
		}
		pd.Fragments = append(pd.Fragments, frag)
	}
	return pd, nil
}

// bulk reads or, for top level references, skips n value bytes
func (r *Reader) bulk(n int64, depth int) (BulkData, error) {
	off := r.pos
	if r.mode == BulkDataReferences && depth == 0 && (r.at != nil || r.path != "") {
		if err := r.skip(n); err != nil {
			return BulkData{}, err
		}
		b := BulkData{Offset: off, Length: n}
		if r.path != "" {
			b.Path = r.path
		} else {
			b.Source = r.at
		}
		return b, nil
	}
	data, err := r.readN(n)
	if err != nil {
		return BulkData{}, err
	}
	return BulkData{Data: data, Offset: off, Length: n}, nil
}

func (r *Reader) decodeValue(v vr.VR, data []byte) any {
	switch {
	case v.IsString():
		s := strings.TrimRight(string(data), "\x00 ")
		if s == "" {
			return []string{}
		}
		if !v.IsMultiValued() {
			return []string{s}
		}
		parts := strings.Split(s, `\`)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	case v == vr.US, v == vr.SS:
		out := make([]int, len(data)/2)
		for i := range out {
			u := r.order.Uint16(data[i*2:])
			if v == vr.SS {
				out[i] = int(int16(u))
			} else {
				out[i] = int(u)
			}
		}
		return out
	case v == vr.UL, v == vr.SL:
		out := make([]int, len(data)/4)
		for i := range out {
			u := r.order.Uint32(data[i*4:])
			if v == vr.SL {
				out[i] = int(int32(u))
			} else {
				out[i] = int(u)
			}
		}
		return out
	case v == vr.AT:
		out := make([]int, len(data)/4)
		for i := range out {
			g := r.order.Uint16(data[i*4:])
			e := r.order.Uint16(data[i*4+2:])
			out[i] = int(uint32(g)<<16 | uint32(e))
		}
		return out
	case v == vr.SV, v == vr.UV:
		out := make([]int, len(data)/8)
		for i := range out {
			out[i] = int(r.order.Uint64(data[i*8:]))
		}
		return out
	case v == vr.FL:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(r.order.Uint32(data[i*4:])))
		}
		return out
	case v == vr.FD:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = math.Float64frombits(r.order.Uint64(data[i*8:]))
		}
		return out
	}
	return data
}

func (r *Reader) readTag() (Tag, error) {
	if err := r.readFull(r.scratch[:4]); err != nil {
		return Tag{}, err
	}
	return Tag{
		Group:   r.order.Uint16(r.scratch[0:]),
		Element: r.order.Uint16(r.scratch[2:]),
	}, nil
}

func (r *Reader) readUint16() (uint16, error) {
	if err := r.readFull(r.scratch[:2]); err != nil {
		return 0, err
	}
	return r.order.Uint16(r.scratch[:]), nil
}

func (r *Reader) readUint32() (uint32, error) {
	if err := r.readFull(r.scratch[:4]); err != nil {
		return 0, err
	}
	return r.order.Uint32(r.scratch[:]), nil
}

func (r *Reader) readFull(b []byte) error {
	n, err := io.ReadFull(r.br, b)
	r.pos += int64(n)
	return err
}

func (r *Reader) readN(n int64) ([]byte, error) {
	if r.size >= 0 && r.pos+n > r.size {
		return nil, fmt.Errorf("%w: value of %d bytes at %d overruns stream", ErrMalformed, n, r.pos)
	}
	b := make([]byte, n)
	if err := r.readFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// skip advances n bytes. Runs longer than the buffer are seeked over when
// the source can seek.
func (r *Reader) skip(n int64) error {
	if r.size >= 0 && r.pos+n > r.size {
		return fmt.Errorf("skipping %d bytes at %d: %w", n, r.pos, io.ErrUnexpectedEOF)
	}
	if r.seeker != nil && n > int64(r.br.Size()) {
		k := r.br.Buffered()
		if _, err := r.br.Discard(k); err != nil {
			return err
		}
		if _, err := r.seeker.Seek(n-int64(k), io.SeekCurrent); err != nil {
			return fmt.Errorf("seeking %d bytes: %w", n, err)
		}
		r.br.Reset(r.src)
		r.pos += n
		return nil
	}
	d, err := r.br.Discard(int(n))
	r.pos += int64(d)
	if err != nil {
		return fmt.Errorf("skipping %d bytes: %w", n, err)
	}
	return nil
}
