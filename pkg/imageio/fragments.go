package imageio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
)

// FrameBoundary assigns encapsulated fragments to frames. Fragments are
// presented in order together with the offset of their item tag relative to
// the first fragment item, the unit of the Basic Offset Table. Results must
// not decrease.
type FrameBoundary interface {
	FrameOf(fragment int, itemOffset int64) int
}

// BoundaryFunc picks the FrameBoundary for pixel data declaring frames
// frames with the given Basic Offset Table
type BoundaryFunc func(frames int, offsets []uint32) FrameBoundary

// SingleFrame puts every fragment in frame 0
type SingleFrame struct{}

// FrameOf returns 0
func (SingleFrame) FrameOf(int, int64) int { return 0 }

// FragmentPerFrame maps fragment i to frame i
type FragmentPerFrame struct{}

// FrameOf returns fragment
func (FragmentPerFrame) FrameOf(fragment int, _ int64) int { return fragment }

// OffsetTable groups fragments by the Basic Offset Table: a fragment belongs
// to the last frame starting at or before its item
type OffsetTable []uint32

// FrameOf returns the frame whose offset range holds itemOffset
func (t OffsetTable) FrameOf(_ int, itemOffset int64) int {
	i := sort.Search(len(t), func(i int) bool { return int64(t[i]) > itemOffset })
	return max(i-1, 0)
}

// DefaultBoundary uses all fragments for single frame images, the offset
// table when it has an entry per frame, and one fragment per frame
// otherwise
func DefaultBoundary(frames int, offsets []uint32) FrameBoundary {
	switch {
	case frames <= 1:
		return SingleFrame{}
	case len(offsets) == frames:
		return OffsetTable(offsets)
	}
	return FragmentPerFrame{}
}

// frameFragments returns the fragments of frame i from a fully indexed
// fragment list
func frameFragments(pd *dicom.PixelData, fb FrameBoundary, i int) ([]dicom.BulkData, error) {
	var out []dicom.BulkData
	var offset int64
	last := -1
	for k, frag := range pd.Fragments {
		f := fb.FrameOf(k, offset)
		offset += 8 + frag.Length
		last = max(last, f)
		if f == i {
			out = append(out, frag)
		} else if f > i {
			break
		}
	}
	if len(out) == 0 {
		return nil, &InsufficientFragmentsError{Requested: i, Available: last + 1}
	}
	return out, nil
}

// openFragments returns a reader over the concatenated fragments and a func
// releasing them
func openFragments(frags []dicom.BulkData) (io.Reader, func() error, error) {
	readers := make([]io.Reader, 0, len(frags))
	closers := make([]func() error, 0, len(frags))
	release := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	for _, f := range frags {
		sr, closer, err := f.Open()
		closers = append(closers, closer)
		if err != nil {
			return nil, release, err
		}
		readers = append(readers, sr)
	}
	return io.MultiReader(readers...), release, nil
}

// fragmentStream walks the fragments of encapsulated pixel data on a
// forward-only stream, one frame at a time. The first fragment of the next
// frame is read ahead to find where the current one ends.
type fragmentStream struct {
	r        io.Reader
	boundary FrameBoundary

	frame   int      // index of the buffered frame, -1 before the first
	current [][]byte // fragments of the buffered frame
	group   int      // boundary value of the buffered frame

	ahead      []byte
	aheadGroup int
	hasAhead   bool

	fragment int   // fragments consumed
	offset   int64 // item offset of the next fragment
	done     bool
}

// newFragmentStream reads the Basic Offset Table item and prepares to
// iterate the fragments after it
func newFragmentStream(r io.Reader, frames int, pick BoundaryFunc) (*fragmentStream, error) {
	fs := &fragmentStream{r: r, frame: -1}
	bot, ok, err := fs.readItem()
	if err != nil {
		return nil, fmt.Errorf("reading offset table: %w", err)
	}
	if !ok {
		fs.done = true
	}
	offsets := make([]uint32, 0, len(bot)/4)
	for i := 0; i+4 <= len(bot); i += 4 {
		offsets = append(offsets, binary.LittleEndian.Uint32(bot[i:]))
	}
	fs.boundary = pick(frames, offsets)
	return fs, nil
}

// Frame returns the index of the buffered frame
func (fs *fragmentStream) Frame() int {
	return fs.frame
}

// Seek advances to frame i. Moving forward reads every fragment in between,
// so the cost grows with the distance in frames. Seeking to the buffered
// frame reads nothing. Frames before the buffered one are gone.
func (fs *fragmentStream) Seek(i int) error {
	if i < fs.frame {
		return &SequentialAccessError{Index: i, Flushed: fs.frame}
	}
	for fs.frame < i {
		ok, err := fs.next()
		if err != nil {
			return err
		}
		if !ok {
			return &InsufficientFragmentsError{Requested: i, Available: fs.frame + 1}
		}
	}
	return nil
}

// Reader returns the bytes of the buffered frame
func (fs *fragmentStream) Reader() io.Reader {
	readers := make([]io.Reader, len(fs.current))
	for k, b := range fs.current {
		readers[k] = bytes.NewReader(b)
	}
	return io.MultiReader(readers...)
}

func (fs *fragmentStream) next() (bool, error) {
	var first []byte
	var group int
	switch {
	case fs.hasAhead:
		first, group = fs.ahead, fs.aheadGroup
		fs.ahead, fs.hasAhead = nil, false
	case fs.done:
		return false, nil
	default:
		frag, g, ok, err := fs.readFragment()
		if err != nil || !ok {
			return false, err
		}
		first, group = frag, g
	}

	fs.current = [][]byte{first}
	fs.group = group
	fs.frame++
	for !fs.done {
		frag, g, ok, err := fs.readFragment()
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		if g != fs.group {
			fs.ahead, fs.aheadGroup, fs.hasAhead = frag, g, true
			break
		}
		fs.current = append(fs.current, frag)
	}
	return true, nil
}

func (fs *fragmentStream) readFragment() ([]byte, int, bool, error) {
	at := fs.offset
	frag, ok, err := fs.readItem()
	if err != nil || !ok {
		fs.done = true
		return nil, 0, false, err
	}
	g := fs.boundary.FrameOf(fs.fragment, at)
	fs.fragment++
	fs.offset += 8 + int64(len(frag))
	return frag, g, true, nil
}

// readItem reads one item, reporting false at the sequence delimiter
func (fs *fragmentStream) readItem() ([]byte, bool, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(fs.r, hdr[:]); err != nil {
		return nil, false, fmt.Errorf("%w: reading item header: %v", ErrMalformedPixelData, err)
	}
	t := tag.New(binary.LittleEndian.Uint16(hdr[:]), binary.LittleEndian.Uint16(hdr[2:]))
	length := binary.LittleEndian.Uint32(hdr[4:])
	switch {
	case t == tag.SequenceDelimitationItem:
		return nil, false, nil
	case t != tag.Item:
		return nil, false, fmt.Errorf("%w: expected item, got %v", ErrMalformedPixelData, t)
	case length == dicom.UndefinedLength:
		return nil, false, fmt.Errorf("%w: fragment of undefined length", ErrMalformedPixelData)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(fs.r, b); err != nil {
		return nil, false, fmt.Errorf("%w: reading fragment: %v", ErrMalformedPixelData, err)
	}
	return b, true, nil
}
