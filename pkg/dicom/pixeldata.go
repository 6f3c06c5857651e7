package dicom

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
)

// PixelData represents the Pixel Data element, either one contiguous value
// (native syntaxes) or a list of encapsulated
// fragments with an optional Basic Offset Table.
type PixelData struct {
	VR vr.VR

	// Bulk is set for native pixel data
	Bulk *BulkData

	// Offsets is the Basic Offset Table of encapsulated pixel data
	Offsets []uint32
	// Fragments are the encapsulated items following the offset table
	Fragments []BulkData
}

// Encapsulated returns true if the pixel data is stored as fragments
func (pd *PixelData) Encapsulated() bool {
	return pd.Bulk == nil
}

// BulkData locates a run of bytes. Data holds the bytes in memory, otherwise
// they live at Offset in Source, or in the file at Path opened on demand.
type BulkData struct {
	Data   []byte
	Source io.ReaderAt
	Path   string
	Offset int64
	Length int64
}

// NewBulkData wraps in-memory bytes
func NewBulkData(b []byte) BulkData {
	return BulkData{Data: b, Length: int64(len(b))}
}

// Open returns a reader over exactly the bulk data bytes and a func that
// releases whatever Open acquired. The release func is never nil.
func (b BulkData) Open() (*io.SectionReader, func() error, error) {
	noop := func() error { return nil }
	switch {
	case b.Data != nil:
		return io.NewSectionReader(bytes.NewReader(b.Data), 0, int64(len(b.Data))), noop, nil
	case b.Source != nil:
		return io.NewSectionReader(b.Source, b.Offset, b.Length), noop, nil
	case b.Path != "":
		f, err := os.Open(b.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("opening bulk data %s: %w", b.Path, err)
		}
		return io.NewSectionReader(f, b.Offset, b.Length), f.Close, nil
	}
	return io.NewSectionReader(bytes.NewReader(nil), 0, 0), noop, nil
}

// ReadAll returns the bulk data bytes, opening and closing the source as needed
func (b BulkData) ReadAll() ([]byte, error) {
	if b.Data != nil {
		return b.Data, nil
	}
	sr, closer, err := b.Open()
	if err != nil {
		return nil, err
	}
	defer closer()
	buf := make([]byte, sr.Size())
	if _, err := io.ReadFull(sr, buf); err != nil {
		return nil, fmt.Errorf("reading bulk data at %d: %w", b.Offset, err)
	}
	return buf, nil
}
