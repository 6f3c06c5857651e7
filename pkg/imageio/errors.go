package imageio

import (
	"errors"
	"fmt"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
)

// Common errors
var (
	ErrNoInputBound               = errors.New("imageio: no input bound")
	ErrMissingPixelData           = errors.New("imageio: missing pixel data")
	ErrFrameIndexOutOfRange       = errors.New("imageio: frame index out of range")
	ErrSequentialAccessViolation  = errors.New("imageio: stream already after requested frame")
	ErrInsufficientFragments      = errors.New("imageio: insufficient fragments")
	ErrMissingFileMetaInformation = errors.New("imageio: missing file meta information for compressed pixel data")
	ErrUnsupportedTransferSyntax  = dicom.ErrUnsupportedTransferSyntax
	ErrMalformedPixelData         = errors.New("imageio: malformed pixel data")
)

// UnsupportedTransferSyntaxError names a transfer syntax without a
// registered decoder
type UnsupportedTransferSyntaxError = dicom.UnsupportedTransferSyntaxError

// FrameIndexError reports an index outside [0, Frames)
type FrameIndexError struct {
	Index  int
	Frames int
}

func (e *FrameIndexError) Error() string {
	return fmt.Sprintf("imageio: frame index %d out of range [0,%d)", e.Index, e.Frames)
}

// Is matches ErrFrameIndexOutOfRange
func (e *FrameIndexError) Is(target error) bool {
	return target == ErrFrameIndexOutOfRange
}

// SequentialAccessError reports a request for a frame the forward-only
// stream has already passed
type SequentialAccessError struct {
	Index   int
	Flushed int
}

func (e *SequentialAccessError) Error() string {
	return fmt.Sprintf("imageio: input stream position already after requested frame #%d (cursor at #%d)", e.Index+1, e.Flushed+1)
}

// Is matches ErrSequentialAccessViolation
func (e *SequentialAccessError) Is(target error) bool {
	return target == ErrSequentialAccessViolation
}

// InsufficientFragmentsError reports that the fragments ran out before the
// requested frame
type InsufficientFragmentsError struct {
	Requested int
	Available int
}

func (e *InsufficientFragmentsError) Error() string {
	return fmt.Sprintf("imageio: data fragments only contain %d frames, frame #%d requested", e.Available, e.Requested+1)
}

// Is matches ErrInsufficientFragments
func (e *InsufficientFragmentsError) Is(target error) bool {
	return target == ErrInsufficientFragments
}
