package imageio

import "github.com/jpfielding/dcmimage.go/pkg/dicom"

// Format selects the sample width of images rendered from monochrome data
type Format int

// Destination formats
const (
	Gray8 Format = iota
	Gray16
)

func (f Format) bits() int {
	if f == Gray16 {
		return 16
	}
	return 8
}

// ReadParam controls how ReadImage renders a frame
type ReadParam struct {
	DestinationFormat Format

	// PresentationState overrides the grayscale and overlay attributes of
	// the image
	PresentationState *dicom.Dataset

	// WindowCenter and WindowWidth, when the width is not 0, replace any
	// VOI stage found in the attributes
	WindowCenter float64
	WindowWidth  float64
	WindowIndex  int
	VOILUTIndex  int
	PreferWindow bool
	// AutoWindowing derives a window from the pixel value range when no
	// VOI stage applies
	AutoWindowing bool

	OverlayActivationMask int
	OverlayGrayscaleValue int
}

// DefaultReadParam returns 8 bit output with auto windowing and all
// overlays drawn white
func DefaultReadParam() *ReadParam {
	return &ReadParam{
		DestinationFormat:     Gray8,
		PreferWindow:          true,
		AutoWindowing:         true,
		OverlayActivationMask: 0xFFFF,
		OverlayGrayscaleValue: 0xFFFF,
	}
}
