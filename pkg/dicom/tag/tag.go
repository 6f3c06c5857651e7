// Package tag defines the DICOM tags consumed by the pixel data reader
package tag

import (
	"encoding/json"
	"fmt"
)

// Tag represents a DICOM tag with Group and Element
type Tag struct {
	Group   uint16
	Element uint16
}

// New creates a new Tag
func New(group, element uint16) Tag {
	return Tag{Group: group, Element: element}
}

// Uint32 packs the tag as GGGGEEEE
func (t Tag) Uint32() uint32 {
	return uint32(t.Group)<<16 | uint32(t.Element)
}

// IsPrivate returns true if this is a private tag (odd group number)
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// IsGroup0002 returns true if this tag is in the File Meta Information group
func (t Tag) IsGroup0002() bool {
	return t.Group == 0x0002
}

// IsOverlay returns true for the repeating overlay groups 6000-601E
func (t Tag) IsOverlay() bool {
	return t.Group >= 0x6000 && t.Group <= 0x601E && t.Group%2 == 0
}

// InOverlayGroup returns the tag moved into the overlay group at the given
// offset. Offsets are even, 0 through 0x1E.
func (t Tag) InOverlayGroup(offset uint16) Tag {
	return Tag{Group: t.Group + offset, Element: t.Element}
}

// String returns a string representation of the Tag (GGGG,EEEE)
func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// MarshalJSON returns a JSON representation of the Tag
func (t Tag) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// File Meta Information (Group 0002)
var (
	FileMetaInformationGroupLength = Tag{0x0002, 0x0000}
	FileMetaInformationVersion     = Tag{0x0002, 0x0001}
	MediaStorageSOPClassUID        = Tag{0x0002, 0x0002}
	MediaStorageSOPInstanceUID     = Tag{0x0002, 0x0003}
	TransferSyntaxUID              = Tag{0x0002, 0x0010}
	ImplementationClassUID         = Tag{0x0002, 0x0012}
)

// SOP Common / General Image
var (
	SpecificCharacterSet     = Tag{0x0008, 0x0005}
	SOPClassUID              = Tag{0x0008, 0x0016}
	SOPInstanceUID           = Tag{0x0008, 0x0018}
	Modality                 = Tag{0x0008, 0x0060}
	ReferencedImageSequence  = Tag{0x0008, 0x1140}
	ReferencedSOPClassUID    = Tag{0x0008, 0x1150}
	ReferencedSOPInstanceUID = Tag{0x0008, 0x1155}
	ReferencedFrameNumber    = Tag{0x0008, 0x1160}
)

// Image Pixel Module (Group 0028)
var (
	SamplesPerPixel           = Tag{0x0028, 0x0002}
	PhotometricInterpretation = Tag{0x0028, 0x0004}
	PlanarConfiguration       = Tag{0x0028, 0x0006}
	NumberOfFrames            = Tag{0x0028, 0x0008}
	Rows                      = Tag{0x0028, 0x0010}
	Columns                   = Tag{0x0028, 0x0011}
	BitsAllocated             = Tag{0x0028, 0x0100}
	BitsStored                = Tag{0x0028, 0x0101}
	HighBit                   = Tag{0x0028, 0x0102}
	PixelRepresentation       = Tag{0x0028, 0x0103}
	SmallestImagePixelValue   = Tag{0x0028, 0x0106}
	LargestImagePixelValue    = Tag{0x0028, 0x0107}
	PixelData                 = Tag{0x7FE0, 0x0010}
)

// Palette Color Lookup Table
var (
	RedPaletteColorLUTDescriptor   = Tag{0x0028, 0x1101}
	GreenPaletteColorLUTDescriptor = Tag{0x0028, 0x1102}
	BluePaletteColorLUTDescriptor  = Tag{0x0028, 0x1103}
	RedPaletteColorLUTData         = Tag{0x0028, 0x1201}
	GreenPaletteColorLUTData       = Tag{0x0028, 0x1202}
	BluePaletteColorLUTData        = Tag{0x0028, 0x1203}
)

// Modality LUT, VOI LUT and Presentation LUT
var (
	WindowCenter                 = Tag{0x0028, 0x1050}
	WindowWidth                  = Tag{0x0028, 0x1051}
	RescaleIntercept             = Tag{0x0028, 0x1052}
	RescaleSlope                 = Tag{0x0028, 0x1053}
	RescaleType                  = Tag{0x0028, 0x1054}
	WindowCenterWidthExplanation = Tag{0x0028, 0x1055}
	VOILUTFunction               = Tag{0x0028, 0x1056}
	LUTDescriptor                = Tag{0x0028, 0x3002}
	LUTExplanation               = Tag{0x0028, 0x3003}
	ModalityLUTType              = Tag{0x0028, 0x3004}
	LUTData                      = Tag{0x0028, 0x3006}
	ModalityLUTSequence          = Tag{0x0028, 0x3000}
	VOILUTSequence               = Tag{0x0028, 0x3010}
	SoftcopyVOILUTSequence       = Tag{0x0028, 0x3110}
	PresentationLUTSequence      = Tag{0x2050, 0x0010}
	PresentationLUTShape         = Tag{0x2050, 0x0020}
)

// Multi-frame Functional Groups
var (
	FrameVOILUTSequence              = Tag{0x0028, 0x9132}
	PixelValueTransformationSequence = Tag{0x0028, 0x9145}
	SharedFunctionalGroupsSequence   = Tag{0x5200, 0x9229}
	PerFrameFunctionalGroupsSequence = Tag{0x5200, 0x9230}
)

// Overlay Plane Module, group 6000. Use InOverlayGroup for groups 6002-601E.
var (
	OverlayRows             = Tag{0x6000, 0x0010}
	OverlayColumns          = Tag{0x6000, 0x0011}
	NumberOfFramesInOverlay = Tag{0x6000, 0x0015}
	OverlayDescription      = Tag{0x6000, 0x0022}
	OverlayType             = Tag{0x6000, 0x0040}
	OverlayOrigin           = Tag{0x6000, 0x0050}
	ImageFrameOrigin        = Tag{0x6000, 0x0051}
	OverlayBitsAllocated    = Tag{0x6000, 0x0100}
	OverlayBitPosition      = Tag{0x6000, 0x0102}
	OverlayActivationLayer  = Tag{0x6000, 0x1001}
	OverlayData             = Tag{0x6000, 0x3000}
)

// Presentation State graphic layers
var (
	GraphicLayer                     = Tag{0x0070, 0x0002}
	GraphicLayerSequence             = Tag{0x0070, 0x0060}
	GraphicLayerOrder                = Tag{0x0070, 0x0062}
	RecommendedDisplayGrayscaleValue = Tag{0x0070, 0x0066}
)

// Item and delimitation tags used by sequences and encapsulated pixel data
var (
	Item                     = Tag{0xFFFE, 0xE000}
	ItemDelimitationItem     = Tag{0xFFFE, 0xE00D}
	SequenceDelimitationItem = Tag{0xFFFE, 0xE0DD}
)
