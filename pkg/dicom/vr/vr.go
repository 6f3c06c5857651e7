// Package vr defines DICOM Value Representations
package vr

import "github.com/jpfielding/dcmimage.go/pkg/dicom/tag"

// VR represents a DICOM Value Representation
type VR string

// Standard DICOM Value Representations
const (
	AE VR = "AE" // Application Entity
	AS VR = "AS" // Age String
	AT VR = "AT" // Attribute Tag
	CS VR = "CS" // Code String
	DA VR = "DA" // Date
	DS VR = "DS" // Decimal String
	DT VR = "DT" // DateTime
	FL VR = "FL" // Floating Point Single
	FD VR = "FD" // Floating Point Double
	IS VR = "IS" // Integer String
	LO VR = "LO" // Long String
	LT VR = "LT" // Long Text
	OB VR = "OB" // Other Byte
	OD VR = "OD" // Other Double
	OF VR = "OF" // Other Float
	OL VR = "OL" // Other Long
	OV VR = "OV" // Other 64-bit Very Long
	OW VR = "OW" // Other Word
	PN VR = "PN" // Person Name
	SH VR = "SH" // Short String
	SL VR = "SL" // Signed Long
	SQ VR = "SQ" // Sequence of Items
	SS VR = "SS" // Signed Short
	ST VR = "ST" // Short Text
	SV VR = "SV" // Signed 64-bit Very Long
	TM VR = "TM" // Time
	UC VR = "UC" // Unlimited Characters
	UI VR = "UI" // Unique Identifier
	UL VR = "UL" // Unsigned Long
	UN VR = "UN" // Unknown
	UR VR = "UR" // Universal Resource Identifier
	US VR = "US" // Unsigned Short
	UT VR = "UT" // Unlimited Text
	UV VR = "UV" // Unsigned 64-bit Very Long
)

// IsLong returns true if the VR uses a 4-byte length preceded by 2 reserved
// bytes in explicit VR encodings
func (v VR) IsLong() bool {
	switch v {
	case OB, OD, OF, OL, OV, OW, SQ, SV, UC, UN, UR, UT, UV:
		return true
	default:
		return false
	}
}

// IsString returns true if this VR contains string data
func (v VR) IsString() bool {
	switch v {
	case AE, AS, CS, DA, DS, DT, IS, LO, LT, PN, SH, ST, TM, UC, UI, UR, UT:
		return true
	default:
		return false
	}
}

// IsMultiValued reports whether string values of this VR are split on '\'
func (v VR) IsMultiValued() bool {
	return v.IsString() && v != LT && v != ST && v != UT && v != UR
}

// IsSequence returns true if this is a sequence VR
func (v VR) IsSequence() bool {
	return v == SQ
}

// ValueSize returns the fixed size in bytes for numeric VRs, or 0 for variable
func (v VR) ValueSize() int {
	switch v {
	case SS, US:
		return 2
	case AT, FL, SL, UL:
		return 4
	case FD, SV, UV:
		return 8
	default:
		return 0
	}
}

// Valid reports whether the two bytes name a known VR. Used to sniff
// explicit VR datasets that have no file meta information.
func Valid(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	switch VR(b[:2]) {
	case AE, AS, AT, CS, DA, DS, DT, FL, FD, IS, LO, LT, OB, OD, OF, OL, OV, OW,
		PN, SH, SL, SQ, SS, ST, SV, TM, UC, UI, UL, UN, UR, US, UT, UV:
		return true
	}
	return false
}

// dictionary covers the attributes the pixel pipeline consumes; everything
// else decodes as UN under implicit VR.
var dictionary = map[tag.Tag]VR{
	tag.FileMetaInformationGroupLength: UL,
	tag.FileMetaInformationVersion:     OB,
	tag.MediaStorageSOPClassUID:        UI,
	tag.MediaStorageSOPInstanceUID:     UI,
	tag.TransferSyntaxUID:              UI,
	tag.ImplementationClassUID:         UI,

	tag.SpecificCharacterSet:     CS,
	tag.SOPClassUID:              UI,
	tag.SOPInstanceUID:           UI,
	tag.Modality:                 CS,
	tag.ReferencedImageSequence:  SQ,
	tag.ReferencedSOPClassUID:    UI,
	tag.ReferencedSOPInstanceUID: UI,
	tag.ReferencedFrameNumber:    IS,

	tag.SamplesPerPixel:           US,
	tag.PhotometricInterpretation: CS,
	tag.PlanarConfiguration:       US,
	tag.NumberOfFrames:            IS,
	tag.Rows:                      US,
	tag.Columns:                   US,
	tag.BitsAllocated:             US,
	tag.BitsStored:                US,
	tag.HighBit:                   US,
	tag.PixelRepresentation:       US,
	tag.SmallestImagePixelValue:   US,
	tag.LargestImagePixelValue:    US,

	tag.RedPaletteColorLUTDescriptor:   US,
	tag.GreenPaletteColorLUTDescriptor: US,
	tag.BluePaletteColorLUTDescriptor:  US,
	tag.RedPaletteColorLUTData:         OW,
	tag.GreenPaletteColorLUTData:       OW,
	tag.BluePaletteColorLUTData:        OW,

	tag.WindowCenter:                 DS,
	tag.WindowWidth:                  DS,
	tag.RescaleIntercept:             DS,
	tag.RescaleSlope:                 DS,
	tag.RescaleType:                  LO,
	tag.WindowCenterWidthExplanation: LO,
	tag.VOILUTFunction:               CS,
	tag.LUTDescriptor:                US,
	tag.LUTExplanation:               LO,
	tag.ModalityLUTType:              LO,
	tag.LUTData:                      OW,
	tag.ModalityLUTSequence:          SQ,
	tag.VOILUTSequence:               SQ,
	tag.SoftcopyVOILUTSequence:       SQ,
	tag.PresentationLUTSequence:      SQ,
	tag.PresentationLUTShape:         CS,

	tag.FrameVOILUTSequence:              SQ,
	tag.PixelValueTransformationSequence: SQ,
	tag.SharedFunctionalGroupsSequence:   SQ,
	tag.PerFrameFunctionalGroupsSequence: SQ,

	tag.GraphicLayer:                     CS,
	tag.GraphicLayerSequence:             SQ,
	tag.GraphicLayerOrder:                IS,
	tag.RecommendedDisplayGrayscaleValue: US,

	tag.PixelData: OW,
}

// overlays maps overlay group 6000 elements; lookups mask the group.
var overlays = map[uint16]VR{
	tag.OverlayRows.Element:             US,
	tag.OverlayColumns.Element:          US,
	tag.NumberOfFramesInOverlay.Element: IS,
	tag.OverlayDescription.Element:      LO,
	tag.OverlayType.Element:             CS,
	tag.OverlayOrigin.Element:           SS,
	tag.ImageFrameOrigin.Element:        US,
	tag.OverlayBitsAllocated.Element:    US,
	tag.OverlayBitPosition.Element:      US,
	tag.OverlayActivationLayer.Element:  CS,
	tag.OverlayData.Element:             OW,
}

// ForTag returns the VR of a tag under implicit VR encodings
func ForTag(t tag.Tag) VR {
	if t.IsOverlay() {
		if v, ok := overlays[t.Element]; ok {
			return v
		}
		return UN
	}
	if t.Element == 0x0000 {
		return UL // group length
	}
	if v, ok := dictionary[t]; ok {
		return v
	}
	return UN
}
