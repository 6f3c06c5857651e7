package imageio

import "strings"

// Photometric is a Photometric Interpretation
type Photometric string

// Photometric Interpretations
const (
	Monochrome1   Photometric = "MONOCHROME1"
	Monochrome2   Photometric = "MONOCHROME2"
	PaletteColor  Photometric = "PALETTE COLOR"
	RGB           Photometric = "RGB"
	YBRFull       Photometric = "YBR_FULL"
	YBRFull422    Photometric = "YBR_FULL_422"
	YBRPartial422 Photometric = "YBR_PARTIAL_422"
	YBRPartial420 Photometric = "YBR_PARTIAL_420"
	YBRICT        Photometric = "YBR_ICT"
	YBRRCT        Photometric = "YBR_RCT"
)

// ParsePhotometric normalizes a Photometric Interpretation value. Empty
// values default to MONOCHROME2.
func ParsePhotometric(s string) Photometric {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Monochrome2
	}
	return Photometric(s)
}

// IsMonochrome returns true for MONOCHROME1 and MONOCHROME2
func (p Photometric) IsMonochrome() bool {
	return p == Monochrome1 || p == Monochrome2
}

// IsInverse returns true if minimum sample values display as white
func (p Photometric) IsInverse() bool {
	return p == Monochrome1
}

// IsSubsampled returns true for chroma subsampled YBR layouts
func (p Photometric) IsSubsampled() bool {
	return p == YBRFull422 || p == YBRPartial422 || p == YBRPartial420
}

// FrameLength returns the byte length of one native frame
func (p Photometric) FrameLength(width, height, samples, bitsAllocated int) int {
	pixels := width * height
	switch p {
	case YBRFull422, YBRPartial422:
		// two luma samples share one Cb and one Cr
		return pixels * 2 * bitsAllocated / 8
	case YBRPartial420:
		return pixels * 3 / 2 * bitsAllocated / 8
	}
	return (pixels*samples*bitsAllocated + 7) / 8
}
