package imageio

import (
	"log/slog"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
)

// OverlayGroups is the number of repeating overlay groups, 6000 to 601E
const OverlayGroups = 16

// overlayGroup returns the group offset of overlay i
func overlayGroup(i int) uint16 {
	return uint16(i) << 1
}

// activeOverlays returns the offsets of the groups selected by mask that
// carry a value for marker
func activeOverlays(ds *dicom.Dataset, marker tag.Tag, mask int) []uint16 {
	var out []uint16
	for i := 0; i < OverlayGroups; i++ {
		gg := overlayGroup(i)
		if mask&(1<<i) != 0 && ds.ContainsValue(marker.InOverlayGroup(gg)) {
			out = append(out, gg)
		}
	}
	return out
}

// overlayBitmap is a packed bit plane, first bit in the lowest bit of the
// first byte
type overlayBitmap []byte

// extractEmbedded pulls the overlay plane stored at bitPosition of the pixel
// data out of the raw raster. Overlays with their own Overlay Data yield a
// nil bitmap; false means the group must be skipped.
func extractEmbedded(ds *dicom.Dataset, gg uint16, r *Raster, bitsStored int, log *slog.Logger) (overlayBitmap, bool) {
	if ds.Int(tag.OverlayBitsAllocated.InOverlayGroup(gg), 1) == 1 {
		return nil, true
	}
	bitPosition := ds.Int(tag.OverlayBitPosition.InOverlayGroup(gg), 0)
	if bitPosition < bitsStored {
		log.Info("Ignore embedded overlay", "group", overlayNumber(gg), "bit", bitPosition, "bitsStored", bitsStored)
		return nil, false
	}
	mask := 1 << bitPosition
	length := r.Width * r.Height
	bm := make(overlayBitmap, ((length+7)>>3+1)&^1)
	for i := 0; i < length; i++ {
		var v int
		if r.DataType == TypeUShort {
			v = int(r.Words[0][i])
		} else {
			v = int(r.Bytes[0][i])
		}
		if v&mask != 0 {
			bm[i>>3] |= 1 << (i & 7)
		}
	}
	return bm, true
}

// overlaySource returns the dataset holding the attributes of overlay gg: a
// presentation state carrying the Overlay Data wins over the image
func overlaySource(img, ps *dicom.Dataset, gg uint16) *dicom.Dataset {
	if ps.ContainsValue(tag.OverlayData.InOverlayGroup(gg)) {
		return ps
	}
	return img
}

// displayGrayscale returns the Recommended Display Grayscale Value of the
// graphic layer the presentation state activates overlay gg on
func displayGrayscale(ps *dicom.Dataset, gg uint16, def int) int {
	layer := ps.String(tag.OverlayActivationLayer.InOverlayGroup(gg), "")
	if layer == "" {
		return def
	}
	for _, item := range ps.Sequence(tag.GraphicLayerSequence) {
		if item.String(tag.GraphicLayer, "") == layer {
			return item.Int(tag.RecommendedDisplayGrayscaleValue, 0xFFFF)
		}
	}
	return def
}

// burnOverlay sets every pixel covered by overlay gg for the given frame to
// value. Embedded overlays pass their extracted bitmap and frame 0.
// Unusable overlays are logged and skipped.
func burnOverlay(dst *Raster, ds *dicom.Dataset, gg uint16, frame, value int, bm overlayBitmap, log *slog.Logger) {
	origin := ds.Int(tag.ImageFrameOrigin.InOverlayGroup(gg), 1)
	frames := ds.Int(tag.NumberOfFramesInOverlay.InOverlayGroup(gg), 1)
	ovlyFrame := frame - origin + 1
	if ovlyFrame < 0 || ovlyFrame >= frames {
		return
	}
	rows := ds.Int(tag.OverlayRows.InOverlayGroup(gg), -1)
	columns := ds.Int(tag.OverlayColumns.InOverlayGroup(gg), -1)
	if bm == nil {
		bm = ds.Bytes(tag.OverlayData.InOverlayGroup(gg))
	}
	if bm == nil || rows <= 0 || columns <= 0 {
		log.Warn("Skip overlay without data or dimensions", "group", overlayNumber(gg), "rows", rows, "columns", columns)
		return
	}
	x0, y0 := 0, 0
	if o := ds.Ints(tag.OverlayOrigin.InOverlayGroup(gg)); len(o) == 2 {
		y0, x0 = o[0]-1, o[1]-1
	}

	length := rows * columns
	off := length * ovlyFrame
	end := min((off+length+7)>>3, len(bm))
	for i := off >> 3; i < end; i++ {
		bitsSet := int(bm[i])
		for j := 0; bitsSet>>j != 0; j++ {
			if bitsSet&(1<<j) == 0 {
				continue
			}
			idx := i<<3 + j - off
			if idx < 0 || idx >= length {
				continue
			}
			dst.SetSample(x0+idx%columns, y0+idx/columns, 0, value)
		}
	}
}

func overlayNumber(gg uint16) int {
	return int(gg>>1) + 1
}
