package imageio

import (
	"math"
	"slices"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
)

// lutFactory collects the modality, VOI and presentation stages of the
// grayscale pipeline and folds them into one table
type lutFactory struct {
	stored storedValue

	slope     float64
	intercept float64
	modality  *lookupTable

	center float64
	width  float64
	voi    *lookupTable

	presentation *lookupTable
	inverse      bool
}

func newLUTFactory(stored storedValue) *lutFactory {
	return &lutFactory{stored: stored, slope: 1}
}

// voiInput is the value space the VOI stage sees
func (f *lutFactory) voiInput() storedValue {
	if f.modality != nil {
		return storedValue{bits: f.modality.outBits}
	}
	return f.stored
}

func (f *lutFactory) setModalityLUT(ds *dicom.Dataset) {
	f.intercept = ds.Float(tag.RescaleIntercept, 0)
	f.slope = ds.Float(tag.RescaleSlope, 1)
	if f.slope == 0 {
		f.slope = 1
	}
	if item := ds.Nested(tag.ModalityLUTSequence, 0); item != nil {
		f.modality = descriptorLUT(f.stored, item.Ints(tag.LUTDescriptor), item.Bytes(tag.LUTData), item.ByteOrder())
	}
}

func (f *lutFactory) setWindow(center, width float64) {
	f.center, f.width = center, width
}

// setVOI takes the window at windowIndex, or the VOI LUT at voiIndex when
// there is no window or a LUT is preferred
func (f *lutFactory) setVOI(ds *dicom.Dataset, windowIndex, voiIndex int, preferWindow bool) {
	if ds == nil {
		return
	}
	lut := ds.Nested(tag.VOILUTSequence, voiIndex)
	if preferWindow || lut == nil {
		centers, widths := ds.Floats(tag.WindowCenter), ds.Floats(tag.WindowWidth)
		if n := min(len(centers), len(widths)); n > 0 {
			if windowIndex >= n || windowIndex < 0 {
				windowIndex = 0
			}
			f.setWindow(centers[windowIndex], widths[windowIndex])
			return
		}
	}
	if lut != nil {
		f.voi = descriptorLUT(f.voiInput(), lut.Ints(tag.LUTDescriptor), lut.Bytes(tag.LUTData), lut.ByteOrder())
	}
}

// setPresentationLUT takes the Presentation LUT Sequence, or else the
// Presentation LUT Shape, or else inverts MONOCHROME1
func (f *lutFactory) setPresentationLUT(ds *dicom.Dataset) {
	if item := ds.Nested(tag.PresentationLUTSequence, 0); item != nil {
		desc := item.Ints(tag.LUTDescriptor)
		if len(desc) == 3 {
			length := desc[0]
			if length == 0 {
				length = 0x10000
			}
			// the first mapped value of a presentation LUT is always 0
			desc = []int{desc[0], 0, desc[2]}
			f.presentation = descriptorLUT(storedValue{bits: log2(length)}, desc, item.Bytes(tag.LUTData), item.ByteOrder())
		}
		return
	}
	if shape := ds.String(tag.PresentationLUTShape, ""); shape != "" {
		f.inverse = shape == "INVERSE"
		return
	}
	f.inverse = ParsePhotometric(ds.String(tag.PhotometricInterpretation, "")).IsInverse()
}

// autoWindow derives a window from the pixel value range when no other VOI
// stage applies. The range comes from Smallest/Largest Image Pixel Value,
// or from the raster.
func (f *lutFactory) autoWindow(ds *dicom.Dataset, r *Raster) bool {
	if f.modality != nil || f.voi != nil || f.width != 0 {
		return false
	}
	lo := f.stored.valueOf(ds.Int(tag.SmallestImagePixelValue, 0))
	hi := f.stored.valueOf(ds.Int(tag.LargestImagePixelValue, 0))
	if hi == 0 {
		lo, hi = f.minMax(r)
	}
	f.center = float64((lo+hi+1)/2)*f.slope + f.intercept
	f.width = math.Abs(float64(hi+1-lo) * f.slope)
	return true
}

func (f *lutFactory) minMax(r *Raster) (int, int) {
	lo, hi := math.MaxInt, math.MinInt
	visit := func(v int) {
		v = f.stored.valueOf(v)
		lo, hi = min(lo, v), max(hi, v)
	}
	for _, b := range r.Bytes {
		for _, v := range b {
			visit(int(v))
		}
	}
	for _, w := range r.Words {
		for _, v := range w {
			visit(int(v))
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// build folds the stages into one table producing outBits values
func (f *lutFactory) build(outBits int) *lookupTable {
	bits := outBits
	if f.presentation != nil {
		bits = log2(len(f.presentation.data))
	}
	lut := f.modalityVOI(bits)
	if f.presentation != nil {
		return lut.combine(f.presentation.adjustOutBits(outBits))
	}
	if f.inverse {
		lut.inverse()
	}
	return lut
}

func (f *lutFactory) modalityVOI(outBits int) *lookupTable {
	if f.voi != nil {
		voi := f.voi.adjustOutBits(outBits)
		if f.modality != nil {
			return f.modality.combine(voi)
		}
		return voi
	}
	if f.width == 0 && f.modality != nil {
		return f.modality.adjustOutBits(outBits)
	}

	in := f.voiInput()
	var offset, size int
	if f.width != 0 {
		size = max(2, abs(round(f.width/f.slope)))
		offset = round((f.center-f.intercept)/f.slope) - size/2
	} else {
		offset = in.minValue()
		size = in.maxValue() - in.minValue() + 1
	}
	lut := rampLUT(in, outBits, offset, size, f.slope < 0)
	if f.modality != nil {
		return f.modality.combine(lut)
	}
	return lut
}

// selectFunctionalGroup returns the macro item for tg from the per-frame
// functional group of frame, else from the shared functional group, else
// the dataset itself
func selectFunctionalGroup(ds *dicom.Dataset, frame int, tg tag.Tag) *dicom.Dataset {
	if item := ds.Nested(tag.PerFrameFunctionalGroupsSequence, frame).Nested(tg, 0); item != nil {
		return item
	}
	if item := ds.Nested(tag.SharedFunctionalGroupsSequence, 0).Nested(tg, 0); item != nil {
		return item
	}
	return ds
}

// selectSoftcopyVOI returns the Softcopy VOI LUT item of a presentation
// state applying to the given instance and 1-based frame number
func selectSoftcopyVOI(ps *dicom.Dataset, iuid string, frameNumber int) *dicom.Dataset {
	for _, voi := range ps.Sequence(tag.SoftcopyVOILUTSequence) {
		refs := voi.Sequence(tag.ReferencedImageSequence)
		if len(refs) == 0 {
			return voi
		}
		for _, ref := range refs {
			if ref.String(tag.ReferencedSOPInstanceUID, "") != iuid {
				continue
			}
			frames := ref.Ints(tag.ReferencedFrameNumber)
			if len(frames) == 0 || slices.Contains(frames, frameNumber) {
				return voi
			}
		}
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
