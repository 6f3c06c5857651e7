package imageio

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/jpfielding/dcmimage.go/pkg/compress/rle"
	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
	"github.com/stretchr/testify/require"
)

const testInstanceUID = "1.2.826.0.1.3680043.10.1432.7.1"

// monoDataset describes frames of cols x rows monochrome pixels without
// pixel data
func monoDataset(rows, cols, frames, bitsAllocated, bitsStored int) *dicom.Dataset {
	return dicom.NewDataset().
		Set(tag.SOPClassUID, vr.UI, "1.2.840.10008.5.1.4.1.1.7").
		Set(tag.SOPInstanceUID, vr.UI, testInstanceUID).
		Set(tag.SamplesPerPixel, vr.US, 1).
		Set(tag.PhotometricInterpretation, vr.CS, "MONOCHROME2").
		Set(tag.NumberOfFrames, vr.IS, frames).
		Set(tag.Rows, vr.US, rows).
		Set(tag.Columns, vr.US, cols).
		Set(tag.BitsAllocated, vr.US, bitsAllocated).
		Set(tag.BitsStored, vr.US, bitsStored).
		Set(tag.HighBit, vr.US, bitsStored-1).
		Set(tag.PixelRepresentation, vr.US, 0)
}

// withNative attaches native pixel data
func withNative(ds *dicom.Dataset, v vr.VR, pixels []byte) *dicom.Dataset {
	return ds.Set(tag.PixelData, v, &dicom.PixelData{VR: v, Bulk: &dicom.BulkData{Data: pixels, Length: int64(len(pixels))}})
}

// withFragments attaches encapsulated pixel data
func withFragments(ds *dicom.Dataset, offsets []uint32, frags ...[]byte) *dicom.Dataset {
	pd := &dicom.PixelData{VR: vr.OB, Offsets: offsets}
	for _, f := range frags {
		pd.Fragments = append(pd.Fragments, dicom.NewBulkData(f))
	}
	return ds.Set(tag.PixelData, vr.OB, pd)
}

// encode writes a Part 10 file
func encode(t *testing.T, ds *dicom.Dataset, ts transfer.Syntax) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := dicom.Write(&buf, dicom.NewMetadata(ds, ts))
	require.NoError(t, err)
	return buf.Bytes()
}

// wordBytes packs 16 bit samples in the given byte order
func wordBytes(order binary.ByteOrder, words ...uint16) []byte {
	b := make([]byte, 2*len(words))
	for i, w := range words {
		order.PutUint16(b[2*i:], w)
	}
	return b
}

// ramp returns n words counting up from start
func ramp(start, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = uint16(start + i)
	}
	return out
}

// rleFrame compresses one 16 bit monochrome frame
func rleFrame(t *testing.T, words []uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, rle.EncodeFrame(&buf, wordBytes(binary.LittleEndian, words...), 1, 16))
	return buf.Bytes()
}

// onlyReader hides every method but Read
type onlyReader struct {
	io.Reader
}

// bindAll returns readers bound to the same file every way a caller can
func bindAll(t *testing.T, file []byte) map[string]*Reader {
	t.Helper()
	stream := NewReader()
	stream.BindStream(onlyReader{bytes.NewReader(file)})
	random := NewReader()
	random.BindRandomAccess(bytes.NewReader(file), int64(len(file)))
	meta, err := dicom.Parse(bytes.NewReader(file))
	require.NoError(t, err)
	parsed := NewReader()
	parsed.BindMetadata(meta)
	return map[string]*Reader{"Stream": stream, "RandomAccess": random, "Metadata": parsed}
}
