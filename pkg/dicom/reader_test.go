package dicom

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataset(pixels []byte) *Dataset {
	voi := NewDataset().
		Set(tag.WindowCenter, vr.DS, []float64{40, 400}).
		Set(tag.WindowWidth, vr.DS, []float64{80, 2000})
	shared := NewDataset().Set(tag.FrameVOILUTSequence, vr.SQ, voi)

	ds := NewDataset().
		Set(tag.SOPClassUID, vr.UI, "1.2.840.10008.5.1.4.1.1.7").
		Set(tag.SOPInstanceUID, vr.UI, "1.2.3.4.5").
		Set(tag.Rows, vr.US, 2).
		Set(tag.Columns, vr.US, 2).
		Set(tag.BitsAllocated, vr.US, 16).
		Set(tag.BitsStored, vr.US, 12).
		Set(tag.PixelRepresentation, vr.US, 0).
		Set(tag.NumberOfFrames, vr.IS, 1).
		Set(tag.RescaleSlope, vr.DS, 1.5).
		Set(tag.PhotometricInterpretation, vr.CS, "MONOCHROME2").
		Set(tag.SharedFunctionalGroupsSequence, vr.SQ, shared)
	if pixels != nil {
		ds.Set(tag.PixelData, vr.OW, &PixelData{VR: vr.OW, Bulk: &BulkData{Data: pixels}})
	}
	return ds
}

func TestRoundTrip_Syntaxes(t *testing.T) {
	pixels := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	for _, ts := range []transfer.Syntax{
		transfer.ImplicitVRLittleEndian,
		transfer.ExplicitVRLittleEndian,
		transfer.ExplicitVRBigEndian,
	} {
		t.Run(ts.Name(), func(t *testing.T) {
			var buf bytes.Buffer
			_, err := Write(&buf, NewMetadata(testDataset(pixels), ts))
			require.NoError(t, err)

			meta, err := Parse(&buf)
			require.NoError(t, err)
			assert.Equal(t, ts, meta.TransferSyntax())

			ds := meta.Dataset
			assert.Equal(t, ts == transfer.ExplicitVRBigEndian, ds.BigEndian)
			assert.Equal(t, 2, ds.Int(tag.Rows, 0))
			assert.Equal(t, 16, ds.Int(tag.BitsAllocated, 0))
			assert.Equal(t, 1, ds.Int(tag.NumberOfFrames, 0))
			assert.Equal(t, 1.5, ds.Float(tag.RescaleSlope, 1))
			assert.Equal(t, "MONOCHROME2", ds.String(tag.PhotometricInterpretation, ""))

			voi := ds.Nested(tag.SharedFunctionalGroupsSequence, 0).Nested(tag.FrameVOILUTSequence, 0)
			require.NotNil(t, voi)
			assert.Equal(t, []float64{40, 400}, voi.Floats(tag.WindowCenter))
			assert.Equal(t, []float64{80, 2000}, voi.Floats(tag.WindowWidth))

			pd := ds.PixelData()
			require.NotNil(t, pd)
			assert.False(t, pd.Encapsulated())
			assert.Equal(t, pixels, pd.Bulk.Data)
		})
	}
}

func TestRoundTrip_Encapsulated(t *testing.T) {
	ds := testDataset(nil)
	ds.Set(tag.PixelData, vr.OB, &PixelData{
		VR:        vr.OB,
		Offsets:   []uint32{0, 12},
		Fragments: []BulkData{NewBulkData([]byte("frame-one")), NewBulkData([]byte("frame-two!"))},
	})

	var buf bytes.Buffer
	_, err := Write(&buf, NewMetadata(ds, transfer.RLELossless))
	require.NoError(t, err)

	meta, err := Parse(&buf)
	require.NoError(t, err)
	pd := meta.Dataset.PixelData()
	require.NotNil(t, pd)
	require.True(t, pd.Encapsulated())
	assert.Equal(t, []uint32{0, 12}, pd.Offsets)
	require.Len(t, pd.Fragments, 2)
	// odd fragments are padded to even length
	assert.Equal(t, []byte("frame-one\x00"), pd.Fragments[0].Data)
	assert.Equal(t, []byte("frame-two!"), pd.Fragments[1].Data)
}

func TestReader_StopAtPixelData(t *testing.T) {
	pixels := []byte{9, 8, 7, 6, 5, 4, 3, 2}
	var buf bytes.Buffer
	_, err := Write(&buf, NewMetadata(testDataset(pixels), transfer.ExplicitVRLittleEndian))
	require.NoError(t, err)
	total := int64(buf.Len())

	r := NewReader(&buf, WithMode(StopAtPixelData))
	meta, err := r.ReadMetadata()
	require.NoError(t, err)
	assert.False(t, meta.Dataset.Contains(tag.PixelData))

	hdr := r.PixelHeader()
	require.NotNil(t, hdr)
	assert.Equal(t, vr.OW, hdr.VR)
	assert.Equal(t, uint32(len(pixels)), hdr.Length)
	assert.False(t, hdr.Encapsulated())
	assert.Equal(t, total-int64(len(pixels)), hdr.Offset)

	rest, err := io.ReadAll(r.Body())
	require.NoError(t, err)
	assert.Equal(t, pixels, rest)
}

func TestReader_BulkDataReferences(t *testing.T) {
	pixels := bytes.Repeat([]byte{0xAB, 0xCD}, 4096)
	var buf bytes.Buffer
	_, err := Write(&buf, NewMetadata(testDataset(pixels), transfer.ExplicitVRLittleEndian))
	require.NoError(t, err)

	src := bytes.NewReader(buf.Bytes())
	meta, err := NewReaderAt(src, src.Size()).ReadMetadata()
	require.NoError(t, err)

	pd := meta.Dataset.PixelData()
	require.NotNil(t, pd)
	assert.Nil(t, pd.Bulk.Data)
	assert.Equal(t, int64(len(pixels)), pd.Bulk.Length)
	got, err := pd.Bulk.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, pixels, got)
}

func TestParseFile_ReopensByPath(t *testing.T) {
	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	path := filepath.Join(t.TempDir(), "image.dcm")
	_, err := WriteFile(path, NewMetadata(testDataset(pixels), transfer.ExplicitVRLittleEndian))
	require.NoError(t, err)

	meta, err := ParseFile(path, BulkDataReferences)
	require.NoError(t, err)
	pd := meta.Dataset.PixelData()
	require.NotNil(t, pd)
	assert.Equal(t, path, pd.Bulk.Path)

	sr, closer, err := pd.Bulk.Open()
	require.NoError(t, err)
	defer closer()
	got, err := io.ReadAll(sr)
	require.NoError(t, err)
	assert.Equal(t, pixels, got)
}

func TestReader_NoFileMeta(t *testing.T) {
	pixels := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	for _, ts := range []transfer.Syntax{transfer.ImplicitVRLittleEndian, transfer.ExplicitVRLittleEndian} {
		t.Run(ts.Name(), func(t *testing.T) {
			var buf bytes.Buffer
			_, err := WriteDataset(&buf, testDataset(pixels), ts)
			require.NoError(t, err)

			meta, err := Parse(&buf)
			require.NoError(t, err)
			assert.Nil(t, meta.FileMeta)
			assert.Equal(t, transfer.Syntax(""), meta.TransferSyntax())
			assert.Equal(t, 2, meta.Dataset.Int(tag.Columns, 0))
			assert.Equal(t, pixels, meta.Dataset.PixelData().Bulk.Data)
		})
	}
}

func TestReader_DeflatedRejected(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, NewMetadata(testDataset(nil), transfer.DeflatedExplicitVR))
	require.NoError(t, err)

	_, err = Parse(&buf)
	require.ErrorIs(t, err, ErrUnsupportedTransferSyntax)
	var tsErr *UnsupportedTransferSyntaxError
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, string(transfer.DeflatedExplicitVR), tsErr.UID)
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, NewMetadata(testDataset([]byte{1, 2, 3, 4}), transfer.ExplicitVRLittleEndian))
	require.NoError(t, err)
	data := buf.Bytes()[:buf.Len()-2]

	_, err = Parse(bytes.NewReader(data))
	assert.Error(t, err)

	_, err = NewReaderAt(bytes.NewReader(data), int64(len(data))).ReadMetadata()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDataset_Accessors(t *testing.T) {
	ds := NewDataset().
		Set(tag.WindowCenter, vr.DS, []string{"40.5", "bogus", "100"}).
		Set(tag.NumberOfFrames, vr.IS, []string{"12"}).
		Set(tag.LUTDescriptor, vr.US, []int{256, 0, 8}).
		Set(tag.ReferencedImageSequence, vr.SQ, []*Dataset{})
	ds.BigEndian = true

	assert.Equal(t, []float64{40.5, 100}, ds.Floats(tag.WindowCenter))
	assert.Equal(t, 12, ds.Int(tag.NumberOfFrames, 1))
	assert.Equal(t, 7, ds.Int(tag.Rows, 7))
	assert.Equal(t, "x", ds.String(tag.Modality, "x"))
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 8}, ds.Bytes(tag.LUTDescriptor))
	assert.True(t, ds.Contains(tag.ReferencedImageSequence))
	assert.False(t, ds.ContainsValue(tag.ReferencedImageSequence))
	assert.Nil(t, ds.Nested(tag.ReferencedImageSequence, 0))
	assert.Nil(t, ds.PixelData())

	var nilDS *Dataset
	assert.False(t, nilDS.Contains(tag.Rows))
	assert.Equal(t, 3, nilDS.Int(tag.Rows, 3))
}

func TestBulkData_OpenMissingFile(t *testing.T) {
	b := BulkData{Path: filepath.Join(t.TempDir(), "missing.dcm"), Length: 4}
	_, closer, err := b.Open()
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.NoError(t, closer())
}
