package compat

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdicom "github.com/suyashkumar/dicom"
	stag "github.com/suyashkumar/dicom/pkg/tag"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
)

func mustElement(t *testing.T, tg stag.Tag, data any) *sdicom.Element {
	t.Helper()
	e, err := sdicom.NewElement(tg, data)
	require.NoError(t, err)
	return e
}

func TestConvert(t *testing.T) {
	src := sdicom.Dataset{Elements: []*sdicom.Element{
		mustElement(t, stag.TransferSyntaxUID, []string{string(transfer.ExplicitVRBigEndian)}),
		mustElement(t, stag.Rows, []int{2}),
		mustElement(t, stag.Columns, []int{3}),
		mustElement(t, stag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustElement(t, stag.WindowCenter, []string{"40", "400"}),
		mustElement(t, stag.PixelData, sdicom.PixelDataInfo{UnprocessedValueData: []byte{1, 2, 3, 4}}),
	}}
	meta, err := Convert(src)
	require.NoError(t, err)

	assert.Equal(t, transfer.ExplicitVRBigEndian, meta.TransferSyntax())
	assert.False(t, meta.Dataset.Contains(tag.TransferSyntaxUID))
	assert.True(t, meta.Dataset.BigEndian)
	assert.Equal(t, 2, meta.Dataset.Int(tag.Rows, 0))
	assert.Equal(t, 3, meta.Dataset.Int(tag.Columns, 0))
	assert.Equal(t, "MONOCHROME2", meta.Dataset.String(tag.PhotometricInterpretation, ""))
	assert.Equal(t, []float64{40, 400}, meta.Dataset.Floats(tag.WindowCenter))

	pd := meta.Dataset.PixelData()
	require.NotNil(t, pd)
	assert.False(t, pd.Encapsulated())
	b, err := pd.Bulk.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)
}

func TestConvert_Empty(t *testing.T) {
	_, err := Convert(sdicom.Dataset{})
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestParseFile(t *testing.T) {
	ds := dicom.NewDataset().
		Set(tag.SOPClassUID, vr.UI, "1.2.840.10008.5.1.4.1.1.7").
		Set(tag.SOPInstanceUID, vr.UI, "1.2.826.0.1.3680043.10.1432.7.2").
		Set(tag.SamplesPerPixel, vr.US, 1).
		Set(tag.PhotometricInterpretation, vr.CS, "MONOCHROME2").
		Set(tag.Rows, vr.US, 1).
		Set(tag.Columns, vr.US, 2).
		Set(tag.BitsAllocated, vr.US, 16).
		Set(tag.BitsStored, vr.US, 12).
		Set(tag.HighBit, vr.US, 11).
		Set(tag.PixelRepresentation, vr.US, 0)
	pixels := binary.LittleEndian.AppendUint16(binary.LittleEndian.AppendUint16(nil, 0x0123), 0x0ABC)
	ds.Set(tag.PixelData, vr.OW, &dicom.PixelData{VR: vr.OW, Bulk: &dicom.BulkData{Data: pixels, Length: int64(len(pixels))}})

	var buf bytes.Buffer
	_, err := dicom.Write(&buf, dicom.NewMetadata(ds, transfer.ExplicitVRLittleEndian))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "image.dcm")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	meta, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, transfer.ExplicitVRLittleEndian, meta.TransferSyntax())
	assert.Equal(t, 12, meta.Dataset.Int(tag.BitsStored, 0))
	b, err := meta.Dataset.PixelData().Bulk.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, pixels, b)

	streamed, err := Parse(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, meta.Dataset.Int(tag.Columns, 0), streamed.Dataset.Int(tag.Columns, 0))
}
