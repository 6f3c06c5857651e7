// Package compat converts datasets parsed by github.com/suyashkumar/dicom
// into the attribute model the pixel data reader binds to.
package compat

import (
	"errors"
	"fmt"
	"io"

	sdicom "github.com/suyashkumar/dicom"
	stag "github.com/suyashkumar/dicom/pkg/tag"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
)

// ErrNoDataset is returned when the parse produced no elements
var ErrNoDataset = errors.New("compat: empty dataset")

// ParseFile parses a Part 10 file with suyashkumar/dicom and converts it.
// Native pixel data is kept as raw bytes.
func ParseFile(path string) (*dicom.Metadata, error) {
	ds, err := sdicom.ParseFile(path, nil, sdicom.SkipProcessingPixelDataValue())
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return Convert(ds)
}

// Parse parses size bytes of a Part 10 stream with suyashkumar/dicom and
// converts the result
func Parse(r io.Reader, size int64) (*dicom.Metadata, error) {
	ds, err := sdicom.Parse(r, size, nil, sdicom.SkipProcessingPixelDataValue())
	if err != nil {
		return nil, fmt.Errorf("parsing stream: %w", err)
	}
	return Convert(ds)
}

// Convert splits the file meta group from the main dataset and converts
// every element
func Convert(src sdicom.Dataset) (*dicom.Metadata, error) {
	if len(src.Elements) == 0 {
		return nil, ErrNoDataset
	}
	meta := &dicom.Metadata{Dataset: dicom.NewDataset()}
	var fileMeta []*sdicom.Element
	var body []*sdicom.Element
	for _, e := range src.Elements {
		if e.Tag.Group == 0x0002 {
			fileMeta = append(fileMeta, e)
		} else {
			body = append(body, e)
		}
	}
	if len(fileMeta) > 0 {
		meta.FileMeta = dicom.NewDataset()
		if err := convertElements(meta.FileMeta, fileMeta); err != nil {
			return nil, err
		}
	}
	meta.Dataset.BigEndian = meta.TransferSyntax() == transfer.ExplicitVRBigEndian
	if err := convertElements(meta.Dataset, body); err != nil {
		return nil, err
	}
	return meta, nil
}

func convertElements(dst *dicom.Dataset, elems []*sdicom.Element) error {
	for _, e := range elems {
		t := tag.New(e.Tag.Group, e.Tag.Element)
		v := elementVR(t, e)
		value, err := convertValue(dst, v, e)
		if err != nil {
			return fmt.Errorf("converting %v: %w", t, err)
		}
		if value != nil {
			dst.Set(t, v, value)
		}
	}
	return nil
}

// elementVR prefers the VR read from the stream. Dictionary VRs of the
// "US or SS" kind fall back to the local dictionary.
func elementVR(t tag.Tag, e *sdicom.Element) vr.VR {
	if raw := e.RawValueRepresentation; len(raw) == 2 {
		return vr.VR(raw)
	}
	if v := vr.ForTag(t); v != vr.UN {
		return v
	}
	if e.ValueRepresentation == stag.VRSequence {
		return vr.SQ
	}
	return vr.UN
}

func convertValue(dst *dicom.Dataset, v vr.VR, e *sdicom.Element) (any, error) {
	if e.Value == nil {
		return nil, nil
	}
	switch e.Value.ValueType() {
	case sdicom.Strings:
		s, _ := e.Value.GetValue().([]string)
		return s, nil
	case sdicom.Ints:
		n, _ := e.Value.GetValue().([]int)
		return n, nil
	case sdicom.Floats:
		f, _ := e.Value.GetValue().([]float64)
		return f, nil
	case sdicom.Bytes:
		b, _ := e.Value.GetValue().([]byte)
		return b, nil
	case sdicom.Sequences:
		items, _ := e.Value.GetValue().([]*sdicom.SequenceItemValue)
		out := make([]*dicom.Dataset, 0, len(items))
		for _, item := range items {
			ds := dicom.NewDataset()
			ds.BigEndian = dst.BigEndian
			elems, _ := item.GetValue().([]*sdicom.Element)
			if err := convertElements(ds, elems); err != nil {
				return nil, err
			}
			out = append(out, ds)
		}
		return out, nil
	case sdicom.PixelData:
		info, ok := e.Value.GetValue().(sdicom.PixelDataInfo)
		if !ok {
			return nil, fmt.Errorf("unexpected pixel data value %T", e.Value.GetValue())
		}
		return convertPixelData(v, info), nil
	}
	return nil, nil
}

// convertPixelData keeps native bytes as one bulk value and encapsulated
// frames as one fragment each
func convertPixelData(v vr.VR, info sdicom.PixelDataInfo) *dicom.PixelData {
	pd := &dicom.PixelData{VR: v}
	if !info.IsEncapsulated {
		b := dicom.NewBulkData(info.UnprocessedValueData)
		pd.Bulk = &b
		return pd
	}
	pd.Offsets = info.Offsets
	for _, f := range info.Frames {
		if !f.Encapsulated {
			continue
		}
		pd.Fragments = append(pd.Fragments, dicom.NewBulkData(f.EncapsulatedData.Data))
	}
	return pd
}
