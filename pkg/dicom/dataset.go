// Package dicom holds the attribute model and the Part 10 reader and writer
// behind the pixel data pipeline.
package dicom

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"

	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
)

// Tag alias to avoid duplication
type Tag = tag.Tag

// Element represents a single DICOM element.
//
// Value holds one of: []string, []int, []float64, []byte, []*Dataset
// (sequence items) or *PixelData.
type Element struct {
	Tag   Tag
	VR    vr.VR
	Value any
}

// Dataset represents a DICOM dataset or a sequence item
type Dataset struct {
	Elements map[Tag]*Element
	// BigEndian is the byte order binary values were encoded with
	BigEndian bool
}

// NewDataset returns an empty little endian dataset
func NewDataset() *Dataset {
	return &Dataset{Elements: make(map[Tag]*Element)}
}

// Set stores a value, replacing any previous element with the same tag.
// Scalars are normalized to the slice forms held by Element.Value.
func (ds *Dataset) Set(t Tag, v vr.VR, value any) *Dataset {
	switch x := value.(type) {
	case string:
		value = []string{x}
	case int:
		value = []int{x}
	case float64:
		value = []float64{x}
	case *Dataset:
		value = []*Dataset{x}
	}
	if ds.Elements == nil {
		ds.Elements = make(map[Tag]*Element)
	}
	ds.Elements[t] = &Element{Tag: t, VR: v, Value: value}
	return ds
}

// Remove deletes an element
func (ds *Dataset) Remove(t Tag) {
	delete(ds.Elements, t)
}

// Element returns the element for a tag, or nil
func (ds *Dataset) Element(t Tag) *Element {
	if ds == nil {
		return nil
	}
	return ds.Elements[t]
}

// Value returns the raw element value
func (ds *Dataset) Value(t Tag) (any, bool) {
	e := ds.Element(t)
	if e == nil {
		return nil, false
	}
	return e.Value, true
}

// Contains reports whether the tag is present, even with an empty value
func (ds *Dataset) Contains(t Tag) bool {
	return ds.Element(t) != nil
}

// ContainsValue reports whether the tag is present with a non-empty value
func (ds *Dataset) ContainsValue(t Tag) bool {
	e := ds.Element(t)
	if e == nil {
		return false
	}
	switch v := e.Value.(type) {
	case nil:
		return false
	case []string:
		return len(v) > 0
	case []int:
		return len(v) > 0
	case []float64:
		return len(v) > 0
	case []byte:
		return len(v) > 0
	case []*Dataset:
		return len(v) > 0
	}
	return true
}

// Sequence returns the items of a sequence element
func (ds *Dataset) Sequence(t Tag) []*Dataset {
	e := ds.Element(t)
	if e == nil {
		return nil
	}
	items, _ := e.Value.([]*Dataset)
	return items
}

// Nested returns item idx of a sequence element, or nil
func (ds *Dataset) Nested(t Tag, idx int) *Dataset {
	items := ds.Sequence(t)
	if idx < 0 || idx >= len(items) {
		return nil
	}
	return items[idx]
}

// Strings returns the values of a string element
func (ds *Dataset) Strings(t Tag) []string {
	e := ds.Element(t)
	if e == nil {
		return nil
	}
	switch v := e.Value.(type) {
	case []string:
		return v
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out
	case []float64:
		out := make([]string, len(v))
		for i, f := range v {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return out
	}
	return nil
}

// String returns the first value of a string element, or def
func (ds *Dataset) String(t Tag, def string) string {
	s := ds.Strings(t)
	if len(s) == 0 {
		return def
	}
	return s[0]
}

// Ints returns the values of a numeric element. IS strings are parsed,
// unparsable values are dropped.
func (ds *Dataset) Ints(t Tag) []int {
	e := ds.Element(t)
	if e == nil {
		return nil
	}
	switch v := e.Value.(type) {
	case []int:
		return v
	case []float64:
		out := make([]int, len(v))
		for i, f := range v {
			out[i] = int(f)
		}
		return out
	case []string:
		out := make([]int, 0, len(v))
		for _, s := range v {
			s = strings.TrimSpace(s)
			if n, err := strconv.Atoi(s); err == nil {
				out = append(out, n)
			} else if f, err := strconv.ParseFloat(s, 64); err == nil {
				out = append(out, int(f))
			}
		}
		return out
	case []byte:
		return ds.words(e.VR, v)
	}
	return nil
}

// Int returns the first value of a numeric element, or def
func (ds *Dataset) Int(t Tag, def int) int {
	v := ds.Ints(t)
	if len(v) == 0 {
		return def
	}
	return v[0]
}

// Floats returns the values of a numeric element. DS strings are parsed,
// unparsable values are dropped.
func (ds *Dataset) Floats(t Tag) []float64 {
	e := ds.Element(t)
	if e == nil {
		return nil
	}
	switch v := e.Value.(type) {
	case []float64:
		return v
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

// Float returns the first value of a numeric element, or def
func (ds *Dataset) Float(t Tag, def float64) float64 {
	v := ds.Floats(t)
	if len(v) == 0 {
		return def
	}
	return v[0]
}

// Bytes returns the value bytes of a binary element in the dataset byte
// order. Integer values are re-encoded at their VR size (16 bits when the
// VR has no fixed size).
func (ds *Dataset) Bytes(t Tag) []byte {
	e := ds.Element(t)
	if e == nil {
		return nil
	}
	switch v := e.Value.(type) {
	case []byte:
		return v
	case []int:
		size := e.VR.ValueSize()
		if size != 4 {
			size = 2
		}
		out := make([]byte, len(v)*size)
		for i, n := range v {
			if size == 4 {
				ds.ByteOrder().PutUint32(out[i*4:], uint32(n))
			} else {
				ds.ByteOrder().PutUint16(out[i*2:], uint16(n))
			}
		}
		return out
	case []string:
		return []byte(strings.Join(v, `\`))
	}
	return nil
}

// PixelData returns the Pixel Data element value, or nil
func (ds *Dataset) PixelData() *PixelData {
	e := ds.Element(tag.PixelData)
	if e == nil {
		return nil
	}
	pd, _ := e.Value.(*PixelData)
	return pd
}

// ByteOrder returns the byte order of binary values
func (ds *Dataset) ByteOrder() binary.ByteOrder {
	if ds != nil && ds.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Tags returns the element tags in ascending order
func (ds *Dataset) Tags() []Tag {
	tags := make([]Tag, 0, len(ds.Elements))
	for t := range ds.Elements {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Uint32() < tags[j].Uint32()
	})
	return tags
}

func (ds *Dataset) words(v vr.VR, b []byte) []int {
	size := v.ValueSize()
	if size != 4 {
		size = 2
	}
	out := make([]int, len(b)/size)
	for i := range out {
		if size == 4 {
			out[i] = int(ds.ByteOrder().Uint32(b[i*4:]))
		} else {
			out[i] = int(ds.ByteOrder().Uint16(b[i*2:]))
		}
	}
	return out
}

// Metadata is a parsed file: file meta information plus the main dataset
type Metadata struct {
	FileMeta *Dataset // nil when the stream had no group 0002
	Dataset  *Dataset
}

// TransferSyntax returns the transfer syntax named by the file meta
// information, or "" without one
func (m *Metadata) TransferSyntax() transfer.Syntax {
	if m == nil || m.FileMeta == nil {
		return ""
	}
	return transfer.FromUID(m.FileMeta.String(tag.TransferSyntaxUID, ""))
}

// NewMetadata pairs a dataset with file meta information naming the syntax
func NewMetadata(ds *Dataset, ts transfer.Syntax) *Metadata {
	fmi := NewDataset()
	fmi.Set(tag.FileMetaInformationVersion, vr.OB, []byte{0, 1})
	fmi.Set(tag.MediaStorageSOPClassUID, vr.UI, ds.String(tag.SOPClassUID, ""))
	fmi.Set(tag.MediaStorageSOPInstanceUID, vr.UI, ds.String(tag.SOPInstanceUID, ""))
	fmi.Set(tag.TransferSyntaxUID, vr.UI, string(ts))
	fmi.Set(tag.ImplementationClassUID, vr.UI, ImplementationClassUID)
	ds.BigEndian = !ts.IsLittleEndian()
	return &Metadata{FileMeta: fmi, Dataset: ds}
}

// ImplementationClassUID identifies files written by this module
const ImplementationClassUID = "1.2.826.0.1.3680043.10.1432.1"
