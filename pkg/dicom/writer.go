package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jpfielding/dcmimage.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmimage.go/pkg/dicom/vr"
)

// WriteFile writes metadata to a Part 10 file
func WriteFile(path string, meta *Metadata) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Write(f, meta)
}

// Write writes the preamble, the file meta information (explicit VR little
// endian, group length computed) and the dataset in the transfer syntax
// the file meta names
func Write(w io.Writer, meta *Metadata) (int64, error) {
	cw := &CountingWriter{Writer: w}

	if _, err := cw.Write(make([]byte, 128)); err != nil {
		return cw.Count.Load(), err
	}
	if _, err := cw.Write([]byte("DICM")); err != nil {
		return cw.Count.Load(), err
	}

	if meta.FileMeta != nil {
		le := &encoder{explicitVR: true, order: binary.LittleEndian}
		var body bytes.Buffer
		for _, t := range meta.FileMeta.Tags() {
			if t == tag.FileMetaInformationGroupLength {
				continue
			}
			if err := le.writeElement(&body, meta.FileMeta.Elements[t]); err != nil {
				return cw.Count.Load(), fmt.Errorf("failed to write element %v: %w", t, err)
			}
		}
		groupLen := &Element{Tag: tag.FileMetaInformationGroupLength, VR: vr.UL, Value: []int{body.Len()}}
		if err := le.writeElement(cw, groupLen); err != nil {
			return cw.Count.Load(), err
		}
		if _, err := cw.Write(body.Bytes()); err != nil {
			return cw.Count.Load(), err
		}
	}

	if _, err := WriteDataset(cw, meta.Dataset, meta.TransferSyntax()); err != nil {
		return cw.Count.Load(), err
	}
	return cw.Count.Load(), nil
}

// WriteDataset writes dataset elements in ascending tag order with the
// encoding of the given syntax. An empty syntax writes explicit VR little
// endian.
func WriteDataset(w io.Writer, ds *Dataset, ts transfer.Syntax) (int64, error) {
	enc := &encoder{explicitVR: ts.IsExplicitVR(), order: ts.ByteOrder()}
	cw := &CountingWriter{Writer: w}
	for _, t := range ds.Tags() {
		if t.IsGroup0002() {
			continue
		}
		if err := enc.writeElement(cw, ds.Elements[t]); err != nil {
			return cw.Count.Load(), fmt.Errorf("failed to write element %v: %w", t, err)
		}
	}
	return cw.Count.Load(), nil
}

type encoder struct {
	explicitVR bool
	order      binary.ByteOrder
}

func (e *encoder) writeElement(w io.Writer, elem *Element) error {
	v := elem.VR
	if len(v) != 2 {
		slog.Warn("Invalid VR length, defaulting to UN", "vr", v, "tag", elem.Tag)
		v = vr.UN
	}

	val, undefined, err := e.encodeValue(elem.Value, v)
	if err != nil {
		return err
	}
	length := uint32(len(val))
	if undefined {
		length = UndefinedLength
	}

	var hdr bytes.Buffer
	e.writeTag(&hdr, elem.Tag)
	switch {
	case !e.explicitVR:
		e.write(&hdr, length)
	case v.IsLong():
		hdr.WriteString(string(v))
		hdr.Write([]byte{0, 0})
		e.write(&hdr, length)
	default:
		if undefined {
			return fmt.Errorf("undefined length not supported for Short VR %s", v)
		}
		if len(val) > math.MaxUint16 {
			return fmt.Errorf("value of %d bytes too long for VR %s", len(val), v)
		}
		hdr.WriteString(string(v))
		e.write(&hdr, uint16(length))
	}
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	_, err = w.Write(val)
	return err
}

// encodeValue returns encoded bytes and whether the value is written with
// undefined length (sequences and encapsulated pixel data)
func (e *encoder) encodeValue(value any, v vr.VR) ([]byte, bool, error) {
	if value == nil {
		return []byte{}, false, nil
	}

	switch val := value.(type) {
	case *PixelData:
		if val.Encapsulated() {
			b, err := e.encodeEncapsulated(val)
			return b, true, err
		}
		b, err := val.Bulk.ReadAll()
		return pad(b, 0), false, err
	case []*Dataset:
		b, err := e.encodeSequence(val)
		return b, true, err
	case []string:
		b := []byte(strings.Join(val, `\`))
		if v == vr.UI {
			return pad(b, 0), false, nil
		}
		return pad(b, ' '), false, nil
	case []int:
		return e.encodeInts(val, v)
	case []float64:
		switch v {
		case vr.DS:
			s := make([]string, len(val))
			for i, f := range val {
				s[i] = strconv.FormatFloat(f, 'g', -1, 64)
			}
			return pad([]byte(strings.Join(s, `\`)), ' '), false, nil
		case vr.FD:
			b := make([]byte, len(val)*8)
			for i, f := range val {
				e.order.PutUint64(b[i*8:], math.Float64bits(f))
			}
			return b, false, nil
		case vr.FL:
			b := make([]byte, len(val)*4)
			for i, f := range val {
				e.order.PutUint32(b[i*4:], math.Float32bits(float32(f)))
			}
			return b, false, nil
		}
		return nil, false, fmt.Errorf("float64 for VR %s not implemented", v)
	case []byte:
		return pad(val, 0), false, nil
	}

	return nil, false, fmt.Errorf("unsupported value type %T for VR %s", value, v)
}

func (e *encoder) encodeInts(val []int, v vr.VR) ([]byte, bool, error) {
	switch v {
	case vr.IS:
		s := make([]string, len(val))
		for i, n := range val {
			s[i] = strconv.Itoa(n)
		}
		return pad([]byte(strings.Join(s, `\`)), ' '), false, nil
	case vr.DS:
		f := make([]float64, len(val))
		for i, n := range val {
			f[i] = float64(n)
		}
		return e.encodeValue(f, v)
	case vr.UL, vr.SL:
		b := make([]byte, len(val)*4)
		for i, n := range val {
			e.order.PutUint32(b[i*4:], uint32(n))
		}
		return b, false, nil
	case vr.AT:
		b := make([]byte, len(val)*4)
		for i, n := range val {
			e.order.PutUint16(b[i*4:], uint16(n>>16))
			e.order.PutUint16(b[i*4+2:], uint16(n))
		}
		return b, false, nil
	}
	// US, SS, OW and anything else 16 bits wide
	b := make([]byte, len(val)*2)
	for i, n := range val {
		e.order.PutUint16(b[i*2:], uint16(n))
	}
	return b, false, nil
}

func (e *encoder) encodeSequence(items []*Dataset) ([]byte, error) {
	var buf bytes.Buffer
	for _, item := range items {
		var body bytes.Buffer
		for _, t := range item.Tags() {
			if err := e.writeElement(&body, item.Elements[t]); err != nil {
				return nil, fmt.Errorf("failed to encode sequence item: %w", err)
			}
		}
		e.writeTag(&buf, tag.Item)
		e.write(&buf, uint32(body.Len()))
		buf.Write(body.Bytes())
	}
	e.writeTag(&buf, tag.SequenceDelimitationItem)
	e.write(&buf, uint32(0))
	return buf.Bytes(), nil
}

func (e *encoder) encodeEncapsulated(pd *PixelData) ([]byte, error) {
	var buf bytes.Buffer

	// Basic Offset Table
	e.writeTag(&buf, tag.Item)
	e.write(&buf, uint32(len(pd.Offsets)*4))
	for _, off := range pd.Offsets {
		e.write(&buf, off)
	}

	for i, frag := range pd.Fragments {
		b, err := frag.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		b = pad(b, 0)
		e.writeTag(&buf, tag.Item)
		e.write(&buf, uint32(len(b)))
		buf.Write(b)
	}

	e.writeTag(&buf, tag.SequenceDelimitationItem)
	e.write(&buf, uint32(0))
	return buf.Bytes(), nil
}

func (e *encoder) writeTag(buf *bytes.Buffer, t Tag) {
	e.write(buf, t.Group)
	e.write(buf, t.Element)
}

func (e *encoder) write(buf *bytes.Buffer, v any) {
	// bytes.Buffer writes never fail
	_ = binary.Write(buf, e.order, v)
}

// pad makes a value even length
func pad(b []byte, c byte) []byte {
	if len(b)%2 == 0 {
		return b
	}
	return append(b[:len(b):len(b)], c)
}

// CountingWriter counts bytes written through it
type CountingWriter struct {
	Count  atomic.Int64
	Writer io.Writer
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.Writer.Write(p)
	c.Count.Add(int64(n))
	return n, err
}
