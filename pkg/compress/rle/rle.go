// Package rle implements the DICOM RLE Lossless codec (PS3.5 Annex G).
//
// A frame is a 64 byte header (segment count plus 15 offsets, little
// endian) followed by PackBits segments. Each segment holds one byte plane:
// segments are ordered by sample, most significant byte first.
package rle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	headerLen = 64
	// MaxSegments is the number of offsets the header has room for
	MaxSegments = 15
)

// ErrHeader is returned for frames whose header cannot be used
var ErrHeader = errors.New("rle: invalid header")

// SegmentCount returns the number of segments a frame of the given sample
// layout carries
func SegmentCount(samples, bitsAllocated int) int {
	return samples * ((bitsAllocated + 7) / 8)
}

// DecodeSegments decodes every segment of a frame into a plane of segLen
// bytes. Short segments are an error.
func DecodeSegments(data []byte, segLen int) ([][]byte, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeader, len(data))
	}
	count := int(binary.LittleEndian.Uint32(data))
	if count == 0 || count > MaxSegments {
		return nil, fmt.Errorf("%w: %d segments", ErrHeader, count)
	}

	planes := make([][]byte, count)
	for i := range planes {
		start := int(binary.LittleEndian.Uint32(data[4+i*4:]))
		end := len(data)
		if i+1 < count {
			end = int(binary.LittleEndian.Uint32(data[8+i*4:]))
		}
		if start < headerLen || start > end || end > len(data) {
			return nil, fmt.Errorf("%w: segment %d spans [%d,%d) of %d", ErrHeader, i, start, end, len(data))
		}
		planes[i] = make([]byte, segLen)
		n, err := decodePackBits(data[start:end], planes[i])
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		if n != segLen {
			return nil, fmt.Errorf("rle: segment %d decoded %d of %d bytes", i, n, segLen)
		}
	}
	return planes, nil
}

// EncodeSegments writes the header and the PackBits encoding of each plane
func EncodeSegments(w io.Writer, planes [][]byte) error {
	if len(planes) == 0 || len(planes) > MaxSegments {
		return fmt.Errorf("%w: %d segments", ErrHeader, len(planes))
	}
	header := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(header, uint32(len(planes)))

	encoded := make([][]byte, len(planes))
	offset := headerLen
	for i, p := range planes {
		enc := encodePackBits(p)
		if len(enc)%2 != 0 {
			enc = append(enc, 0x80) // no-op pads the segment to even length
		}
		encoded[i] = enc
		binary.LittleEndian.PutUint32(header[4+i*4:], uint32(offset))
		offset += len(enc)
	}

	if _, err := w.Write(header); err != nil {
		return err
	}
	for _, enc := range encoded {
		if _, err := w.Write(enc); err != nil {
			return err
		}
	}
	return nil
}

// EncodeFrame splits native little endian, color-by-pixel frame bytes into
// byte planes and encodes them
func EncodeFrame(w io.Writer, frame []byte, samples, bitsAllocated int) error {
	bytesPerSample := (bitsAllocated + 7) / 8
	stride := samples * bytesPerSample
	if stride == 0 || len(frame)%stride != 0 {
		return fmt.Errorf("rle: frame of %d bytes does not hold whole pixels of %d bytes", len(frame), stride)
	}
	pixels := len(frame) / stride

	planes := make([][]byte, 0, samples*bytesPerSample)
	for s := 0; s < samples; s++ {
		for b := bytesPerSample - 1; b >= 0; b-- {
			plane := make([]byte, pixels)
			for p := range plane {
				plane[p] = frame[p*stride+s*bytesPerSample+b]
			}
			planes = append(planes, plane)
		}
	}
	return EncodeSegments(w, planes)
}
