package rle

import (
	"bytes"
	"fmt"
)

// PackBits as used by DICOM RLE
// Reference: DICOM PS3.5 Annex G.3

// encodePackBits compresses one segment. Runs of 2 or more become
// replicate runs, everything else literal runs of at most 128 bytes.
func encodePackBits(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for i := 0; i < len(data); {
		run := 1
		for i+run < len(data) && run < 128 && data[i+run] == data[i] {
			run++
		}
		if run > 1 {
			buf.WriteByte(byte(int8(1 - run)))
			buf.WriteByte(data[i])
			i += run
			continue
		}

		// literal until a run of 3 starts
		lit := 1
		for i+lit < len(data) && lit < 128 {
			j := i + lit
			if j+2 < len(data) && data[j] == data[j+1] && data[j] == data[j+2] {
				break
			}
			lit++
		}
		buf.WriteByte(byte(lit - 1))
		buf.Write(data[i : i+lit])
		i += lit
	}
	return buf.Bytes()
}

// decodePackBits expands one segment into dst, returning the bytes written.
// Decoding stops once dst is full; trailing padding is ignored.
func decodePackBits(src, dst []byte) (int, error) {
	n := 0
	for i := 0; i < len(src) && n < len(dst); {
		h := int8(src[i])
		i++
		switch {
		case h == -128:
			// no-op
		case h >= 0:
			count := int(h) + 1
			if i+count > len(src) {
				return n, fmt.Errorf("rle: literal run of %d truncated at %d", count, i)
			}
			n += copy(dst[n:], src[i:i+count])
			i += count
		default:
			if i >= len(src) {
				return n, fmt.Errorf("rle: replicate run truncated at %d", i)
			}
			v := src[i]
			i++
			for count := int(-h) + 1; count > 0 && n < len(dst); count-- {
				dst[n] = v
				n++
			}
		}
	}
	return n, nil
}
