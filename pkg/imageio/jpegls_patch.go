package imageio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// JPEG-LS markers
const (
	markerSOI   = 0xD8
	markerSOF55 = 0xF7
	markerLSE   = 0xF8
	markerSOS   = 0xDA
)

// PatchJPEGLS inserts an LSE preset parameters segment after the SOF55 frame
// header of bitstreams with more than 12 bits of precision that carry none,
// holding the default thresholds. Other streams are returned unchanged.
func PatchJPEGLS(data []byte) []byte {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return data
	}
	insertAt, precision := -1, 0
	for i := 2; i+4 <= len(data); {
		if data[i] != 0xFF {
			return data
		}
		marker := data[i+1]
		if marker == 0xFF {
			i++
			continue
		}
		length := int(binary.BigEndian.Uint16(data[i+2:]))
		switch marker {
		case markerSOF55:
			if i+4 < len(data) {
				precision = int(data[i+4])
			}
			insertAt = i + 2 + length
		case markerLSE:
			return data
		case markerSOS:
			if insertAt < 0 || precision <= 12 || insertAt > len(data) {
				return data
			}
			var out bytes.Buffer
			out.Grow(len(data) + 15)
			out.Write(data[:insertAt])
			out.Write(lseSegment(precision))
			out.Write(data[insertAt:])
			return out.Bytes()
		}
		i += 2 + length
	}
	return data
}

// patchJPEGLSReader reads a whole frame and patches it
func patchJPEGLSReader(r io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(PatchJPEGLS(data)), nil
}

// lseSegment returns a preset coding parameters segment holding the default
// thresholds for lossless coding at the given precision
func lseSegment(precision int) []byte {
	maxVal := 1<<precision - 1
	t1, t2, t3 := defaultThresholds(maxVal, 0)
	seg := []byte{0xFF, markerLSE, 0, 13, 1}
	for _, v := range []int{maxVal, t1, t2, t3, 64} {
		seg = binary.BigEndian.AppendUint16(seg, uint16(v))
	}
	return seg
}

// defaultThresholds computes T1, T2 and T3 per ISO/IEC 14495-1 C.2.4.1.1
func defaultThresholds(maxVal, near int) (t1, t2, t3 int) {
	const basicT1, basicT2, basicT3 = 3, 7, 21
	clamp := func(v, lo, hi int) int {
		if v > hi || v < lo {
			return lo
		}
		return v
	}
	if maxVal >= 128 {
		factor := (min(maxVal, 4095) + 128) / 256
		t1 = clamp(factor*(basicT1-2)+2+3*near, near+1, maxVal)
		t2 = clamp(factor*(basicT2-3)+3+5*near, t1, maxVal)
		t3 = clamp(factor*(basicT3-4)+4+7*near, t2, maxVal)
		return
	}
	factor := 256 / (maxVal + 1)
	t1 = clamp(max(2, basicT1/factor+3*near), near+1, maxVal)
	t2 = clamp(max(3, basicT2/factor+5*near), t1, maxVal)
	t3 = clamp(max(4, basicT3/factor+7*near), t2, maxVal)
	return
}
