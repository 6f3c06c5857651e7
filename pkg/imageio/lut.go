package imageio

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// storedValue interprets raw samples as bitsStored wide integers
type storedValue struct {
	bits   int
	signed bool
}

func (s storedValue) valueOf(pixel int) int {
	if s.signed {
		shift := 32 - s.bits
		return int(int32(uint32(pixel)<<shift) >> shift)
	}
	return pixel & (1<<s.bits - 1)
}

func (s storedValue) minValue() int {
	if s.signed {
		return -(1 << (s.bits - 1))
	}
	return 0
}

func (s storedValue) maxValue() int {
	if s.signed {
		return 1<<(s.bits-1) - 1
	}
	return 1<<s.bits - 1
}

// lookupTable maps stored values, shifted by offset, to output values of
// outBits bits. Inputs outside the table clamp to its ends.
type lookupTable struct {
	in      storedValue
	outBits int
	offset  int
	data    []int
}

func (t *lookupTable) lookup(pixel int) int {
	i := t.in.valueOf(pixel) - t.offset
	switch {
	case i < 0:
		i = 0
	case i >= len(t.data):
		i = len(t.data) - 1
	}
	return t.data[i]
}

// adjustOutBits rescales the table to outBits
func (t *lookupTable) adjustOutBits(outBits int) *lookupTable {
	diff := outBits - t.outBits
	if diff == 0 {
		return t
	}
	for i, v := range t.data {
		if diff > 0 {
			t.data[i] = v << diff
		} else {
			t.data[i] = v >> -diff
		}
	}
	t.outBits = outBits
	return t
}

// combine feeds the output of t through other
func (t *lookupTable) combine(other *lookupTable) *lookupTable {
	for i, v := range t.data {
		t.data[i] = other.lookup(v)
	}
	t.outBits = other.outBits
	return t
}

func (t *lookupTable) inverse() {
	maxOut := 1<<t.outBits - 1
	for i, v := range t.data {
		t.data[i] = maxOut - v
	}
}

// rampLUT is a linear window of size entries starting at offset
func rampLUT(in storedValue, outBits, offset, size int, flip bool) *lookupTable {
	t := &lookupTable{in: in, outBits: outBits, offset: offset, data: make([]int, size)}
	maxOut := 1<<outBits - 1
	maxIndex := size - 1
	mid := size / 2
	for i := 0; i < size; i++ {
		v := min((i*maxOut+mid)/maxIndex, maxOut)
		if flip {
			t.data[maxIndex-i] = v
		} else {
			t.data[i] = v
		}
	}
	return t
}

// descriptorLUT builds a table from an LUT Descriptor and LUT Data. The
// descriptor holds the entry count (0 meaning 65536), the first mapped
// value and the bits per entry. Returns nil for unusable tables.
func descriptorLUT(in storedValue, desc []int, data []byte, order binary.ByteOrder) *lookupTable {
	if len(desc) != 3 || data == nil {
		return nil
	}
	length := desc[0]
	if length == 0 {
		length = 0x10000
	}
	offset := int(int16(desc[1]))
	outBits := desc[2]
	t := &lookupTable{in: in, outBits: outBits, offset: offset, data: make([]int, length)}

	if len(data) == length<<1 {
		if outBits > 8 {
			if outBits > 16 {
				return nil
			}
			for i := range t.data {
				t.data[i] = int(order.Uint16(data[2*i:]))
			}
			return t
		}
		// 8 bit entries padded to 16
		half := make([]byte, length)
		lo := 0
		if order == binary.BigEndian {
			lo = 1
		}
		for i := range half {
			half[i] = data[2*i+lo]
		}
		data = half
	}
	if len(data) != length || outBits > 8 {
		return nil
	}
	for i, b := range data {
		t.data[i] = int(b)
	}
	return t
}

// log2 returns the bits needed to index n entries
func log2(n int) int {
	return bits.Len(uint(n)) - 1
}

// round rounds half up
func round(f float64) int {
	return int(math.Floor(f + 0.5))
}
