package rle

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame_Gray16Planes(t *testing.T) {
	// 4 pixels, little endian words 0x0102 0x0304 0x0506 0x0708
	frame := []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07}

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, frame, 1, 16))
	data := buf.Bytes()
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data))
	assert.Equal(t, uint32(64), binary.LittleEndian.Uint32(data[4:]))

	planes, err := DecodeSegments(data, 4)
	require.NoError(t, err)
	require.Len(t, planes, 2)
	// high bytes first
	assert.Equal(t, []byte{0x01, 0x03, 0x05, 0x07}, planes[0])
	assert.Equal(t, []byte{0x02, 0x04, 0x06, 0x08}, planes[1])
}

func TestEncodeFrame_RGB(t *testing.T) {
	width, height := 16, 8
	frame := make([]byte, width*height*3)
	for i := 0; i < width*height; i++ {
		frame[i*3] = byte(i)
		frame[i*3+1] = 0x80
		frame[i*3+2] = byte(255 - i)
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, frame, 3, 8))
	t.Logf("RGB compressed size: %d / %d", buf.Len(), len(frame))

	planes, err := DecodeSegments(buf.Bytes(), width*height)
	require.NoError(t, err)
	require.Len(t, planes, SegmentCount(3, 8))
	for i := 0; i < width*height; i++ {
		assert.Equal(t, byte(i), planes[0][i])
		assert.Equal(t, byte(0x80), planes[1][i])
		assert.Equal(t, byte(255-i), planes[2][i])
	}
}

func TestDecodeSegments_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Short", make([]byte, 10)},
		{"ZeroSegments", make([]byte, 64)},
		{"TooManySegments", header(16, 64)},
		{"OffsetPastEnd", header(1, 200)},
		{"OffsetInHeader", header(1, 12)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSegments(tt.data, 4)
			assert.ErrorIs(t, err, ErrHeader)
		})
	}
}

func TestDecodeSegments_ShortSegment(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSegments(&buf, [][]byte{{1, 2, 3}}))
	_, err := DecodeSegments(buf.Bytes(), 8)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decoded 3 of 8")
}

func TestEncodeSegments_Limits(t *testing.T) {
	assert.ErrorIs(t, EncodeSegments(&bytes.Buffer{}, nil), ErrHeader)
	assert.ErrorIs(t, EncodeSegments(&bytes.Buffer{}, make([][]byte, 16)), ErrHeader)
	assert.Error(t, EncodeFrame(&bytes.Buffer{}, []byte{1, 2, 3}, 1, 16))
}

func header(count, offset uint32) []byte {
	h := make([]byte, 64)
	binary.LittleEndian.PutUint32(h, count)
	binary.LittleEndian.PutUint32(h[4:], offset)
	return h
}
