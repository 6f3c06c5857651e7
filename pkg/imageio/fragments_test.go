package imageio

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/jpfielding/dcmimage.go/pkg/dicom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// items encodes a fragment sequence body: offset table, fragments and the
// sequence delimiter
func items(offsets []uint32, frags ...[]byte) []byte {
	var buf bytes.Buffer
	item := func(b []byte) {
		buf.Write([]byte{0xFE, 0xFF, 0x00, 0xE0})
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(b)))
		buf.Write(b)
	}
	var bot []byte
	for _, o := range offsets {
		bot = binary.LittleEndian.AppendUint32(bot, o)
	}
	item(bot)
	for _, f := range frags {
		item(f)
	}
	buf.Write([]byte{0xFE, 0xFF, 0xDD, 0xE0, 0, 0, 0, 0})
	return buf.Bytes()
}

func TestDefaultBoundary(t *testing.T) {
	assert.Equal(t, SingleFrame{}, DefaultBoundary(1, nil))
	assert.Equal(t, SingleFrame{}, DefaultBoundary(0, []uint32{0}))
	assert.Equal(t, OffsetTable{0, 20}, DefaultBoundary(2, []uint32{0, 20}))
	assert.Equal(t, FragmentPerFrame{}, DefaultBoundary(3, []uint32{0, 20}))
	assert.Equal(t, FragmentPerFrame{}, DefaultBoundary(3, nil))
}

func TestOffsetTable_FrameOf(t *testing.T) {
	table := OffsetTable{0, 24, 48}
	tests := []struct {
		offset int64
		frame  int
	}{
		{0, 0},
		{12, 0},
		{24, 1},
		{40, 1},
		{48, 2},
		{1000, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.frame, table.FrameOf(0, tt.offset), "offset %d", tt.offset)
	}
}

func TestFrameFragments(t *testing.T) {
	pd := &dicom.PixelData{Fragments: []dicom.BulkData{
		dicom.NewBulkData([]byte{1, 2}),
		dicom.NewBulkData([]byte{3, 4}),
		dicom.NewBulkData([]byte{5, 6}),
	}}
	table := OffsetTable{0, 20}

	first, err := frameFragments(pd, table, 0)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := frameFragments(pd, table, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	r, release, err := openFragments(second)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, release())
	assert.Equal(t, []byte{5, 6}, b)

	_, err = frameFragments(pd, table, 2)
	var insufficient *InsufficientFragmentsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.ErrorIs(t, err, ErrInsufficientFragments)
}

func TestFragmentStream(t *testing.T) {
	t.Run("GroupsByOffsetTable", func(t *testing.T) {
		body := items([]uint32{0, 20}, []byte{1, 2}, []byte{3, 4}, []byte{5, 6})
		fs, err := newFragmentStream(bytes.NewReader(body), 2, DefaultBoundary)
		require.NoError(t, err)
		assert.Equal(t, -1, fs.Frame())

		require.NoError(t, fs.Seek(0))
		b, err := io.ReadAll(fs.Reader())
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3, 4}, b)

		require.NoError(t, fs.Seek(1))
		b, err = io.ReadAll(fs.Reader())
		require.NoError(t, err)
		assert.Equal(t, []byte{5, 6}, b)

		var seqErr *SequentialAccessError
		require.ErrorAs(t, fs.Seek(0), &seqErr)
		assert.Equal(t, 1, seqErr.Flushed)
	})
	t.Run("SkipsFrames", func(t *testing.T) {
		body := items(nil, []byte{1}, []byte{2}, []byte{3})
		fs, err := newFragmentStream(bytes.NewReader(body), 3, DefaultBoundary)
		require.NoError(t, err)
		require.NoError(t, fs.Seek(2))
		b, err := io.ReadAll(fs.Reader())
		require.NoError(t, err)
		assert.Equal(t, []byte{3}, b)

		// the buffered frame is served again without reading further
		require.NoError(t, fs.Seek(2))
		b, err = io.ReadAll(fs.Reader())
		require.NoError(t, err)
		assert.Equal(t, []byte{3}, b)
		assert.Equal(t, 2, fs.Frame())
	})
	t.Run("RunsOutOfFragments", func(t *testing.T) {
		body := items(nil, []byte{1}, []byte{2})
		fs, err := newFragmentStream(bytes.NewReader(body), 3, DefaultBoundary)
		require.NoError(t, err)
		err = fs.Seek(2)
		var insufficient *InsufficientFragmentsError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 2, insufficient.Requested)
		assert.Equal(t, 2, insufficient.Available)
		assert.Equal(t, 1, fs.Frame())
	})
	t.Run("Truncated", func(t *testing.T) {
		body := items(nil, []byte{1, 2, 3, 4})
		fs, err := newFragmentStream(bytes.NewReader(body[:14]), 2, DefaultBoundary)
		require.NoError(t, err)
		assert.ErrorIs(t, fs.Seek(0), ErrMalformedPixelData)
	})
	t.Run("CustomBoundary", func(t *testing.T) {
		pairs := func(int, []uint32) FrameBoundary { return pairBoundary{} }
		body := items(nil, []byte{1}, []byte{2}, []byte{3}, []byte{4})
		fs, err := newFragmentStream(bytes.NewReader(body), 2, pairs)
		require.NoError(t, err)
		require.NoError(t, fs.Seek(1))
		b, err := io.ReadAll(fs.Reader())
		require.NoError(t, err)
		assert.Equal(t, []byte{3, 4}, b)
	})
}

// pairBoundary puts two fragments in every frame
type pairBoundary struct{}

func (pairBoundary) FrameOf(fragment int, _ int64) int { return fragment / 2 }
