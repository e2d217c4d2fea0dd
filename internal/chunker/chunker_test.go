package chunker

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name      string
		fileSize  int64
		chunkSize int64
		want      []Descriptor
	}{
		{
			name:      "twelve megabytes in five megabyte chunks",
			fileSize:  12_000_000,
			chunkSize: 5_000_000,
			want: []Descriptor{
				{Index: 0, Offset: 0, Length: 5_000_000},
				{Index: 1, Offset: 5_000_000, Length: 5_000_000},
				{Index: 2, Offset: 10_000_000, Length: 2_000_000},
			},
		},
		{
			name:      "exact multiple",
			fileSize:  10,
			chunkSize: 5,
			want: []Descriptor{
				{Index: 0, Offset: 0, Length: 5},
				{Index: 1, Offset: 5, Length: 5},
			},
		},
		{
			name:      "chunk larger than file",
			fileSize:  3,
			chunkSize: 100,
			want:      []Descriptor{{Index: 0, Offset: 0, Length: 3}},
		},
		{
			name:      "empty file is a single empty chunk",
			fileSize:  0,
			chunkSize: 100,
			want:      []Descriptor{{Index: 0, Offset: 0, Length: 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(tt.fileSize, tt.chunkSize)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			count, err := Count(tt.fileSize, tt.chunkSize)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), count)
		})
	}
}

func TestPlan_InvalidConfiguration(t *testing.T) {
	for _, chunkSize := range []int64{0, -1} {
		_, err := Plan(10, chunkSize)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	}

	_, err := Plan(-5, 10)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestPlan_CoversWholeFile(t *testing.T) {
	plan, err := Plan(1001, 7)
	require.NoError(t, err)

	var next int64
	for i, d := range plan {
		assert.Equal(t, i, d.Index)
		assert.Equal(t, next, d.Offset)
		assert.Greater(t, d.Length, int64(0))
		next = d.End()
	}
	assert.Equal(t, int64(1001), next)
}

func TestSlice(t *testing.T) {
	data := []byte("0123456789abcdefghij!")
	plan, err := Plan(int64(len(data)), 10)
	require.NoError(t, err)
	require.Len(t, plan, 3)

	src := bytes.NewReader(data)

	var joined []byte
	for _, d := range plan {
		first, err := Slice(src, d)
		require.NoError(t, err)

		// повторное чтение того же чанка дает те же байты
		second, err := Slice(src, d)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		joined = append(joined, first...)
	}
	assert.Equal(t, data, joined)
	assert.Equal(t, []byte("!"), mustSlice(t, src, plan[2]))
}

func TestSlice_EmptyChunk(t *testing.T) {
	got, err := Slice(bytes.NewReader(nil), Descriptor{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSlice_ShortSource(t *testing.T) {
	_, err := Slice(bytes.NewReader([]byte("abc")), Descriptor{Index: 1, Offset: 2, Length: 5})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func mustSlice(t *testing.T, src io.ReaderAt, d Descriptor) []byte {
	t.Helper()
	b, err := Slice(src, d)
	require.NoError(t, err)
	return b
}
