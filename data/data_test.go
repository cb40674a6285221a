package data

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendCopyRoundTrip(t *testing.T) {
	original := []byte("Hello, world! this is more than one chunk of data if chunks are small")
	src := NewOwnedBuffer(original)

	dst := NewEmptyBlob(NewAllocator())
	n, err := Append(dst, src)
	require.NoError(t, err)
	require.Equal(t, len(original), n)
	require.Equal(t, len(original), dst.Size())

	buf := NewEmptyBlob(NewAllocator())
	_, err = Copy(buf, NewBlob(dst))
	require.NoError(t, err)
	require.True(t, bytes.Equal(buf.Bytes(), original))
}

func TestSharedBlobAppendSharesWhenSameAllocator(t *testing.T) {
	alloc := NewAllocator()
	src := NewEmptyBlob(alloc)
	src.AppendCopy([]byte("shared-bytes"))

	dst := NewEmptyBlob(alloc)
	n, err := Append(dst, NewSharedBlob(src))
	require.NoError(t, err)
	require.Equal(t, 12, n)
	require.True(t, bytes.Equal(dst.Bytes(), []byte("shared-bytes")))
}

func TestSharedBlobAppendCopiesWhenDifferentAllocator(t *testing.T) {
	src := NewEmptyBlob(NewAllocator())
	src.AppendCopy([]byte("other-bytes"))

	dst := NewEmptyBlob(NewAllocator())
	n, err := Append(dst, NewSharedBlob(src))
	require.NoError(t, err)
	require.Equal(t, 11, n)
}

func TestFileRegionAppendChunked(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 1000)
	region := FileRegion{Reader: bytes.NewReader(content), Offset: 10, Remaining: 100}

	dst := NewEmptyBlob(NewAllocator())
	n, err := Append(dst, NewFileRegion(region))
	require.NoError(t, err)
	require.Equal(t, 100, n)
	require.True(t, bytes.Equal(dst.Bytes(), content[10:110]))
}

func TestEqualsAcrossVariants(t *testing.T) {
	a := NewString("identical")
	b := NewOwnedBuffer([]byte("identical"))
	require.True(t, Equals(a, b))

	c := NewString("different")
	require.False(t, Equals(a, c))
}

func TestWrongTypeAccessor(t *testing.T) {
	d := NewString("x")
	_, err := d.Buffer()
	require.ErrorIs(t, err, ErrWrongType)
}

func TestBatchableExcludesFileRegion(t *testing.T) {
	require.True(t, NewOwnedBuffer([]byte("a")).Batchable())
	require.False(t, NewFileRegion(FileRegion{}).Batchable())
}

func TestBlobConsumeRecyclesChunks(t *testing.T) {
	b := NewEmptyBlob(NewAllocator())
	b.chunkSz = 8
	b.AppendCopy(bytes.Repeat([]byte("x"), 20))
	require.Equal(t, 20, b.Size())
	b.Consume(9)
	require.Equal(t, 11, b.Size())
	b.Consume(100)
	require.Equal(t, 0, b.Size())
}
