// Package data implements the tagged-union Data container (spec.md §3, §4.A):
// a value that may be backed by a single buffer, a buffer array, a blob, a
// shared blob, a string, or a file region, without the caller needing to
// know which.
//
// Grounded on nts/ntsa/ntsa_data.h (original_source) for the variant set and
// on xtaci/smux's alloc.go (vendored in the teacher) for the pooled-buffer
// idiom Blob uses internally.
package data

import (
	"errors"
	"io"
)

// ErrWrongType is returned by an accessor when the Data's tag does not match
// the requested variant.
var ErrWrongType = errors.New("data: wrong variant")

// Kind discriminates the Data sum type.
type Kind int

const (
	KindNone Kind = iota
	KindBorrowedBuffer
	KindOwnedBuffer
	KindBorrowedArray
	KindSharedArray
	KindBlob
	KindSharedBlob
	KindString
	KindFileRegion
)

// FileRegion describes a byte range of an open file, read lazily via
// ReaderAt (the pread-like contract spec.md §4.A calls for).
type FileRegion struct {
	Reader    io.ReaderAt
	Offset    int64
	Remaining int64
}

// Data is an immutable tagged union over the variants enumerated in
// spec.md §3. Zero value is the "none" variant.
type Data struct {
	kind    Kind
	buffer  []byte   // KindBorrowedBuffer, KindOwnedBuffer
	buffers [][]byte // KindBorrowedArray, KindSharedArray
	blob    *Blob    // KindBlob, KindSharedBlob
	str     string   // KindString
	file    FileRegion
}

// NewBorrowedBuffer wraps b without copying; callers must not mutate b while
// the Data is alive.
func NewBorrowedBuffer(b []byte) Data { return Data{kind: KindBorrowedBuffer, buffer: b} }

// NewOwnedBuffer copies b into a private buffer.
func NewOwnedBuffer(b []byte) Data {
	own := make([]byte, len(b))
	copy(own, b)
	return Data{kind: KindOwnedBuffer, buffer: own}
}

// NewBorrowedArray wraps a gather list of buffers without copying.
func NewBorrowedArray(bufs [][]byte) Data { return Data{kind: KindBorrowedArray, buffers: bufs} }

// NewSharedArray wraps a gather list of buffers that may be shared with
// other Data values (reference-counted by the Go GC).
func NewSharedArray(bufs [][]byte) Data { return Data{kind: KindSharedArray, buffers: bufs} }

// NewBlob wraps an owned Blob.
func NewBlob(b *Blob) Data { return Data{kind: KindBlob, blob: b} }

// NewSharedBlob wraps a Blob whose underlying BlobBuffers may be shared with
// the destination of an append when allocator identity matches.
func NewSharedBlob(b *Blob) Data { return Data{kind: KindSharedBlob, blob: b} }

// NewString wraps a string as immutable byte content.
func NewString(s string) Data { return Data{kind: KindString, str: s} }

// NewFileRegion wraps a lazily-read file byte range.
func NewFileRegion(r FileRegion) Data { return Data{kind: KindFileRegion, file: r} }

func (d Data) Kind() Kind { return d.kind }

// Size returns the total number of bytes represented, per spec.md §3
// ("size equals sum of represented bytes").
func (d Data) Size() int {
	switch d.kind {
	case KindNone:
		return 0
	case KindBorrowedBuffer, KindOwnedBuffer:
		return len(d.buffer)
	case KindBorrowedArray, KindSharedArray:
		n := 0
		for _, b := range d.buffers {
			n += len(b)
		}
		return n
	case KindBlob, KindSharedBlob:
		return d.blob.Size()
	case KindString:
		return len(d.str)
	case KindFileRegion:
		return int(d.file.Remaining)
	default:
		return 0
	}
}

// Buffer returns the single-buffer payload, or ErrWrongType.
func (d Data) Buffer() ([]byte, error) {
	if d.kind != KindBorrowedBuffer && d.kind != KindOwnedBuffer {
		return nil, ErrWrongType
	}
	return d.buffer, nil
}

// Array returns the gather-list payload, or ErrWrongType.
func (d Data) Array() ([][]byte, error) {
	if d.kind != KindBorrowedArray && d.kind != KindSharedArray {
		return nil, ErrWrongType
	}
	return d.buffers, nil
}

// BlobValue returns the blob payload, or ErrWrongType.
func (d Data) BlobValue() (*Blob, error) {
	if d.kind != KindBlob && d.kind != KindSharedBlob {
		return nil, ErrWrongType
	}
	return d.blob, nil
}

// StringValue returns the string payload, or ErrWrongType.
func (d Data) StringValue() (string, error) {
	if d.kind != KindString {
		return "", ErrWrongType
	}
	return d.str, nil
}

// FileRegionValue returns the file-region payload, or ErrWrongType.
func (d Data) FileRegionValue() (FileRegion, error) {
	if d.kind != KindFileRegion {
		return FileRegion{}, ErrWrongType
	}
	return d.file, nil
}

// Batchable reports whether d can participate in a scatter/gather batch
// (spec.md §4.B batch_next): every variant except FileRegion, which must be
// read from disk before it can be handed to a socket write, and the empty
// None variant.
func (d Data) Batchable() bool { return d.kind != KindFileRegion && d.kind != KindNone }

// Append appends the bytes represented by d onto dst, returning the number
// of bytes appended. For KindSharedBlob, bytes are shared (not copied) with
// dst when dst's preferred allocator matches the source blob's; every other
// variant is deep-copied, per spec.md §4.A.
func Append(dst *Blob, d Data) (int, error) {
	switch d.kind {
	case KindNone:
		return 0, nil
	case KindBorrowedBuffer, KindOwnedBuffer:
		dst.AppendCopy(d.buffer)
		return len(d.buffer), nil
	case KindBorrowedArray, KindSharedArray:
		n := 0
		for _, b := range d.buffers {
			dst.AppendCopy(b)
			n += len(b)
		}
		return n, nil
	case KindString:
		dst.AppendCopy([]byte(d.str))
		return len(d.str), nil
	case KindBlob:
		return dst.AppendCopyBlob(d.blob), nil
	case KindSharedBlob:
		if dst.SameAllocator(d.blob) {
			return dst.AppendShareBlob(d.blob), nil
		}
		return dst.AppendCopyBlob(d.blob), nil
	case KindFileRegion:
		return appendFileRegion(dst, d.file)
	default:
		return 0, ErrWrongType
	}
}

func appendFileRegion(dst *Blob, fr FileRegion) (int, error) {
	chunk := dst.PreferredBufferSize()
	if chunk <= 0 {
		chunk = 4096
	}
	buf := make([]byte, chunk)
	total := 0
	offset := fr.Offset
	remaining := fr.Remaining
	for remaining > 0 {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}
		n, err := fr.Reader.ReadAt(buf[:want], offset)
		if n > 0 {
			dst.AppendCopy(buf[:n])
			total += n
			offset += int64(n)
			remaining -= int64(n)
		}
		if err != nil {
			if err == io.EOF && n > 0 && remaining == 0 {
				break
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// Copy always materializes bytes into dst, even for shared-blob variants;
// it differs from Append only in never sharing storage (spec.md §4.A).
func Copy(dst *Blob, d Data) (int, error) {
	switch d.kind {
	case KindBlob, KindSharedBlob:
		return dst.AppendCopyBlob(d.blob), nil
	default:
		return Append(dst, d)
	}
}

// Equals compares the logical byte content of two Data values regardless of
// variant.
func Equals(a, b Data) bool {
	ab, aerr := materialize(a)
	bb, berr := materialize(b)
	if aerr != nil || berr != nil {
		return false
	}
	if len(ab) != len(bb) {
		return false
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false
		}
	}
	return true
}

func materialize(d Data) ([]byte, error) {
	b := NewEmptyBlob(DefaultAllocator)
	if _, err := Copy(b, d); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
