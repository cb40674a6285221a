package data

import "sync"

// Allocator hands out power-of-two byte slices from a set of size-classed
// pools, exactly the scheme xtaci/smux's Allocator (alloc.go, vendored in
// the teacher) uses for inbound frame buffers: at most 50% fragmentation
// waste, GC pressure amortized by sync.Pool.
type Allocator struct {
	pools [17]sync.Pool // 1B .. 64K
}

// NewAllocator creates a fresh, independent Allocator.
func NewAllocator() *Allocator {
	a := &Allocator{}
	for i := range a.pools {
		size := 1 << uint(i)
		a.pools[i].New = func() interface{} {
			b := make([]byte, size)
			return &b
		}
	}
	return a
}

// DefaultAllocator is the package-wide default, matching smux's
// defaultAllocator singleton.
var DefaultAllocator = NewAllocator()

func (a *Allocator) classOf(size int) int {
	bits := 0
	v := size
	for v > 1 {
		v >>= 1
		bits++
	}
	if size > 1<<uint(bits) {
		bits++
	}
	return bits
}

// Get returns a buffer with length size and capacity rounded up to the next
// power of two.
func (a *Allocator) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	if size > 1<<16 {
		return make([]byte, size)
	}
	class := a.classOf(size)
	p := a.pools[class].Get().(*[]byte)
	buf := (*p)[:size]
	return buf
}

// Put returns a buffer obtained from Get back to the pool. Buffers not
// obtained from this allocator (or larger than 64K) are dropped silently.
func (a *Allocator) Put(b []byte) {
	c := cap(b)
	if c == 0 || c > 1<<16 {
		return
	}
	class := a.classOf(c)
	if 1<<uint(class) != c {
		return
	}
	full := b[:c]
	a.pools[class].Put(&full)
}

// PreferredChunkSize is the size Blob.growAndFill requests from its allocator for
// each new chunk.
const PreferredChunkSize = 4096

// Blob is a growable byte sequence built from pooled chunks ("BlobBuffer"s
// in the original design), generalizing bdlbb::Blob for this module. Nil
// Allocator means "use DefaultAllocator".
type Blob struct {
	alloc   *Allocator
	chunks  [][]byte
	size    int
	chunkSz int
}

// NewEmptyBlob creates an empty Blob backed by alloc (DefaultAllocator if
// nil).
func NewEmptyBlob(alloc *Allocator) *Blob {
	if alloc == nil {
		alloc = DefaultAllocator
	}
	return &Blob{alloc: alloc, chunkSz: PreferredChunkSize}
}

// Size returns the total number of bytes held.
func (b *Blob) Size() int { return b.size }

// PreferredBufferSize reports the chunk size used for new allocations; Data's
// FileRegion append chunks reads by this size.
func (b *Blob) PreferredBufferSize() int { return b.chunkSz }

// SameAllocator reports whether b and other share the same backing
// Allocator, which is what decides whether a shared-blob Append can share
// storage instead of copying (spec.md §4.A).
func (b *Blob) SameAllocator(other *Blob) bool {
	return other != nil && b.alloc == other.alloc
}

// AppendCopy deep-copies p's bytes onto the end of b, chunked by the blob's
// preferred buffer size.
func (b *Blob) AppendCopy(p []byte) {
	for len(p) > 0 {
		n := b.growAndFill(p)
		p = p[n:]
	}
}

// growAndFill appends to the tail chunk if it has spare capacity, else
// allocates a new chunk, and copies as much of p as fits in one chunk.
func (b *Blob) growAndFill(p []byte) int {
	if len(b.chunks) > 0 {
		tail := b.chunks[len(b.chunks)-1]
		if len(tail) < cap(tail) {
			room := cap(tail) - len(tail)
			n := len(p)
			if n > room {
				n = room
			}
			tail = tail[:len(tail)+n]
			copy(tail[len(tail)-n:], p[:n])
			b.chunks[len(b.chunks)-1] = tail
			b.size += n
			return n
		}
	}
	size := b.chunkSz
	if size <= 0 {
		size = PreferredChunkSize
	}
	chunk := b.alloc.Get(size)[:0]
	n := len(p)
	if n > cap(chunk) {
		n = cap(chunk)
	}
	chunk = chunk[:n]
	copy(chunk, p[:n])
	b.chunks = append(b.chunks, chunk)
	b.size += n
	return n
}

// AppendCopyBlob deep-copies every byte of other onto b and returns the
// number of bytes appended.
func (b *Blob) AppendCopyBlob(other *Blob) int {
	if other == nil {
		return 0
	}
	n := 0
	for _, c := range other.chunks {
		b.AppendCopy(c)
		n += len(c)
	}
	return n
}

// AppendShareBlob appends references to other's chunks without copying,
// valid only when b and other share an Allocator (checked by the caller via
// SameAllocator).
func (b *Blob) AppendShareBlob(other *Blob) int {
	if other == nil {
		return 0
	}
	n := 0
	for _, c := range other.chunks {
		b.chunks = append(b.chunks, c)
		b.size += len(c)
		n += len(c)
	}
	return n
}

// Bytes materializes the blob's content into one contiguous slice. This is
// for test/debug convenience; production code should iterate Chunks to avoid
// the copy.
func (b *Blob) Bytes() []byte {
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Chunks returns the blob's backing chunks in order, for scatter/gather
// writes. Callers must not retain or mutate the slices.
func (b *Blob) Chunks() [][]byte { return b.chunks }

// Consume removes n bytes from the front of the blob, recycling any chunk
// that becomes fully drained back to the allocator.
func (b *Blob) Consume(n int) {
	if n <= 0 {
		return
	}
	if n > b.size {
		n = b.size
	}
	b.size -= n
	for n > 0 && len(b.chunks) > 0 {
		head := b.chunks[0]
		if len(head) <= n {
			n -= len(head)
			b.alloc.Put(head)
			b.chunks = b.chunks[1:]
			continue
		}
		b.chunks[0] = head[n:]
		n = 0
	}
}

// Reset empties the blob, recycling all chunks.
func (b *Blob) Reset() {
	for _, c := range b.chunks {
		b.alloc.Put(c)
	}
	b.chunks = nil
	b.size = 0
}
