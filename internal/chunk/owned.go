package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

const (
	// DefaultOwnedChunkSize is the read size of an Owned worker.
	DefaultOwnedChunkSize = 1 << 18
	// DefaultRegionSize is the claim size of an Owned source.
	DefaultRegionSize = 1 << 25
)

// Owned reads the file through ReadAt into per-worker buffers. Workers claim
// regions from a shared cursor and carve chunks out of them on their own.
type Owned struct {
	r         io.ReaderAt
	closer    io.Closer
	size      int64
	maxChunk  int
	maxRegion int64
	claimed   atomic.Int64
}

// OpenOwned opens the file at path for positional reads.
func OpenOwned(path string, opts ...Option) (*Owned, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat input: %w", err)
	}

	o := NewOwned(f, info.Size(), opts...)
	o.closer = f

	return o, nil
}

// NewOwned reads size bytes from r. r must allow concurrent ReadAt calls.
func NewOwned(r io.ReaderAt, size int64, opts ...Option) *Owned {
	cfg := newConfig(DefaultOwnedChunkSize, DefaultRegionSize, opts)

	return &Owned{
		r:         r,
		size:      size,
		maxChunk:  cfg.maxChunkSize,
		maxRegion: int64(cfg.maxRegionSize),
	}
}

func (o *Owned) Size() int64 {
	return o.size
}

func (o *Owned) Close() error {
	if o.closer == nil {
		return nil
	}

	return o.closer.Close()
}

func (o *Owned) Worker() Worker {
	return &ownedWorker{
		o:   o,
		buf: make([]byte, o.maxChunk+Padding),
	}
}

// claimRegion advances the shared cursor past the next region. Without a
// mapping the boundary is found by reading the LongestLegalRow bytes in
// front of the candidate end and cutting after their last '\n'.
func (o *Owned) claimRegion(tail []byte) (start, length int64, err error) {
	for {
		start = o.claimed.Load()
		if start == o.size {
			return 0, 0, io.EOF
		}

		length = o.size - start
		if length > o.maxRegion {
			off := start + o.maxRegion - int64(len(tail))
			if err := readFull(o.r, tail, off); err != nil {
				return 0, 0, err
			}

			nl := bytes.LastIndexByte(tail, '\n')
			if nl < 0 {
				return 0, 0, fmt.Errorf("no line break in %d bytes at offset %d", len(tail), off)
			}
			length = o.maxRegion - int64(len(tail)) + int64(nl) + 1
		}

		if o.claimed.CompareAndSwap(start, start+length) {
			return start, length, nil
		}
	}
}

// ownedWorker is the private state of one goroutine: its buffer and the
// unread part of its current region.
type ownedWorker struct {
	o            *Owned
	buf          []byte
	tail         [LongestLegalRow]byte
	regionStart  int64
	regionLength int64
}

func (w *ownedWorker) Next() (Chunk, error) {
	if w.regionLength == 0 {
		start, length, err := w.o.claimRegion(w.tail[:])
		if err != nil {
			return Chunk{}, err
		}
		w.regionStart, w.regionLength = start, length
	}

	read := w.buf[:min(int64(w.o.maxChunk), w.regionLength)]
	if err := readFull(w.o.r, read, w.regionStart); err != nil {
		return Chunk{}, err
	}

	n := bytes.LastIndexByte(read, '\n') + 1
	if n == 0 && int64(len(read)) == w.regionLength && w.regionStart+w.regionLength == w.o.size {
		// unterminated last row of the file
		n = len(read)
	}
	if n == 0 {
		return Chunk{}, fmt.Errorf("no line break in %d bytes at offset %d", len(read), w.regionStart)
	}

	c := Chunk{Offset: w.regionStart, buf: w.buf, n: n}
	w.regionStart += int64(n)
	w.regionLength -= int64(n)

	return c, nil
}

func readFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return fmt.Errorf("read input at offset %d: %w", off, err)
}
