// Package chunk splits an input file into row aligned byte ranges that
// workers claim without locking.
package chunk

import (
	"io"
)

const (
	// LongestLegalRow is the longest possible row including its '\n'.
	LongestLegalRow = 100 + 7

	// Padding is the slack kept behind every owned buffer so that
	// readers may look past the last row of a chunk.
	Padding = 128
)

// Chunk is a row aligned range of the input. It starts at the file start
// or right after a '\n' and its last byte is a '\n'.
type Chunk struct {
	// Offset of the first byte in the file.
	Offset int64

	buf []byte
	n   int
}

// Len returns the number of row bytes.
func (c Chunk) Len() int {
	return c.n
}

// Bytes returns the rows of the chunk.
func (c Chunk) Bytes() []byte {
	return c.buf[:c.n]
}

// Padded returns the rows followed by whatever readable bytes come after
// them in memory. Bytes past Len are not part of the chunk.
func (c Chunk) Padded() []byte {
	return c.buf
}

// Source hands out the chunks of one file.
type Source interface {
	// Worker returns a handle for one goroutine.
	Worker() Worker
	// Size returns the file size.
	Size() int64
	io.Closer
}

// Worker claims chunks for a single goroutine.
type Worker interface {
	// Next returns the next chunk or io.EOF once the file is drained.
	// The returned chunk is valid until the next call.
	Next() (Chunk, error)
}

type config struct {
	maxChunkSize  int
	maxRegionSize int
}

// Option configures a Source.
type Option func(*config)

// WithMaxChunkSize limits how many bytes a single claim covers.
func WithMaxChunkSize(n int) Option {
	return func(c *config) {
		c.maxChunkSize = max(n, LongestLegalRow)
	}
}

// WithMaxRegionSize limits the size of an Owned region claim.
func WithMaxRegionSize(n int) Option {
	return func(c *config) {
		c.maxRegionSize = max(n, 2*LongestLegalRow)
	}
}

func newConfig(chunkSize, regionSize int, opts []Option) config {
	c := config{maxChunkSize: chunkSize, maxRegionSize: regionSize}
	for _, opt := range opts {
		opt(&c)
	}

	return c
}
