package chunk

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// DefaultMappedChunkSize is the claim size of a Mapped source.
const DefaultMappedChunkSize = 1 << 25

// Mapped maps the whole file read-only once and hands out slices of it.
// Every chunk is followed by the rest of the mapping, which serves as its
// padding.
type Mapped struct {
	data     []byte
	size     int64
	maxChunk int64
	claimed  atomic.Int64
}

// OpenMapped maps the file at path.
func OpenMapped(path string, opts ...Option) (*Mapped, error) {
	cfg := newConfig(DefaultMappedChunkSize, 0, opts)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}

	m := &Mapped{size: info.Size(), maxChunk: int64(cfg.maxChunkSize)}
	if m.size == 0 {
		return m, nil
	}

	m.data, err = unix.Mmap(int(f.Fd()), 0, int(m.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap input: %w", err)
	}

	// readahead hint only, chunks are consumed front to back
	_ = unix.Madvise(m.data, unix.MADV_SEQUENTIAL)

	return m, nil
}

func (m *Mapped) Size() int64 {
	return m.size
}

func (m *Mapped) Close() error {
	if m.data == nil {
		return nil
	}

	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap input: %w", err)
	}

	return nil
}

func (m *Mapped) Worker() Worker {
	return mappedWorker{m}
}

// claim advances the shared cursor past the next chunk. The candidate end
// only moves forward to the next '\n'. The last LongestLegalRow bytes are
// never scanned, a claim that reaches into them takes the rest of the file.
func (m *Mapped) claim() (start, end int64, ok bool) {
	for {
		start = m.claimed.Load()
		if start == m.size {
			return 0, 0, false
		}

		end = start + min(m.maxChunk, m.size-start)
		if end >= m.size-LongestLegalRow {
			end = m.size
		} else {
			for m.data[end-1] != '\n' {
				end++
			}
		}

		if m.claimed.CompareAndSwap(start, end) {
			return start, end, true
		}
	}
}

type mappedWorker struct {
	m *Mapped
}

func (w mappedWorker) Next() (Chunk, error) {
	start, end, ok := w.m.claim()
	if !ok {
		return Chunk{}, io.EOF
	}

	return Chunk{Offset: start, buf: w.m.data[start:], n: int(end - start)}, nil
}
