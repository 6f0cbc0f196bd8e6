package table

import (
	"bytes"
	"math"
	"unsafe"

	"github.com/zeebo/xxh3"

	"github.com/jkroepke/1brc-adaptive/internal/stats"
)

const (
	// CompactCapacity is the hard limit of distinct names in a Compact table.
	CompactCapacity = 10_000

	compactBuckets = 1 << 16

	// NoEntry marks an empty bucket or the end of a chain.
	NoEntry = math.MaxUint32
)

// entry is the header of an arena record, the name bytes follow it.
type entry struct {
	stats  stats.Stats
	next   uint32
	length uint16
	_      uint16
}

const entryHeaderSize = int(unsafe.Sizeof(entry{}))

// Compact is a chained hash table whose entries live in one bump allocated
// arena. It keeps the working set small when there are thousands of names.
type Compact struct {
	buckets []uint32
	arena   []byte
	used    uint32
	count   int
}

func NewCompact() *Compact {
	buckets := make([]uint32, compactBuckets)
	for i := range buckets {
		buckets[i] = NoEntry
	}

	// Backed by uint64 so every 8 byte aligned offset is a valid *entry.
	words := make([]uint64, CompactCapacity*entrySize(MaxNameSize)/8)

	return &Compact{
		buckets: buckets,
		arena:   unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8),
	}
}

func (c *Compact) Len() int {
	return c.count
}

// Bucket returns the bucket index of name.
func (c *Compact) Bucket(name []byte) uint32 {
	prefix := name
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}

	return uint32(xxh3.Hash(prefix)+uint64(len(name))) & (compactBuckets - 1)
}

// Likely returns the arena offset of the first entry in bucket, or NoEntry.
// Most lookups end at that entry, so callers with several independent names
// fetch all heads before resolving any of them.
func (c *Compact) Likely(bucket uint32) uint32 {
	return c.buckets[bucket]
}

// GetOrCreate returns the aggregate for name, creating it on first sight.
func (c *Compact) GetOrCreate(name []byte) *stats.Stats {
	bucket := c.Bucket(name)

	return c.Resolve(bucket, c.Likely(bucket), name)
}

// Resolve walks the chain of bucket starting at head, an earlier result of
// Likely(bucket), and appends a new entry on a miss. A bucket head never
// changes once set, so only an empty head can be stale.
func (c *Compact) Resolve(bucket, head uint32, name []byte) *stats.Stats {
	off := head
	if off == NoEntry {
		off = c.buckets[bucket]
	}
	tail := uint32(NoEntry)

	for off != NoEntry {
		e := c.at(off)
		if int(e.length) == len(name) && bytes.Equal(c.name(off, e), name) {
			return &e.stats
		}
		tail = off
		off = e.next
	}

	return c.create(bucket, tail, name)
}

func (c *Compact) create(bucket, tail uint32, name []byte) *stats.Stats {
	checkName(name)

	if c.count >= CompactCapacity {
		panic(ErrCapacity)
	}

	off := c.used
	e := c.at(off)
	e.stats.Init()
	e.next = NoEntry
	e.length = uint16(len(name))
	copy(c.arena[int(off)+entryHeaderSize:], name)

	if tail == NoEntry {
		c.buckets[bucket] = off
	} else {
		c.at(tail).next = off
	}

	c.used += uint32(entrySize(len(name)))
	c.count++

	return &e.stats
}

// Range calls fn for every entry in insertion order until fn returns false.
func (c *Compact) Range(fn func(name []byte, st stats.Stats) bool) {
	for off := uint32(0); off < c.used; {
		e := c.at(off)
		if !fn(c.name(off, e), e.stats) {
			return
		}
		off += uint32(entrySize(int(e.length)))
	}
}

func (c *Compact) at(off uint32) *entry {
	return (*entry)(unsafe.Pointer(&c.arena[off]))
}

func (c *Compact) name(off uint32, e *entry) []byte {
	start := int(off) + entryHeaderSize

	return c.arena[start : start+int(e.length)]
}

// entrySize is the arena footprint of a record, rounded up to 8 bytes.
func entrySize(nameLen int) int {
	return (entryHeaderSize + nameLen + 7) &^ 7
}
