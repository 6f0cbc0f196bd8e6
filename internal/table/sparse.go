package table

import (
	"encoding/binary"

	"github.com/jkroepke/1brc-adaptive/internal/stats"
)

const (
	// SmallNameSize is the longest name stored in the small tier.
	SmallNameSize = 32

	smallSlots = 1 << 18
	largeSlots = 1 << 14
	largeWords = (MaxNameSize + 7) / 8
)

// SmallKey is a name of up to SmallNameSize bytes as little endian words,
// zero past the name's length.
type SmallKey [SmallNameSize / 8]uint64

type largeKey [largeWords]uint64

// A slot with length 0 is empty, names are never empty.
type smallSlot struct {
	key    SmallKey
	stats  stats.Stats
	length uint8
}

type largeSlot struct {
	key    largeKey
	stats  stats.Stats
	length uint8
}

// Sparse is an open addressing table with names stored inline. It is fast
// while only a few hundred stations are known, probe chains get long at high
// cardinality.
type Sparse struct {
	small     []smallSlot
	large     []largeSlot
	smallUsed []uint32
	largeUsed []uint32
}

func NewSparse() *Sparse {
	return &Sparse{
		small:     make([]smallSlot, smallSlots),
		large:     make([]largeSlot, largeSlots),
		smallUsed: make([]uint32, 0, 512),
		largeUsed: make([]uint32, 0, 64),
	}
}

func (s *Sparse) Len() int {
	return len(s.smallUsed) + len(s.largeUsed)
}

// GetOrCreate returns the aggregate for name, creating it on first sight.
func (s *Sparse) GetOrCreate(name []byte) *stats.Stats {
	checkName(name)

	if len(name) <= SmallNameSize {
		return s.GetOrCreateWords(MakeSmallKey(name), len(name))
	}

	var key largeKey
	var buf [largeWords * 8]byte
	copy(buf[:], name)
	for i := range key {
		key[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}

	return s.getOrCreateLarge(&key, len(name))
}

// GetOrCreateWords is GetOrCreate for a name already loaded as words.
func (s *Sparse) GetOrCreateWords(key SmallKey, n int) *stats.Stats {
	if n == 0 {
		// the zero key would match an empty slot
		checkName(nil)
	}

	idx := sparseHash(key[0], n) & (smallSlots - 1)

	slot := &s.small[idx]
	if int(slot.length) == n && slot.key == key {
		return &slot.stats
	}

	return s.getOrCreateSmallCold(key, n, idx)
}

func (s *Sparse) getOrCreateSmallCold(key SmallKey, n int, idx uint32) *stats.Stats {
	for {
		slot := &s.small[idx]
		if slot.length == 0 {
			s.checkCapacity()
			slot.key = key
			slot.length = uint8(n)
			slot.stats.Init()
			s.smallUsed = append(s.smallUsed, idx)

			return &slot.stats
		}

		if int(slot.length) == n && slot.key == key {
			return &slot.stats
		}

		idx = (idx + 1) & (smallSlots - 1)
	}
}

func (s *Sparse) getOrCreateLarge(key *largeKey, n int) *stats.Stats {
	idx := sparseHash(key[0], n) & (largeSlots - 1)

	for {
		slot := &s.large[idx]
		if slot.length == 0 {
			s.checkCapacity()
			slot.key = *key
			slot.length = uint8(n)
			slot.stats.Init()
			s.largeUsed = append(s.largeUsed, idx)

			return &slot.stats
		}

		if int(slot.length) == n && slot.key == *key {
			return &slot.stats
		}

		idx = (idx + 1) & (largeSlots - 1)
	}
}

// checkCapacity keeps a Sparse table within what a Compact table can take
// over, which also keeps both tiers far from full.
func (s *Sparse) checkCapacity() {
	if s.Len() >= CompactCapacity {
		panic(ErrCapacity)
	}
}

// Range calls fn for every entry until fn returns false.
func (s *Sparse) Range(fn func(name []byte, st stats.Stats) bool) {
	var buf [largeWords * 8]byte

	for _, idx := range s.smallUsed {
		slot := &s.small[idx]
		for i, w := range slot.key {
			binary.LittleEndian.PutUint64(buf[i*8:], w)
		}
		if !fn(buf[:slot.length], slot.stats) {
			return
		}
	}

	for _, idx := range s.largeUsed {
		slot := &s.large[idx]
		for i, w := range slot.key {
			binary.LittleEndian.PutUint64(buf[i*8:], w)
		}
		if !fn(buf[:slot.length], slot.stats) {
			return
		}
	}
}

// MakeSmallKey loads a name of at most SmallNameSize bytes into a SmallKey.
func MakeSmallKey(name []byte) SmallKey {
	var buf [SmallNameSize]byte
	copy(buf[:], name)

	return SmallKey{
		binary.LittleEndian.Uint64(buf[0:]),
		binary.LittleEndian.Uint64(buf[8:]),
		binary.LittleEndian.Uint64(buf[16:]),
		binary.LittleEndian.Uint64(buf[24:]),
	}
}

// sparseHash mixes the first eight name bytes with the name length.
func sparseHash(first uint64, n int) uint32 {
	return uint32(first+first>>28) + uint32(n)
}
