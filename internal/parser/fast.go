package parser

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/jkroepke/1brc-adaptive/internal/stats"
	"github.com/jkroepke/1brc-adaptive/internal/table"
)

const (
	ones       = 0x0101010101010101
	highBits   = 0x8080808080808080
	semicolons = 0x3B3B3B3B3B3B3B3B

	blockSize = 32
)

// semicolonMask has the high bit set in the byte of the first ';' in w.
// Bytes after it may carry false positives.
func semicolonMask(w uint64) uint64 {
	x := w ^ semicolons
	return (x - ones) &^ x & highBits
}

// firstSemicolon returns the index of the first ';' in the 32 bytes held
// by w, or 32 if there is none.
func firstSemicolon(w *[4]uint64) int {
	for i, word := range w {
		if m := semicolonMask(word); m != 0 {
			return i*8 + bits.TrailingZeros64(m)>>3
		}
	}

	return blockSize
}

// keepBytes zeroes every byte of w from index n on.
func keepBytes(w uint64, n int) uint64 {
	n = min(max(n, 0), 8)
	return w & (1<<(uint(n)*8) - 1)
}

func loadBlock(b []byte) [4]uint64 {
	_ = b[blockSize-1]
	return [4]uint64{
		binary.LittleEndian.Uint64(b[0:]),
		binary.LittleEndian.Uint64(b[8:]),
		binary.LittleEndian.Uint64(b[16:]),
		binary.LittleEndian.Uint64(b[24:]),
	}
}

// longNameEnd finds the ';' of a name that did not end in the first block.
func longNameEnd(w []byte) int {
	for off := blockSize; off < Window; off += blockSize {
		block := loadBlock(w[off : off+blockSize])
		if i := firstSemicolon(&block); i < blockSize {
			if off+i > table.MaxNameSize {
				break
			}
			return off + i
		}
	}

	panic(fmt.Errorf("%w: no ';' within %d bytes", table.ErrNameSize, table.MaxNameSize+1))
}

// decodeFixedPoint decodes the value at the start of word, little endian,
// without branching on its width. It returns the value in tenths and the
// number of bytes up to and including the trailing '\n'.
//
// Only the four layouts x.x, xx.x, -x.x and -xx.x exist. '-' and '.' are the
// only bytes with bit 4 clear, which gives the sign and the dot position.
func decodeFixedPoint(word uint64) (int16, int) {
	const (
		dotBits = 0x10101000
		magic   = 100*0x1000000 + 10*0x10000 + 1
	)

	inv := ^word
	dot := bits.TrailingZeros64(inv & dotBits)
	sign := int64(inv<<59) >> 63 // 0 or -1
	word &^= uint64(sign & 0xFF)
	digits := (word << uint(28-dot)) & 0x0F000F0F00
	abs := int64(((digits * magic) >> 32) & 0x3FF)

	return int16((abs ^ sign) - sign), dot>>3 + 3
}

// decodeQuad decodes four values at once. Independent decodes let the CPU
// overlap them.
func decodeQuad(words *[lanes]uint64) (v [lanes]int16, n [lanes]int) {
	v[0], n[0] = decodeFixedPoint(words[0])
	v[1], n[1] = decodeFixedPoint(words[1])
	v[2], n[2] = decodeFixedPoint(words[2])
	v[3], n[3] = decodeFixedPoint(words[3])

	return v, n
}

// window returns the Window bytes at cursor. Callers guarantee
// cursor <= len(buf)-Window.
func window(buf []byte, cursor int) []byte {
	return buf[cursor : cursor+Window : cursor+Window]
}

// nameEnd returns the index of the ';' ending the name at the start of w.
// For short names it also returns the name as a sparse key.
func nameEnd(w []byte) (semi int, key table.SmallKey, short bool) {
	block := loadBlock(w)
	semi = firstSemicolon(&block)
	if semi >= blockSize {
		return longNameEnd(w), key, false
	}

	for i := range key {
		key[i] = keepBytes(block[i], semi-i*8)
	}

	return semi, key, true
}

func valueWord(w []byte, semi int) uint64 {
	return binary.LittleEndian.Uint64(w[semi+1:])
}

func sparseLookup(s *table.Sparse, w []byte) (*stats.Stats, int) {
	semi, key, short := nameEnd(w)
	if short {
		return s.GetOrCreateWords(key, semi), semi
	}

	return s.GetOrCreate(w[:semi]), semi
}

func stepSparse(s *table.Sparse, buf []byte, cursor int) int {
	w := window(buf, cursor)
	st, semi := sparseLookup(s, w)
	v, n := decodeFixedPoint(valueWord(w, semi))
	st.Insert(v)

	return cursor + semi + 1 + n
}

func stepCompact(c *table.Compact, buf []byte, cursor int) int {
	w := window(buf, cursor)
	semi, _, _ := nameEnd(w)
	st := c.GetOrCreate(w[:semi])
	v, n := decodeFixedPoint(valueWord(w, semi))
	st.Insert(v)

	return cursor + semi + 1 + n
}

func parseSparseLanes(s *table.Sparse, buf []byte, l *[lanes]lane, readLimit int) {
	var (
		st    [lanes]*stats.Stats
		semi  [lanes]int
		words [lanes]uint64
	)

	for lanesReady(l, readLimit) {
		for i := range l {
			w := window(buf, l[i].cursor)
			st[i], semi[i] = sparseLookup(s, w)
			words[i] = valueWord(w, semi[i])
		}

		v, n := decodeQuad(&words)
		for i := range l {
			st[i].Insert(v[i])
			l[i].cursor += semi[i] + 1 + n[i]
		}
	}
}

// parseCompactLanes fetches the bucket heads of all lanes before resolving
// any chain, so the cache misses of the four lookups overlap.
func parseCompactLanes(c *table.Compact, buf []byte, l *[lanes]lane, readLimit int) {
	var (
		semi    [lanes]int
		buckets [lanes]uint32
		heads   [lanes]uint32
		words   [lanes]uint64
	)

	for lanesReady(l, readLimit) {
		for i := range l {
			w := window(buf, l[i].cursor)
			semi[i], _, _ = nameEnd(w)
			buckets[i] = c.Bucket(w[:semi[i]])
			words[i] = valueWord(w, semi[i])
		}
		for i := range l {
			heads[i] = c.Likely(buckets[i])
		}

		v, n := decodeQuad(&words)
		for i := range l {
			w := window(buf, l[i].cursor)
			c.Resolve(buckets[i], heads[i], w[:semi[i]]).Insert(v[i])
			l[i].cursor += semi[i] + 1 + n[i]
		}
	}
}

// finishSparse continues a single lane with the fast path for as long as
// its window fits into buf. It returns where the fallback has to pick up.
func finishSparse(s *table.Sparse, buf []byte, ln lane, readLimit int) int {
	cursor := ln.cursor
	for cursor < ln.end && cursor <= readLimit {
		cursor = stepSparse(s, buf, cursor)
	}

	return cursor
}

func finishCompact(c *table.Compact, buf []byte, ln lane, readLimit int) int {
	cursor := ln.cursor
	for cursor < ln.end && cursor <= readLimit {
		cursor = stepCompact(c, buf, cursor)
	}

	return cursor
}
