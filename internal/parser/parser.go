// Package parser decodes `<name>;<value>\n` rows and feeds them into a
// station table.
//
// Parsing a chunk runs in two stages. The fast path reads fixed size windows
// that may extend past the row it decodes, so it only touches rows that
// start at least LongestLegalRow bytes before the end of the chunk and whose
// window is inside the buffer. Everything else goes through the bounds
// checked fallback path.
package parser

import (
	"github.com/jkroepke/1brc-adaptive/internal/table"
)

const (
	// LongestLegalRow is a 100 byte name, ';', "-99.9" and '\n'.
	LongestLegalRow = table.MaxNameSize + 7

	// Window is how many bytes the fast path may read from a row start.
	Window = 128

	// DefaultThreshold is the number of distinct names after which a table
	// is migrated from sparse to compact.
	DefaultThreshold = 500

	lanes = 4
)

type Parser struct {
	// Threshold is the cardinality at which the sparse table is replaced.
	Threshold int
}

func New() *Parser {
	return &Parser{Threshold: DefaultThreshold}
}

// lane is a row aligned sub range of a chunk. Lanes are parsed round-robin
// so the lookups of neighbouring rows do not depend on each other.
type lane struct {
	cursor int
	end    int
}

// Parse adds every row of buf[:end] to t. buf[end:] must be readable but is
// never interpreted; a longer tail lets the fast path cover more rows.
// buf[:end] has to start at a row and end with '\n'.
func (p *Parser) Parse(t *table.Table, buf []byte, end int) {
	if t.Kind() == table.KindSparse && t.Len() >= p.Threshold {
		t.Migrate()
	}

	fastEnd := fastRegionEnd(buf, end)
	l := partition(buf, fastEnd)
	readLimit := len(buf) - Window

	switch t.Kind() {
	case table.KindSparse:
		s := t.Sparse()
		parseSparseLanes(s, buf, &l, readLimit)
		for i := range l {
			l[i].cursor = finishSparse(s, buf, l[i], readLimit)
		}
	case table.KindCompact:
		c := t.Compact()
		parseCompactLanes(c, buf, &l, readLimit)
		for i := range l {
			l[i].cursor = finishCompact(c, buf, l[i], readLimit)
		}
	}

	for _, ln := range l {
		parseFallback(t, buf[ln.cursor:ln.end])
	}
	parseFallback(t, buf[fastEnd:end])
}

// fastRegionEnd returns the first row boundary at or after
// end-LongestLegalRow. The rows behind it are left to the fallback path.
func fastRegionEnd(buf []byte, end int) int {
	if end <= LongestLegalRow {
		return 0
	}

	e := end - LongestLegalRow
	for e < end && buf[e-1] != '\n' {
		e++
	}

	return e
}

// partition splits [0, end) into row aligned lanes of roughly equal size.
func partition(buf []byte, end int) [lanes]lane {
	var l [lanes]lane

	start := 0
	for i := range l {
		e := max(end*(i+1)/lanes, start)
		for e > start && e < end && buf[e-1] != '\n' {
			e++
		}
		l[i] = lane{cursor: start, end: e}
		start = e
	}

	return l
}

func lanesReady(l *[lanes]lane, readLimit int) bool {
	for i := range l {
		if l[i].cursor >= l[i].end || l[i].cursor > readLimit {
			return false
		}
	}

	return true
}
