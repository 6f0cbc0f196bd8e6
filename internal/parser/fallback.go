package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jkroepke/1brc-adaptive/internal/table"
)

// ErrMalformedRow is raised for a row that does not match
// `<name>;-?\d{1,2}\.\d`.
var ErrMalformedRow = errors.New("parser: malformed row")

// parseFallback parses rows without reading outside of rows.
func parseFallback(t *table.Table, rows []byte) {
	for len(rows) > 0 {
		nl := bytes.IndexByte(rows, '\n')
		if nl < 0 {
			nl = len(rows)
		}
		line := rows[:nl]

		semi := bytes.IndexByte(line, ';')
		if semi < 0 {
			panic(fmt.Errorf("%w: missing ';' in %q", ErrMalformedRow, line))
		}

		v, ok := parseFixedPoint(line[semi+1:])
		if !ok {
			panic(fmt.Errorf("%w: invalid value in %q", ErrMalformedRow, line))
		}

		t.GetOrCreate(line[:semi]).Insert(v)

		rows = rows[min(nl+1, len(rows)):]
	}
}

// parseFixedPoint parses a value with one or two integer digits and exactly
// one fractional digit into tenths.
func parseFixedPoint(b []byte) (int16, bool) {
	neg := len(b) > 0 && b[0] == '-'
	if neg {
		b = b[1:]
	}

	var intDigits []byte
	switch {
	case len(b) == 3 && b[1] == '.':
		intDigits = b[:1]
	case len(b) == 4 && b[2] == '.':
		intDigits = b[:2]
	default:
		return 0, false
	}

	var v int16
	for _, c := range intDigits {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int16(c-'0')
	}

	frac := b[len(b)-1]
	if frac < '0' || frac > '9' {
		return 0, false
	}
	v = v*10 + int16(frac-'0')

	if neg {
		v = -v
	}

	return v, true
}
