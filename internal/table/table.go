// Package table maps station names to their aggregates. A Table starts out as
// a Sparse table and is migrated once to a Compact table when the number of
// distinct names grows past what the sparse layout handles well.
package table

import (
	"errors"
	"fmt"

	"github.com/jkroepke/1brc-adaptive/internal/stats"
)

// MaxNameSize is the longest legal station name in bytes.
const MaxNameSize = 100

var (
	// ErrCapacity is raised when a table cannot hold another distinct name.
	ErrCapacity = errors.New("table: too many distinct station names")
	// ErrNameSize is raised for an empty name or one longer than MaxNameSize.
	ErrNameSize = errors.New("table: invalid station name length")
)

// Kind selects the concrete table behind a Table.
type Kind uint8

const (
	KindSparse Kind = iota
	KindCompact
)

func (k Kind) String() string {
	switch k {
	case KindSparse:
		return "sparse"
	case KindCompact:
		return "compact"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Table is a tagged union of the two implementations. It is owned by a
// single worker and not safe for concurrent use.
type Table struct {
	kind    Kind
	sparse  *Sparse
	compact *Compact
}

// New returns an empty sparse table.
func New() *Table {
	return &Table{kind: KindSparse, sparse: NewSparse()}
}

// newCompactTable returns an empty table that skips the sparse stage.
func newCompactTable() *Table {
	return &Table{kind: KindCompact, compact: NewCompact()}
}

func (t *Table) Kind() Kind {
	return t.kind
}

// Sparse returns the sparse table, nil once migrated.
func (t *Table) Sparse() *Sparse {
	return t.sparse
}

// Compact returns the compact table, nil before migration.
func (t *Table) Compact() *Compact {
	return t.compact
}

func (t *Table) Len() int {
	if t.kind == KindSparse {
		return t.sparse.Len()
	}

	return t.compact.Len()
}

// GetOrCreate returns the aggregate for name. The pointer stays valid until
// the table is migrated.
func (t *Table) GetOrCreate(name []byte) *stats.Stats {
	if t.kind == KindSparse {
		return t.sparse.GetOrCreate(name)
	}

	return t.compact.GetOrCreate(name)
}

// Range calls fn for every entry in no particular order until fn returns
// false. name is only valid for the duration of the call.
func (t *Table) Range(fn func(name []byte, st stats.Stats) bool) {
	if t.kind == KindSparse {
		t.sparse.Range(fn)
		return
	}

	t.compact.Range(fn)
}

// Migrate moves every entry of a sparse table into a new compact table.
// Keys of a table are unique, so each entry is a plain create. Migrating a
// compact table is a no-op.
func (t *Table) Migrate() {
	if t.kind == KindCompact {
		return
	}

	c := NewCompact()
	t.sparse.Range(func(name []byte, st stats.Stats) bool {
		*c.GetOrCreate(name) = st
		return true
	})

	t.kind = KindCompact
	t.compact = c
	t.sparse = nil
}

func checkName(name []byte) {
	if len(name) == 0 || len(name) > MaxNameSize {
		panic(fmt.Errorf("%w: station name of %d bytes", ErrNameSize, len(name)))
	}
}
