package brc

import (
	"slices"

	"github.com/dolthub/swiss"

	"github.com/jkroepke/1brc-adaptive/internal/stats"
	"github.com/jkroepke/1brc-adaptive/internal/table"
)

// Result is the merged aggregate of every worker table.
type Result struct {
	m *swiss.Map[string, *stats.Stats]
}

func newResult() *Result {
	return &Result{m: swiss.NewMap[string, *stats.Stats](1024)}
}

// merge folds a worker table into r.
func (r *Result) merge(t *table.Table) {
	t.Range(func(name []byte, st stats.Stats) bool {
		agg, ok := r.m.Get(string(name))
		if !ok {
			s := stats.New()
			agg = &s
			r.m.Put(string(name), agg)
		}
		agg.Merge(st)

		return true
	})
}

func (r *Result) Len() int {
	return r.m.Count()
}

// Get returns the aggregate of a station.
func (r *Result) Get(name string) (stats.Stats, bool) {
	st, ok := r.m.Get(name)
	if !ok {
		return stats.Stats{}, false
	}

	return *st, true
}

// Names returns all station names in byte-wise order.
func (r *Result) Names() []string {
	names := make([]string, 0, r.m.Count())
	r.m.Iter(func(name string, _ *stats.Stats) bool {
		names = append(names, name)
		return false
	})
	slices.Sort(names)

	return names
}

// String formats r as {name=min/mean/max, ...} followed by a line break.
func (r *Result) String() string {
	names := r.Names()

	b := make([]byte, 0, 32*len(names)+3)
	b = append(b, '{')
	for i, name := range names {
		if i != 0 {
			b = append(b, ", "...)
		}
		st, _ := r.m.Get(name)
		b = append(b, name...)
		b = append(b, '=')
		b = st.AppendTo(b)
	}
	b = append(b, "}\n"...)

	return string(b)
}
