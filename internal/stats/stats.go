// Package stats holds the per-station aggregate. Measurements are fixed-point
// integers in tenths so that accumulation stays exact.
package stats

import (
	"math"
	"strconv"
)

// Stats is a 16 byte min/max/sum/count aggregate.
type Stats struct {
	Sum   int64
	Min   int16
	Max   int16
	Count int32
}

// New returns the empty aggregate.
func New() Stats {
	return Stats{Min: math.MaxInt16, Max: math.MinInt16}
}

// Init resets s to the empty aggregate.
func (s *Stats) Init() {
	*s = New()
}

// Insert adds one measurement.
func (s *Stats) Insert(v int16) {
	s.Sum += int64(v)
	s.Min = min(s.Min, v)
	s.Max = max(s.Max, v)
	s.Count++
}

// Merge folds o into s as if every measurement of o had been inserted.
func (s *Stats) Merge(o Stats) {
	s.Sum += o.Sum
	s.Min = min(s.Min, o.Min)
	s.Max = max(s.Max, o.Max)
	s.Count += o.Count
}

// Mean returns the average in tenths.
func (s Stats) Mean() float64 {
	return float64(s.Sum) / float64(s.Count)
}

// String formats s as min/mean/max with one decimal digit.
func (s Stats) String() string {
	b := make([]byte, 0, 20)
	return string(s.AppendTo(b))
}

// AppendTo appends the min/mean/max form of s to b.
func (s Stats) AppendTo(b []byte) []byte {
	b = appendTenths(b, int64(s.Min))
	b = append(b, '/')
	b = appendTenths(b, int64(math.Round(s.Mean())))
	b = append(b, '/')
	return appendTenths(b, int64(s.Max))
}

// appendTenths writes v/10 with exactly one decimal digit.
func appendTenths(b []byte, v int64) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	b = strconv.AppendInt(b, v/10, 10)
	b = append(b, '.')
	return append(b, byte('0'+v%10))
}
