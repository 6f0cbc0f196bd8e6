package brc

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Timing names a checkpoint of a run.
type Timing int

const (
	GlobalIOOpening Timing = iota
	GlobalIOOpened
	FirstWorkerStart
	LastWorkerStart
	FirstWorkerComplete
	LastWorkerComplete
	ResultsMerged
	ResultsFormatted
	GlobalIOClosed
	ResultsPrinted
	timingCount
)

var timingNames = [timingCount]string{
	"GlobalIOOpening",
	"GlobalIOOpened",
	"FirstWorkerStart",
	"LastWorkerStart",
	"FirstWorkerComplete",
	"LastWorkerComplete",
	"ResultsMerged",
	"ResultsFormatted",
	"GlobalIOClosed",
	"ResultsPrinted",
}

func (t Timing) String() string {
	if t < 0 || t >= timingCount {
		return fmt.Sprintf("Timing(%d)", int(t))
	}

	return timingNames[t]
}

// Timings records when each checkpoint was first reached. A nil *Timings
// records nothing.
type Timings struct {
	start     time.Time
	points    *xsync.MapOf[Timing, time.Duration]
	started   atomic.Int32
	completed atomic.Int32
}

func NewTimings() *Timings {
	return &Timings{
		start:  time.Now(),
		points: xsync.NewMapOf[Timing, time.Duration](),
	}
}

// Record stores the elapsed time for t unless it was recorded before.
func (ts *Timings) Record(t Timing) {
	if ts == nil {
		return
	}

	ts.points.LoadOrStore(t, time.Since(ts.start))
}

// Get returns the elapsed time recorded for t.
func (ts *Timings) Get(t Timing) (time.Duration, bool) {
	if ts == nil {
		return 0, false
	}

	return ts.points.Load(t)
}

func (ts *Timings) workerStarted(workers int) {
	if ts == nil {
		return
	}

	n := ts.started.Add(1)
	if n == 1 {
		ts.Record(FirstWorkerStart)
	}
	if int(n) == workers {
		ts.Record(LastWorkerStart)
	}
}

func (ts *Timings) workerCompleted(workers int) {
	if ts == nil {
		return
	}

	n := ts.completed.Add(1)
	if n == 1 {
		ts.Record(FirstWorkerComplete)
	}
	if int(n) == workers {
		ts.Record(LastWorkerComplete)
	}
}

// WriteTo prints one line per checkpoint with the total and the difference
// to the previous checkpoint in milliseconds.
func (ts *Timings) WriteTo(w io.Writer) (int64, error) {
	var written int64

	n, err := fmt.Fprintf(w, "%-30s %8s %8s\n", "Timing", "Total ms", "Diff ms")
	written += int64(n)
	if err != nil {
		return written, err
	}

	var prev time.Duration
	for t := Timing(0); t < timingCount; t++ {
		total, _ := ts.Get(t)
		n, err := fmt.Fprintf(w, "%-30s %8.1f %8.1f\n", t, ms(total), ms(total-prev))
		written += int64(n)
		if err != nil {
			return written, err
		}
		prev = total
	}

	return written, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
