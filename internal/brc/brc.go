// Package brc runs the whole aggregation: it opens the input, lets a fixed
// number of workers drain it into private tables and merges the tables once
// all workers are done.
package brc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jkroepke/1brc-adaptive/internal/chunk"
	"github.com/jkroepke/1brc-adaptive/internal/parser"
	"github.com/jkroepke/1brc-adaptive/internal/table"
)

// IOStrategy selects how the input is read.
type IOStrategy int

const (
	// RandomAccess reads regions with positional reads into worker buffers.
	RandomAccess IOStrategy = iota
	// MemoryMapped maps the file once and parses it in place.
	MemoryMapped
)

func (s IOStrategy) String() string {
	switch s {
	case RandomAccess:
		return "RA"
	case MemoryMapped:
		return "MM"
	default:
		return fmt.Sprintf("IOStrategy(%d)", int(s))
	}
}

// ParseIOStrategy parses "RA" or "MM".
func ParseIOStrategy(s string) (IOStrategy, error) {
	switch s {
	case "RA":
		return RandomAccess, nil
	case "MM":
		return MemoryMapped, nil
	default:
		return 0, fmt.Errorf("unknown io strategy %q, expected either RA or MM", s)
	}
}

type Config struct {
	// Threads is the number of workers, all CPUs if <= 0.
	Threads int
	IO      IOStrategy
	// Options are passed on to the chunk source.
	Options []chunk.Option
	// Timings collects checkpoints if set.
	Timings *Timings
}

func (c Config) workers() int {
	if c.Threads > 0 {
		return c.Threads
	}

	return runtime.NumCPU()
}

// Open opens path with the configured IO strategy.
func Open(path string, cfg Config) (chunk.Source, error) {
	switch cfg.IO {
	case RandomAccess:
		return chunk.OpenOwned(path, cfg.Options...)
	case MemoryMapped:
		return chunk.OpenMapped(path, cfg.Options...)
	default:
		return nil, fmt.Errorf("unknown io strategy %v", cfg.IO)
	}
}

// ProcessFile aggregates the file at path and returns the formatted result.
func ProcessFile(path string, cfg Config) (string, error) {
	cfg.Timings.Record(GlobalIOOpening)
	src, err := Open(path, cfg)
	if err != nil {
		return "", err
	}
	cfg.Timings.Record(GlobalIOOpened)

	result, err := Process(src, cfg)
	if err != nil {
		_ = src.Close()
		return "", err
	}

	out := result.String()
	cfg.Timings.Record(ResultsFormatted)

	if err := src.Close(); err != nil {
		return "", err
	}
	cfg.Timings.Record(GlobalIOClosed)

	return out, nil
}

// Process drains src with cfg.Threads workers and merges their tables.
// The first failing worker aborts the run, there are no partial results.
func Process(src chunk.Source, cfg Config) (*Result, error) {
	workers := cfg.workers()
	tables := make([]*table.Table, workers)
	p := parser.New()

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d: %w", i, panicError(r))
				}
			}()

			cfg.Timings.workerStarted(workers)
			t, err := drain(ctx, src.Worker(), p)
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			tables[i] = t
			cfg.Timings.workerCompleted(workers)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := newResult()
	for _, t := range tables {
		result.merge(t)
	}
	cfg.Timings.Record(ResultsMerged)

	return result, nil
}

// drain parses chunks into a fresh table until the source is exhausted or
// another worker failed.
func drain(ctx context.Context, w chunk.Worker, p *parser.Parser) (*table.Table, error) {
	t := table.New()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := w.Next()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, err
		}

		p.Parse(t, c.Padded(), c.Len())
	}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}

	return fmt.Errorf("%v", r)
}
