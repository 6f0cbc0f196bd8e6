package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jkroepke/1brc-adaptive/internal/brc"
)

func benchmarkFile(b *testing.B, fileName string, io brc.IOStrategy) {
	if _, err := os.Stat(fileName); err != nil {
		b.Skipf("%s not available: %v", fileName, err)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := execute(fileName, brc.Config{IO: io}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkShort(b *testing.B) {
	benchmarkFile(b, "measurements100000000.txt", brc.RandomAccess)
}

func BenchmarkShortMapped(b *testing.B) {
	benchmarkFile(b, "measurements100000000.txt", brc.MemoryMapped)
}

func BenchmarkReal(b *testing.B) {
	benchmarkFile(b, "measurements.txt", brc.RandomAccess)
}

func BenchmarkRealMapped(b *testing.B) {
	benchmarkFile(b, "measurements.txt", brc.MemoryMapped)
}

func TestExecute(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "measurements.txt")
	if err := os.WriteFile(fileName, []byte("A;3.0\nB;-4.5\nA;1.0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, io := range []brc.IOStrategy{brc.RandomAccess, brc.MemoryMapped} {
		got, err := execute(fileName, brc.Config{IO: io})
		if err != nil {
			t.Fatalf("%s: %v", io, err)
		}
		if got != "{A=1.0/2.0/3.0, B=-4.5/-4.5/-4.5}\n" {
			t.Errorf("%s: unexpected result %q", io, got)
		}
	}
}

func TestExecuteReturnsError(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "missing.txt")

	got, err := execute(fileName, brc.Config{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
	if got != "" {
		t.Fatalf("unexpected output %q", got)
	}
}
