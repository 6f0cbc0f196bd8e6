package brc

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/andreyvit/diff"
	"golang.org/x/exp/maps"

	"github.com/jkroepke/1brc-adaptive/internal/chunk"
	"github.com/jkroepke/1brc-adaptive/internal/parser"
	"github.com/jkroepke/1brc-adaptive/internal/stats"
	"github.com/jkroepke/1brc-adaptive/internal/table"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "measurements.txt")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func generate(seed int64, stations, rows int) []byte {
	r := rand.New(rand.NewSource(seed))

	names := make([]string, stations)
	for i := range names {
		names[i] = fmt.Sprintf("%c%d %s", 'A'+r.Intn(26), i, strings.Repeat("z", r.Intn(40)))
	}
	names[0] = strings.Repeat("L", table.MaxNameSize)

	var buf bytes.Buffer
	for i := 0; i < rows; i++ {
		name := names[i%stations]
		if i >= stations {
			name = names[r.Intn(stations)]
		}
		v := r.Intn(1999) - 999
		sign := ""
		if v < 0 {
			sign, v = "-", -v
		}
		fmt.Fprintf(&buf, "%s;%s%d.%d\n", name, sign, v/10, v%10)
	}

	return buf.Bytes()
}

// reference formats data with a plain map and strconv.
func reference(t *testing.T, data []byte) string {
	t.Helper()

	agg := make(map[string]*stats.Stats)
	for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
		name, value, _ := strings.Cut(line, ";")
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			t.Fatal(err)
		}
		st, ok := agg[name]
		if !ok {
			s := stats.New()
			st = &s
			agg[name] = st
		}
		st.Insert(int16(math.Round(f * 10)))
	}

	names := maps.Keys(agg)
	slices.Sort(names)

	entries := make([]string, len(names))
	for i, name := range names {
		entries[i] = name + "=" + agg[name].String()
	}

	return "{" + strings.Join(entries, ", ") + "}\n"
}

func assertOutput(t *testing.T, got, want string) {
	t.Helper()

	if got != want {
		t.Fatalf("unexpected result:\n%s", diff.LineDiff(
			strings.ReplaceAll(want, ", ", "\n"),
			strings.ReplaceAll(got, ", ", "\n")))
	}
}

var strategies = []IOStrategy{RandomAccess, MemoryMapped}

func TestProcessFileExamples(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "two stations",
			input: "A;3.0\nB;-4.5\nA;1.0\n",
			want:  "{A=1.0/2.0/3.0, B=-4.5/-4.5/-4.5}\n",
		},
		{
			name:  "tenths",
			input: "X;0.0\nX;0.1\nX;0.2\nX;0.3\nX;0.4\nX;0.5\nX;0.6\nX;0.7\nX;0.8\nX;0.9\n",
			want:  "{X=0.0/0.5/0.9}\n",
		},
		{
			name:  "byte order",
			input: "b;1.0\nB;2.0\nÅ;3.0\na;4.0\n",
			want:  "{B=2.0/2.0/2.0, a=4.0/4.0/4.0, b=1.0/1.0/1.0, Å=3.0/3.0/3.0}\n",
		},
		{
			name:  "empty",
			input: "",
			want:  "{}\n",
		},
	}

	for _, tt := range tests {
		for _, strategy := range strategies {
			t.Run(tt.name+"/"+strategy.String(), func(t *testing.T) {
				path := writeFile(t, []byte(tt.input))

				got, err := ProcessFile(path, Config{Threads: 4, IO: strategy})
				if err != nil {
					t.Fatal(err)
				}
				assertOutput(t, got, tt.want)
			})
		}
	}
}

func TestProcessFileMatchesReference(t *testing.T) {
	tests := []struct {
		name     string
		stations int
		rows     int
		opts     []chunk.Option
	}{
		{"few stations", 40, 50_000, nil},
		{"few stations small chunks", 40, 50_000, []chunk.Option{chunk.WithMaxChunkSize(2048), chunk.WithMaxRegionSize(16 << 10)}},
		{"crosses threshold", 2_000, 100_000, []chunk.Option{chunk.WithMaxChunkSize(4096), chunk.WithMaxRegionSize(64 << 10)}},
	}

	for i, tt := range tests {
		data := generate(int64(i), tt.stations, tt.rows)
		path := writeFile(t, data)
		want := reference(t, data)

		for _, strategy := range strategies {
			for _, threads := range []int{1, 3, 8} {
				t.Run(fmt.Sprintf("%s/%s/%d", tt.name, strategy, threads), func(t *testing.T) {
					got, err := ProcessFile(path, Config{Threads: threads, IO: strategy, Options: tt.opts})
					if err != nil {
						t.Fatal(err)
					}
					assertOutput(t, got, want)
				})
			}
		}
	}
}

func TestProcessResult(t *testing.T) {
	data := []byte("Oslo;-3.5\nRome;20.1\nOslo;1.5\n")
	src := chunk.NewOwned(bytes.NewReader(data), int64(len(data)))

	result, err := Process(src, Config{Threads: 2})
	if err != nil {
		t.Fatal(err)
	}

	if result.Len() != 2 {
		t.Fatalf("expected 2 stations, got %d", result.Len())
	}
	if names := result.Names(); !slices.Equal(names, []string{"Oslo", "Rome"}) {
		t.Fatalf("unexpected names %v", names)
	}

	oslo, ok := result.Get("Oslo")
	if !ok {
		t.Fatal("missing Oslo")
	}
	want := stats.Stats{Sum: -20, Min: -35, Max: 15, Count: 2}
	if oslo != want {
		t.Fatalf("got %+v, want %+v", oslo, want)
	}

	if _, ok := result.Get("Paris"); ok {
		t.Fatal("unexpected station Paris")
	}
}

func TestProcessFileErrors(t *testing.T) {
	var tooMany bytes.Buffer
	for i := 0; i <= table.CompactCapacity; i++ {
		fmt.Fprintf(&tooMany, "s%05d;1.0\n", i)
	}

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"too many stations", tooMany.Bytes(), table.ErrCapacity},
		{"malformed value", []byte("A;1.0\nB;12.34\n"), parser.ErrMalformedRow},
		{"name too long", []byte(strings.Repeat("n", 101) + ";1.0\n"), table.ErrNameSize},
	}

	for _, tt := range tests {
		for _, strategy := range strategies {
			t.Run(tt.name+"/"+strategy.String(), func(t *testing.T) {
				path := writeFile(t, tt.input)

				out, err := ProcessFile(path, Config{Threads: 2, IO: strategy})
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				if out != "" {
					t.Fatalf("unexpected partial output %q", out)
				}
			})
		}
	}

	_, err := ProcessFile(filepath.Join(t.TempDir(), "missing.txt"), Config{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestParseIOStrategy(t *testing.T) {
	for _, s := range strategies {
		got, err := ParseIOStrategy(s.String())
		if err != nil || got != s {
			t.Fatalf("%s: got %v, %v", s, got, err)
		}
	}

	if _, err := ParseIOStrategy("XX"); err == nil {
		t.Fatal("expected an error for XX")
	}
}

func TestTimings(t *testing.T) {
	path := writeFile(t, generate(9, 10, 1_000))
	ts := NewTimings()

	if _, err := ProcessFile(path, Config{Threads: 3, Timings: ts}); err != nil {
		t.Fatal(err)
	}
	ts.Record(ResultsPrinted)

	for tm := Timing(0); tm < timingCount; tm++ {
		if _, ok := ts.Get(tm); !ok {
			t.Fatalf("%s not recorded", tm)
		}
	}

	opened, _ := ts.Get(GlobalIOOpened)
	merged, _ := ts.Get(ResultsMerged)
	if merged < opened {
		t.Fatalf("results merged at %s, before io opened at %s", merged, opened)
	}

	first, _ := ts.Get(ResultsPrinted)
	ts.Record(ResultsPrinted)
	if again, _ := ts.Get(ResultsPrinted); again != first {
		t.Fatal("second record overwrote the first")
	}

	var out bytes.Buffer
	if _, err := ts.WriteTo(&out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "LastWorkerComplete") {
		t.Fatalf("missing checkpoint in\n%s", out.String())
	}

	var none *Timings
	none.Record(GlobalIOOpening)
	if _, ok := none.Get(GlobalIOOpening); ok {
		t.Fatal("nil timings recorded a checkpoint")
	}
}
