package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/profile"

	"github.com/jkroepke/1brc-adaptive/internal/brc"
)

func main() {
	start := time.Now()

	var (
		showTimings = flag.Bool("timings", false, "print a self-measurement of the run, excluding process startup and shutdown")
		quiet       = flag.Bool("quiet", false, "do not print the station statistics")
		threads     = flag.Int("threads", 0, "number of worker threads, all hardware threads if 0")
		ioStrategy  = flag.String("io", brc.RandomAccess.String(), "IO strategy: RA for random access or MM for memory mapped")
		cpuProfile  = flag.Bool("profile", false, "write a CPU profile to ./profile")
	)

	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path_to_measurements_file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	strategy, err := brc.ParseIOStrategy(*ioStrategy)
	if err != nil {
		log.Fatal(err)
	}

	var prof interface{ Stop() }
	if *cpuProfile {
		prof = profile.Start(profile.ProfilePath("./profile"))
	}

	cfg := brc.Config{Threads: *threads, IO: strategy}
	if *showTimings {
		cfg.Timings = brc.NewTimings()
	}

	result, err := execute(flag.Arg(0), cfg)
	if prof != nil {
		// log.Fatal skips deferred calls, stop before it can exit
		prof.Stop()
	}
	if err != nil {
		log.Fatal(err)
	}

	if !*quiet {
		fmt.Print(result)
	}
	cfg.Timings.Record(brc.ResultsPrinted)

	if cfg.Timings != nil {
		_, _ = cfg.Timings.WriteTo(os.Stderr)
	}

	_, _ = fmt.Fprintf(os.Stderr, "%dms\n", time.Since(start).Milliseconds())
}

func execute(fileName string, cfg brc.Config) (string, error) {
	result, err := brc.ProcessFile(fileName, cfg)
	if err != nil {
		return "", fmt.Errorf("processing %s: %w", fileName, err)
	}

	return result, nil
}
