package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"covreport/archive"
	"covreport/config"
	"covreport/internal/covreport"
	"covreport/stats"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// Purpose: Program entrypoint body; wires config, logging, archive and the
// report runner, then runs once or keeps watching.
// Key aspects: Returns the process exit code so deferred cleanup always runs;
// SIGINT/SIGTERM cancel between sources and no partial report is written.
// Upstream: main.
// Downstream: config.Load, setupLogging, buildOptions, covreport.Generate, watchAndRun.
func run(args []string) int {
	fs := flag.NewFlagSet("covreport", flag.ContinueOnError)
	var (
		configDir   = fs.String("config", "", "config directory (default $"+config.EnvConfigPath+" or "+config.DefaultDir+")")
		out         = fs.String("out", "", "output workbook path")
		jsonOut     = fs.String("json-out", "", "optional JSON summary path")
		gen         = fs.String("gen", "", "generation: legacy or 5g")
		sheet       = fs.String("sheet", "", "worksheet to read from .xlsx sources")
		watch       = fs.Bool("watch", false, "regenerate the report when a source or config file changes")
		noProgress  = fs.Bool("no-progress", false, "disable the progress line")
		printConfig = fs.Bool("print-config", false, "print the merged configuration and exit")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: covreport [flags] [AREA=path | path]...\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log.SetFlags(0)
	dir := config.ResolveDir(*configDir)
	cfg, err := config.Load(dir)
	if err != nil {
		log.Printf("Error loading config: %v", err)
		return 1
	}
	if *printConfig {
		cfg.Print()
		return 0
	}

	fanout, err := setupLogging(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
	}
	defer fanout.Close()
	log.SetOutput(fanout)
	log.Printf("Coverage report v%s", Version)
	if cfg.LoadedFrom != "" {
		log.Printf("Loaded configuration from %s", cfg.LoadedFrom)
	}
	fanout.WriteFileOnlyLine(fmt.Sprintf("Config: output=%s generation=%s precision=%d operators=%v sources=%d",
		cfg.Report.Output, cfg.Report.Generation, cfg.Report.Precision, cfg.Report.Operators, len(cfg.Sources)), time.Now())

	cli := cliOverrides{
		Output:     *out,
		JSONOutput: *jsonOut,
		Generation: *gen,
		Sheet:      *sheet,
		Sources:    fs.Args(),
	}
	opts, err := buildOptions(cfg, cli)
	if err != nil {
		log.Printf("Error: %v", err)
		return 1
	}

	var store *archive.Store
	if cfg.Archive.Enabled {
		store, err = archive.Open(cfg.Archive)
		if err != nil {
			log.Printf("Warning: archive disabled: %v", err)
		} else {
			defer store.Close()
			if pre := store.Preflight(); pre.Quarantined {
				log.Printf("Warning: archive failed integrity check (%v); moved to %s", pre.Err, pre.QuarantinePath)
			}
		}
	}

	tracker := stats.NewTracker()
	var status *statusLine
	if cfg.Logging.Progress && !*noProgress && isStdoutTTY() {
		status = newStatusLine(os.Stdout)
		fanout.SetConsoleSink(status, true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	generate := func(ctx context.Context, opts covreport.Options) error {
		tracker.Reset()
		fanout.ResetWarnings()
		opts.Archive = store
		opts.Stats = tracker
		opts.Logger = log.Default()
		if status != nil {
			opts.Progress = func(done, total int) {
				status.Set(tracker.ProgressLine(done, total))
			}
			defer status.Clear()
		}
		result, err := covreport.Generate(ctx, opts)
		if err != nil {
			return err
		}
		if len(result.Failed) > 0 {
			log.Printf("Report complete with %d skipped source(s)", len(result.Failed))
		}
		if n := fanout.Warnings(); n > 0 {
			if path := fanout.FilePath(); path != "" {
				log.Printf("%d warning(s) this run; details in %s", n, path)
			} else {
				log.Printf("%d warning(s) this run", n)
			}
		}
		return nil
	}

	if err := generate(ctx, opts); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("Interrupted")
			return 130
		}
		log.Printf("Error: %v", err)
		if !*watch {
			return 1
		}
	}
	if !*watch {
		return 0
	}

	paths := make([]string, 0, len(opts.Sources))
	for _, src := range opts.Sources {
		paths = append(paths, src.Path)
	}
	targets := newWatchTargets(paths, cfg.LoadedFrom)
	debounce := time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
	err = watchAndRun(ctx, targets, debounce, func(ctx context.Context, reason string) {
		log.Printf("Change detected (%s); regenerating", reason)
		next := opts
		if fresh, err := config.Load(dir); err != nil {
			log.Printf("Warning: config reload failed, keeping previous settings: %v", err)
		} else if rebuilt, err := buildOptions(fresh, cli); err != nil {
			log.Printf("Warning: config reload rejected, keeping previous settings: %v", err)
		} else {
			next = rebuilt
			opts = rebuilt
		}
		if err := generate(ctx, next); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Error: %v", err)
		}
	})
	if err != nil {
		log.Printf("Error: %v", err)
		return 1
	}
	log.Printf("Shutting down")
	return 0
}
