package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/hako/durafmt"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/build"
	"github.com/Kindhearted57/sui-fuzzer/config"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer"
	fstats "github.com/Kindhearted57/sui-fuzzer/fuzzer/stats"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/worker"
	"github.com/Kindhearted57/sui-fuzzer/journal"
	"github.com/Kindhearted57/sui-fuzzer/journal/fsjournal"
	"github.com/Kindhearted57/sui-fuzzer/metrics"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

var runCmd = &cli.Command{
	Name:      "run",
	Usage:     "Fuzz a target until interrupted or the timeout expires",
	ArgsUsage: "[contract]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "chain",
			Usage: fmt.Sprintf("target chain, one of %v", runner.SupportedChains()),
		},
		&cli.StringFlag{
			Name:  "module",
			Usage: "module holding the entry points",
		},
		&cli.StringSliceFlag{
			Name:    "function",
			Aliases: []string{"f"},
			Usage:   "entry point under test, repeatable",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "number of concurrent workers",
		},
		&cli.Uint64Flag{
			Name:  "seed",
			Usage: "base seed; worker i uses seed+i",
		},
		&cli.IntFlag{
			Name:  "intensity",
			Usage: "base number of mutation rounds per argument",
		},
		&cli.IntFlag{
			Name:  "max-sequence",
			Usage: "maximum number of extra calls per sequence",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "stop after this long",
		},
		&cli.StringFlag{
			Name:  "metrics-listen",
			Usage: "serve prometheus metrics on this address",
		},
		&cli.StringFlag{
			Name:  "journal-max-size",
			Usage: "roll the journal file at this size, e.g. 64MiB",
		},
		&cli.BoolFlag{
			Name:  "no-journal",
			Usage: "do not write the crash journal",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if err := applyTargetFlags(cctx, &cfg.Fuzzer); err != nil {
			return err
		}
		if err := applyRunFlags(cctx, cfg); err != nil {
			return err
		}

		ctx := reqContext(cctx)
		if cfg.Fuzzer.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Fuzzer.Timeout))
			defer cancel()
		}

		backend, err := runner.Lookup(cfg.Fuzzer.Chain)
		if err != nil {
			return err
		}

		if err := startMetrics(cfg.Metrics); err != nil {
			return err
		}
		ctx = metrics.WithTags(ctx,
			tag.Upsert(metrics.Version, build.BuildVersion),
			tag.Upsert(metrics.Commit, build.CurrentCommit),
		)

		j := journal.NilJournal()
		if !cctx.Bool("no-journal") {
			if j, err = openJournal(cfg.Journal); err != nil {
				return err
			}
		}

		w := cctx.App.Writer
		f, err := fuzzer.New(ctx, cfg.Fuzzer, backend,
			fuzzer.WithJournal(j),
			fuzzer.WithOnCrash(func(c *worker.NewCrash) { printCrash(w, c) }),
		)
		if err != nil {
			return multierr.Combine(xerrors.Errorf("creating fuzzer: %w", err), j.Close())
		}
		unobserve, err := metrics.ObserveMaxGas(otel.GetMeterProvider(), func() map[string]uint64 {
			return f.Stats().Gas
		})
		if err != nil {
			return multierr.Combine(err, j.Close())
		}
		defer func() { _ = unobserve() }()

		_ = stats.RecordWithTags(ctx, []tag.Mutator{
			tag.Upsert(metrics.Session, f.Session().String()),
			tag.Upsert(metrics.Chain, cfg.Fuzzer.Chain.String()),
		}, metrics.FuzzerInfo.M(1))

		_, _ = fmt.Fprintf(w, "fuzzing %s %s on %s with %d worker(s), session %s\n",
			cfg.Fuzzer.Chain, cfg.Fuzzer.Contract, strings.Join(cfg.Fuzzer.TargetFunctions, ","),
			cfg.Fuzzer.Workers, f.Session())

		statusCtx, stopStatus := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			reportStatus(statusCtx, w, f, time.Duration(cfg.Fuzzer.StatusInterval))
		}()

		runErr := f.Run(ctx)
		stopStatus()
		<-done

		printStatus(w, f.Stats())
		return multierr.Combine(runErr, j.Close())
	},
}

func applyTargetFlags(cctx *cli.Context, cfg *config.Fuzzer) error {
	if cctx.IsSet("chain") {
		c, err := runner.ParseChain(cctx.String("chain"))
		if err != nil {
			return err
		}
		cfg.Chain = c
	}
	if cctx.Args().Present() {
		cfg.Contract = cctx.Args().First()
		// a new contract drops the configured module unless given again
		cfg.Module = ""
	}
	if cctx.IsSet("module") {
		cfg.Module = cctx.String("module")
	}
	if cfg.Contract == "" {
		return xerrors.New("no contract given")
	}
	return nil
}

func applyRunFlags(cctx *cli.Context, cfg *config.Root) error {
	if cctx.IsSet("function") {
		cfg.Fuzzer.TargetFunctions = cctx.StringSlice("function")
	}
	if cctx.IsSet("workers") {
		cfg.Fuzzer.Workers = cctx.Int("workers")
	}
	if cctx.IsSet("seed") {
		cfg.Fuzzer.Seed = cctx.Uint64("seed")
	}
	if cctx.IsSet("intensity") {
		cfg.Fuzzer.Intensity = cctx.Int("intensity")
	}
	if cctx.IsSet("max-sequence") {
		cfg.Fuzzer.MaxCallSequenceSize = cctx.Int("max-sequence")
	}
	if cctx.IsSet("timeout") {
		cfg.Fuzzer.Timeout = config.Duration(cctx.Duration("timeout"))
	}
	if cctx.IsSet("metrics-listen") {
		cfg.Metrics.ListenAddress = cctx.String("metrics-listen")
	}
	if cctx.IsSet("journal-max-size") {
		size, err := units.RAMInBytes(cctx.String("journal-max-size"))
		if err != nil {
			return xerrors.Errorf("parsing journal-max-size: %w", err)
		}
		cfg.Journal.MaxSize = size
	}
	return nil
}

func startMetrics(cfg config.Metrics) error {
	if cfg.ListenAddress == "" {
		return nil
	}
	h, err := metrics.Exporter(cfg.Namespace)
	if err != nil {
		return err
	}
	go func() {
		if err := metrics.Serve(cfg.ListenAddress, h); err != nil {
			log.Errorf("metrics server stopped: %s", err)
		}
	}()
	return nil
}

func openJournal(cfg config.Journal) (journal.Journal, error) {
	if cfg.Path == "" {
		return journal.NilJournal(), nil
	}

	disabled := journal.DefaultDisabledEvents
	if len(cfg.DisabledEvents) > 0 {
		var err error
		disabled, err = journal.ParseDisabledEvents(strings.Join(cfg.DisabledEvents, ","))
		if err != nil {
			return nil, xerrors.Errorf("parsing disabled journal events: %w", err)
		}
	}

	j, err := fsjournal.OpenFSJournalWithLimits(cfg.Path, disabled, cfg.MaxSize, cfg.MaxBackups)
	if err != nil {
		return nil, xerrors.Errorf("opening journal: %w", err)
	}
	return j, nil
}

func reportStatus(ctx context.Context, w io.Writer, f *fuzzer.Fuzzer, interval time.Duration) {
	if interval <= 0 {
		return
	}
	tick := build.Clock.Ticker(interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			snap := f.Stats()
			stats.Record(ctx, metrics.ExecsPerSecond.M(int64(snap.ExecsPerSec)))
			printStatus(w, snap)
		case <-ctx.Done():
			return
		}
	}
}

func printStatus(w io.Writer, snap fstats.Snapshot) {
	crashes := humanize.Comma(int64(snap.Crashes))
	if snap.UniqueCrashes > 0 {
		crashes = color.RedString(crashes)
	}
	_, _ = fmt.Fprintf(w, "[%s] execs %s (%s/s)  crashes %s (%d unique)  max gas %s\n",
		durafmt.Parse(snap.TimeRunning.Truncate(time.Second)).LimitFirstN(2),
		humanize.Comma(int64(snap.Execs)),
		humanize.Comma(int64(snap.ExecsPerSec)),
		crashes,
		snap.UniqueCrashes,
		gasSummary(snap.Gas),
	)
}

func gasSummary(gas map[string]uint64) string {
	var (
		top  string
		best uint64
	)
	for fn, g := range gas {
		if g > best || (g == best && fn < top) {
			top, best = fn, g
		}
	}
	if top == "" {
		return "-"
	}
	return fmt.Sprintf("%s %s", top, humanize.Comma(int64(best)))
}

func printCrash(w io.Writer, c *worker.NewCrash) {
	_, _ = fmt.Fprintf(w, "%s %s::%s %s\n    %s\n",
		color.New(color.FgRed, color.Bold).Sprint("CRASH"),
		c.Module, c.Function, types.Format(c.Inputs), c.Err)
}
