package fuzzer

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/build"
	"github.com/Kindhearted57/sui-fuzzer/config"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/crash"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/mutator"
	fstats "github.com/Kindhearted57/sui-fuzzer/fuzzer/stats"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/worker"
	"github.com/Kindhearted57/sui-fuzzer/journal"
	"github.com/Kindhearted57/sui-fuzzer/metrics"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

var log = logging.Logger("fuzzer")

// CrashRecord is the journal payload of a crash class.
type CrashRecord struct {
	Version   string
	Session   string
	Worker    int
	Module    string
	Function  string
	Inputs    []string
	Error     string
	Signature string
}

// SessionRecord is journaled when a session starts and ends.
type SessionRecord struct {
	Session string
	Chain   string
	Target  string
	Workers int
	Execs   uint64 `json:",omitempty"`
	Crashes uint64 `json:",omitempty"`
	Unique  uint64 `json:",omitempty"`
}

type Option func(*Fuzzer)

// WithJournal records sessions and crash classes to j.
func WithJournal(j journal.Journal) Option {
	return func(f *Fuzzer) {
		f.journal = j
	}
}

// WithOnCrash calls cb once per crash class across all workers. cb runs on
// the coordinator goroutine.
func WithOnCrash(cb func(*worker.NewCrash)) Option {
	return func(f *Fuzzer) {
		f.onCrash = cb
	}
}

func WithClock(clk clock.Clock) Option {
	return func(f *Fuzzer) {
		f.clock = clk
	}
}

type journalEvents struct {
	crash        journal.EventType
	sessionStart journal.EventType
	sessionEnd   journal.EventType
}

// Fuzzer runs a set of workers against one target and collects what they
// find.
type Fuzzer struct {
	cfg     config.Fuzzer
	session uuid.UUID

	clock    clock.Clock
	stats    *fstats.Stats
	registry *crash.Registry
	workers  []*worker.StatefulWorker
	events   chan worker.Event

	journal journal.Journal
	evtypes journalEvents
	onCrash func(*worker.NewCrash)
}

// New opens one runner per worker through backend and constructs the
// workers. Worker i is seeded with cfg.Seed+i.
func New(ctx context.Context, cfg config.Fuzzer, backend runner.Backend, opts ...Option) (*Fuzzer, error) {
	f := &Fuzzer{
		cfg:     cfg,
		session: uuid.New(),
		clock:   build.Clock,
		journal: journal.NilJournal(),
	}
	for _, o := range opts {
		o(f)
	}
	if f.cfg.Workers <= 0 {
		f.cfg.Workers = 1
	}

	reg, err := crash.NewRegistry(cfg.CrashCacheSize)
	if err != nil {
		return nil, err
	}
	f.registry = reg
	f.stats = fstats.New(f.clock)
	f.events = make(chan worker.Event, 16*f.cfg.Workers)
	f.evtypes = journalEvents{
		crash:        f.journal.RegisterEventType("fuzzer", "crash"),
		sessionStart: f.journal.RegisterEventType("fuzzer", "session_start"),
		sessionEnd:   f.journal.RegisterEventType("fuzzer", "session_end"),
	}

	target := runner.Target{Contract: cfg.Contract, Module: cfg.Module}
	for i := 0; i < f.cfg.Workers; i++ {
		r, sigs, err := backend.Open(ctx, target)
		if err != nil {
			return nil, xerrors.Errorf("opening runner for worker %d: %w", i, err)
		}

		seed := cfg.Seed + uint64(i)
		mut := mutator.NewByteMutator(seed, cfg.MaxInputSize, cfg.BoundaryBias)
		w, err := worker.New(ctx, worker.Config{
			ID:                  i,
			Module:              cfg.Module,
			TargetFunctions:     cfg.TargetFunctions,
			FuzzPrefix:          cfg.FuzzPrefix,
			MaxCallSequenceSize: cfg.MaxCallSequenceSize,
			Intensity:           cfg.Intensity,
			Seed:                seed,
		}, r, sigs, mut, f.stats, f.events)
		if err != nil {
			return nil, xerrors.Errorf("creating worker %d: %w", i, err)
		}
		f.workers = append(f.workers, w)
	}

	return f, nil
}

func (f *Fuzzer) Session() uuid.UUID {
	return f.session
}

func (f *Fuzzer) Stats() fstats.Snapshot {
	return f.stats.Snapshot()
}

// Run fuzzes until ctx is done or a worker fails. Each worker runs on its own
// OS thread.
func (f *Fuzzer) Run(ctx context.Context) error {
	ctx = metrics.WithTags(ctx,
		tag.Upsert(metrics.Session, f.session.String()),
		tag.Upsert(metrics.Chain, f.cfg.Chain.String()),
	)
	f.recordSession(f.evtypes.sessionStart, nil)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range f.workers {
		w := w
		g.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			return w.Run(gctx)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	var err error
loop:
	for {
		select {
		case ev := <-f.events:
			f.handle(ctx, ev)
		case err = <-done:
			break loop
		}
	}
	// workers are gone, deliver what they left behind
	for drained := false; !drained; {
		select {
		case ev := <-f.events:
			f.handle(ctx, ev)
		default:
			drained = true
		}
	}

	snap := f.stats.Snapshot()
	f.recordSession(f.evtypes.sessionEnd, &snap)
	log.Infow("fuzzing session finished", "session", f.session, "execs", snap.Execs,
		"crashes", snap.Crashes, "unique", snap.UniqueCrashes, "err", err)
	return err
}

func (f *Fuzzer) handle(ctx context.Context, ev worker.Event) {
	switch ev := ev.(type) {
	case *worker.NewCrash:
		if !f.registry.Observe(ev.Signature) {
			log.Debugw("crash already reported by another worker", "worker", ev.Worker, "function", ev.Function)
			return
		}
		f.stats.RecordUniqueCrash()
		_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(metrics.Function, ev.Function)}, metrics.UniqueCrashes.M(1))

		log.Warnw("new crash", "worker", ev.Worker, "module", ev.Module, "function", ev.Function,
			"inputs", types.Format(ev.Inputs), "error", ev.Err)

		journal.MaybeRecordEvent(f.journal, f.evtypes.crash, func() interface{} {
			return f.crashRecord(ev)
		})
		if f.onCrash != nil {
			f.onCrash(ev)
		}
	default:
		log.Errorf("unexpected worker event %T", ev)
	}
}

func (f *Fuzzer) crashRecord(ev *worker.NewCrash) *CrashRecord {
	inputs := make([]string, len(ev.Inputs))
	for i, in := range ev.Inputs {
		inputs[i] = in.String()
	}
	return &CrashRecord{
		Version:   build.CrashRecordVersion.String(),
		Session:   f.session.String(),
		Worker:    ev.Worker,
		Module:    ev.Module,
		Function:  ev.Function,
		Inputs:    inputs,
		Error:     crash.Classify(ev.Err),
		Signature: ev.Signature.String(),
	}
}

func (f *Fuzzer) recordSession(et journal.EventType, snap *fstats.Snapshot) {
	journal.MaybeRecordEvent(f.journal, et, func() interface{} {
		rec := &SessionRecord{
			Session: f.session.String(),
			Chain:   f.cfg.Chain.String(),
			Target:  f.cfg.Contract,
			Workers: len(f.workers),
		}
		if snap != nil {
			rec.Execs = snap.Execs
			rec.Crashes = snap.Crashes
			rec.Unique = snap.UniqueCrashes
		}
		return rec
	})
}
