package worker

import (
	"context"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/crash"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/mutator"
	fstats "github.com/Kindhearted57/sui-fuzzer/fuzzer/stats"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/metrics"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

var log = logging.Logger("worker")

const (
	// InitFunction initializes target state. It is called by the backends on
	// setup and never scheduled.
	InitFunction = "fuzz_init"

	DefaultFuzzPrefix          = "fuzz_"
	DefaultIntensity           = 4
	DefaultMaxCallSequenceSize = 5
)

type Config struct {
	// ID distinguishes the worker in events, logs and metrics.
	ID int

	Module          string
	TargetFunctions []string
	// FuzzPrefix selects the auxiliary entry points mixed into every call
	// sequence.
	FuzzPrefix string

	MaxCallSequenceSize int
	Intensity           int

	// Seed drives the sequence length draws and the shuffle.
	Seed uint64
}

func (c *Config) setDefaults() {
	if c.FuzzPrefix == "" {
		c.FuzzPrefix = DefaultFuzzPrefix
	}
	if c.MaxCallSequenceSize <= 0 {
		c.MaxCallSequenceSize = DefaultMaxCallSequenceSize
	}
	if c.Intensity <= 0 {
		c.Intensity = DefaultIntensity
	}
}

// StatefulWorker drives one stateful target through randomized call
// sequences. It owns its runner, mutator and crash set; only the Stats are
// shared with other workers.
type StatefulWorker struct {
	cfg Config

	runner  runner.StatefulRunner
	mutator mutator.Mutator
	stats   *fstats.Stats
	events  chan<- Event

	rng     *mutator.Rng
	crashes *crash.Set

	fuzzFunctions   []*types.Function
	targetFunctions []*types.Function
}

// New resolves the entry points the worker schedules and initializes the
// target state once. events may be nil, in which case new crashes are only
// logged.
func New(ctx context.Context, cfg Config, r runner.StatefulRunner, sigs runner.SignatureSource, mut mutator.Mutator, st *fstats.Stats, events chan<- Event) (*StatefulWorker, error) {
	cfg.setDefaults()

	w := &StatefulWorker{
		cfg:     cfg,
		runner:  r,
		mutator: mut,
		stats:   st,
		events:  events,
		rng:     mutator.NewRng(mutator.DeriveSeed(cfg.Seed), true),
		crashes: crash.NewSet(),
	}

	for _, name := range cfg.TargetFunctions {
		params, err := sigs.FunctionParams(cfg.Module, name)
		if err != nil {
			return nil, xerrors.Errorf("resolving target function %s::%s: %w", cfg.Module, name, err)
		}
		w.targetFunctions = append(w.targetFunctions, &types.Function{Name: name, Params: params})
	}

	aux, err := sigs.FunctionsWithPrefix(cfg.Module, cfg.FuzzPrefix)
	if err != nil {
		return nil, xerrors.Errorf("resolving %s* functions of %s: %w", cfg.FuzzPrefix, cfg.Module, err)
	}
	for _, sig := range aux {
		if sig.Name == InitFunction {
			continue
		}
		w.fuzzFunctions = append(w.fuzzFunctions, sig.Function())
	}

	if len(w.fuzzFunctions)+len(w.targetFunctions) == 0 {
		return nil, xerrors.Errorf("module %s: no functions to fuzz", cfg.Module)
	}

	if err := r.Setup(ctx); err != nil {
		return nil, xerrors.Errorf("initial target setup: %w", err)
	}

	log.Infow("worker ready", "worker", cfg.ID, "module", cfg.Module,
		"targets", len(w.targetFunctions), "aux", len(w.fuzzFunctions))
	return w, nil
}

// GenerateCallSequence builds the pool of auxiliary functions followed by
// target functions, appends size picks drawn over the growing pool and
// shuffles the result.
func (w *StatefulWorker) GenerateCallSequence(size int) []*types.Function {
	seq := make([]*types.Function, 0, len(w.fuzzFunctions)+len(w.targetFunctions)+size)
	seq = append(seq, w.fuzzFunctions...)
	seq = append(seq, w.targetFunctions...)
	for i := 0; i < size; i++ {
		n := w.mutator.GenerateNumber(0, uint64(len(seq)-1))
		seq = append(seq, seq[n])
	}
	w.rng.Shuffle(len(seq), func(i, j int) {
		seq[i], seq[j] = seq[j], seq[i]
	})
	return seq
}

// Run fuzzes until ctx is cancelled or a target reset fails. Cancellation is
// only observed between call sequences.
func (w *StatefulWorker) Run(ctx context.Context) error {
	ctx = metrics.WithTags(ctx,
		tag.Upsert(metrics.Worker, strconv.Itoa(w.cfg.ID)),
		tag.Upsert(metrics.Module, w.cfg.Module),
	)

	for {
		if ctx.Err() != nil {
			log.Debugw("worker stopping", "worker", w.cfg.ID)
			return nil
		}

		n := int(w.rng.Rand(1, uint64(w.cfg.MaxCallSequenceSize)))
		seq := w.GenerateCallSequence(n)
		stats.Record(ctx, metrics.SequenceLength.M(int64(len(seq))))

		for _, fn := range seq {
			w.call(ctx, fn)
		}

		done := metrics.Timer(ctx, metrics.SetupDuration)
		err := w.runner.Setup(ctx)
		done()
		if err != nil {
			return xerrors.Errorf("worker %d: resetting target state: %w", w.cfg.ID, err)
		}
	}
}

func (w *StatefulWorker) call(ctx context.Context, fn *types.Function) {
	w.runner.SetTargetFunction(fn)

	inputs := types.CloneAll(fn.Params)
	maxGas := w.stats.MaxGas(fn)
	inputs = w.mutator.MutateWithGas(inputs, w.cfg.Intensity, &maxGas)

	fctx := metrics.WithTags(ctx, tag.Upsert(metrics.Function, fn.Name))
	start := time.Now()
	res, err := w.runner.Execute(fctx, inputs)
	stats.Record(fctx, metrics.ExecutionDuration.M(metrics.SinceInMilliseconds(start)))
	w.stats.RecordExec()

	if err == nil {
		var gas uint64
		if res != nil {
			gas = res.GasUsed
		}
		w.stats.UpdateGasUsage(fn, gas)
		_ = stats.RecordWithTags(fctx, []tag.Mutator{tag.Upsert(metrics.Outcome, "ok")},
			metrics.Executions.M(1), metrics.GasUsed.M(int64(gas)))
		return
	}

	w.stats.RecordCrash()
	_ = stats.RecordWithTags(fctx, []tag.Mutator{tag.Upsert(metrics.Outcome, "crash")},
		metrics.Executions.M(1), metrics.Crashes.M(1))

	target := w.runner.TargetFunction()
	c := crash.New(w.runner.TargetModule(), target.Name, inputs, err)
	if !w.crashes.Add(c) {
		return
	}
	stats.Record(fctx, metrics.WorkerCrashClasses.M(1))

	ev := &NewCrash{
		Worker:    w.cfg.ID,
		Module:    c.Module,
		Function:  c.Function,
		Inputs:    c.Inputs,
		Err:       err,
		Signature: c.Signature(),
	}
	log.Debugw("new crash", "worker", w.cfg.ID, "function", c.Function, "inputs", types.Format(c.Inputs), "error", err)
	if w.events == nil {
		return
	}
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

// Crashes returns how many distinct crash classes this worker has seen.
func (w *StatefulWorker) Crashes() int {
	return w.crashes.Len()
}
