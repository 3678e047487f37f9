package metrics

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var log = logging.Logger("metrics")

// Distributions
var defaultMillisecondsDistribution = view.Distribution(
	0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, // fast native calls
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
	150, 200, 250, 300, 400, 500, 750, 1000,
	2000, 5000, 10000, 30000, 60000,
)

// gas used per call, from trivial getters to heavy loops
var gasDistribution = view.Distribution(
	1, 10, 100, 500,
	1e3, 5e3, 10e3, 50e3, 100e3, 500e3,
	1e6, 5e6, 10e6, 50e6, 100e6, 1e9,
)

var sequenceLengthDistribution = view.Distribution(1, 2, 3, 4, 5, 6, 8, 10, 12, 16, 20, 25, 32, 48, 64, 100, 128, 256)

// Tags
var (
	Version, _ = tag.NewKey("version")
	Commit, _  = tag.NewKey("commit")
	Session, _ = tag.NewKey("session")
	Chain, _   = tag.NewKey("chain")

	Worker, _   = tag.NewKey("worker")
	Module, _   = tag.NewKey("module")
	Function, _ = tag.NewKey("function")
	Outcome, _  = tag.NewKey("outcome") // "ok" or "crash"
)

// Measures
var (
	FuzzerInfo = stats.Int64("info", "Arbitrary counter to tag fuzzer info to", stats.UnitDimensionless)

	Executions         = stats.Int64("fuzz/executions", "Counter for target calls", stats.UnitDimensionless)
	ExecutionDuration  = stats.Float64("fuzz/execution_ms", "Duration of one target call", stats.UnitMilliseconds)
	GasUsed            = stats.Int64("fuzz/gas_used", "Gas used by successful target calls", stats.UnitDimensionless)
	Crashes            = stats.Int64("fuzz/crashes", "Counter for failing target calls", stats.UnitDimensionless)
	WorkerCrashClasses = stats.Int64("fuzz/worker_crash_classes", "Counter for crash classes first seen by a worker", stats.UnitDimensionless)
	UniqueCrashes      = stats.Int64("fuzz/unique_crashes", "Counter for crash classes first seen across all workers", stats.UnitDimensionless)
	SequenceLength     = stats.Int64("fuzz/sequence_length", "Number of calls in one executed call sequence", stats.UnitDimensionless)
	SetupDuration      = stats.Float64("fuzz/setup_ms", "Duration of target state resets", stats.UnitMilliseconds)
	ExecsPerSecond     = stats.Int64("fuzz/execs_per_sec", "Session throughput", stats.UnitDimensionless)
)

var (
	InfoView = &view.View{
		Name:        "info",
		Description: "Fuzzer information",
		Measure:     FuzzerInfo,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Commit, Session, Chain},
	}
	ExecutionsView = &view.View{
		Measure:     Executions,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Worker, Outcome},
	}
	ExecutionDurationView = &view.View{
		Measure:     ExecutionDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Function},
	}
	GasUsedView = &view.View{
		Measure:     GasUsed,
		Aggregation: gasDistribution,
		TagKeys:     []tag.Key{Module, Function},
	}
	CrashesView = &view.View{
		Measure:     Crashes,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Module, Function},
	}
	WorkerCrashClassesView = &view.View{
		Measure:     WorkerCrashClasses,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Worker},
	}
	UniqueCrashesView = &view.View{
		Measure:     UniqueCrashes,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Function},
	}
	SequenceLengthView = &view.View{
		Measure:     SequenceLength,
		Aggregation: sequenceLengthDistribution,
	}
	SetupDurationView = &view.View{
		Measure:     SetupDuration,
		Aggregation: defaultMillisecondsDistribution,
	}
	ExecsPerSecondView = &view.View{
		Measure:     ExecsPerSecond,
		Aggregation: view.LastValue(),
	}
)

var views = []*view.View{
	InfoView,
	ExecutionsView,
	ExecutionDurationView,
	GasUsedView,
	CrashesView,
	WorkerCrashClassesView,
	UniqueCrashesView,
	SequenceLengthView,
	SetupDurationView,
	ExecsPerSecondView,
}

// DefaultViews is an array of OpenCensus views for metric gathering purposes
var DefaultViews = func() []*view.View {
	return views
}()

// RegisterViews adds views to the default list without modifying this file.
func RegisterViews(v ...*view.View) {
	views = append(views, v...)
	DefaultViews = views
}

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Microseconds()) / 1000
}

// Timer is a function stopwatch, calling it starts the timer,
// calling the returned function will record the duration.
func Timer(ctx context.Context, m *stats.Float64Measure) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
		return time.Since(start)
	}
}

// WithTags returns ctx with the given tags upserted. A tag that cannot be
// applied is logged and dropped.
func WithTags(ctx context.Context, mutators ...tag.Mutator) context.Context {
	tctx, err := tag.New(ctx, mutators...)
	if err != nil {
		log.Warnf("applying metric tags: %s", err)
		return ctx
	}
	return tctx
}
