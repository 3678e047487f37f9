package fuzzer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/Kindhearted57/sui-fuzzer/config"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/worker"
	"github.com/Kindhearted57/sui-fuzzer/journal"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

// flagRunner fails every call to flag; the mutated bool argument makes two
// crash classes reachable by every worker.
type flagRunner struct {
	target *types.Function
}

func (r *flagRunner) Execute(_ context.Context, inputs []types.Value) (*runner.ExecResult, error) {
	if r.target.Name == "flag" {
		return nil, runner.Errorf("flag raised")
	}
	return &runner.ExecResult{GasUsed: 3}, nil
}

func (r *flagRunner) TargetParameters() []types.Value      { return r.target.Params }
func (r *flagRunner) TargetModule() string                 { return "demo" }
func (r *flagRunner) TargetFunction() *types.Function      { return r.target }
func (r *flagRunner) MaxCoverage() uint64                  { return 100 }
func (r *flagRunner) SetTargetFunction(fn *types.Function) { r.target = fn }
func (r *flagRunner) Setup(context.Context) error          { return nil }

type flagSigs struct{}

func (flagSigs) FunctionParams(_, fn string) ([]types.Value, error) {
	switch fn {
	case "flag":
		return []types.Value{types.Bool(false)}, nil
	case "noop":
		return []types.Value{types.U8(0)}, nil
	}
	return nil, runner.ErrUnknownFunction
}

func (flagSigs) FunctionsWithPrefix(string, string) ([]runner.Signature, error) {
	return nil, nil
}

type flagBackend struct {
	opened int
	fail   error
}

func (b *flagBackend) Open(context.Context, runner.Target) (runner.StatefulRunner, runner.SignatureSource, error) {
	if b.fail != nil {
		return nil, nil, b.fail
	}
	b.opened++
	return &flagRunner{}, flagSigs{}, nil
}

type memJournal struct {
	journal.EventTypeRegistry

	lk      sync.Mutex
	entries map[string][]interface{}
}

func newMemJournal() *memJournal {
	return &memJournal{
		EventTypeRegistry: journal.NewEventTypeRegistry(nil),
		entries:           map[string][]interface{}{},
	}
}

func (j *memJournal) RecordEvent(et journal.EventType, supplier func() interface{}) {
	j.lk.Lock()
	defer j.lk.Unlock()
	j.entries[et.String()] = append(j.entries[et.String()], supplier())
}

func (j *memJournal) Close() error { return nil }

func testConfig(workers int) config.Fuzzer {
	cfg := config.Default().Fuzzer
	cfg.Contract = "demo"
	cfg.Module = "demo"
	cfg.TargetFunctions = []string{"flag", "noop"}
	cfg.Workers = workers
	return cfg
}

func TestGlobalCrashDedup(t *testing.T) {
	var (
		lk   sync.Mutex
		sigs []cid.Cid
	)
	onCrash := func(c *worker.NewCrash) {
		lk.Lock()
		sigs = append(sigs, c.Signature)
		lk.Unlock()
	}

	j := newMemJournal()
	backend := &flagBackend{}
	f, err := New(context.Background(), testConfig(4), backend, WithJournal(j), WithOnCrash(onCrash))
	require.NoError(t, err)
	require.Equal(t, 4, backend.opened)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, f.Run(ctx))

	snap := f.Stats()
	require.NotZero(t, snap.Execs)
	require.NotZero(t, snap.Crashes)

	// flag(false) and flag(true) are the only crash classes
	require.LessOrEqual(t, len(sigs), 2)
	require.NotEmpty(t, sigs)
	seen := map[cid.Cid]bool{}
	for _, s := range sigs {
		require.False(t, seen[s], "crash class reported twice")
		seen[s] = true
	}
	require.Equal(t, uint64(len(sigs)), snap.UniqueCrashes)

	require.Len(t, j.entries["fuzzer:crash"], len(sigs))
	rec := j.entries["fuzzer:crash"][0].(*CrashRecord)
	require.Equal(t, "flag", rec.Function)
	require.Equal(t, "flag raised", rec.Error)
	require.Equal(t, f.Session().String(), rec.Session)

	require.Len(t, j.entries["fuzzer:session_start"], 1)
	end := j.entries["fuzzer:session_end"][0].(*SessionRecord)
	require.Equal(t, 4, end.Workers)
	require.Equal(t, snap.Execs, end.Execs)
}

func TestNewFailsOnBackendError(t *testing.T) {
	boom := errors.New("no artifact")
	_, err := New(context.Background(), testConfig(2), &flagBackend{fail: boom})
	require.True(t, errors.Is(err, boom))
}

func TestNewFailsOnUnknownFunction(t *testing.T) {
	cfg := testConfig(1)
	cfg.TargetFunctions = []string{"missing"}
	_, err := New(context.Background(), cfg, &flagBackend{})
	require.True(t, errors.Is(err, runner.ErrUnknownFunction))
}
