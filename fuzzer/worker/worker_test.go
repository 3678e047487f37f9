package worker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/mutator"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/stats"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

type fakeSigs struct {
	fns map[string][]types.Value
}

func (s *fakeSigs) FunctionParams(module, function string) ([]types.Value, error) {
	p, ok := s.fns[function]
	if !ok {
		return nil, runner.ErrUnknownFunction
	}
	return types.CloneAll(p), nil
}

func (s *fakeSigs) FunctionsWithPrefix(module, prefix string) ([]runner.Signature, error) {
	var out []runner.Signature
	for name, p := range s.fns {
		if strings.HasPrefix(name, prefix) {
			out = append(out, runner.Signature{Name: name, Params: types.CloneAll(p)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func vaultSigs() *fakeSigs {
	return &fakeSigs{fns: map[string][]types.Value{
		"fuzz_init":     nil,
		"fuzz_withdraw": {types.U64(0)},
		"deposit":       {types.U64(0)},
	}}
}

type call struct {
	fn     string
	inputs []types.Value
}

type fakeRunner struct {
	target *types.Function
	calls  []call
	setups int

	// exec decides the outcome of a call
	exec    func(fn string, inputs []types.Value) (*runner.ExecResult, error)
	onSetup func(n int) error
}

func (r *fakeRunner) Execute(_ context.Context, inputs []types.Value) (*runner.ExecResult, error) {
	r.calls = append(r.calls, call{fn: r.target.Name, inputs: types.CloneAll(inputs)})
	if r.exec == nil {
		return &runner.ExecResult{GasUsed: 10}, nil
	}
	return r.exec(r.target.Name, inputs)
}

func (r *fakeRunner) TargetParameters() []types.Value      { return r.target.Params }
func (r *fakeRunner) TargetModule() string                 { return "vault" }
func (r *fakeRunner) TargetFunction() *types.Function      { return r.target }
func (r *fakeRunner) MaxCoverage() uint64                  { return 100 }
func (r *fakeRunner) SetTargetFunction(fn *types.Function) { r.target = fn }

func (r *fakeRunner) Setup(context.Context) error {
	r.setups++
	if r.onSetup != nil {
		return r.onSetup(r.setups)
	}
	return nil
}

// fixedMutator always produces the same inputs.
type fixedMutator struct {
	out []types.Value
	gas []*uint64
}

func (m *fixedMutator) Mutate(inputs []types.Value, _ int) []types.Value {
	return types.CloneAll(m.out)
}

func (m *fixedMutator) GenerateNumber(min, max uint64) uint64 { return min }

func (m *fixedMutator) MutateWithGas(inputs []types.Value, _ int, targetGas *uint64) []types.Value {
	m.gas = append(m.gas, targetGas)
	return types.CloneAll(m.out)
}

func newWorker(t *testing.T, r *fakeRunner, mut mutator.Mutator, events chan Event) *StatefulWorker {
	w, err := New(context.Background(), Config{
		Module:              "vault",
		TargetFunctions:     []string{"deposit"},
		MaxCallSequenceSize: 2,
		Seed:                42,
	}, r, vaultSigs(), mut, stats.New(clock.NewMock()), events)
	require.NoError(t, err)
	return w
}

func names(seq []*types.Function) []string {
	out := make([]string, len(seq))
	for i, f := range seq {
		out[i] = f.Name
	}
	sort.Strings(out)
	return out
}

func TestNewExcludesInitAndRunsSetup(t *testing.T) {
	r := &fakeRunner{}
	w := newWorker(t, r, mutator.NewByteMutator(1, 0, false), nil)

	require.Equal(t, 1, r.setups)
	require.Len(t, w.fuzzFunctions, 1)
	require.Equal(t, "fuzz_withdraw", w.fuzzFunctions[0].Name)
	require.Len(t, w.targetFunctions, 1)
	require.Equal(t, "deposit", w.targetFunctions[0].Name)
}

func TestNewErrors(t *testing.T) {
	mut := mutator.NewByteMutator(1, 0, false)
	st := stats.New(nil)

	_, err := New(context.Background(), Config{Module: "vault", TargetFunctions: []string{"nope"}},
		&fakeRunner{}, vaultSigs(), mut, st, nil)
	require.True(t, errors.Is(err, runner.ErrUnknownFunction))

	_, err = New(context.Background(), Config{Module: "vault", FuzzPrefix: "zzz_"},
		&fakeRunner{}, vaultSigs(), mut, st, nil)
	require.Error(t, err)

	setupErr := errors.New("no state")
	_, err = New(context.Background(), Config{Module: "vault", TargetFunctions: []string{"deposit"}},
		&fakeRunner{onSetup: func(int) error { return setupErr }}, vaultSigs(), mut, st, nil)
	require.True(t, errors.Is(err, setupErr))
}

func TestCallSequenceSizing(t *testing.T) {
	w := newWorker(t, &fakeRunner{}, mutator.NewByteMutator(7, 0, false), nil)
	for size := 0; size < 10; size++ {
		require.Len(t, w.GenerateCallSequence(size), 2+size)
	}

	seq := w.GenerateCallSequence(1)
	require.Len(t, seq, 3)
	require.Subset(t, []string{"deposit", "fuzz_withdraw"}, names(seq))
}

func TestCallSequenceMultiset(t *testing.T) {
	// with every pick at index 0 the multiset is fully determined
	w := newWorker(t, &fakeRunner{}, &fixedMutator{}, nil)
	seq := w.GenerateCallSequence(3)
	require.Equal(t, []string{"deposit", "fuzz_withdraw", "fuzz_withdraw", "fuzz_withdraw", "fuzz_withdraw"}, names(seq))
}

func TestCallSequenceSeedDeterminism(t *testing.T) {
	a := newWorker(t, &fakeRunner{}, mutator.NewByteMutator(99, 0, false), nil)
	b := newWorker(t, &fakeRunner{}, mutator.NewByteMutator(99, 0, false), nil)
	for i := 0; i < 20; i++ {
		require.Equal(t, names(a.GenerateCallSequence(1)), names(b.GenerateCallSequence(1)))
	}
}

func TestSchedulerStreamDiffersFromMutator(t *testing.T) {
	w := newWorker(t, &fakeRunner{}, &fixedMutator{}, nil)
	require.NotEqual(t, mutator.NewRng(42, true).Next(), w.rng.Next())
}

func TestCrashDedup(t *testing.T) {
	r := &fakeRunner{}
	events := make(chan Event, 16)
	mut := &fixedMutator{out: []types.Value{types.U64(7)}}
	w := newWorker(t, r, mut, events)

	overflow := errors.New("overflow")
	r.exec = func(string, []types.Value) (*runner.ExecResult, error) { return nil, overflow }

	ctx := context.Background()
	deposit := w.targetFunctions[0]
	w.call(ctx, deposit)
	w.call(ctx, deposit)

	require.Len(t, events, 1)
	ev := (<-events).(*NewCrash)
	require.Equal(t, "deposit", ev.Function)
	require.True(t, types.EqualAll([]types.Value{types.U64(7)}, ev.Inputs))
	require.EqualError(t, ev.Err, "overflow")

	// a differently shaped input is a new class
	mut.out = []types.Value{types.U64(8)}
	w.call(ctx, deposit)
	require.Len(t, events, 1)

	snap := w.stats.Snapshot()
	require.Equal(t, uint64(3), snap.Crashes)
	require.Equal(t, uint64(3), snap.Execs)
	require.Equal(t, 2, w.Crashes())
}

func TestCallRecordsGasAndBiases(t *testing.T) {
	r := &fakeRunner{}
	mut := &fixedMutator{out: []types.Value{types.U64(1)}}
	w := newWorker(t, r, mut, nil)
	r.exec = func(string, []types.Value) (*runner.ExecResult, error) {
		return &runner.ExecResult{GasUsed: 500}, nil
	}

	deposit := w.targetFunctions[0]
	w.call(context.Background(), deposit)
	w.call(context.Background(), deposit)

	require.Equal(t, uint64(500), w.stats.MaxGas(deposit))
	require.Len(t, mut.gas, 2)
	require.Equal(t, uint64(0), *mut.gas[0])
	require.Equal(t, uint64(500), *mut.gas[1])
	require.Equal(t, "deposit", r.calls[0].fn)
}

func TestCallDoesNotMutateTemplate(t *testing.T) {
	r := &fakeRunner{}
	w := newWorker(t, r, mutator.NewByteMutator(3, 0, false), nil)
	deposit := w.targetFunctions[0]
	for i := 0; i < 50; i++ {
		w.call(context.Background(), deposit)
	}
	require.True(t, types.EqualAll([]types.Value{types.U64(0)}, deposit.Params))
}

func TestRunResetsAfterEachSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeRunner{}
	r.onSetup = func(n int) error {
		if n == 4 {
			cancel()
		}
		return nil
	}
	w := newWorker(t, r, mutator.NewByteMutator(5, 0, false), nil)
	require.NoError(t, w.Run(ctx))

	// one setup at construction plus one per completed sequence
	require.Equal(t, 4, r.setups)
	// each sequence has between 3 and 4 calls
	require.GreaterOrEqual(t, len(r.calls), 9)
	require.LessOrEqual(t, len(r.calls), 12)
	require.Equal(t, uint64(len(r.calls)), w.stats.Snapshot().Execs)
}

func TestRunFailsOnSetupError(t *testing.T) {
	boom := errors.New("boom")
	r := &fakeRunner{}
	r.onSetup = func(n int) error {
		if n > 1 {
			return boom
		}
		return nil
	}
	w := newWorker(t, r, mutator.NewByteMutator(5, 0, false), nil)
	require.True(t, errors.Is(w.Run(context.Background()), boom))
}

func TestRunStopsWhenCancelledWhileEmitting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeRunner{}
	r.exec = func(fn string, _ []types.Value) (*runner.ExecResult, error) {
		cancel()
		return nil, errors.New(fn + " failed")
	}
	// unbuffered and never read
	events := make(chan Event)
	w := newWorker(t, r, &fixedMutator{out: []types.Value{types.U64(1)}}, events)
	require.NoError(t, w.Run(ctx))
}
