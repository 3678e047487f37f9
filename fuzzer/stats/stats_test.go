package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
)

func fn(name string) *types.Function {
	return &types.Function{Name: name, Params: []types.Value{types.U64(0)}}
}

func TestGasMonotonic(t *testing.T) {
	s := New(clock.NewMock())
	deposit := fn("deposit")

	require.Zero(t, s.MaxGas(deposit))

	var want uint64
	for _, g := range []uint64{10, 5, 30, 30, 0, 29, 100, 1} {
		s.UpdateGasUsage(deposit, g)
		if g > want {
			want = g
		}
		require.Equal(t, want, s.MaxGas(deposit))
	}

	// keyed by name, not by template
	require.Equal(t, want, s.MaxGas(&types.Function{Name: "deposit"}))
	require.Zero(t, s.MaxGas(fn("withdraw")))
}

func TestGasZeroIsRecorded(t *testing.T) {
	s := New(clock.NewMock())
	s.UpdateGasUsage(fn("noop"), 0)
	require.Contains(t, s.Snapshot().Gas, "noop")
}

func TestGasKeyMustBeFunction(t *testing.T) {
	s := New(clock.NewMock())
	require.Panics(t, func() { s.UpdateGasUsage(types.U64(1), 1) })
	require.Panics(t, func() { s.MaxGas(types.Bool(true)) })
	require.Panics(t, func() { s.MaxGas(nil) })
}

func TestConcurrentUpdates(t *testing.T) {
	s := New(clock.NewMock())
	f := fn("f")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				s.RecordExec()
				s.RecordCrash()
				s.UpdateGasUsage(f, uint64(w*1000+i))
			}
		}(w)
	}
	wg.Wait()

	snap := s.Snapshot()
	require.EqualValues(t, 8000, snap.Execs)
	require.EqualValues(t, 8000, snap.Crashes)
	require.EqualValues(t, 7999, s.MaxGas(f))
}

func TestThroughputWindow(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)

	for i := 0; i < 10; i++ {
		s.RecordExec()
	}
	require.Zero(t, s.Snapshot().ExecsPerSec, "no full second elapsed yet")

	clk.Add(2 * time.Second)
	s.RecordExec()
	snap := s.Snapshot()
	require.EqualValues(t, 11, snap.Execs)
	require.EqualValues(t, 5, snap.ExecsPerSec)
	require.EqualValues(t, 1, snap.SecsSinceLastCov)
	require.Equal(t, 2*time.Second, snap.TimeRunning)

	// within the same second nothing is recomputed
	s.RecordExec()
	require.EqualValues(t, 5, s.Snapshot().ExecsPerSec)
	require.EqualValues(t, 1, s.Snapshot().SecsSinceLastCov)
}

func TestCoverageResetsStaleness(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	clk.Add(time.Second)
	s.RecordExec()
	require.EqualValues(t, 1, s.Snapshot().SecsSinceLastCov)

	s.UpdateCoverage(10)
	snap := s.Snapshot()
	require.EqualValues(t, 10, snap.CoverageSize)
	require.Zero(t, snap.SecsSinceLastCov)

	s.UpdateCoverage(5)
	require.EqualValues(t, 10, s.Snapshot().CoverageSize)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(clock.NewMock())
	s.UpdateGasUsage(fn("a"), 1)
	snap := s.Snapshot()
	snap.Gas["a"] = 100
	require.EqualValues(t, 1, s.MaxGas(fn("a")))
}
