package actors

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kindhearted57/sui-fuzzer/config"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/worker"
	"github.com/Kindhearted57/sui-fuzzer/runner"
	"github.com/Kindhearted57/sui-fuzzer/runner/actorvm"
)

func open(t *testing.T, name string) *actorvm.Runner {
	b, err := runner.Lookup(runner.Actor)
	require.NoError(t, err)
	r, _, err := b.Open(context.Background(), runner.Target{Contract: name})
	require.NoError(t, err)
	require.NoError(t, r.Setup(context.Background()))
	return r.(*actorvm.Runner)
}

func call(t *testing.T, r *actorvm.Runner, fn string, inputs ...types.Value) (*runner.ExecResult, error) {
	params, err := r.FunctionParams("", fn)
	require.NoError(t, err)
	r.SetTargetFunction(&types.Function{Name: fn, Params: params})
	return r.Execute(context.Background(), inputs)
}

func TestRegisteredActors(t *testing.T) {
	names := actorvm.Actors()
	require.Contains(t, names, "vault")
	require.Contains(t, names, "counter")
}

func TestVaultSignatures(t *testing.T) {
	r := open(t, "vault")

	aux, err := r.FunctionsWithPrefix("vault", worker.DefaultFuzzPrefix)
	require.NoError(t, err)
	var names []string
	for _, s := range aux {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"fuzz_configure", "fuzz_init", "fuzz_withdraw"}, names)

	params, err := r.FunctionParams("vault", "fuzz_configure")
	require.NoError(t, err)
	require.True(t, types.EqualAll([]types.Value{
		&types.Struct{Fields: []types.Value{types.U64(0), types.Bool(false)}},
	}, params))
}

func TestVaultWithdrawOverdraft(t *testing.T) {
	r := open(t, "vault")

	_, err := call(t, r, "withdraw", types.U64(1000))
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient funds")

	_, err = call(t, r, "withdraw", types.U64(40))
	require.NoError(t, err)

	// 60 left; the slack lets 65 through and the balance wraps
	_, err = call(t, r, "withdraw", types.U64(65))
	require.EqualError(t, err, "balance grew on withdrawal (exit code 34)")

	// Setup restores the initial credit
	require.NoError(t, r.Setup(context.Background()))
	_, err = call(t, r, "withdraw", types.U64(100))
	require.NoError(t, err)
}

func TestVaultDepositGasAndLimits(t *testing.T) {
	r := open(t, "vault")

	small, err := call(t, r, "deposit", types.U64(10))
	require.NoError(t, err)
	large, err := call(t, r, "deposit", types.U64(100_000))
	require.NoError(t, err)
	require.Greater(t, large.GasUsed, small.GasUsed)

	_, err = call(t, r, "deposit", types.U64(0))
	require.EqualError(t, err, "zero deposit (exit code 32)")

	_, err = call(t, r, "fuzz_configure", &types.Struct{Fields: []types.Value{types.U64(0), types.Bool(true)}})
	require.NoError(t, err)
	_, err = call(t, r, "deposit", types.U64(5))
	require.EqualError(t, err, "vault is paused (exit code 33)")
}

func TestVaultMemoSlotUnchecked(t *testing.T) {
	r := open(t, "vault")

	_, err := call(t, r, "set_memo", types.NewByteVector([]byte{3, 'h', 'i'}))
	require.NoError(t, err)

	_, err = call(t, r, "set_memo", types.NewByteVector([]byte{200}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "index out of range")

	_, err = call(t, r, "set_memo", types.NewByteVector(nil))
	require.Error(t, err)
}

func TestCounter(t *testing.T) {
	r := open(t, "counter")

	_, err := call(t, r, "increment", types.U8(200))
	require.NoError(t, err)
	_, err = call(t, r, "add", types.U32(0xffff))
	require.EqualError(t, err, "counter overflow (exit code 40)")

	_, err = call(t, r, "scale", types.U128{Lo: 0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "divide by zero")

	keep := true
	_, err = call(t, r, "fuzz_reset", &types.Reference{Mutable: true, Inner: types.Bool(keep)})
	require.NoError(t, err)
}

func TestFuzzCounterFindsOverflow(t *testing.T) {
	cfg := config.Default().Fuzzer
	cfg.Chain = runner.Actor
	cfg.Contract = "counter"
	cfg.Module = "counter"
	cfg.TargetFunctions = []string{"add", "get"}
	cfg.Workers = 2

	b, err := runner.Lookup(runner.Actor)
	require.NoError(t, err)

	found := make(chan string, 16)
	f, err := fuzzer.New(context.Background(), cfg, b, fuzzer.WithOnCrash(func(c *worker.NewCrash) {
		select {
		case found <- c.Err.Error():
		default:
		}
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Run(ctx))

	snap := f.Stats()
	require.NotZero(t, snap.Execs)
	require.NotZero(t, snap.UniqueCrashes)
	require.NotZero(t, snap.Gas["get"])

	close(found)
	var overflow bool
	for msg := range found {
		if strings.Contains(msg, "counter overflow") {
			overflow = true
		}
	}
	require.True(t, overflow)
}
