package evm

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/config"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/fuzzer/worker"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

const testABI = `[
	{"type":"function","name":"check","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"x","type":"uint8"}]},
	{"type":"function","name":"fuzz_init","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"mixed","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"a","type":"uint24"},
		{"name":"b","type":"uint256"},
		{"name":"c","type":"bool"},
		{"name":"d","type":"address"},
		{"name":"e","type":"bytes"},
		{"name":"f","type":"uint8[]"},
		{"name":"g","type":"tuple","components":[{"name":"lo","type":"uint16"},{"name":"hi","type":"uint96"}]}
	 ],
	 "outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"named","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"s","type":"string"}]}
]`

// bytecode deploys runtime code that reverts with Error("boom") when the
// first argument word is 42 and stops otherwise.
func bytecode() string {
	runtime := "600435602a14600a57005b" + // if calldataload(4) == 42 jump
		"6064601760003960646000fd" + // revert with the 100 bytes below
		"08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"0000000000000000000000000000000000000000000000000000000000000004" +
		"626f6f6d00000000000000000000000000000000000000000000000000000000"
	return "0x607b80600b6000396000f3" + runtime
}

func testArtifactJSON(name string) string {
	return `{"contractName":"` + name + `","abi":` + testABI + `,"bytecode":"` + bytecode() + `"}`
}

func testArtifact(t *testing.T) *Artifact {
	a, err := ReadArtifact(strings.NewReader(testArtifactJSON("Gate")))
	require.NoError(t, err)
	return a
}

func TestReadArtifact(t *testing.T) {
	a := testArtifact(t)
	require.Equal(t, "Gate", a.Name)
	require.Len(t, a.Bytecode, 11+123)
	require.Contains(t, a.ABI.Methods, "mixed")

	for name, doc := range map[string]string{
		"not json":    `{`,
		"no name":     `{"abi":[],"bytecode":"0x00"}`,
		"no abi":      `{"contractName":"X","bytecode":"0x00"}`,
		"bad hex":     `{"contractName":"X","abi":[],"bytecode":"0xzz"}`,
		"no bytecode": `{"contractName":"X","abi":[],"bytecode":""}`,
	} {
		_, err := ReadArtifact(strings.NewReader(doc))
		require.Error(t, err, name)
	}
}

func TestABIMapping(t *testing.T) {
	r, err := NewRunner(testArtifact(t), 0)
	require.NoError(t, err)

	params, err := r.FunctionParams("Gate", "mixed")
	require.NoError(t, err)
	expected := []types.Value{
		types.U32(0), types.U128{}, types.Bool(false), types.Address{},
		types.NewByteVector(nil), types.NewByteVector(nil),
		&types.Struct{Fields: []types.Value{types.U16(0), types.U128{}}},
	}
	require.True(t, types.EqualAll(expected, params), types.Format(params))

	sigs, err := r.FunctionsWithPrefix("", "")
	require.NoError(t, err)
	var names []string
	for _, s := range sigs {
		names = append(names, s.Name)
	}
	// string has no value counterpart
	require.Equal(t, []string{"check", "fuzz_init", "mixed"}, names)
	require.True(t, types.EqualAll([]types.Value{types.U64(0)}, sigs[2].Returns))

	_, err = r.FunctionParams("", "named")
	require.True(t, xerrors.Is(err, runner.ErrUnknownFunction))
	_, err = r.FunctionParams("Other", "check")
	require.Error(t, err)
}

func TestPackRoundTrip(t *testing.T) {
	a := testArtifact(t)

	var addr types.Address
	for i := range addr {
		addr[i] = byte(i)
	}
	inputs := []types.Value{
		types.U32(0x01000005),
		types.U128{Hi: 1, Lo: 2},
		types.Bool(true),
		addr,
		types.NewByteVector([]byte("abc")),
		types.NewByteVector([]byte{1, 2}),
		&types.Struct{Fields: []types.Value{types.U16(7), types.U128{Hi: 1 << 40, Lo: 9}}},
	}
	data, err := pack(&a.ABI, "mixed", inputs)
	require.NoError(t, err)

	m := a.ABI.Methods["mixed"]
	require.Equal(t, m.ID, data[:4])
	out, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)

	// uint24 keeps the low 24 bits
	require.Equal(t, 0, big.NewInt(5).Cmp(out[0].(*big.Int)))
	want := new(big.Int).Lsh(big.NewInt(1), 64)
	want.Add(want, big.NewInt(2))
	require.Equal(t, 0, want.Cmp(out[1].(*big.Int)))
	require.Equal(t, true, out[2])
	require.Equal(t, common.BytesToAddress(addr[:]), out[3])
	require.Equal(t, []byte("abc"), out[4])
	require.Equal(t, []uint8{1, 2}, out[5])

	tuple := reflect.ValueOf(out[6])
	require.Equal(t, uint64(7), tuple.Field(0).Uint())
	// uint96 drops the top bits of the high word
	hi := tuple.Field(1).Interface().(*big.Int)
	require.Equal(t, 0, big.NewInt(9).Cmp(hi))

	_, err = pack(&a.ABI, "check", []types.Value{types.Bool(true)})
	require.Error(t, err)
	// a wider integer kind is rejected rather than truncated
	_, err = pack(&a.ABI, "check", []types.Value{types.U16(1)})
	require.ErrorContains(t, err, "cannot pack")
	_, err = pack(&a.ABI, "mixed", append([]types.Value{types.U64(5)}, inputs[1:]...))
	require.ErrorContains(t, err, "cannot pack")
	_, err = pack(&a.ABI, "check", nil)
	require.Error(t, err)
	_, err = pack(&a.ABI, "missing", nil)
	require.Error(t, err)
}

func writeArtifact(t *testing.T) string {
	p := filepath.Join(t.TempDir(), "Gate.json")
	require.NoError(t, os.WriteFile(p, []byte(testArtifactJSON("Gate")), 0644))
	return p
}

func TestExecute(t *testing.T) {
	b, err := runner.Lookup(runner.EVM)
	require.NoError(t, err)

	path := writeArtifact(t)
	_, _, err = b.Open(context.Background(), runner.Target{Contract: path, Module: "Other"})
	require.Error(t, err)
	_, _, err = b.Open(context.Background(), runner.Target{Contract: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)

	sr, sigs, err := b.Open(context.Background(), runner.Target{Contract: path, Module: "Gate"})
	require.NoError(t, err)
	require.Equal(t, "Gate", sr.TargetModule())

	_, err = sr.Execute(context.Background(), nil)
	require.Equal(t, runner.ErrNoTarget, err)

	params, err := sigs.FunctionParams("Gate", "check")
	require.NoError(t, err)
	sr.SetTargetFunction(&types.Function{Name: "check", Params: params})

	_, err = sr.Execute(context.Background(), []types.Value{types.U8(1)})
	require.Error(t, err, "Setup was not called")

	require.NoError(t, sr.Setup(context.Background()))

	ok, err := sr.Execute(context.Background(), []types.Value{types.U8(1)})
	require.NoError(t, err)
	require.NotZero(t, ok.GasUsed)

	res, err := sr.Execute(context.Background(), []types.Value{types.U8(42)})
	require.EqualError(t, err, "execution reverted: boom")
	require.Greater(t, res.GasUsed, ok.GasUsed)

	var ee *runner.ExecError
	require.True(t, xerrors.As(err, &ee))

	_, err = sr.Execute(context.Background(), []types.Value{types.U16(1)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "packing call")
}

func TestFuzzFindsRevert(t *testing.T) {
	cfg := config.Default().Fuzzer
	cfg.Chain = runner.EVM
	cfg.Contract = writeArtifact(t)
	cfg.Module = "Gate"
	cfg.TargetFunctions = []string{"check"}

	b, err := runner.Lookup(runner.EVM)
	require.NoError(t, err)

	var reasons []string
	f, err := fuzzer.New(context.Background(), cfg, b, fuzzer.WithOnCrash(func(c *worker.NewCrash) {
		reasons = append(reasons, c.Err.Error())
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.Run(ctx))

	require.Equal(t, []string{"execution reverted: boom"}, reasons)
	require.NotZero(t, f.Stats().Gas["check"])
}
