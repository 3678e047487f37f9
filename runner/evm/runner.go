// Package evm runs fuzzing targets compiled for the Ethereum virtual machine
// in an in-memory go-ethereum state.
package evm

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

var log = logging.Logger("evm")

const (
	InitMethod      = "fuzz_init"
	DefaultGasLimit = 30_000_000

	// placeholder; the evm backend reports no coverage
	maxCoverage = 100
)

func init() {
	runner.Register(runner.EVM, &Backend{})
}

// Backend opens runners over compiled artifacts. Target.Contract is the
// artifact path; Target.Module, when set, must match its contract name.
type Backend struct {
	GasLimit uint64
}

var _ runner.Backend = (*Backend)(nil)

func (b *Backend) Open(ctx context.Context, target runner.Target) (runner.StatefulRunner, runner.SignatureSource, error) {
	a, err := LoadArtifact(target.Contract)
	if err != nil {
		return nil, nil, err
	}
	if target.Module != "" && target.Module != a.Name {
		return nil, nil, xerrors.Errorf("artifact %s holds contract %s, not %s", target.Contract, a.Name, target.Module)
	}
	r, err := NewRunner(a, b.GasLimit)
	if err != nil {
		return nil, nil, err
	}
	return r, r, nil
}

// Runner executes calls against one deployed contract. Its state persists
// between calls until the next Setup.
type Runner struct {
	artifact *Artifact
	gasLimit uint64
	sigs     map[string]runner.Signature

	cfg     *runtime.Config
	address common.Address
	target  *types.Function
}

var (
	_ runner.StatefulRunner  = (*Runner)(nil)
	_ runner.SignatureSource = (*Runner)(nil)
)

// NewRunner extracts the signatures of a. Methods whose types have no Value
// counterpart are skipped with a warning.
func NewRunner(a *Artifact, gasLimit uint64) (*Runner, error) {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	sigs, err := signatures(a)
	if err != nil {
		return nil, err
	}
	return &Runner{artifact: a, gasLimit: gasLimit, sigs: sigs}, nil
}

func signatures(a *Artifact) (map[string]runner.Signature, error) {
	sigs := make(map[string]runner.Signature, len(a.ABI.Methods))
	for name, m := range a.ABI.Methods {
		params, err := argumentValues(m.Inputs)
		if err != nil {
			log.Warnw("skipping method", "contract", a.Name, "method", name, "error", err)
			continue
		}
		sig := runner.Signature{Name: name, Params: params}
		if rets, err := argumentValues(m.Outputs); err == nil {
			sig.Returns = rets
		}
		sigs[name] = sig
	}
	if len(sigs) == 0 {
		return nil, xerrors.Errorf("contract %s has no usable methods", a.Name)
	}
	return sigs, nil
}

// Setup deploys the contract on fresh state and calls fuzz_init when the ABI
// has one without arguments.
func (r *Runner) Setup(ctx context.Context) error {
	// a nil State makes runtime.Create start from an empty in-memory database
	r.cfg = &runtime.Config{GasLimit: r.gasLimit}

	_, addr, _, err := runtime.Create(r.artifact.Bytecode, r.cfg)
	if err != nil {
		return xerrors.Errorf("deploying %s: %w", r.artifact.Name, err)
	}
	r.address = addr

	m, ok := r.artifact.ABI.Methods[InitMethod]
	if !ok || len(m.Inputs) != 0 {
		return nil
	}
	ret, _, err := runtime.Call(r.address, m.ID, r.cfg)
	if err != nil {
		return xerrors.Errorf("%s.%s: %s", r.artifact.Name, InitMethod, describe(ret, err))
	}
	log.Debugw("contract deployed", "contract", r.artifact.Name, "address", addr)
	return nil
}

func (r *Runner) Execute(ctx context.Context, inputs []types.Value) (*runner.ExecResult, error) {
	if r.target == nil {
		return nil, runner.ErrNoTarget
	}
	if r.cfg == nil {
		return nil, xerrors.Errorf("contract %s: Setup was not called", r.artifact.Name)
	}
	if _, ok := r.sigs[r.target.Name]; !ok {
		return nil, xerrors.Errorf("%s.%s: %w", r.artifact.Name, r.target.Name, runner.ErrUnknownFunction)
	}

	input, err := pack(&r.artifact.ABI, r.target.Name, inputs)
	if err != nil {
		return nil, runner.Errorf("packing call: %s", err)
	}

	ret, left, err := runtime.Call(r.address, input, r.cfg)
	res := &runner.ExecResult{GasUsed: r.gasLimit - left}
	if err != nil {
		return res, runner.Errorf("%s", describe(ret, err))
	}
	return res, nil
}

// describe renders a failed call, decoding the revert reason when there is
// one.
func describe(ret []byte, err error) string {
	if !errors.Is(err, vm.ErrExecutionReverted) {
		return err.Error()
	}
	if reason, uerr := abi.UnpackRevert(ret); uerr == nil {
		return err.Error() + ": " + reason
	}
	return err.Error()
}

func (r *Runner) TargetParameters() []types.Value {
	if r.target == nil {
		return nil
	}
	return r.target.Params
}

func (r *Runner) TargetModule() string {
	return r.artifact.Name
}

func (r *Runner) TargetFunction() *types.Function {
	return r.target
}

func (r *Runner) MaxCoverage() uint64 {
	return maxCoverage
}

func (r *Runner) SetTargetFunction(fn *types.Function) {
	r.target = fn
}

func (r *Runner) FunctionParams(module, function string) ([]types.Value, error) {
	if err := r.checkModule(module); err != nil {
		return nil, err
	}
	sig, ok := r.sigs[function]
	if !ok {
		return nil, xerrors.Errorf("%s.%s: %w", r.artifact.Name, function, runner.ErrUnknownFunction)
	}
	return types.CloneAll(sig.Params), nil
}

func (r *Runner) FunctionsWithPrefix(module, prefix string) ([]runner.Signature, error) {
	if err := r.checkModule(module); err != nil {
		return nil, err
	}
	var out []runner.Signature
	for name, sig := range r.sigs {
		if strings.HasPrefix(name, prefix) {
			out = append(out, runner.Signature{
				Name:    sig.Name,
				Params:  types.CloneAll(sig.Params),
				Returns: types.CloneAll(sig.Returns),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Runner) checkModule(module string) error {
	if module != "" && module != r.artifact.Name {
		return xerrors.Errorf("contract %s has no module %s", r.artifact.Name, module)
	}
	return nil
}
