package actorvm

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

var log = logging.Logger("actorvm")

// InitMethod is invoked on every freshly constructed actor, if exported.
const InitMethod = "fuzz_init"

// DefaultGasLimit bounds the gas of a single invocation.
const DefaultGasLimit = 10_000_000

// placeholder; the actor VM reports no coverage
const maxCoverage = 100

// Factory constructs an actor with fresh state.
type Factory func() Invokee

var (
	actorsLk sync.RWMutex
	actors   = map[string]Factory{}
)

// RegisterActor makes an actor available as a fuzzing target under name.
func RegisterActor(name string, f Factory) {
	actorsLk.Lock()
	defer actorsLk.Unlock()
	if _, dup := actors[name]; dup {
		panic("actorvm: actor registered twice: " + name)
	}
	actors[name] = f
}

// Actors lists the registered actor names.
func Actors() []string {
	actorsLk.RLock()
	defer actorsLk.RUnlock()
	out := make([]string, 0, len(actors))
	for name := range actors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func lookupActor(name string) (Factory, bool) {
	actorsLk.RLock()
	defer actorsLk.RUnlock()
	f, ok := actors[name]
	return f, ok
}

func init() {
	runner.Register(runner.Actor, &Backend{})
}

// Backend opens runners over registered native actors. Target.Contract names
// the actor; Target.Module, when set, must name it too.
type Backend struct {
	GasLimit  int64
	Pricelist Pricelist
}

var _ runner.Backend = (*Backend)(nil)

func (b *Backend) Open(ctx context.Context, target runner.Target) (runner.StatefulRunner, runner.SignatureSource, error) {
	factory, ok := lookupActor(target.Contract)
	if !ok {
		return nil, nil, xerrors.Errorf("unknown actor %q (known: %v)", target.Contract, Actors())
	}
	if target.Module != "" && target.Module != target.Contract {
		return nil, nil, xerrors.Errorf("actor %s has no module %s", target.Contract, target.Module)
	}
	r, err := NewRunner(target.Contract, factory, b.GasLimit, b.Pricelist)
	if err != nil {
		return nil, nil, err
	}
	return r, r, nil
}

// Runner executes calls against one actor instance. It implements both
// runner.StatefulRunner and runner.SignatureSource.
type Runner struct {
	name      string
	factory   Factory
	gasLimit  int64
	pricelist Pricelist

	sigs map[string]runner.Signature

	// code is bound to the current actor instance
	code   nativeCode
	target *types.Function
}

var (
	_ runner.StatefulRunner  = (*Runner)(nil)
	_ runner.SignatureSource = (*Runner)(nil)
)

func NewRunner(name string, factory Factory, gasLimit int64, pl Pricelist) (*Runner, error) {
	if gasLimit <= 0 {
		gasLimit = DefaultGasLimit
	}
	if pl == nil {
		pl = DefaultPricelist
	}

	code, err := transform(factory())
	if err != nil {
		return nil, err
	}
	sigs := make(map[string]runner.Signature, len(code))
	for mname, m := range code {
		sig, err := m.signature()
		if err != nil {
			return nil, xerrors.Errorf("%s.%s: %w", name, mname, err)
		}
		sigs[mname] = sig
	}

	return &Runner{
		name:      name,
		factory:   factory,
		gasLimit:  gasLimit,
		pricelist: pl,
		sigs:      sigs,
	}, nil
}

// Setup replaces the actor with a fresh instance and runs its initializer.
func (r *Runner) Setup(ctx context.Context) error {
	code, err := transform(r.factory())
	if err != nil {
		return err
	}
	r.code = code

	initMethod, ok := code[InitMethod]
	if !ok {
		return nil
	}
	rt := newRuntime(ctx, r.gasLimit, r.pricelist)
	if aerr := initMethod.invoke(rt, nil); aerr != nil {
		return xerrors.Errorf("%s.%s: %w", r.name, InitMethod, aerr)
	}
	log.Debugw("actor initialized", "actor", r.name, "gas", rt.GasUsed())
	return nil
}

func (r *Runner) Execute(ctx context.Context, inputs []types.Value) (*runner.ExecResult, error) {
	if r.target == nil {
		return nil, runner.ErrNoTarget
	}
	if r.code == nil {
		return nil, xerrors.Errorf("actor %s: Setup was not called", r.name)
	}
	m, ok := r.code[r.target.Name]
	if !ok {
		return nil, xerrors.Errorf("%s.%s: %w", r.name, r.target.Name, runner.ErrUnknownFunction)
	}

	rt := newRuntime(ctx, r.gasLimit, r.pricelist)

	var buf bytes.Buffer
	types.EncodeAll(&buf, inputs)
	aerr := rt.shimCall(func() error {
		rt.Charge(r.pricelist.OnMethodInvocation(buf.Len()))
		return nil
	})
	if aerr == nil {
		aerr = m.invoke(rt, inputs)
	}

	res := &runner.ExecResult{GasUsed: uint64(rt.GasUsed())}
	if aerr != nil {
		return res, runner.Errorf("%s (exit code %d)", Message(aerr), aerr.RetCode())
	}
	return res, nil
}

func (r *Runner) TargetParameters() []types.Value {
	if r.target == nil {
		return nil
	}
	return r.target.Params
}

func (r *Runner) TargetModule() string {
	return r.name
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
		return nil, xerrors.Errorf("%s.%s: %w", r.name, function, runner.ErrUnknownFunction)
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

// Signatures returns every exported method, sorted by name.
func (r *Runner) Signatures() []runner.Signature {
	out, _ := r.FunctionsWithPrefix("", "")
	return out
}

func (r *Runner) checkModule(module string) error {
	if module != "" && module != r.name {
		return xerrors.Errorf("actor %s has no module %s", r.name, module)
	}
	return nil
}
