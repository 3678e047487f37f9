package runner

import (
	"context"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
)

// Coverage is an execution path signal. Gas-only backends never return one.
type Coverage struct {
	// Edges holds the identifiers of the edges hit by one execution.
	Edges []uint64
}

// ExecResult is what a backend reports for one call.
type ExecResult struct {
	Coverage *Coverage
	GasUsed  uint64
}

// Runner executes calls against one target.
type Runner interface {
	// Execute calls the bound target function with inputs. A failing call
	// returns a non-nil error; the result may still carry coverage.
	Execute(ctx context.Context, inputs []types.Value) (*ExecResult, error)

	// TargetParameters returns the parameter template of the bound function.
	TargetParameters() []types.Value
	TargetModule() string
	TargetFunction() *types.Function
	MaxCoverage() uint64
	SetTargetFunction(fn *types.Function)
}

// StatefulRunner is a Runner whose target keeps state between calls.
type StatefulRunner interface {
	Runner

	// Setup resets or initializes the persistent target state.
	Setup(ctx context.Context) error
}

// Signature is the declared shape of one entry point.
type Signature struct {
	Name    string
	Params  []types.Value
	Returns []types.Value
}

// Function returns the call-site description for s. Return types are left
// out: the scheduler only needs parameter templates.
func (s Signature) Function() *types.Function {
	return &types.Function{Name: s.Name, Params: types.CloneAll(s.Params)}
}

// SignatureSource extracts entry point signatures from a target.
type SignatureSource interface {
	// FunctionParams returns the parameter templates of module::function.
	FunctionParams(module, function string) ([]types.Value, error)

	// FunctionsWithPrefix returns every entry point of module whose name
	// starts with prefix, sorted by name.
	FunctionsWithPrefix(module, prefix string) ([]Signature, error)
}

// ExecError is the single failure shape backends report. The fuzzer does not
// branch on it; the message is what classifies a crash.
type ExecError struct {
	Message string
}

func (e *ExecError) Error() string {
	return e.Message
}

func Errorf(format string, args ...interface{}) error {
	return &ExecError{Message: fmt.Sprintf(format, args...)}
}

var (
	ErrDiscarded = &ExecError{Message: "transaction was discarded"}
	ErrRetry     = &ExecError{Message: "transaction should be retried"}

	// ErrNoTarget is returned by Execute when no function is bound.
	ErrNoTarget = xerrors.New("no target function set")
	// ErrUnknownFunction is returned by signature sources.
	ErrUnknownFunction = xerrors.New("unknown function")
)
