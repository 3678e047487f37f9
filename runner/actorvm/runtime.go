package actorvm

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
)

// Runtime is what an actor method sees of the VM during one invocation.
type Runtime interface {
	Context() context.Context

	// Caller is the address the invocation is sent from.
	Caller() types.Address

	// ChargeGas charges compute gas for custom work. Exceeding the gas
	// limit aborts the invocation with SysErrOutOfGas.
	ChargeGas(name string, compute int64)
	Pricelist() Pricelist
	Charge(gas GasCharge)
	GasUsed() int64

	// Abortf aborts the invocation with code. It does not return.
	Abortf(code exitcode.ExitCode, msg string, args ...interface{})
}

// FuzzerAddress is the caller of every invocation.
var FuzzerAddress = types.Address{31: 0xf0}

type runtime struct {
	ctx    context.Context
	caller types.Address

	pricelist    Pricelist
	gasAvailable int64
	gasUsed      int64
}

var _ Runtime = (*runtime)(nil)

func newRuntime(ctx context.Context, gasLimit int64, pl Pricelist) *runtime {
	return &runtime{
		ctx:          ctx,
		caller:       FuzzerAddress,
		pricelist:    pl,
		gasAvailable: gasLimit,
	}
}

func (rt *runtime) Context() context.Context {
	return rt.ctx
}

func (rt *runtime) Caller() types.Address {
	return rt.caller
}

func (rt *runtime) Pricelist() Pricelist {
	return rt.pricelist
}

func (rt *runtime) GasUsed() int64 {
	return rt.gasUsed
}

func (rt *runtime) ChargeGas(name string, compute int64) {
	rt.Charge(newGasCharge(name, compute, 0))
}

func (rt *runtime) Charge(gas GasCharge) {
	if err := rt.chargeGasInternal(gas, 1); err != nil {
		panic(err)
	}
}

func (rt *runtime) chargeGasInternal(gas GasCharge, skip int) ActorError {
	toUse := gas.Total()
	if toUse < 0 {
		return newfSkip(skip+1, exitcode.SysErrorIllegalArgument, "negative gas charge %s: %d", gas.Name, toUse)
	}

	// overflow safe
	if rt.gasUsed > rt.gasAvailable-toUse {
		rt.gasUsed = rt.gasAvailable
		return newfSkip(skip+1, exitcode.SysErrOutOfGas, "not enough gas: available=%d, charging %s", rt.gasAvailable, gas.Name)
	}
	rt.gasUsed += toUse
	return nil
}

func (rt *runtime) Abortf(code exitcode.ExitCode, msg string, args ...interface{}) {
	log.Debugf("Abortf: %s", fmt.Sprintf(msg, args...))
	panic(newfSkip(2, code, msg, args...))
}

// shimCall runs f, turning actor aborts into their ActorError and any other
// panic into SysErrIllegalInstruction.
func (rt *runtime) shimCall(f func() error) (aerr ActorError) {
	defer func() {
		if r := recover(); r != nil {
			if ar, ok := r.(ActorError); ok {
				aerr = ar
				return
			}
			log.Debugf("actor failure: %s", r)
			aerr = Newf(exitcode.SysErrIllegalInstruction, "actor failure: %s", r)
		}
	}()

	if err := f(); err != nil {
		return Absorb(err, exitcode.ErrIllegalState, "actor returned error")
	}
	return nil
}
