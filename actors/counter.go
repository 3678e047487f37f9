package actors

import (
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/runner/actorvm"
)

const ErrCounterOverflow exitcode.ExitCode = exitcode.FirstActorSpecificExitCode + 8

// Counter is a 16-bit counter with checked and unchecked operations.
type Counter struct {
	n     uint16
	steps uint64
}

func (c *Counter) Exports() map[string]interface{} {
	return map[string]interface{}{
		"fuzz_reset": c.Reset,
		"increment":  c.Increment,
		"add":        c.Add,
		"scale":      c.Scale,
		"get":        c.Get,
	}
}

func (c *Counter) Increment(rt actorvm.Runtime, by uint8) uint16 {
	rt.ChargeGas("increment", int64(by))
	c.add(rt, uint32(by))
	return c.n
}

func (c *Counter) Add(rt actorvm.Runtime, by uint32) uint16 {
	rt.Charge(rt.Pricelist().OnCompute(int64(by % 1024)))
	c.add(rt, by)
	return c.n
}

func (c *Counter) add(rt actorvm.Runtime, by uint32) {
	next := uint32(c.n) + by
	if next > 0xffff {
		rt.Abortf(ErrCounterOverflow, "counter overflow")
	}
	c.n = uint16(next)
	c.steps++
}

// Scale divides the counter by the low word of factor. A zero divisor is not
// checked.
func (c *Counter) Scale(rt actorvm.Runtime, factor types.U128) uint16 {
	rt.Charge(rt.Pricelist().OnCompute(8))
	c.n = c.n / uint16(factor.Lo)
	return c.n
}

// Reset zeroes the counter; when keep is set its value is preserved and the
// step count is reset instead.
func (c *Counter) Reset(rt actorvm.Runtime, keep *bool) {
	rt.ChargeGas("reset", 10)
	if *keep {
		c.steps = 0
		return
	}
	c.n = 0
}

func (c *Counter) Get(rt actorvm.Runtime) uint16 {
	rt.ChargeGas("get", 1)
	return c.n
}
