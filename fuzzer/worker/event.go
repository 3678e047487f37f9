package worker

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
)

// Event is a message a worker sends to its coordinator.
type Event interface {
	event()
}

// NewCrash is sent the first time a worker observes a crash class.
type NewCrash struct {
	Worker    int
	Module    string
	Function  string
	Inputs    []types.Value
	Err       error
	Signature cid.Cid
}

func (*NewCrash) event() {}

func (c *NewCrash) String() string {
	return fmt.Sprintf("worker %d: %s(%s): %s", c.Worker, c.Function, types.Format(c.Inputs), c.Err)
}
