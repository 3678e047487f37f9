package crash

import (
	"bytes"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-varint"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
)

// Crash is a failing call together with everything needed to report it.
type Crash struct {
	Module   string
	Function string
	Inputs   []types.Value
	Err      error
}

func New(module, function string, inputs []types.Value, err error) *Crash {
	return &Crash{
		Module:   module,
		Function: function,
		Inputs:   types.CloneAll(inputs),
		Err:      err,
	}
}

// Class is the error classification used in the signature.
func (c *Crash) Class() string {
	return Classify(c.Err)
}

// Classify returns the part of an error that identifies a crash class.
// Backends surface open-ended errors, so the whole message is used.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Signature fingerprints the crash. Two crashes share a signature iff they
// have the same module, function, structurally equal inputs and error
// classification.
func (c *Crash) Signature() cid.Cid {
	return Signature(c.Module, c.Function, c.Inputs, c.Class())
}

func Signature(module, function string, inputs []types.Value, class string) cid.Cid {
	var buf bytes.Buffer
	for _, s := range []string{module, function} {
		buf.Write(varint.ToUvarint(uint64(len(s))))
		buf.WriteString(s)
	}
	types.EncodeAll(&buf, inputs)
	buf.Write(varint.ToUvarint(uint64(len(class))))
	buf.WriteString(class)

	c, err := types.HashPrefix.Sum(buf.Bytes())
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Crash) String() string {
	return c.Module + "::" + c.Function + types.Format(c.Inputs) + ": " + c.Class()
}
