package mutator

import (
	"encoding/binary"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
)

var log = logging.Logger("mutator")

// narrowU64Modulus bounds mutated u64 arguments; most targets treat them as
// amounts, and small amounts keep call sequences from failing on balance
// checks immediately.
const narrowU64Modulus = 1000

// DefaultMaxInputSize bounds the length of mutated byte vectors.
const DefaultMaxInputSize = 1024

// ByteMutator serializes each value to a fixed-width byte buffer, runs the
// havoc pass over it and reads the buffer back as the original kind.
//
// A ByteMutator is owned by a single worker and is not safe for concurrent use.
type ByteMutator struct {
	rng   *Rng
	havoc havoc
}

var _ Mutator = (*ByteMutator)(nil)

// NewByteMutator returns a mutator seeded with seed. When boundaryBias is
// false GenerateNumber is uniform.
func NewByteMutator(seed uint64, maxInputSize int, boundaryBias bool) *ByteMutator {
	if maxInputSize <= 0 {
		maxInputSize = DefaultMaxInputSize
	}
	rng := NewRng(seed, !boundaryBias)
	return &ByteMutator{
		rng:   rng,
		havoc: havoc{rng: rng, maxSize: maxInputSize},
	}
}

func (m *ByteMutator) Mutate(inputs []types.Value, intensity int) []types.Value {
	return m.MutateWithGas(inputs, intensity, nil)
}

func (m *ByteMutator) GenerateNumber(min, max uint64) uint64 {
	if min > max {
		panic(fmt.Sprintf("GenerateNumber: min %d > max %d", min, max))
	}
	return m.rng.RandExp(min, max)
}

func (m *ByteMutator) MutateWithGas(inputs []types.Value, intensity int, targetGas *uint64) []types.Value {
	rounds := EffectiveIntensity(intensity, GasBias(targetGas))
	if targetGas != nil {
		log.Debugw("gas biased mutation", "gas", *targetGas, "intensity", intensity, "rounds", rounds)
	}

	out := make([]types.Value, 0, len(inputs))
	for _, in := range inputs {
		switch in := in.(type) {
		case *types.Struct:
			// nested fields get the plain intensity
			out = append(out, &types.Struct{Fields: m.Mutate(in.Fields, intensity)})
			continue
		case *types.Reference:
			out = append(out, types.Clone(in))
			continue
		}

		m.havoc.input = serialize(m.havoc.input[:0], in)
		m.havoc.mutate(rounds)
		out = append(out, deserialize(m.havoc.input, in))
	}
	return out
}

func serialize(buf []byte, v types.Value) []byte {
	switch v := v.(type) {
	case types.U8:
		return append(buf, byte(v))
	case types.U16:
		return binary.BigEndian.AppendUint16(buf, uint16(v))
	case types.U32:
		return binary.BigEndian.AppendUint32(buf, uint32(v))
	case types.U64:
		return binary.BigEndian.AppendUint64(buf, uint64(v))
	case types.U128:
		b := v.Bytes()
		return append(buf, b[:]...)
	case types.Bool:
		if v {
			return append(buf, 1)
		}
		return append(buf, 0)
	case types.Address:
		return append(buf, v[:]...)
	case *types.Vector:
		bs, ok := v.ByteSlice()
		if !ok {
			panic(fmt.Sprintf("mutator: unsupported vector element kind in %s", v))
		}
		return append(buf, bs...)
	default:
		panic(fmt.Sprintf("mutator: unsupported value kind %s", kindOf(v)))
	}
}

// fixed returns buf resized to n bytes, zero padded at the end.
func fixed(buf []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, buf)
	return out
}

func deserialize(buf []byte, like types.Value) types.Value {
	switch like.(type) {
	case types.U8:
		return types.U8(fixed(buf, 1)[0])
	case types.U16:
		return types.U16(binary.BigEndian.Uint16(fixed(buf, 2)))
	case types.U32:
		return types.U32(binary.BigEndian.Uint32(fixed(buf, 4)))
	case types.U64:
		return types.U64(binary.BigEndian.Uint64(fixed(buf, 8)) % narrowU64Modulus)
	case types.U128:
		var b [16]byte
		copy(b[:], buf)
		return types.U128FromBytes(b)
	case types.Bool:
		return types.Bool(fixed(buf, 1)[0] != 0)
	case types.Address:
		var a types.Address
		copy(a[:], buf)
		return a
	case *types.Vector:
		return types.NewByteVector(buf)
	default:
		panic(fmt.Sprintf("mutator: unsupported value kind %s", kindOf(like)))
	}
}

func kindOf(v types.Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.Kind().String()
}
