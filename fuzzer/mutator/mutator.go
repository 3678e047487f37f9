package mutator

import (
	"math"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
)

// Mutator produces new argument values from existing ones.
type Mutator interface {
	// Mutate returns one mutated value per input, in order, each with the
	// same outer kind as its input.
	Mutate(inputs []types.Value, intensity int) []types.Value

	// GenerateNumber returns a number in [min, max]. min must not exceed max.
	GenerateNumber(min, max uint64) uint64

	// MutateWithGas behaves like Mutate with the intensity scaled by
	// GasBias(targetGas). A nil targetGas leaves the intensity unchanged.
	MutateWithGas(inputs []types.Value, intensity int, targetGas *uint64) []types.Value
}

// MaxGasBias is the value GasBias saturates at, reached once ln(gas) >= 20.
const MaxGasBias = 3.0

// GasBias maps the highest gas seen for a function to a mutation intensity
// multiplier in [1, 3]. The logarithm keeps gas outliers from producing
// unbounded mutation counts.
func GasBias(targetGas *uint64) float64 {
	if targetGas == nil {
		return 1.0
	}
	g := *targetGas
	if g < 1 {
		g = 1
	}
	return 1.0 + math.Min(math.Log(float64(g))/10.0, 2.0)
}

// EffectiveIntensity applies the multiplier, never going below one round or
// above three times the requested intensity.
func EffectiveIntensity(intensity int, multiplier float64) int {
	n := int(math.Round(float64(intensity) * multiplier))
	if n < 1 {
		n = 1
	}
	if limit := intensity * 3; n > limit {
		n = limit
	}
	return n
}
