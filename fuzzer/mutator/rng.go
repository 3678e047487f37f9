package mutator

import "math/bits"

// Rng is a small xorshift64 generator. A zero seed is replaced by a fixed
// non-zero constant since xorshift never leaves the zero state.
type Rng struct {
	seed uint64

	// ExpDisabled turns RandExp into a uniform draw.
	ExpDisabled bool
}

const zeroSeedReplacement = 0x9e3779b97f4a7c15

func NewRng(seed uint64, expDisabled bool) *Rng {
	if seed == 0 {
		seed = zeroSeedReplacement
	}
	return &Rng{seed: seed, ExpDisabled: expDisabled}
}

// DeriveSeed returns a splitmix64 step of seed. Generators seeded with seed
// and DeriveSeed(seed) walk unrelated streams.
func DeriveSeed(seed uint64) uint64 {
	z := seed + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Next returns the current state and advances the generator.
func (r *Rng) Next() uint64 {
	if r.seed == 0 {
		r.seed = zeroSeedReplacement
	}
	val := r.seed
	r.seed ^= r.seed << 13
	r.seed ^= r.seed >> 17
	r.seed ^= r.seed << 43
	return val
}

// Rand returns a uniformly distributed integer in [min, max].
func (r *Rng) Rand(min, max uint64) uint64 {
	if min > max {
		panic("rng: min > max")
	}
	if min == max {
		return min
	}
	span := max - min
	if span == ^uint64(0) {
		return r.Next()
	}
	// multiply-shift avoids the modulo bias for small spans
	hi, _ := bits.Mul64(r.Next(), span+1)
	return min + hi
}

// RandExp returns an integer in [min, max] biased toward min: half of the
// draws are uniform, the other half are uniform below an already uniform
// draw, which yields an exponentially decaying tail.
func (r *Rng) RandExp(min, max uint64) uint64 {
	if r.ExpDisabled {
		return r.Rand(min, max)
	}
	if r.Rand(0, 1) == 0 {
		return r.Rand(min, max)
	}
	x := r.Rand(min, max)
	return r.Rand(min, x)
}

// Intn returns a uniform int in [0, n). n must be positive.
func (r *Rng) Intn(n int) int {
	if n <= 0 {
		panic("rng: invalid argument to Intn")
	}
	return int(r.Rand(0, uint64(n-1)))
}

// Shuffle permutes n elements with Fisher-Yates using swap.
func (r *Rng) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		swap(i, j)
	}
}
