package testutils

import (
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"testing"
	"time"
)

var Seed uint64 //nolint:gochecknoglobals // intentionally global for test reproducibility

func init() { //nolint:gochecknoinits // intentionally using init to set seed
	Seed = uint64(time.Now().UnixNano()) //nolint:gosec // it's ok
	if envSeed := os.Getenv("TEST_SEED"); envSeed != "" {
		parsed, err := strconv.ParseUint(envSeed, 0, 64)
		if err == nil { // Only set using the env if it's valid
			Seed = parsed
		}
	}
	fmt.Printf("to reproduce: TEST_SEED=0x%x\n", Seed) //nolint:forbidigo // just for testing
}

// NewRand returns a PRNG seeded from Seed. The test name is mixed in so parallel tests draw
// independent streams while staying reproducible.
func NewRand(t *testing.T) *rand.Rand {
	t.Helper()
	var salt uint64
	for _, c := range t.Name() {
		salt = salt*31 + uint64(c) //nolint:gosec // rune is non-negative
	}
	return rand.New(rand.NewPCG(Seed, salt)) //nolint:gosec // weak RNG is fine for tests
}

// RandMapKey returns a random key from a map. Panics if the map is empty.
func RandMapKey[K comparable, V any](r *rand.Rand, m map[K]V) K {
	idx := r.IntN(len(m))
	for k := range m {
		if idx == 0 {
			return k
		}
		idx--
	}
	panic("unreachable")
}

// OpWeights assigns a relative weight to every operation name of a model-based test.
type OpWeights struct {
	ops     []string
	weights []int
	total   int
}

// RandOpWeights gives every operation a random weight in [1, 100], so each run of a model-based
// test explores a different mix of operations.
func RandOpWeights(r *rand.Rand, ops []string) OpWeights {
	w := OpWeights{ops: slices.Clone(ops), weights: make([]int, len(ops))}
	for i := range ops {
		w.weights[i] = 1 + r.IntN(100)
		w.total += w.weights[i]
	}
	return w
}

// RandWeightedOp returns an operation picked with probability proportional to its weight.
func RandWeightedOp(r *rand.Rand, w OpWeights) string {
	pick := r.IntN(w.total)
	for i, op := range w.ops {
		if pick < w.weights[i] {
			return op
		}
		pick -= w.weights[i]
	}
	panic("unreachable")
}

// RandString generates a random alphanumeric string of the given length.
func RandString(r *rand.Rand, length int) string {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = chars[r.IntN(len(chars))]
	}
	return string(b)
}
