// Package quiz draws per-attempt question samples and shuffles answer options.
package quiz

import (
	"math/rand/v2"
	"time"
)

// Source is the randomness used for sampling. *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

// NewSource returns an independently seeded source for one attempt.
func NewSource() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
}

// Sample returns min(count, len(pool)) distinct elements of pool chosen
// uniformly at random. The pool itself is never reordered.
func Sample[T any](src Source, pool []T, count int) []T {
	if count <= 0 || len(pool) == 0 {
		return []T{}
	}
	if count > len(pool) {
		count = len(pool)
	}

	picked := make([]T, len(pool))
	copy(picked, pool)

	// Partial Fisher-Yates: only the first count positions need settling.
	for i := 0; i < count; i++ {
		j := i + src.IntN(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked[:count:count]
}

// Shuffle returns a uniformly permuted copy of items.
func Shuffle[T any](src Source, items []T) []T {
	return Sample(src, items, len(items))
}

// ShuffleOptions permutes options and returns the index of the correct
// answer in the new order. When the same text appears more than once the
// first match wins. An out-of-range correctIndex yields -1.
func ShuffleOptions(src Source, options []string, correctIndex int) ([]string, int) {
	shuffled := Shuffle(src, options)
	if correctIndex < 0 || correctIndex >= len(options) {
		return shuffled, -1
	}

	correct := options[correctIndex]
	for i, opt := range shuffled {
		if opt == correct {
			return shuffled, i
		}
	}
	return shuffled, -1
}
