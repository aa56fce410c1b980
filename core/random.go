package core

import (
	"math/rand"
	"time"
)

// RandSource supplies the pseudo-random draws used when assigning holds and
// checking hold activation. *rand.Rand satisfies it; tests can script it.
type RandSource interface {
	// Intn returns a non-negative integer in [0, n). n is always > 0.
	Intn(n int) int
}

// NewRandSource returns a RandSource seeded with seed, or with the current
// time when seed is zero.
func NewRandSource(seed int64) RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// intBetween draws uniformly from the inclusive range [lo, hi].
func intBetween(rng RandSource, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// sampleWithoutReplacement picks k distinct integers from [0, n) using a
// partial Fisher-Yates shuffle.
func sampleWithoutReplacement(rng RandSource, n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
