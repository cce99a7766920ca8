// Package random is the injectable randomness used for rewards, draws and
// robberies.
package random

import (
	"math/rand/v2"
	"sync"
)

type Source interface {
	IntN(n int) int
	Int64N(n int64) int64
	Float64() float64
}

type global struct{}

func (global) IntN(n int) int { return rand.IntN(n) }
func (global) Int64N(n int64) int64 { return rand.Int64N(n) }
func (global) Float64() float64 { return rand.Float64() }

// Default draws from the process-wide generator.
func Default() Source { return global{} }

type seeded struct {
	mu sync.Mutex
	r  *rand.Rand
}

// Seeded returns a deterministic source, safe for concurrent use.
func Seeded(seed uint64) Source {
	return &seeded{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seeded) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.r.IntN(n)
}

func (s *seeded) Int64N(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.r.Int64N(n)
}

func (s *seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.r.Float64()
}

// Between returns a uniform integer in [lo, hi].
func Between(src Source, lo, hi int64) int64 {
	return lo + src.Int64N(hi-lo+1)
}
