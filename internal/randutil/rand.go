// Package randutil provides injectable sources of uniform random integers.
package randutil

import (
	"math/rand/v2"
	"sync"
)

// Source produces uniformly distributed integers.
type Source interface {
	// Intn returns a value in the inclusive range [min, max].
	// When max <= min it returns min.
	Intn(min, max int) int
}

// New returns a Source backed by the runtime's random generator.
// It is safe for concurrent use.
func New() Source {
	return globalSource{}
}

type globalSource struct{}

func (globalSource) Intn(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.IntN(max-min+1)
}

// Seeded returns a deterministic Source seeded with the given values.
func Seeded(seed1, seed2 uint64) Source {
	return &seededSource{r: rand.New(rand.NewPCG(seed1, seed2))}
}

type seededSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *seededSource) Intn(min, max int) int {
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.r.IntN(max-min+1)
}

// Sequence replays a fixed list of values, clamped to the requested range.
// After the list is exhausted it keeps returning the lower bound.
type Sequence struct {
	mu     sync.Mutex
	values []int
	next   int
}

// NewSequence creates a Sequence that returns values in order.
func NewSequence(values ...int) *Sequence {
	return &Sequence{values: values}
}

// Intn returns the next value of the sequence clamped to [min, max].
func (s *Sequence) Intn(min, max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.values) {
		return min
	}
	v := s.values[s.next]
	s.next++

	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Min always returns the lower bound of the requested range.
type Min struct{}

// Intn returns min.
func (Min) Intn(min, max int) int {
	return min
}
