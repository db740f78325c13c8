// Package selection draws contacts, templates and peer sessions at random.
package selection

import (
	"math/rand"
	"sync"
	"time"
)

// Weights outside [MinWeight, MaxWeight] are clamped before a draw.
const (
	MinWeight = 1
	MaxWeight = 10
)

// Source is a goroutine-safe random source shared by the planner, the
// auto-pause controller and the dispatcher.
type Source struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSource returns a Source seeded with seed.
func NewSource(seed int64) *Source {
	return &Source{rnd: rand.New(rand.NewSource(seed))}
}

// NewTimeSeeded returns a Source seeded from the wall clock.
func NewTimeSeeded() *Source {
	return NewSource(time.Now().UnixNano())
}

// Intn returns a uniform int in [0, n). n must be positive.
func (s *Source) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

// Float64 returns a uniform float in [0, 1).
func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

// Between returns a uniform int in [lo, hi]. If hi < lo it returns lo.
func (s *Source) Between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.Intn(hi-lo+1)
}

// Duration returns a uniform duration in [lo, hi] at the given resolution.
func (s *Source) Duration(lo, hi int, unit time.Duration) time.Duration {
	return time.Duration(s.Between(lo, hi)) * unit
}

// ClampWeight bounds w to [MinWeight, MaxWeight].
func ClampWeight(w int) int {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

// Weighted picks one item with probability proportional to its clamped
// weight. Each item is repeated weight times in a flat pool and the pool is
// drawn uniformly. ok is false when items is empty.
func Weighted[T any](s *Source, items []T, weight func(T) int) (picked T, ok bool) {
	if len(items) == 0 {
		return picked, false
	}
	pool := make([]int, 0, len(items)*MinWeight)
	for i, it := range items {
		for n := ClampWeight(weight(it)); n > 0; n-- {
			pool = append(pool, i)
		}
	}
	return items[pool[s.Intn(len(pool))]], true
}

// Uniform picks one item with equal probability. ok is false when items is empty.
func Uniform[T any](s *Source, items []T) (picked T, ok bool) {
	if len(items) == 0 {
		return picked, false
	}
	return items[s.Intn(len(items))], true
}
