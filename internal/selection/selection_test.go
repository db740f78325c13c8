package selection

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name   string
	weight int
}

func TestWeightedFrequencyConverges(t *testing.T) {
	src := NewSource(42)
	items := []item{{"a", 1}, {"b", 3}, {"c", 6}}
	const draws = 200000

	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		got, ok := Weighted(src, items, func(it item) int { return it.weight })
		require.True(t, ok)
		counts[got.name]++
	}

	for _, it := range items {
		expected := float64(it.weight) / 10
		actual := float64(counts[it.name]) / draws
		assert.InDelta(t, expected, actual, 0.01, "item %s", it.name)
	}
}

func TestWeightedClampsWeights(t *testing.T) {
	src := NewSource(7)
	items := []item{{"zero", 0}, {"huge", 1000}}
	const draws = 110000

	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		got, _ := Weighted(src, items, func(it item) int { return it.weight })
		counts[got.name]++
	}
	// zero clamps to 1 and huge to 10
	assert.InDelta(t, 1.0/11, float64(counts["zero"])/draws, 0.01)
	assert.InDelta(t, 10.0/11, float64(counts["huge"])/draws, 0.01)
}

func TestEmptyCandidates(t *testing.T) {
	src := NewSource(1)

	_, ok := Weighted(src, []item{}, func(it item) int { return it.weight })
	assert.False(t, ok)

	_, ok = Uniform(src, []string(nil))
	assert.False(t, ok)
}

func TestUniformCoversAll(t *testing.T) {
	src := NewSource(3)
	peers := []string{"s2", "s3", "s4", "s5"}
	counts := map[string]int{}
	const draws = 40000
	for i := 0; i < draws; i++ {
		p, _ := Uniform(src, peers)
		counts[p]++
	}
	for _, p := range peers {
		assert.InDelta(t, 0.25, float64(counts[p])/draws, 0.02)
	}
}

func TestBetweenBounds(t *testing.T) {
	src := NewSource(9)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := src.Between(60, 65)
		require.GreaterOrEqual(t, v, 60)
		require.LessOrEqual(t, v, 65)
		seen[v] = true
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, 5, src.Between(5, 5))
	assert.Equal(t, 5, src.Between(5, 2))

	d := src.Duration(1, 3, time.Minute)
	assert.True(t, d >= time.Minute && d <= 3*time.Minute)
}

func TestSameSeedSameSequence(t *testing.T) {
	a, b := NewSource(99), NewSource(99)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Intn(1000), b.Intn(1000))
	}
	assert.False(t, math.IsNaN(a.Float64()))
}
