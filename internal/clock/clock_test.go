package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2024, 3, 5, 17, 42, 11, 99, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), StartOfDay(ts))
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	f := NewFake(start)

	ch := f.After(30 * time.Second)
	require.Equal(t, 1, f.Waiters())

	f.Advance(10 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	f.Advance(20 * time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, start.Add(30*time.Second), got)
	default:
		t.Fatal("timer did not fire")
	}
	assert.Equal(t, 0, f.Waiters())
}
