package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop(), 0)
	err := q.Publish("warmup.progress", 1)
	assert.True(t, errors.Is(err, ErrNoSubscribers))
}

func TestFanOutToEverySubscriber(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop(), 0)

	var mu sync.Mutex
	got := []string{}
	for _, name := range []string{"a", "b"} {
		name := name
		require.NoError(t, q.Subscribe("topic", func(payload any) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+payload.(string))
			return nil
		}))
	}

	require.NoError(t, q.Publish("topic", "hello"))
	q.Wait()
	assert.ElementsMatch(t, []string{"a:hello", "b:hello"}, got)
}

func TestRetriesUntilSuccess(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop(), 3)
	q.backoff = time.Millisecond

	var calls int32
	require.NoError(t, q.Subscribe("topic", func(payload any) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish("topic", 1))
	q.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	q := NewInMemoryQueue(zap.NewNop(), 2)
	q.backoff = time.Millisecond

	var calls int32
	require.NoError(t, q.Subscribe("topic", func(payload any) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}))

	require.NoError(t, q.Publish("topic", 1))
	q.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
