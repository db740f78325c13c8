package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/warmup-engine/internal/gateway"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/service"
)

func TestTickDispatchesThenPlans(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())
	w := service.NewWorker(f.deps, f.dispatcher, f.planner, nil, 0)
	assert.Equal(t, 10*time.Second, w.Interval)

	require.True(t, w.Tick(f.ctx))
	require.Len(t, f.executions(t, c.ID), 1)
	assert.Empty(t, f.gw.Sent())

	f.clock.Advance(61 * time.Second)
	require.True(t, w.Tick(f.ctx))

	executions := f.executions(t, c.ID)
	require.Len(t, executions, 2)
	assert.Equal(t, model.ExecutionScheduled, executions[0].Status, "planned after dispatch")
	assert.Equal(t, model.ExecutionSent, executions[1].Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Ticks))
}

func TestWorkerStartStop(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())
	w := service.NewWorker(f.deps, f.dispatcher, f.planner, service.NewAutoReader(f.deps, nil), time.Second)

	w.Start(f.ctx)
	w.Start(f.ctx)
	require.Eventually(t, func() bool { return f.clock.Waiters() == 1 }, time.Second, time.Millisecond)

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.Ticks) == 1 && f.clock.Waiters() == 1
	}, time.Second, time.Millisecond)
	assert.Len(t, f.executions(t, c.ID), 1)

	w.Stop()
	w.Stop()
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Ticks))
}

// blockingGateway holds every Send until release is closed.
type blockingGateway struct {
	*gateway.Mock
	started chan struct{}
	release chan struct{}
}

func (g *blockingGateway) Send(ctx context.Context, m gateway.Message) (string, error) {
	g.started <- struct{}{}
	<-g.release
	return g.Mock.Send(ctx, m)
}

func TestTickIsSkippedWhileRunning(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1, 1, fastCampaign())
	_, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	f.clock.Advance(61 * time.Second)

	g := &blockingGateway{Mock: f.gw, started: make(chan struct{}, 1), release: make(chan struct{})}
	f.deps.Gateway = g
	w := service.NewWorker(f.deps, f.dispatcher, f.planner, nil, time.Second)

	done := make(chan bool)
	go func() { done <- w.Tick(f.ctx) }()
	<-g.started

	assert.False(t, w.Tick(f.ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SkippedTicks))

	close(g.release)
	assert.True(t, <-done)
	assert.Len(t, f.gw.Sent(), 1)
}
