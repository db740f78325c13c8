package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/gateway"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/notify"
	"github.com/unclebandit/warmup-engine/internal/repository"
	"github.com/unclebandit/warmup-engine/internal/service"
)

func planOne(t *testing.T, f *fixture, campaignID string) *model.Execution {
	t.Helper()
	planned, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, planned)
	f.clock.Advance(61 * time.Second)
	return f.executions(t, campaignID)[0]
}

func TestDispatchSendsDueExecution(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())
	e := planOne(t, f, c.ID)

	res, err := f.dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	got, err := f.repos.Executions.GetByID(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSent, got.Status)
	require.NotNil(t, got.SentAt)

	sent := f.gw.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "s1", sent[0].SessionID)
	assert.Equal(t, "+552199999991", sent[0].Target)
	assert.Equal(t, "Oi Contact 1", sent[0].Content)

	cs := f.campaignSession(t, c.ID, "s1")
	metrics, err := f.repos.HealthMetrics.ListSince(f.ctx, cs.ID, clock.StartOfDay(t0))
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, 1, metrics[0].MessagesSent)
	assert.Less(t, cs.HealthScore, 100.0, "one message a day is far from the optimum")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Dispatched.WithLabelValues("sent")))

	var statuses []string
	for _, ev := range eventsOfType(f.events(), notify.EventExecution) {
		statuses = append(statuses, ev.Payload.(notify.Execution).Status)
	}
	assert.ElementsMatch(t, []string{"scheduled", "sent"}, statuses)

	again, err := f.dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Sent+again.Failed+again.Deferred)
}

func TestDispatchFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())
	e := planOne(t, f, c.ID)
	f.gw.SuccessRate = 0

	res, err := f.dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got, err := f.repos.Executions.GetByID(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, gateway.ErrMockSendFailed.Error(), *got.ErrorMessage)

	f.clock.Advance(time.Hour)
	again, err := f.dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Failed, "failed executions are not retried")

	logs := eventsOfType(f.events(), notify.EventCampaignLog)
	require.Len(t, logs, 1)
	assert.Equal(t, notify.LevelError, logs[0].Payload.(notify.CampaignLog).Level)
}

func TestDispatchRequiresConnectedSessions(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())
	e := planOne(t, f, c.ID)
	f.gw.SetStatus("s1", model.SessionStatusDisconnected)

	res, err := f.dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, f.gw.Sent())

	got, err := f.repos.Executions.GetByID(f.ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "not connected")
}

func TestDispatchRequiresConnectedTargetForInternal(t *testing.T) {
	f := newFixture(t)
	in := fastCampaign()
	in.EnableInternalConversations = ptr(true)
	in.InternalConversationRatio = ptr(1.0)
	c := f.seed(t, 2, 0, in)

	_, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	f.clock.Advance(61 * time.Second)
	f.gw.SetStatus("s2", model.SessionStatusDisconnected)

	res, err := f.dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	// s1 -> s2 fails on the target, s2 -> s1 fails on the sender
	assert.Equal(t, 2, res.Failed)
	for _, e := range f.executions(t, c.ID) {
		assert.Equal(t, model.ExecutionFailed, e.Status)
	}
}

func TestDispatchDefersPausedSession(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())
	e := planOne(t, f, c.ID)

	cs := f.campaignSession(t, c.ID, "s1")
	until := f.clock.Now().Add(10 * time.Minute)
	require.NoError(t, f.repos.CampaignSessions.UpdatePauseState(f.ctx, cs.ID, repository.PauseState{CurrentPauseUntil: &until}))

	res, err := f.dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deferred)
	assert.Empty(t, f.gw.Sent())

	got, err := f.repos.Executions.GetByID(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionScheduled, got.Status)
	assert.False(t, got.ScheduledAt.Before(until.Add(60*time.Second)))
	assert.False(t, got.ScheduledAt.After(until.Add(300*time.Second)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Deferred))

	f.clock.Set(got.ScheduledAt)
	res, err = f.dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestDispatchHonoursCancelledContext(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())
	e := planOne(t, f, c.ID)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	_, err := f.dispatcher.DispatchDue(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	got, err := f.repos.Executions.GetByID(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionScheduled, got.Status)
}

// stuckGateway never answers a send before its context ends.
type stuckGateway struct {
	*gateway.Mock
}

func (g stuckGateway) Send(ctx context.Context, _ gateway.Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestDispatchTimesOutStuckSend(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())
	e := planOne(t, f, c.ID)

	f.deps.Gateway = stuckGateway{Mock: f.gw}
	dispatcher := service.NewDispatcher(f.deps, 50, 10, 20*time.Millisecond)

	res, err := dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, service.DispatchResult{Failed: 1}, res)

	got, err := f.repos.Executions.GetByID(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, context.DeadlineExceeded.Error())
}

// overlapGateway tracks how many sends are in flight, in total and per
// session. The first send of each session waits until every session has
// one send in flight.
type overlapGateway struct {
	*gateway.Mock
	sessions int

	mu         sync.Mutex
	inFlight   map[string]int
	maxSession map[string]int
	total      int
	maxTotal   int
	seen       map[string]bool
	allIn      chan struct{}
}

func newOverlapGateway(m *gateway.Mock, sessions int) *overlapGateway {
	return &overlapGateway{
		Mock:       m,
		sessions:   sessions,
		inFlight:   map[string]int{},
		maxSession: map[string]int{},
		seen:       map[string]bool{},
		allIn:      make(chan struct{}),
	}
}

func (g *overlapGateway) Send(ctx context.Context, m gateway.Message) (string, error) {
	g.mu.Lock()
	g.inFlight[m.SessionID]++
	g.maxSession[m.SessionID] = max(g.maxSession[m.SessionID], g.inFlight[m.SessionID])
	g.total++
	g.maxTotal = max(g.maxTotal, g.total)
	first := !g.seen[m.SessionID]
	g.seen[m.SessionID] = true
	if first && len(g.seen) == g.sessions {
		close(g.allIn)
	}
	g.mu.Unlock()

	if first {
		select {
		case <-g.allIn:
		case <-time.After(2 * time.Second):
		}
	} else {
		time.Sleep(5 * time.Millisecond)
	}

	g.mu.Lock()
	g.inFlight[m.SessionID]--
	g.total--
	g.mu.Unlock()
	return g.Mock.Send(ctx, m)
}

func TestDispatchSerializesPerSessionAndOverlapsAcrossSessions(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 2, 1, fastCampaign())
	for _, from := range []string{"s1", "s2"} {
		for i := 0; i < 3; i++ {
			_, err := f.svc.ForceExecution(f.ctx, c.ID, service.ForceInput{
				ExecutionType: model.ExecutionExternal,
				FromSessionID: from,
				ContactID:     "k1",
			})
			require.NoError(t, err)
		}
	}

	g := newOverlapGateway(f.gw, 2)
	f.deps.Gateway = g

	res, err := f.dispatcher.DispatchDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Sent)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, map[string]int{"s1": 1, "s2": 1}, g.maxSession, "one send at a time per session")
	assert.Equal(t, 2, g.maxTotal, "sessions dispatch concurrently")
}
