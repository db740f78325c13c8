package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/notify"
	"github.com/unclebandit/warmup-engine/internal/service"
)

func TestDailyGoalScenario(t *testing.T) {
	f := newFixture(t)
	in := fastCampaign()
	in.DailyMessageGoal = ptr(2)
	c := f.seed(t, 1, 1, in)

	for tick := 1; tick <= 3; tick++ {
		before := f.clock.Now()
		planned, err := f.planner.PlanAll(f.ctx)
		require.NoError(t, err)

		if tick <= 2 {
			require.Equal(t, 1, planned, "tick %d", tick)
			latest := f.executions(t, c.ID)[0]
			assert.Equal(t, model.ExecutionExternal, latest.ExecutionType)
			assert.False(t, latest.ScheduledAt.Before(before))
			assert.False(t, latest.ScheduledAt.After(before.Add(60*time.Second)))
		} else {
			assert.Equal(t, 0, planned, "goal reached")
		}
		f.clock.Advance(61 * time.Second)
	}

	assert.Len(t, f.executions(t, c.ID), 2)
	cs := f.campaignSession(t, c.ID, "s1")
	assert.Equal(t, 2, cs.DailyMessagesSent)
	assert.Equal(t, 2, cs.TotalMessagesSent)

	limits := eventsOfType(f.events(), notify.EventDailyLimit)
	require.Len(t, limits, 1)
	assert.Equal(t, 2, limits[0].Payload.(notify.DailyLimit).MessagesSent)
}

func TestPlannerResetsDailyCounterOnRollover(t *testing.T) {
	f := newFixture(t)
	in := fastCampaign()
	in.DailyMessageGoal = ptr(1)
	c := f.seed(t, 1, 1, in)

	planned, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, planned)

	f.clock.Advance(time.Hour)
	planned, err = f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, planned)

	f.clock.Set(t0.AddDate(0, 0, 1))
	planned, err = f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, planned)

	cs := f.campaignSession(t, c.ID, "s1")
	assert.Equal(t, 1, cs.DailyMessagesSent)
	assert.Equal(t, 2, cs.TotalMessagesSent)
}

func TestForcedExecutionOnNewDayCountsTowardGoal(t *testing.T) {
	f := newFixture(t)
	in := fastCampaign()
	in.DailyMessageGoal = ptr(2)
	c := f.seed(t, 1, 1, in)

	for i := 0; i < 2; i++ {
		planned, err := f.planner.PlanAll(f.ctx)
		require.NoError(t, err)
		require.Equal(t, 1, planned)
		f.clock.Advance(61 * time.Second)
	}

	day2 := t0.AddDate(0, 0, 1)
	f.clock.Set(day2)
	_, err := f.svc.ForceExecution(f.ctx, c.ID, service.ForceInput{
		ExecutionType: model.ExecutionExternal,
		FromSessionID: "s1",
		ContactID:     "k1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.campaignSession(t, c.ID, "s1").DailyMessagesSent)

	for i := 0; i < 3; i++ {
		f.clock.Advance(61 * time.Second)
		_, err := f.planner.PlanAll(f.ctx)
		require.NoError(t, err)
	}

	today := 0
	for _, e := range f.executions(t, c.ID) {
		if !e.CreatedAt.Before(day2) {
			today++
		}
	}
	assert.Equal(t, 2, today)
	cs := f.campaignSession(t, c.ID, "s1")
	assert.Equal(t, 2, cs.DailyMessagesSent)
	assert.Equal(t, 4, cs.TotalMessagesSent)
}

func TestPlannerRespectsMinInterval(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{
		MinIntervalMinutes: ptr(10),
		MaxIntervalMinutes: ptr(20),
	})

	planned, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, planned)

	e := f.executions(t, c.ID)[0]
	assert.False(t, e.ScheduledAt.Before(t0.Add(10*time.Minute)))
	assert.False(t, e.ScheduledAt.After(t0.Add(20*time.Minute)))

	f.clock.Set(e.ScheduledAt.Add(5 * time.Minute))
	planned, err = f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, planned)

	f.clock.Set(e.ScheduledAt.Add(10 * time.Minute))
	planned, err = f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, planned)
}

func TestInternalRatioOneTargetsPeer(t *testing.T) {
	f := newFixture(t)
	in := fastCampaign()
	in.EnableInternalConversations = ptr(true)
	in.InternalConversationRatio = ptr(1.0)
	c := f.seed(t, 2, 1, in)

	for i := 0; i < 3; i++ {
		_, err := f.planner.PlanAll(f.ctx)
		require.NoError(t, err)
		f.clock.Advance(61 * time.Second)
	}

	executions := f.executions(t, c.ID)
	require.Len(t, executions, 6)
	for _, e := range executions {
		assert.Equal(t, model.ExecutionInternal, e.ExecutionType)
		require.NotNil(t, e.ToSessionID)
		assert.Nil(t, e.ContactID)
		assert.NotEqual(t, e.FromSessionID, *e.ToSessionID)
		assert.True(t, e.TargetConsistent())
	}
	assert.Contains(t, executions[0].MessageContent, "Oi Session")
}

func TestPlannerSkipsWithoutContactsOrTemplates(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 0, fastCampaign())

	planned, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, planned)
	assert.Empty(t, f.executions(t, c.ID))

	logs := eventsOfType(f.events(), notify.EventCampaignLog)
	require.NotEmpty(t, logs)
	l := logs[len(logs)-1].Payload.(notify.CampaignLog)
	assert.Equal(t, notify.LevelWarning, l.Level)
	assert.Equal(t, "s1", l.SessionID)
}

func TestPlannerWaitsOutsideWindow(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())

	saturday := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	f.clock.Set(saturday)
	planned, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, planned)
	assert.Empty(t, f.executions(t, c.ID))

	statuses := eventsOfType(f.events(), notify.EventCampaignStatus)
	require.Len(t, statuses, 1)
	st := statuses[0].Payload.(notify.CampaignStatus)
	assert.Equal(t, model.CampaignStatusWaiting, st.Status)
	require.NotNil(t, st.NextAllowedAt)
	assert.Equal(t, time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC), *st.NextAllowedAt)
}

func TestAutoPausePushesNextExecutionPastPause(t *testing.T) {
	f := newFixture(t)
	in := fastCampaign()
	in.EnableAutoPauses = ptr(true)
	in.MinConversationTimeMinutes = ptr(5)
	in.MaxPauseTimeMinutes = ptr(10)
	c := f.seed(t, 1, 1, in)

	_, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	cs := f.campaignSession(t, c.ID, "s1")
	require.NotNil(t, cs.ConversationStartedAt)
	assert.Nil(t, cs.CurrentPauseUntil)

	f.clock.Advance(6 * time.Minute)
	planned, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, planned)

	cs = f.campaignSession(t, c.ID, "s1")
	require.NotNil(t, cs.CurrentPauseUntil)
	assert.Nil(t, cs.ConversationStartedAt)

	latest := f.executions(t, c.ID)[0]
	assert.True(t, latest.ScheduledAt.After(*cs.CurrentPauseUntil))
}

func TestPlanningIsolatesFailingCampaigns(t *testing.T) {
	f := newFixture(t)
	good := f.seed(t, 1, 1, fastCampaign())

	// no templates and a session row pointing at an unknown sender
	broken, err := f.svc.CreateCampaign(f.ctx, "org", service.CampaignInput{Name: ptr("broken")})
	require.NoError(t, err)
	_, err = f.repos.CampaignSessions.Attach(f.ctx, broken.ID, "ghost", t0)
	require.NoError(t, err)

	planned, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, planned)
	assert.Len(t, f.executions(t, good.ID), 1)
	assert.Empty(t, f.executions(t, broken.ID))
}
