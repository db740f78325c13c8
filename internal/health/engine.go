package health

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/notify"
	"github.com/unclebandit/warmup-engine/internal/repository"
)

// ChangeThreshold is the minimum absolute score change that emits a health_update event.
const ChangeThreshold = 5.0

type Notifier interface {
	HealthUpdate(ctx context.Context, organizationID string, p notify.HealthUpdate)
}

// Engine recomputes and persists session health scores.
type Engine struct {
	Repos    *repository.Repositories
	Notifier Notifier
	Clock    clock.Clock
	Logger   *zap.Logger
}

func NewEngine(repos *repository.Repositories, n Notifier, c clock.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Repos: repos, Notifier: n, Clock: c, Logger: logger}
}

// Recalculate scores the campaign session, persists the score and emits a
// health_update event on a significant change. It never fails: any error or
// panic is logged and NeutralScore is returned.
func (e *Engine) Recalculate(ctx context.Context, campaignSessionID string) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("health calculation panicked",
				zap.String("campaign_session_id", campaignSessionID),
				zap.Any("panic", r))
			score = NeutralScore
		}
	}()

	b, err := e.recalculate(ctx, campaignSessionID)
	if err != nil {
		e.Logger.Error("health calculation failed",
			zap.String("campaign_session_id", campaignSessionID),
			zap.Error(err))
		return NeutralScore
	}
	return b.Score
}

func (e *Engine) recalculate(ctx context.Context, campaignSessionID string) (Breakdown, error) {
	now := e.Clock.Now()
	since := now.Add(-Window)

	cs, err := e.Repos.CampaignSessions.GetByID(ctx, campaignSessionID)
	if err != nil {
		return Breakdown{}, fmt.Errorf("load campaign session: %w", err)
	}
	metrics, err := e.Repos.HealthMetrics.ListSince(ctx, campaignSessionID, clock.StartOfDay(since))
	if err != nil {
		return Breakdown{}, fmt.Errorf("load health metrics: %w", err)
	}
	executions, _, err := e.Repos.Executions.List(ctx, repository.ExecutionFilter{
		CampaignIDs:   []string{cs.CampaignID},
		FromSessionID: cs.SessionID,
		Start:         &since,
	})
	if err != nil {
		return Breakdown{}, fmt.Errorf("load executions: %w", err)
	}

	b := Compute(metrics, executions)
	if len(metrics) == 0 && len(executions) == 0 {
		return b, nil
	}

	if err := e.Repos.CampaignSessions.UpdateHealthScore(ctx, campaignSessionID, b.Score); err != nil {
		return Breakdown{}, fmt.Errorf("persist health score: %w", err)
	}
	if err := e.Repos.HealthMetrics.UpdateScore(ctx, campaignSessionID, clock.StartOfDay(now), b.Score, b.AvgPerDay/24); err != nil {
		return Breakdown{}, fmt.Errorf("persist daily score: %w", err)
	}

	e.Logger.Debug("health updated",
		zap.String("campaign_session_id", campaignSessionID),
		zap.Float64("score", b.Score),
		zap.Float64("avg_per_day", b.AvgPerDay),
		zap.Float64("delivery_rate", b.DeliveryRate),
		zap.Float64("std_dev", b.StdDev))

	change := b.Score - cs.HealthScore
	if math.Abs(change) >= ChangeThreshold && e.Notifier != nil {
		e.notify(ctx, cs.CampaignID, cs.SessionID, cs.HealthScore, b, change)
	}
	return b, nil
}

func (e *Engine) notify(ctx context.Context, campaignID, sessionID string, previous float64, b Breakdown, change float64) {
	c, err := e.Repos.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		e.Logger.Warn("health update not sent", zap.String("campaign_id", campaignID), zap.Error(err))
		return
	}
	update := notify.HealthUpdate{
		CampaignID:     c.ID,
		CampaignName:   c.Name,
		SessionID:      sessionID,
		SessionName:    sessionID,
		PreviousHealth: previous,
		CurrentHealth:  b.Score,
		HealthChange:   change,
		Metrics: notify.HealthMetrics{
			MessagesSent:           b.Total,
			MessagesDelivered:      b.Sent,
			AverageMessagesPerHour: b.AvgPerDay / 24,
		},
		CalculatedAt: e.Clock.Now(),
	}
	if s, err := e.Repos.Sessions.GetByID(ctx, sessionID); err == nil {
		if s.Name != "" {
			update.SessionName = s.Name
		}
		update.Phone = s.Phone
	}
	e.Notifier.HealthUpdate(ctx, c.OrganizationID, update)
}
