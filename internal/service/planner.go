// internal/service/planner.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/notify"
	"github.com/unclebandit/warmup-engine/internal/selection"
)

// Planner creates new scheduled executions for eligible sessions.
type Planner struct {
	*Deps
}

func NewPlanner(d *Deps) *Planner {
	return &Planner{Deps: d}
}

// PlanAll runs one planning pass over every active campaign and returns the
// number of executions scheduled. A failing campaign or session is logged
// and does not stop the pass.
func (p *Planner) PlanAll(ctx context.Context) (int, error) {
	campaigns, err := p.Repos.Campaigns.ListActiveWithChildren(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active campaigns: %w", err)
	}
	planned := 0
	for _, c := range campaigns {
		if ctx.Err() != nil {
			return planned, ctx.Err()
		}
		planned += p.planCampaign(ctx, c)
	}
	return planned, nil
}

func (p *Planner) planCampaign(ctx context.Context, c *model.Campaign) int {
	now := p.Clock.Now()
	if !InSendingWindow(c, now) {
		next := NextAllowedAt(c, now)
		p.Notifier.CampaignStatus(ctx, c.OrganizationID, notify.CampaignStatus{
			CampaignID:     c.ID,
			CampaignName:   c.Name,
			Status:         model.CampaignStatusWaiting,
			Message:        "Outside the allowed sending window",
			NextAllowedAt:  &next,
			ActiveSessions: len(c.Sessions),
			TotalSessions:  len(c.Sessions),
		})
		return 0
	}

	planned := 0
	for _, cs := range c.Sessions {
		cs := cs
		err := guard(func() error {
			ok, err := p.planSession(ctx, c, cs)
			if ok {
				planned++
			}
			return err
		})
		if err != nil {
			p.Logger.Error("planning failed",
				zap.String("campaign_id", c.ID),
				zap.String("session_id", cs.SessionID),
				zap.Error(err))
		}
	}
	return planned
}

// planSession schedules at most one execution for cs. It reports whether an
// execution was created.
func (p *Planner) planSession(ctx context.Context, c *model.Campaign, cs *model.CampaignSession) (bool, error) {
	unlock := p.Locks.Lock(cs.ID)
	defer unlock()

	now := p.Clock.Now()
	reset, err := p.Repos.CampaignSessions.ResetDaily(ctx, cs.ID, clock.StartOfDay(now))
	if err != nil {
		return false, fmt.Errorf("reset daily counter: %w", err)
	}
	if reset {
		cs.DailyMessagesSent = 0
	}

	if cs.DailyMessagesSent >= c.DailyMessageGoal {
		return false, nil
	}
	minInterval := time.Duration(c.MinIntervalMinutes) * time.Minute
	if cs.LastMessageAt != nil && now.Sub(*cs.LastMessageAt) < minInterval {
		return false, nil
	}

	plan, tpl, reason := p.choose(c, cs)
	if plan == nil {
		p.Notifier.LogWarning(ctx, c.OrganizationID, notify.CampaignLog{
			CampaignID:   c.ID,
			CampaignName: c.Name,
			Message:      reason,
			SessionID:    cs.SessionID,
			SessionName:  cs.Name(),
		})
		return false, nil
	}

	res, err := p.Pauses.NextScheduleTime(ctx, c, cs, now.Add(p.offset(c)))
	if err != nil {
		return false, err
	}
	if res.Deferred {
		p.Metrics.ExecutionDeferred()
	}
	if res.PauseApplied {
		p.Notifier.LogInfo(ctx, c.OrganizationID, notify.CampaignLog{
			CampaignID:   c.ID,
			CampaignName: c.Name,
			Message:      "Automatic pause started",
			Details:      map[string]any{"pause_until": cs.CurrentPauseUntil},
			SessionID:    cs.SessionID,
			SessionName:  cs.Name(),
		})
	}

	if _, err := p.schedule(ctx, c, cs, plan, tpl, res.At); err != nil {
		return false, err
	}
	return true, nil
}

// choose picks the workload and the template. A nil plan comes with the
// reason nothing could be chosen.
func (p *Planner) choose(c *model.Campaign, cs *model.CampaignSession) (model.WorkloadPlan, *model.MessageTemplate, string) {
	tpl, ok := selection.Weighted(p.Rand, c.Templates, func(t *model.MessageTemplate) int { return t.Weight })
	if !ok {
		return nil, nil, "No active templates available"
	}

	if c.EnableInternalConversations && len(c.Sessions) >= 2 && p.Rand.Float64() < c.InternalConversationRatio {
		peers := make([]*model.CampaignSession, 0, len(c.Sessions)-1)
		for _, other := range c.Sessions {
			if other.ID != cs.ID {
				peers = append(peers, other)
			}
		}
		if peer, ok := selection.Uniform(p.Rand, peers); ok {
			return model.Internal{ToSession: peer}, tpl, ""
		}
	}

	contact, ok := selection.Weighted(p.Rand, c.Contacts, func(cc *model.CampaignContact) int { return cc.Priority })
	if !ok {
		return nil, nil, "No active contacts available"
	}
	return model.External{Contact: contact}, tpl, ""
}

func (p *Planner) offset(c *model.Campaign) time.Duration {
	if c.RandomizeInterval {
		return p.Rand.Duration(c.MinIntervalMinutes, c.MaxIntervalMinutes, time.Minute)
	}
	return p.Rand.Duration(0, 60, time.Second)
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
