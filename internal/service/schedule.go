// internal/service/schedule.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/notify"
)

// target describes who an execution is addressed to.
type target struct {
	ID    string
	Name  string
	Phone string
	Email string
}

func targetOf(plan model.WorkloadPlan) (target, string) {
	switch p := plan.(type) {
	case model.Internal:
		t := target{ID: p.ToSession.SessionID}
		if p.ToSession.Session != nil {
			t.Name = p.ToSession.Session.Name
			t.Phone = p.ToSession.Session.Phone
		}
		return t, DefaultSessionName
	case model.External:
		t := target{ID: p.Contact.ContactID}
		if p.Contact.Contact != nil {
			t.Name = p.Contact.Contact.Name
			t.Phone = p.Contact.Contact.Phone
			t.Email = p.Contact.Contact.Email
		}
		return t, DefaultContactName
	}
	return target{}, DefaultContactName
}

// schedule persists a new scheduled execution from cs, bumps the session
// counters in the same transaction and emits the scheduling events. The
// caller holds the session lock.
func (d *Deps) schedule(ctx context.Context, c *model.Campaign, cs *model.CampaignSession, plan model.WorkloadPlan, tpl *model.MessageTemplate, at time.Time) (*model.Execution, error) {
	now := d.Clock.Now()
	to, fallback := targetOf(plan)
	content := Personalize(tpl.Content, Recipient{Name: to.Name, Phone: to.Phone, Email: to.Email}, now, fallback)

	e := model.NewExecution(c.ID, cs.SessionID, plan, tpl, content, at)

	var daily, total int
	err := d.Repos.Tx.Transact(ctx, func(ctx context.Context) error {
		if err := d.Repos.Executions.Create(ctx, e); err != nil {
			return fmt.Errorf("create execution: %w", err)
		}
		// forced and resumed work can run before the first tick of the day
		if _, err := d.Repos.CampaignSessions.ResetDaily(ctx, cs.ID, clock.StartOfDay(now)); err != nil {
			return fmt.Errorf("reset daily counter: %w", err)
		}
		var err error
		daily, total, err = d.Repos.CampaignSessions.IncrementCounters(ctx, cs.ID, at)
		if err != nil {
			return fmt.Errorf("increment counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cs.DailyMessagesSent = daily
	cs.TotalMessagesSent = total
	last := at
	cs.LastMessageAt = &last

	d.Metrics.ExecutionPlanned(string(e.ExecutionType))
	d.Logger.Debug("execution scheduled",
		zap.String("campaign_id", c.ID),
		zap.String("session_id", cs.SessionID),
		zap.String("execution_id", e.ID),
		zap.String("execution_type", string(e.ExecutionType)),
		zap.Time("scheduled_at", at))

	d.emitScheduled(ctx, c, cs, e, to)

	if daily == c.DailyMessageGoal {
		d.Notifier.DailyLimitReached(ctx, c.OrganizationID, notify.DailyLimit{
			CampaignID:   c.ID,
			CampaignName: c.Name,
			SessionID:    cs.SessionID,
			SessionName:  cs.Name(),
			MessagesSent: daily,
			DailyGoal:    c.DailyMessageGoal,
		})
	}
	return e, nil
}

func (d *Deps) emitScheduled(ctx context.Context, c *model.Campaign, cs *model.CampaignSession, e *model.Execution, to target) {
	scheduledAt := e.ScheduledAt
	d.Notifier.Execution(ctx, c.OrganizationID, notify.Execution{
		CampaignID:     c.ID,
		CampaignName:   c.Name,
		SessionID:      cs.SessionID,
		SessionName:    cs.Name(),
		ContactID:      to.ID,
		ContactName:    to.Name,
		ContactPhone:   to.Phone,
		MessageContent: e.MessageContent,
		MessageType:    e.MessageType,
		Status:         string(e.Status),
		ScheduledAt:    e.ScheduledAt,
	})
	d.Notifier.ExecutionLog(ctx, c.OrganizationID, executionLog(c, cs, e, to, &scheduledAt))
	d.Notifier.Progress(ctx, c.OrganizationID, notify.Progress{
		CampaignID:   c.ID,
		CampaignName: c.Name,
		SessionID:    cs.SessionID,
		SessionName:  cs.Name(),
		Progress: notify.ProgressCounters{
			DailyMessagesSent: cs.DailyMessagesSent,
			DailyGoal:         c.DailyMessageGoal,
			TotalMessagesSent: cs.TotalMessagesSent,
			HealthScore:       cs.HealthScore,
		},
	})
}

func executionLog(c *model.Campaign, cs *model.CampaignSession, e *model.Execution, to target, scheduledAt *time.Time) notify.ExecutionLog {
	l := notify.ExecutionLog{
		ExecutionID:    e.ID,
		CampaignID:     c.ID,
		CampaignName:   c.Name,
		SessionID:      cs.SessionID,
		SessionName:    cs.Name(),
		Type:           string(e.ExecutionType),
		Status:         string(e.Status),
		MessageContent: e.MessageContent,
		ScheduledAt:    scheduledAt,
		ExecutedAt:     e.SentAt,
	}
	if e.ErrorMessage != nil {
		l.ErrorMessage = *e.ErrorMessage
	}
	name := to.Name
	if name == "" {
		name = to.ID
	}
	if e.ExecutionType == model.ExecutionInternal {
		l.TargetSession = name
	} else {
		l.TargetContact = name
	}
	return l
}
