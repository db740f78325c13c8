// internal/service/dispatcher.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/gateway"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/notify"
)

// Dispatcher hands due executions to the gateway.
type Dispatcher struct {
	*Deps
	BatchSize   int
	MaxInFlight int
	SendTimeout time.Duration
}

func NewDispatcher(d *Deps, batchSize, maxInFlight int, sendTimeout time.Duration) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxInFlight <= 0 {
		maxInFlight = batchSize
	}
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Dispatcher{Deps: d, BatchSize: batchSize, MaxInFlight: maxInFlight, SendTimeout: sendTimeout}
}

// DispatchResult counts what happened to the due batch.
type DispatchResult struct {
	Sent     int
	Failed   int
	Deferred int
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
	outcomeDeferred
)

// DispatchDue processes one batch of due executions. Executions of different
// sessions run concurrently; executions of one session run in order.
func (d *Dispatcher) DispatchDue(ctx context.Context) (DispatchResult, error) {
	due, err := d.Repos.Executions.ListDue(ctx, d.Clock.Now(), d.BatchSize)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("list due executions: %w", err)
	}

	var keys []string
	groups := map[string][]*model.Execution{}
	for _, e := range due {
		key := e.CampaignID + "|" + e.FromSessionID
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], e)
	}

	outcomes := make(chan outcome, len(due))
	sem := semaphore.NewWeighted(int64(d.MaxInFlight))
	var g errgroup.Group
	for _, key := range keys {
		batch := groups[key]
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			d.dispatchSession(ctx, batch, outcomes)
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)

	var res DispatchResult
	for o := range outcomes {
		switch o {
		case outcomeSent:
			res.Sent++
		case outcomeFailed:
			res.Failed++
		case outcomeDeferred:
			res.Deferred++
		}
	}
	return res, ctx.Err()
}

func (d *Dispatcher) dispatchSession(ctx context.Context, batch []*model.Execution, outcomes chan<- outcome) {
	first := batch[0]
	log := d.Logger.With(
		zap.String("campaign_id", first.CampaignID),
		zap.String("session_id", first.FromSessionID))

	c, err := d.Repos.Campaigns.GetByID(ctx, first.CampaignID)
	if err != nil {
		log.Error("load campaign for dispatch", zap.Error(err))
		return
	}
	cs, err := d.Repos.CampaignSessions.GetByCampaignAndSession(ctx, first.CampaignID, first.FromSessionID)
	if err != nil {
		log.Error("load campaign session for dispatch", zap.Error(err))
		for _, e := range batch {
			d.fail(ctx, c, &model.CampaignSession{CampaignID: c.ID, SessionID: e.FromSessionID}, e, target{}, "session is not part of the campaign")
			outcomes <- outcomeFailed
		}
		return
	}

	unlock := d.Locks.Lock(cs.ID)
	defer unlock()

	// reload under the lock; the planner may have opened a pause meanwhile
	if fresh, err := d.Repos.CampaignSessions.GetByID(ctx, cs.ID); err == nil {
		cs = fresh
	}
	if sender, err := d.Repos.Sessions.GetByID(ctx, cs.SessionID); err == nil {
		cs.Session = sender
	}

	for _, e := range batch {
		if ctx.Err() != nil {
			return
		}
		var o outcome
		err := guard(func() error {
			var err error
			o, err = d.dispatchOne(ctx, c, cs, e)
			return err
		})
		if err != nil {
			log.Error("dispatch failed", zap.String("execution_id", e.ID), zap.Error(err))
			continue
		}
		outcomes <- o
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, c *model.Campaign, cs *model.CampaignSession, e *model.Execution) (outcome, error) {
	now := d.Clock.Now()
	if cs.IsPaused(now) {
		at := d.Pauses.AfterPause(*cs.CurrentPauseUntil)
		changed, err := d.Repos.Executions.Reschedule(ctx, e.ID, at)
		if err != nil {
			return outcomeSkipped, fmt.Errorf("reschedule: %w", err)
		}
		if !changed {
			return outcomeSkipped, nil
		}
		d.Metrics.ExecutionDeferred()
		d.Logger.Debug("execution deferred by auto pause",
			zap.String("execution_id", e.ID),
			zap.Time("scheduled_at", at))
		return outcomeDeferred, nil
	}

	to, err := d.resolveTarget(ctx, e)
	if err != nil {
		d.fail(ctx, c, cs, e, to, err.Error())
		return outcomeFailed, nil
	}
	if err := d.requireConnected(ctx, cs.SessionID); err != nil {
		d.fail(ctx, c, cs, e, to, err.Error())
		return outcomeFailed, nil
	}
	if e.ExecutionType == model.ExecutionInternal {
		if err := d.requireConnected(ctx, to.ID); err != nil {
			d.fail(ctx, c, cs, e, to, "target "+err.Error())
			return outcomeFailed, nil
		}
	}

	sending := *e
	sending.Status = "sending"
	d.Notifier.ExecutionLog(ctx, c.OrganizationID, executionLog(c, cs, &sending, to, &e.ScheduledAt))

	msg := gateway.Message{
		SessionID:   cs.SessionID,
		Target:      to.Phone,
		Content:     e.MessageContent,
		MessageType: e.MessageType,
	}
	if e.TemplateID != nil {
		if tpl, err := d.Repos.Templates.GetByID(ctx, *e.TemplateID); err == nil && tpl.MediaPath != nil {
			msg.MediaRef = *tpl.MediaPath
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.SendTimeout)
	_, err = d.Gateway.Send(sendCtx, msg)
	cancel()
	if err != nil {
		d.fail(ctx, c, cs, e, to, err.Error())
		return outcomeFailed, nil
	}
	return d.succeed(ctx, c, cs, e, to)
}

func (d *Dispatcher) resolveTarget(ctx context.Context, e *model.Execution) (target, error) {
	switch p := e.Plan().(type) {
	case model.Internal:
		t := target{ID: p.ToSession.SessionID}
		s, err := d.Repos.Sessions.GetByID(ctx, t.ID)
		if err != nil {
			return t, fmt.Errorf("load target session: %w", err)
		}
		t.Name, t.Phone = s.Name, s.Phone
		return t, nil
	case model.External:
		t := target{ID: p.Contact.ContactID}
		ct, err := d.Repos.Contacts.GetByID(ctx, t.ID)
		if err != nil {
			return t, fmt.Errorf("load contact: %w", err)
		}
		t.Name, t.Phone, t.Email = ct.Name, ct.Phone, ct.Email
		return t, nil
	}
	return target{}, fmt.Errorf("execution target does not match type %q", e.ExecutionType)
}

func (d *Dispatcher) requireConnected(ctx context.Context, sessionID string) error {
	status, err := d.Gateway.Status(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session %s status: %w", sessionID, err)
	}
	if status != model.SessionStatusConnected {
		return fmt.Errorf("session %s is not connected (%s)", sessionID, status)
	}
	return nil
}

func (d *Dispatcher) succeed(ctx context.Context, c *model.Campaign, cs *model.CampaignSession, e *model.Execution, to target) (outcome, error) {
	sentAt := d.Clock.Now()
	changed, err := d.Repos.Executions.MarkSent(ctx, e.ID, sentAt)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("mark sent: %w", err)
	}
	if !changed {
		return outcomeSkipped, nil
	}
	e.Status = model.ExecutionSent
	e.SentAt = &sentAt

	if err := d.Repos.HealthMetrics.IncrementDay(ctx, cs.ID, clock.StartOfDay(sentAt)); err != nil {
		d.Logger.Warn("update health metric",
			zap.String("campaign_id", c.ID),
			zap.String("session_id", cs.SessionID),
			zap.Error(err))
	}
	cs.HealthScore = d.Health.Recalculate(ctx, cs.ID)
	d.Metrics.SetHealth(c.ID, cs.SessionID, cs.HealthScore)
	d.Metrics.ExecutionDispatched(string(model.ExecutionSent))

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
		ExecutedAt:     &sentAt,
	})
	d.Notifier.ExecutionLog(ctx, c.OrganizationID, executionLog(c, cs, e, to, &e.ScheduledAt))
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
		LastExecution: &notify.LastExecution{
			ContactName:    to.Name,
			ContactPhone:   to.Phone,
			MessageContent: e.MessageContent,
			ExecutedAt:     sentAt,
			Status:         string(e.Status),
		},
	})
	return outcomeSent, nil
}

// fail records a terminal failure. Failed executions are never retried.
func (d *Dispatcher) fail(ctx context.Context, c *model.Campaign, cs *model.CampaignSession, e *model.Execution, to target, reason string) {
	now := d.Clock.Now()
	changed, err := d.Repos.Executions.MarkFailed(ctx, e.ID, reason, now)
	if err != nil {
		d.Logger.Error("mark execution failed",
			zap.String("campaign_id", c.ID),
			zap.String("session_id", cs.SessionID),
			zap.String("execution_id", e.ID),
			zap.Error(err))
		return
	}
	if !changed {
		return
	}
	e.Status = model.ExecutionFailed
	e.SentAt = &now
	e.ErrorMessage = &reason

	d.Logger.Warn("execution failed",
		zap.String("campaign_id", c.ID),
		zap.String("session_id", cs.SessionID),
		zap.String("execution_id", e.ID),
		zap.String("reason", reason))
	d.Metrics.ExecutionDispatched(string(model.ExecutionFailed))
	if cs.ID != "" {
		score := d.Health.Recalculate(ctx, cs.ID)
		d.Metrics.SetHealth(c.ID, cs.SessionID, score)
	}

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
		ExecutedAt:     &now,
		ErrorMessage:   reason,
	})
	d.Notifier.ExecutionLog(ctx, c.OrganizationID, executionLog(c, cs, e, to, &e.ScheduledAt))
	d.Notifier.LogError(ctx, c.OrganizationID, notify.CampaignLog{
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Message:      "Failed to send message",
		Details:      map[string]any{"execution_id": e.ID, "error": reason},
		SessionID:    cs.SessionID,
		SessionName:  cs.Name(),
	})
}
