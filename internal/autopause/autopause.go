// Package autopause injects idle windows between activity bursts of a sender.
package autopause

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/repository"
	"github.com/unclebandit/warmup-engine/internal/selection"
)

// Extra delay after a pause ends before the session sends again, in seconds.
const (
	ResumeDelayMin = 60
	ResumeDelayMax = 300
)

// Store persists pause bookkeeping.
type Store interface {
	UpdatePauseState(ctx context.Context, id string, state repository.PauseState) error
}

type Controller struct {
	Store  Store
	Rand   *selection.Source
	Clock  clock.Clock
	Logger *zap.Logger
}

func New(store Store, rnd *selection.Source, c clock.Clock, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{Store: store, Rand: rnd, Clock: c, Logger: logger}
}

// Result describes how a candidate send time was adjusted.
type Result struct {
	At           time.Time
	Deferred     bool
	PauseApplied bool
}

// AfterPause returns a send time shortly after pauseUntil.
func (c *Controller) AfterPause(pauseUntil time.Time) time.Time {
	return pauseUntil.Add(c.Rand.Duration(ResumeDelayMin, ResumeDelayMax, time.Second))
}

// NextScheduleTime adjusts candidate for the session's pause state. cs is
// updated in place with any new pause bookkeeping, which is also persisted.
// After a pause is applied the state is re-evaluated exactly once.
func (c *Controller) NextScheduleTime(ctx context.Context, campaign *model.Campaign, cs *model.CampaignSession, candidate time.Time) (Result, error) {
	if !campaign.EnableAutoPauses {
		return Result{At: candidate}, nil
	}
	now := c.Clock.Now()

	applied := false
	for pass := 0; pass < 2; pass++ {
		if cs.IsPaused(now) {
			at := c.AfterPause(*cs.CurrentPauseUntil)
			if candidate.After(at) {
				at = candidate
			}
			return Result{At: at, Deferred: true, PauseApplied: applied}, nil
		}
		if pass == 1 {
			break
		}
		var err error
		applied, err = c.evaluate(ctx, campaign, cs, now)
		if err != nil {
			return Result{At: candidate}, err
		}
		if !applied {
			break
		}
	}
	return Result{At: candidate, PauseApplied: applied}, nil
}

// evaluate starts a burst or, once the burst lasted long enough, opens a pause.
func (c *Controller) evaluate(ctx context.Context, campaign *model.Campaign, cs *model.CampaignSession, now time.Time) (bool, error) {
	if cs.ConversationStartedAt == nil {
		started := now
		cs.ConversationStartedAt = &started
		return false, c.persist(ctx, cs)
	}

	minConversation := time.Duration(campaign.MinConversationTimeMinutes) * time.Minute
	if now.Sub(*cs.ConversationStartedAt) < minConversation {
		return false, nil
	}

	maxPause := campaign.MaxPauseTimeMinutes
	if maxPause < 1 {
		maxPause = 1
	}
	pause := c.Rand.Duration(1, maxPause, time.Minute)
	until := now.Add(pause)
	started := *cs.ConversationStartedAt

	cs.CurrentPauseUntil = &until
	cs.LastConversationStart = &started
	cs.ConversationStartedAt = nil
	if err := c.persist(ctx, cs); err != nil {
		return false, err
	}

	c.Logger.Info("auto pause applied",
		zap.String("campaign_id", campaign.ID),
		zap.String("session_id", cs.SessionID),
		zap.Duration("pause", pause),
		zap.Time("pause_until", until))
	return true, nil
}

func (c *Controller) persist(ctx context.Context, cs *model.CampaignSession) error {
	err := c.Store.UpdatePauseState(ctx, cs.ID, repository.PauseState{
		CurrentPauseUntil:     cs.CurrentPauseUntil,
		ConversationStartedAt: cs.ConversationStartedAt,
		LastConversationStart: cs.LastConversationStart,
	})
	if err != nil {
		return fmt.Errorf("persist pause state: %w", err)
	}
	return nil
}
