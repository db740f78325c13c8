// internal/service/warmup_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/notify"
	"github.com/unclebandit/warmup-engine/internal/selection"
)

const (
	// MaxTestExecutions caps the executions synthesized on resume.
	MaxTestExecutions = 3
	testDelay         = 30 * time.Second
)

// Pause stops planning for the campaign. Sends already handed to the
// gateway are not recalled.
func (s *WarmupService) Pause(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.Repos.Campaigns.GetWithChildren(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, appErrors.NewConflict("Campaign is already paused")
	}
	changed, err := s.Repos.Campaigns.SetActive(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("pause campaign: %w", err)
	}
	if !changed {
		return nil, appErrors.NewConflict("Campaign is already paused")
	}
	c.IsActive = false

	s.Logger.Info("campaign paused", zap.String("campaign_id", id))
	s.Notifier.LogWarning(ctx, c.OrganizationID, notify.CampaignLog{
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Message:      "Campaign paused manually",
	})
	s.Notifier.CampaignStatus(ctx, c.OrganizationID, notify.CampaignStatus{
		CampaignID:     c.ID,
		CampaignName:   c.Name,
		Status:         model.CampaignStatusPaused,
		Message:        "Campaign paused manually",
		ActiveSessions: countActiveSessions(c.Sessions),
		TotalSessions:  len(c.Sessions),
	})
	return c, nil
}

// Resume reactivates the campaign and schedules a few test executions about
// 30 seconds out, bypassing the normal pacing.
func (s *WarmupService) Resume(ctx context.Context, id string) ([]*model.Execution, error) {
	c, err := s.Repos.Campaigns.GetWithChildren(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if c.IsActive {
		return nil, appErrors.NewConflict("Campaign is already active")
	}
	changed, err := s.Repos.Campaigns.SetActive(ctx, id, true)
	if err != nil {
		return nil, fmt.Errorf("resume campaign: %w", err)
	}
	if !changed {
		return nil, appErrors.NewConflict("Campaign is already active")
	}
	c.IsActive = true

	executions := s.scheduleTestExecutions(ctx, c)

	s.Logger.Info("campaign resumed",
		zap.String("campaign_id", id),
		zap.Int("test_executions", len(executions)))
	s.Notifier.LogSuccess(ctx, c.OrganizationID, notify.CampaignLog{
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Message:      "Campaign resumed",
		Details:      map[string]any{"test_executions": len(executions)},
	})
	s.Notifier.CampaignStatus(ctx, c.OrganizationID, notify.CampaignStatus{
		CampaignID:     c.ID,
		CampaignName:   c.Name,
		Status:         model.CampaignStatusActive,
		Message:        "Campaign resumed",
		ActiveSessions: len(c.Sessions),
		TotalSessions:  len(c.Sessions),
	})
	return executions, nil
}

type testPlan struct {
	from *model.CampaignSession
	plan model.WorkloadPlan
	at   time.Time
}

func (s *WarmupService) scheduleTestExecutions(ctx context.Context, c *model.Campaign) []*model.Execution {
	if len(c.Sessions) == 0 || len(c.Templates) == 0 {
		s.Notifier.LogWarning(ctx, c.OrganizationID, notify.CampaignLog{
			CampaignID:   c.ID,
			CampaignName: c.Name,
			Message:      "No test messages sent: campaign needs active sessions and templates",
		})
		return nil
	}

	base := s.Clock.Now().Add(testDelay)
	sessions := c.Sessions
	internal := c.EnableInternalConversations

	var plans []testPlan
	if internal && len(sessions) > 1 {
		plans = append(plans, testPlan{from: sessions[0], plan: model.Internal{ToSession: sessions[1]}, at: base})
	}
	if contact, ok := selection.Weighted(s.Rand, c.Contacts, func(cc *model.CampaignContact) int { return cc.Priority }); ok {
		plans = append(plans, testPlan{from: sessions[0], plan: model.External{Contact: contact}, at: base})
	}
	if internal && len(sessions) > 2 {
		for i := 0; i < min(2, len(sessions)-1); i++ {
			others := make([]*model.CampaignSession, 0, len(sessions)-1)
			for j, other := range sessions {
				if j != i {
					others = append(others, other)
				}
			}
			peer, _ := selection.Uniform(s.Rand, others)
			plans = append(plans, testPlan{
				from: sessions[i],
				plan: model.Internal{ToSession: peer},
				at:   base.Add(time.Duration(i+1) * testDelay),
			})
		}
	}
	if len(plans) > MaxTestExecutions {
		plans = plans[:MaxTestExecutions]
	}

	var out []*model.Execution
	for _, p := range plans {
		tpl, _ := selection.Weighted(s.Rand, c.Templates, func(t *model.MessageTemplate) int { return t.Weight })
		unlock := s.Locks.Lock(p.from.ID)
		e, err := s.schedule(ctx, c, p.from, p.plan, tpl, p.at)
		unlock()
		if err != nil {
			s.Logger.Error("schedule test execution",
				zap.String("campaign_id", c.ID),
				zap.String("session_id", p.from.SessionID),
				zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out
}

func countActiveSessions(sessions []*model.CampaignSession) int {
	n := 0
	for _, cs := range sessions {
		if cs.IsActive {
			n++
		}
	}
	return n
}

// ForceInput describes an execution scheduled immediately by an operator.
type ForceInput struct {
	ExecutionType model.ExecutionType `json:"execution_type"`
	FromSessionID string              `json:"from_session_id"`
	ToSessionID   string              `json:"to_session_id,omitempty"`
	ContactID     string              `json:"contact_id,omitempty"`
	TemplateID    string              `json:"template_id,omitempty"`
}

// ForceExecution schedules one execution at now, skipping pacing. Without a
// matching template a random active one is used.
func (s *WarmupService) ForceExecution(ctx context.Context, campaignID string, in ForceInput) (*model.Execution, error) {
	c, err := s.Repos.Campaigns.GetWithChildren(ctx, campaignID, true)
	if err != nil {
		return nil, err
	}
	from := findSession(c.Sessions, in.FromSessionID)
	if from == nil {
		return nil, appErrors.NewSessionNotFound(in.FromSessionID)
	}

	var plan model.WorkloadPlan
	switch in.ExecutionType {
	case model.ExecutionInternal:
		if in.ToSessionID == "" {
			return nil, appErrors.NewValidation("to_session_id", "is required for internal executions")
		}
		if in.ToSessionID == in.FromSessionID {
			return nil, appErrors.NewValidation("to_session_id", "must differ from from_session_id")
		}
		to := findSession(c.Sessions, in.ToSessionID)
		if to == nil {
			return nil, appErrors.NewSessionNotFound(in.ToSessionID)
		}
		plan = model.Internal{ToSession: to}
	case model.ExecutionExternal:
		if in.ContactID == "" {
			return nil, appErrors.NewValidation("contact_id", "is required for external executions")
		}
		var contact *model.CampaignContact
		for _, cc := range c.Contacts {
			if cc.ContactID == in.ContactID {
				contact = cc
				break
			}
		}
		if contact == nil {
			return nil, appErrors.NewContactNotFound(in.ContactID)
		}
		plan = model.External{Contact: contact}
	default:
		return nil, appErrors.NewValidation("execution_type", "must be %q or %q", model.ExecutionInternal, model.ExecutionExternal)
	}

	var tpl *model.MessageTemplate
	for _, t := range c.Templates {
		if t.ID == in.TemplateID {
			tpl = t
			break
		}
	}
	if tpl == nil {
		var ok bool
		tpl, ok = selection.Weighted(s.Rand, c.Templates, func(t *model.MessageTemplate) int { return t.Weight })
		if !ok {
			return nil, appErrors.NewValidation("template_id", "campaign has no active templates")
		}
	}

	unlock := s.Locks.Lock(from.ID)
	defer unlock()
	e, err := s.schedule(ctx, c, from, plan, tpl, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	s.Notifier.LogInfo(ctx, c.OrganizationID, notify.CampaignLog{
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Message:      "Execution forced manually",
		Details:      map[string]any{"execution_id": e.ID, "execution_type": e.ExecutionType},
		SessionID:    from.SessionID,
		SessionName:  from.Name(),
	})
	return e, nil
}

func findSession(sessions []*model.CampaignSession, sessionID string) *model.CampaignSession {
	for _, cs := range sessions {
		if cs.SessionID == sessionID {
			return cs
		}
	}
	return nil
}

type SessionScore struct {
	CampaignSessionID string  `json:"campaign_session_id"`
	SessionID         string  `json:"session_id"`
	SessionName       string  `json:"session_name"`
	HealthScore       float64 `json:"health_score"`
}

// RecalculateHealth recomputes the score of every session of the campaign.
func (s *WarmupService) RecalculateHealth(ctx context.Context, campaignID string) ([]SessionScore, error) {
	c, err := s.Repos.Campaigns.GetWithChildren(ctx, campaignID, false)
	if err != nil {
		return nil, err
	}
	scores := make([]SessionScore, 0, len(c.Sessions))
	for _, cs := range c.Sessions {
		score := s.Health.Recalculate(ctx, cs.ID)
		s.Metrics.SetHealth(c.ID, cs.SessionID, score)
		scores = append(scores, SessionScore{
			CampaignSessionID: cs.ID,
			SessionID:         cs.SessionID,
			SessionName:       cs.Name(),
			HealthScore:       score,
		})
		var lastActivity time.Time
		if cs.LastMessageAt != nil {
			lastActivity = *cs.LastMessageAt
		}
		s.Notifier.BotHealth(ctx, c.OrganizationID, notify.BotHealth{
			SessionID:    cs.SessionID,
			SessionName:  cs.Name(),
			CampaignID:   c.ID,
			CampaignName: c.Name,
			HealthScore:  score,
			LastActivity: lastActivity,
		})
	}
	return scores, nil
}

// AutoPauseTest configures a campaign to exercise auto pauses quickly.
type AutoPauseTest struct {
	EnableAutoPauses           bool `json:"enable_auto_pauses"`
	MaxPauseTimeMinutes        int  `json:"max_pause_time_minutes"`
	MinConversationTimeMinutes int  `json:"min_conversation_time_minutes"`
}

type AutoPauseTestResult struct {
	CampaignID        string `json:"campaign_id"`
	CampaignName      string `json:"campaign_name"`
	TotalSessions     int    `json:"total_sessions"`
	RandomizeInterval bool   `json:"randomize_interval"`
	AutoPauseTest
}

// TestAutoPause applies the pause settings, switches the campaign to
// 0-60s intervals and clears the pause state of every session.
func (s *WarmupService) TestAutoPause(ctx context.Context, campaignID string, in AutoPauseTest) (*AutoPauseTestResult, error) {
	if err := checkRange("max_pause_time_minutes", in.MaxPauseTimeMinutes, 1, 240); err != nil {
		return nil, err
	}
	if err := checkRange("min_conversation_time_minutes", in.MinConversationTimeMinutes, 1, 480); err != nil {
		return nil, err
	}
	c, err := s.Repos.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	c.EnableAutoPauses = in.EnableAutoPauses
	c.MaxPauseTimeMinutes = in.MaxPauseTimeMinutes
	c.MinConversationTimeMinutes = in.MinConversationTimeMinutes
	c.RandomizeInterval = false
	if err := s.Repos.Campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}
	if err := s.Repos.CampaignSessions.ResetPauses(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("reset pauses: %w", err)
	}
	sessions, err := s.Repos.CampaignSessions.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return &AutoPauseTestResult{
		CampaignID:        c.ID,
		CampaignName:      c.Name,
		TotalSessions:     len(sessions),
		RandomizeInterval: false,
		AutoPauseTest:     in,
	}, nil
}

// AutoReadInput updates the auto-read settings of a campaign session. Values
// are in seconds.
type AutoReadInput struct {
	Enabled  *bool `json:"auto_read_enabled"`
	Interval *int  `json:"auto_read_interval"`
	MinDelay *int  `json:"auto_read_min_delay"`
	MaxDelay *int  `json:"auto_read_max_delay"`
}

func (s *WarmupService) UpdateAutoReadSettings(ctx context.Context, campaignSessionID string, in AutoReadInput) (*model.CampaignSession, error) {
	cs, err := s.Repos.CampaignSessions.GetByID(ctx, campaignSessionID)
	if err != nil {
		return nil, err
	}
	if in.Enabled != nil {
		cs.AutoReadEnabled = *in.Enabled
	}
	if in.Interval != nil {
		cs.AutoReadInterval = *in.Interval
	}
	if in.MinDelay != nil {
		cs.AutoReadMinDelay = *in.MinDelay
	}
	if in.MaxDelay != nil {
		cs.AutoReadMaxDelay = *in.MaxDelay
	}
	if err := checkRange("auto_read_interval", cs.AutoReadInterval, 5, 300); err != nil {
		return nil, err
	}
	if err := checkRange("auto_read_min_delay", cs.AutoReadMinDelay, 1, 60); err != nil {
		return nil, err
	}
	if err := checkRange("auto_read_max_delay", cs.AutoReadMaxDelay, 1, 300); err != nil {
		return nil, err
	}
	if cs.AutoReadMinDelay > cs.AutoReadMaxDelay {
		return nil, appErrors.NewValidation("auto_read_min_delay", "must not exceed auto_read_max_delay")
	}
	if err := s.Repos.CampaignSessions.UpdateAutoRead(ctx, cs); err != nil {
		return nil, fmt.Errorf("update auto read: %w", err)
	}
	return cs, nil
}
