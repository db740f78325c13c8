// internal/service/reports.go
package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/health"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/repository"
)

// HealthWarningThreshold is the average campaign score below which the
// dashboard raises a warning.
const HealthWarningThreshold = 70.0

// ReportService answers the read-only reporting queries.
type ReportService struct {
	*Deps
}

func NewReportService(d *Deps) *ReportService {
	return &ReportService{Deps: d}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

func averageHealth(sessions []*model.CampaignSession) float64 {
	if len(sessions) == 0 {
		return health.NeutralScore
	}
	sum := 0.0
	for _, cs := range sessions {
		sum += cs.HealthScore
	}
	return sum / float64(len(sessions))
}

type counts struct {
	byStatus map[model.ExecutionStatus]int
	byType   map[model.ExecutionType]map[model.ExecutionStatus]int
	total    int
}

func tally(rows []repository.ExecutionCount) counts {
	c := counts{
		byStatus: map[model.ExecutionStatus]int{},
		byType:   map[model.ExecutionType]map[model.ExecutionStatus]int{},
	}
	for _, r := range rows {
		c.byStatus[r.Status] += r.Count
		if c.byType[r.ExecutionType] == nil {
			c.byType[r.ExecutionType] = map[model.ExecutionStatus]int{}
		}
		c.byType[r.ExecutionType][r.Status] += r.Count
		c.total += r.Count
	}
	return c
}

func (c counts) ofType(t model.ExecutionType) (total, sent int) {
	for status, n := range c.byType[t] {
		total += n
		if status == model.ExecutionSent {
			sent += n
		}
	}
	return total, sent
}

type SessionStats struct {
	ID                string     `json:"id"`
	SessionID         string     `json:"session_id"`
	SessionName       string     `json:"session_name"`
	Phone             string     `json:"phone"`
	HealthScore       float64    `json:"health_score"`
	DailyMessagesSent int        `json:"daily_messages_sent"`
	TotalMessagesSent int        `json:"total_messages_sent"`
	IsActive          bool       `json:"is_active"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
}

type CampaignStats struct {
	CampaignID           string         `json:"campaign_id"`
	CampaignName         string         `json:"campaign_name"`
	StatusCounts         map[string]int `json:"status_counts"`
	TotalExecutions      int            `json:"total_executions"`
	SuccessfulExecutions int            `json:"successful_executions"`
	SuccessRate          float64        `json:"success_rate"`
	AverageHealthScore   float64        `json:"average_health_score"`
	TotalSessions        int            `json:"total_sessions"`
	ActiveSessions       int            `json:"active_sessions"`
	Sessions             []SessionStats `json:"sessions"`
}

func (s *ReportService) GetCampaignStats(ctx context.Context, campaignID string) (*CampaignStats, error) {
	c, err := s.Repos.Campaigns.GetWithChildren(ctx, campaignID, false)
	if err != nil {
		return nil, err
	}
	rows, err := s.Repos.Executions.CountGrouped(ctx, repository.ExecutionFilter{CampaignIDs: []string{c.ID}})
	if err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	t := tally(rows)

	stats := &CampaignStats{
		CampaignID:           c.ID,
		CampaignName:         c.Name,
		StatusCounts:         map[string]int{},
		TotalExecutions:      t.total,
		SuccessfulExecutions: t.byStatus[model.ExecutionSent],
		SuccessRate:          percent(t.byStatus[model.ExecutionSent], t.total),
		AverageHealthScore:   round1(averageHealth(c.Sessions)),
		TotalSessions:        len(c.Sessions),
		ActiveSessions:       countActiveSessions(c.Sessions),
		Sessions:             make([]SessionStats, 0, len(c.Sessions)),
	}
	for status, n := range t.byStatus {
		stats.StatusCounts[string(status)] = n
	}
	for _, cs := range c.Sessions {
		row := SessionStats{
			ID:                cs.ID,
			SessionID:         cs.SessionID,
			SessionName:       cs.Name(),
			HealthScore:       cs.HealthScore,
			DailyMessagesSent: cs.DailyMessagesSent,
			TotalMessagesSent: cs.TotalMessagesSent,
			IsActive:          cs.IsActive,
			LastMessageAt:     cs.LastMessageAt,
		}
		if cs.Session != nil {
			row.Phone = cs.Session.Phone
		}
		stats.Sessions = append(stats.Sessions, row)
	}
	return stats, nil
}

type DeliveryStats struct {
	SessionID    string  `json:"session_id"`
	Total        int     `json:"total"`
	Sent         int     `json:"sent"`
	Failed       int     `json:"failed"`
	Scheduled    int     `json:"scheduled"`
	DeliveryRate float64 `json:"delivery_rate"`
	FailureRate  float64 `json:"failure_rate"`
	PeriodDays   int     `json:"period_days"`
}

// GetDeliveryStats summarizes the outcomes of a sender over the last days (default 30).
func (s *ReportService) GetDeliveryStats(ctx context.Context, sessionID string, days int) (*DeliveryStats, error) {
	if days <= 0 {
		days = 30
	}
	if _, err := s.Repos.Sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	since := s.Clock.Now().AddDate(0, 0, -days)
	rows, err := s.Repos.Executions.CountGrouped(ctx, repository.ExecutionFilter{FromSessionID: sessionID, Start: &since})
	if err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	t := tally(rows)
	sent, failed := t.byStatus[model.ExecutionSent], t.byStatus[model.ExecutionFailed]
	return &DeliveryStats{
		SessionID:    sessionID,
		Total:        t.total,
		Sent:         sent,
		Failed:       failed,
		Scheduled:    t.byStatus[model.ExecutionScheduled],
		DeliveryRate: percent(sent, t.total),
		FailureRate:  percent(failed, t.total),
		PeriodDays:   days,
	}, nil
}

type DashboardOverview struct {
	TotalCampaigns               int     `json:"total_campaigns"`
	ActiveCampaigns              int     `json:"active_campaigns"`
	TotalSessions                int     `json:"total_sessions"`
	ActiveSessions               int     `json:"active_sessions"`
	TotalMessagesSentToday       int     `json:"total_messages_sent_today"`
	InternalMessagesToday        int     `json:"internal_messages_today"`
	ExternalMessagesToday        int     `json:"external_messages_today"`
	AverageHealthScore           float64 `json:"average_health_score"`
	TotalContacts                int     `json:"total_contacts"`
	ActiveTemplates              int     `json:"active_templates"`
	InternalConversationsEnabled int     `json:"internal_conversations_enabled"`
}

type Activity struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	CampaignID     string    `json:"campaign_id"`
	CampaignName   string    `json:"campaign_name"`
	FromSessionID  string    `json:"from_session_id"`
	Status         string    `json:"status"`
	MessageContent string    `json:"message_content"`
	CreatedAt      time.Time `json:"created_at"`
}

type Alert struct {
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	Message      string `json:"message"`
}

type Dashboard struct {
	Overview       DashboardOverview `json:"overview"`
	RecentActivity []Activity        `json:"recent_activity"`
	Alerts         []Alert           `json:"alerts"`
}

func activityType(t model.ExecutionType) string {
	if t == model.ExecutionInternal {
		return "internal_conversation"
	}
	return "external_message"
}

func (s *ReportService) GetDashboard(ctx context.Context, organizationID string) (*Dashboard, error) {
	campaigns, err := s.Repos.Campaigns.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	now := s.Clock.Now()
	d := &Dashboard{RecentActivity: []Activity{}, Alerts: []Alert{}}
	o := &d.Overview

	names := map[string]string{}
	ids := make([]string, 0, len(campaigns))
	var healthSum float64
	for _, c := range campaigns {
		ids = append(ids, c.ID)
		names[c.ID] = c.Name
		o.TotalCampaigns++
		if c.IsActive {
			o.ActiveCampaigns++
		}
		o.TotalSessions += len(c.Sessions)
		o.ActiveSessions += countActiveSessions(c.Sessions)
		o.TotalContacts += len(c.Contacts)
		for _, t := range c.Templates {
			if t.IsActive {
				o.ActiveTemplates++
			}
		}
		if c.EnableInternalConversations {
			o.InternalConversationsEnabled++
		}
		for _, cs := range c.Sessions {
			healthSum += cs.HealthScore
		}

		if len(c.Sessions) > 0 && c.IsActive {
			if avg := averageHealth(c.Sessions); avg < HealthWarningThreshold {
				d.Alerts = append(d.Alerts, Alert{
					Type:         "health_warning",
					Severity:     "warning",
					CampaignID:   c.ID,
					CampaignName: c.Name,
					Message:      fmt.Sprintf("Average health score is %.1f", avg),
				})
			}
		}
		if !c.EnableInternalConversations && len(c.Sessions) > 1 {
			d.Alerts = append(d.Alerts, Alert{
				Type:         "internal_conversations_disabled",
				Severity:     "info",
				CampaignID:   c.ID,
				CampaignName: c.Name,
				Message:      "Internal conversations are disabled although the campaign has several sessions",
			})
		}
	}
	if o.TotalSessions > 0 {
		o.AverageHealthScore = round1(healthSum / float64(o.TotalSessions))
	}
	if len(ids) == 0 {
		return d, nil
	}

	today := clock.StartOfDay(now)
	rows, err := s.Repos.Executions.CountGrouped(ctx, repository.ExecutionFilter{CampaignIDs: ids, Start: &today})
	if err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	t := tally(rows)
	o.TotalMessagesSentToday = t.total
	o.InternalMessagesToday, _ = t.ofType(model.ExecutionInternal)
	o.ExternalMessagesToday, _ = t.ofType(model.ExecutionExternal)

	dayAgo := now.Add(-24 * time.Hour)
	recent, _, err := s.Repos.Executions.List(ctx, repository.ExecutionFilter{CampaignIDs: ids, Start: &dayAgo, Limit: 5})
	if err != nil {
		return nil, fmt.Errorf("list recent executions: %w", err)
	}
	for _, e := range recent {
		d.RecentActivity = append(d.RecentActivity, Activity{
			ID:             e.ID,
			Type:           activityType(e.ExecutionType),
			CampaignID:     e.CampaignID,
			CampaignName:   names[e.CampaignID],
			FromSessionID:  e.FromSessionID,
			Status:         string(e.Status),
			MessageContent: e.MessageContent,
			CreatedAt:      e.CreatedAt,
		})
	}
	return d, nil
}

type HealthSummary struct {
	TotalCampaigns               int     `json:"total_campaigns"`
	ActiveCampaigns              int     `json:"active_campaigns"`
	PausedCampaigns              int     `json:"paused_campaigns"`
	AverageHealthScore           float64 `json:"average_health_score"`
	CampaignsWithIssues          int     `json:"campaigns_with_issues"`
	TotalSessions                int     `json:"total_sessions"`
	InternalConversationsEnabled int     `json:"internal_conversations_enabled"`
}

type CampaignHealth struct {
	CampaignID         string   `json:"campaign_id"`
	CampaignName       string   `json:"campaign_name"`
	IsActive           bool     `json:"is_active"`
	AverageHealthScore float64  `json:"average_health_score"`
	TotalSessions      int      `json:"total_sessions"`
	ExecutionsLastWeek int      `json:"executions_last_week"`
	FailureRate        float64  `json:"failure_rate"`
	Issues             []string `json:"issues"`
	Recommendations    []string `json:"recommendations"`
}

type HealthReport struct {
	Summary   HealthSummary    `json:"summary"`
	Campaigns []CampaignHealth `json:"campaigns"`
}

// GetHealthReport lists issues and recommendations per campaign based on
// session scores and the last 7 days of executions.
func (s *ReportService) GetHealthReport(ctx context.Context, organizationID string) (*HealthReport, error) {
	campaigns, err := s.Repos.Campaigns.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	since := s.Clock.Now().AddDate(0, 0, -7)

	r := &HealthReport{Campaigns: make([]CampaignHealth, 0, len(campaigns))}
	var healthSum float64
	var scored int
	for _, c := range campaigns {
		rows, err := s.Repos.Executions.CountGrouped(ctx, repository.ExecutionFilter{CampaignIDs: []string{c.ID}, Start: &since})
		if err != nil {
			return nil, fmt.Errorf("count executions: %w", err)
		}
		t := tally(rows)
		ch := assessCampaign(c, t)
		r.Campaigns = append(r.Campaigns, ch)

		r.Summary.TotalCampaigns++
		if c.IsActive {
			r.Summary.ActiveCampaigns++
		} else {
			r.Summary.PausedCampaigns++
		}
		if c.EnableInternalConversations {
			r.Summary.InternalConversationsEnabled++
		}
		r.Summary.TotalSessions += len(c.Sessions)
		if len(c.Sessions) > 0 {
			healthSum += ch.AverageHealthScore
			scored++
			if ch.AverageHealthScore < HealthWarningThreshold {
				r.Summary.CampaignsWithIssues++
			}
		}
	}
	if scored > 0 {
		r.Summary.AverageHealthScore = round1(healthSum / float64(scored))
	}
	return r, nil
}

func assessCampaign(c *model.Campaign, t counts) CampaignHealth {
	ch := CampaignHealth{
		CampaignID:         c.ID,
		CampaignName:       c.Name,
		IsActive:           c.IsActive,
		AverageHealthScore: round1(averageHealth(c.Sessions)),
		TotalSessions:      len(c.Sessions),
		ExecutionsLastWeek: t.total,
		Issues:             []string{},
		Recommendations:    []string{},
	}
	if t.total > 0 {
		ch.FailureRate = float64(t.byStatus[model.ExecutionFailed]) / float64(t.total)
	}

	issue := func(msg string) { ch.Issues = append(ch.Issues, msg) }
	recommend := func(msg string) { ch.Recommendations = append(ch.Recommendations, msg) }

	switch {
	case len(c.Sessions) == 0:
		issue("Campaign has no sessions")
		recommend("Attach at least one session to start warming up")
	case ch.AverageHealthScore < 40:
		issue(fmt.Sprintf("Critical health score (%.1f)", ch.AverageHealthScore))
		recommend("Pause the campaign and lower the daily message goal")
	case ch.AverageHealthScore < HealthWarningThreshold:
		issue(fmt.Sprintf("Low health score (%.1f)", ch.AverageHealthScore))
		recommend("Increase the interval between messages")
	}

	if ch.FailureRate > 0.1 {
		issue(fmt.Sprintf("High failure rate (%.1f%%) in the last 7 days", ch.FailureRate*100))
		recommend("Check the connection of the sessions")
	}

	if len(c.Sessions) > 1 && !c.EnableInternalConversations {
		recommend("Enable internal conversations to generate organic traffic between sessions")
	}
	if c.EnableInternalConversations && c.InternalConversationRatio < 0.2 {
		recommend("Raise the internal conversation ratio to at least 20%")
	}

	active := 0
	for _, tpl := range c.Templates {
		if tpl.IsActive {
			active++
		}
	}
	switch {
	case active == 0:
		issue("Campaign has no active templates")
		recommend("Add message templates")
	case active < 3:
		recommend("Add more templates to vary the message content")
	}

	if c.IsActive && t.total == 0 {
		issue("No executions in the last 7 days")
		recommend("Check the working hours and the sessions of the campaign")
	}
	return ch
}

// HistoryFilter narrows the execution history of a campaign.
type HistoryFilter struct {
	Status        model.ExecutionStatus
	ExecutionType model.ExecutionType
	FromSessionID string
	ToSessionID   string
	Start         *time.Time
	End           *time.Time
	Page          int
	Limit         int
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type HistorySummary struct {
	TotalInternal       int     `json:"total_internal"`
	TotalExternal       int     `json:"total_external"`
	InternalSuccessRate float64 `json:"internal_success_rate"`
	ExternalSuccessRate float64 `json:"external_success_rate"`
}

type ExecutionHistory struct {
	Executions []*model.Execution `json:"executions"`
	Pagination Pagination         `json:"pagination"`
	Summary    HistorySummary     `json:"summary"`
}

// GetExecutionHistory returns the campaign's executions newest first.
func (s *ReportService) GetExecutionHistory(ctx context.Context, campaignID string, f HistoryFilter) (*ExecutionHistory, error) {
	if _, err := s.Repos.Campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}

	filter := repository.ExecutionFilter{
		CampaignIDs:   []string{campaignID},
		Status:        f.Status,
		ExecutionType: f.ExecutionType,
		FromSessionID: f.FromSessionID,
		ToSessionID:   f.ToSessionID,
		Start:         f.Start,
		End:           f.End,
	}
	rows, err := s.Repos.Executions.CountGrouped(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}

	filter.Offset = (f.Page - 1) * f.Limit
	filter.Limit = f.Limit
	executions, total, err := s.Repos.Executions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	t := tally(rows)
	internal, internalSent := t.ofType(model.ExecutionInternal)
	external, externalSent := t.ofType(model.ExecutionExternal)
	return &ExecutionHistory{
		Executions: executions,
		Pagination: Pagination{
			Page:       f.Page,
			Limit:      f.Limit,
			Total:      total,
			TotalPages: (total + f.Limit - 1) / f.Limit,
		},
		Summary: HistorySummary{
			TotalInternal:       internal,
			TotalExternal:       external,
			InternalSuccessRate: percent(internalSent, internal),
			ExternalSuccessRate: percent(externalSent, external),
		},
	}, nil
}
