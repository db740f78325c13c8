// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/clock"
	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
)

// WarmupService implements the operator operations on campaigns.
type WarmupService struct {
	*Deps
}

func NewWarmupService(d *Deps) *WarmupService {
	return &WarmupService{Deps: d}
}

// CampaignInput carries campaign fields for create and update. Nil fields
// keep their current (or default) value.
type CampaignInput struct {
	Name                        *string  `json:"name"`
	Description                 *string  `json:"description"`
	DailyMessageGoal            *int     `json:"daily_message_goal"`
	MinIntervalMinutes          *int     `json:"min_interval_minutes"`
	MaxIntervalMinutes          *int     `json:"max_interval_minutes"`
	UseWorkingHours             *bool    `json:"use_working_hours"`
	WorkingHourStart            *int     `json:"working_hour_start"`
	WorkingHourEnd              *int     `json:"working_hour_end"`
	AllowWeekends               *bool    `json:"allow_weekends"`
	RandomizeInterval           *bool    `json:"randomize_interval"`
	EnableInternalConversations *bool    `json:"enable_internal_conversations"`
	InternalConversationRatio   *float64 `json:"internal_conversation_ratio"`
	EnableAutoPauses            *bool    `json:"enable_auto_pauses"`
	MaxPauseTimeMinutes         *int     `json:"max_pause_time_minutes"`
	MinConversationTimeMinutes  *int     `json:"min_conversation_time_minutes"`

	// Only used on create.
	SessionIDs []string `json:"session_ids"`
	ContactIDs []string `json:"contact_ids"`
}

// NewCampaign returns a campaign with the default pacing configuration.
func NewCampaign(organizationID string) *model.Campaign {
	return &model.Campaign{
		OrganizationID:             organizationID,
		DailyMessageGoal:           50,
		MinIntervalMinutes:         30,
		MaxIntervalMinutes:         180,
		UseWorkingHours:            true,
		WorkingHourStart:           8,
		WorkingHourEnd:             18,
		RandomizeInterval:          true,
		InternalConversationRatio:  0.2,
		MaxPauseTimeMinutes:        30,
		MinConversationTimeMinutes: 20,
		IsActive:                   true,
	}
}

func (in CampaignInput) apply(c *model.Campaign) {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.DailyMessageGoal != nil {
		c.DailyMessageGoal = *in.DailyMessageGoal
	}
	if in.MinIntervalMinutes != nil {
		c.MinIntervalMinutes = *in.MinIntervalMinutes
	}
	if in.MaxIntervalMinutes != nil {
		c.MaxIntervalMinutes = *in.MaxIntervalMinutes
	}
	if in.UseWorkingHours != nil {
		c.UseWorkingHours = *in.UseWorkingHours
	}
	if in.WorkingHourStart != nil {
		c.WorkingHourStart = *in.WorkingHourStart
	}
	if in.WorkingHourEnd != nil {
		c.WorkingHourEnd = *in.WorkingHourEnd
	}
	if in.AllowWeekends != nil {
		c.AllowWeekends = *in.AllowWeekends
	}
	if in.RandomizeInterval != nil {
		c.RandomizeInterval = *in.RandomizeInterval
	}
	if in.EnableInternalConversations != nil {
		c.EnableInternalConversations = *in.EnableInternalConversations
	}
	if in.InternalConversationRatio != nil {
		c.InternalConversationRatio = *in.InternalConversationRatio
	}
	if in.EnableAutoPauses != nil {
		c.EnableAutoPauses = *in.EnableAutoPauses
	}
	if in.MaxPauseTimeMinutes != nil {
		c.MaxPauseTimeMinutes = *in.MaxPauseTimeMinutes
	}
	if in.MinConversationTimeMinutes != nil {
		c.MinConversationTimeMinutes = *in.MinConversationTimeMinutes
	}
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return appErrors.NewValidation(field, "must be between %d and %d", lo, hi)
	}
	return nil
}

// ValidateCampaign checks the pacing configuration.
func ValidateCampaign(c *model.Campaign) error {
	if c.Name == "" {
		return appErrors.NewValidation("name", "is required")
	}
	checks := []error{
		checkRange("daily_message_goal", c.DailyMessageGoal, 1, 10000),
		checkRange("min_interval_minutes", c.MinIntervalMinutes, 0, 1440),
		checkRange("max_interval_minutes", c.MaxIntervalMinutes, 1, 1440),
		checkRange("working_hour_start", c.WorkingHourStart, 0, 23),
		checkRange("working_hour_end", c.WorkingHourEnd, 0, 23),
		checkRange("max_pause_time_minutes", c.MaxPauseTimeMinutes, 1, 240),
		checkRange("min_conversation_time_minutes", c.MinConversationTimeMinutes, 1, 480),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.RandomizeInterval && c.MinIntervalMinutes >= c.MaxIntervalMinutes {
		return appErrors.NewValidation("min_interval_minutes", "must be lower than max_interval_minutes")
	}
	if c.WorkingHourStart >= c.WorkingHourEnd {
		return appErrors.NewValidation("working_hour_start", "must be lower than working_hour_end")
	}
	if c.InternalConversationRatio < 0 || c.InternalConversationRatio > 1 {
		return appErrors.NewValidation("internal_conversation_ratio", "must be between 0 and 1")
	}
	return nil
}

func (s *WarmupService) CreateCampaign(ctx context.Context, organizationID string, in CampaignInput) (*model.Campaign, error) {
	c := NewCampaign(organizationID)
	in.apply(c)
	if err := ValidateCampaign(c); err != nil {
		return nil, err
	}

	err := s.Repos.Tx.Transact(ctx, func(ctx context.Context) error {
		if err := s.Repos.Campaigns.Create(ctx, c); err != nil {
			return fmt.Errorf("create campaign: %w", err)
		}
		if err := s.attachSessions(ctx, c.ID, in.SessionIDs); err != nil {
			return err
		}
		for _, id := range in.ContactIDs {
			if err := s.attachContact(ctx, c.ID, id, 1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("organization_id", organizationID))
	return s.Repos.Campaigns.GetWithChildren(ctx, c.ID, false)
}

// UpdateCampaign merges in into the stored campaign and re-validates it.
func (s *WarmupService) UpdateCampaign(ctx context.Context, id string, in CampaignInput) (*model.Campaign, error) {
	c, err := s.Repos.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(c)
	if err := ValidateCampaign(c); err != nil {
		return nil, err
	}
	if err := s.Repos.Campaigns.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}
	return s.Repos.Campaigns.GetWithChildren(ctx, id, false)
}

// DeleteCampaign removes the campaign and everything it owns.
func (s *WarmupService) DeleteCampaign(ctx context.Context, id string) error {
	if _, err := s.Repos.Campaigns.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.Repos.Campaigns.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	s.Logger.Info("campaign deleted", zap.String("campaign_id", id))
	return nil
}

// GetCampaign fetches a campaign with all its children.
func (s *WarmupService) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.Repos.Campaigns.GetWithChildren(ctx, id, false)
}

// ListCampaigns fetches campaigns with pagination
func (s *WarmupService) ListCampaigns(ctx context.Context, organizationID string, page, pageSize int) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.Repos.Campaigns.ListCampaigns(ctx, organizationID, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// AttachSessions adds sessions to the campaign, reactivating detached ones.
func (s *WarmupService) AttachSessions(ctx context.Context, campaignID string, sessionIDs []string) ([]*model.CampaignSession, error) {
	if len(sessionIDs) == 0 {
		return nil, appErrors.NewValidation("session_ids", "at least one session is required")
	}
	if _, err := s.Repos.Campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	err := s.Repos.Tx.Transact(ctx, func(ctx context.Context) error {
		return s.attachSessions(ctx, campaignID, sessionIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.Repos.CampaignSessions.ListByCampaign(ctx, campaignID)
}

func (s *WarmupService) attachSessions(ctx context.Context, campaignID string, sessionIDs []string) error {
	today := clock.StartOfDay(s.Clock.Now())
	for _, id := range sessionIDs {
		if _, err := s.Repos.Sessions.GetByID(ctx, id); err != nil {
			return err
		}
		if _, err := s.Repos.CampaignSessions.Attach(ctx, campaignID, id, today); err != nil {
			return fmt.Errorf("attach session %s: %w", id, err)
		}
	}
	return nil
}

func (s *WarmupService) DetachSession(ctx context.Context, campaignID, sessionID string) error {
	return s.Repos.CampaignSessions.Detach(ctx, campaignID, sessionID)
}

// ContactInput attaches one contact with a selection priority (1-5).
type ContactInput struct {
	ContactID string `json:"contact_id"`
	Priority  int    `json:"priority"`
}

func (s *WarmupService) AttachContacts(ctx context.Context, campaignID string, contacts []ContactInput) ([]*model.CampaignContact, error) {
	if len(contacts) == 0 {
		return nil, appErrors.NewValidation("contacts", "at least one contact is required")
	}
	if _, err := s.Repos.Campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	err := s.Repos.Tx.Transact(ctx, func(ctx context.Context) error {
		for _, in := range contacts {
			priority := in.Priority
			if priority == 0 {
				priority = 1
			}
			if err := checkRange("priority", priority, 1, 5); err != nil {
				return err
			}
			if err := s.attachContact(ctx, campaignID, in.ContactID, priority); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Repos.CampaignContacts.ListByCampaign(ctx, campaignID)
}

func (s *WarmupService) attachContact(ctx context.Context, campaignID, contactID string, priority int) error {
	if _, err := s.Repos.Contacts.GetByID(ctx, contactID); err != nil {
		return err
	}
	if _, err := s.Repos.CampaignContacts.Attach(ctx, campaignID, contactID, priority); err != nil {
		return fmt.Errorf("attach contact %s: %w", contactID, err)
	}
	return nil
}

func (s *WarmupService) DetachContact(ctx context.Context, campaignID, contactID string) error {
	return s.Repos.CampaignContacts.Detach(ctx, campaignID, contactID)
}
