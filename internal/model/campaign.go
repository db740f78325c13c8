// internal/model/campaign.go
package model

import "time"

// Campaign holds the pacing configuration of a warmup workload.
type Campaign struct {
	ID             string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`
	Name           string `db:"name" json:"name"`
	Description    string `db:"description" json:"description"`

	DailyMessageGoal            int     `db:"daily_message_goal" json:"daily_message_goal"`
	MinIntervalMinutes          int     `db:"min_interval_minutes" json:"min_interval_minutes"`
	MaxIntervalMinutes          int     `db:"max_interval_minutes" json:"max_interval_minutes"`
	UseWorkingHours             bool    `db:"use_working_hours" json:"use_working_hours"`
	WorkingHourStart            int     `db:"working_hour_start" json:"working_hour_start"`
	WorkingHourEnd              int     `db:"working_hour_end" json:"working_hour_end"`
	AllowWeekends               bool    `db:"allow_weekends" json:"allow_weekends"`
	RandomizeInterval           bool    `db:"randomize_interval" json:"randomize_interval"`
	EnableInternalConversations bool    `db:"enable_internal_conversations" json:"enable_internal_conversations"`
	InternalConversationRatio   float64 `db:"internal_conversation_ratio" json:"internal_conversation_ratio"`
	EnableAutoPauses            bool    `db:"enable_auto_pauses" json:"enable_auto_pauses"`
	MaxPauseTimeMinutes         int     `db:"max_pause_time_minutes" json:"max_pause_time_minutes"`
	MinConversationTimeMinutes  int     `db:"min_conversation_time_minutes" json:"min_conversation_time_minutes"`

	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`

	// Loaded by the active-campaigns query; only active children are included.
	Sessions  []*CampaignSession `db:"-" json:"sessions,omitempty"`
	Contacts  []*CampaignContact `db:"-" json:"contacts,omitempty"`
	Templates []*MessageTemplate `db:"-" json:"templates,omitempty"`
}

// Campaign status values carried by campaign_status events.
const (
	CampaignStatusActive  = "active"
	CampaignStatusPaused  = "paused"
	CampaignStatusStopped = "stopped"
	CampaignStatusWaiting = "waiting"
)

// CampaignSession joins a Campaign with a sender Session and carries its pacing state.
type CampaignSession struct {
	ID         string `db:"id" json:"id"`
	CampaignID string `db:"campaign_id" json:"campaign_id"`
	SessionID  string `db:"session_id" json:"session_id"`

	DailyMessagesSent int        `db:"daily_messages_sent" json:"daily_messages_sent"`
	TotalMessagesSent int        `db:"total_messages_sent" json:"total_messages_sent"`
	LastMessageAt     *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	LastResetDate     time.Time  `db:"last_reset_date" json:"last_reset_date"`
	HealthScore       float64    `db:"health_score" json:"health_score"`

	CurrentPauseUntil     *time.Time `db:"current_pause_until" json:"current_pause_until,omitempty"`
	ConversationStartedAt *time.Time `db:"conversation_started_at" json:"conversation_started_at,omitempty"`
	LastConversationStart *time.Time `db:"last_conversation_start" json:"last_conversation_start,omitempty"`

	AutoReadEnabled  bool `db:"auto_read_enabled" json:"auto_read_enabled"`
	AutoReadInterval int  `db:"auto_read_interval" json:"auto_read_interval"`
	AutoReadMinDelay int  `db:"auto_read_min_delay" json:"auto_read_min_delay"`
	AutoReadMaxDelay int  `db:"auto_read_max_delay" json:"auto_read_max_delay"`

	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Session *Session `db:"-" json:"session,omitempty"`
}

// IsPaused reports whether an auto-pause window is open at now.
func (cs *CampaignSession) IsPaused(now time.Time) bool {
	return cs.CurrentPauseUntil != nil && cs.CurrentPauseUntil.After(now)
}

// Name returns the sender name, falling back to the session id.
func (cs *CampaignSession) Name() string {
	if cs.Session != nil && cs.Session.Name != "" {
		return cs.Session.Name
	}
	return cs.SessionID
}

// CampaignContact joins a Campaign with a Contact and a selection priority.
type CampaignContact struct {
	ID         string    `db:"id" json:"id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	ContactID  string    `db:"contact_id" json:"contact_id"`
	Priority   int       `db:"priority" json:"priority"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	Contact *Contact `db:"-" json:"contact,omitempty"`
}
