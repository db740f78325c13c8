package notify

import "time"

type ProgressCounters struct {
	DailyMessagesSent int     `json:"daily_messages_sent"`
	DailyGoal         int     `json:"daily_goal"`
	TotalMessagesSent int     `json:"total_messages_sent"`
	HealthScore       float64 `json:"health_score"`
}

type LastExecution struct {
	ContactName    string    `json:"contact_name"`
	ContactPhone   string    `json:"contact_phone"`
	MessageContent string    `json:"message_content"`
	ExecutedAt     time.Time `json:"executed_at"`
	Status         string    `json:"status"`
}

type Progress struct {
	CampaignID    string           `json:"campaign_id"`
	CampaignName  string           `json:"campaign_name"`
	SessionID     string           `json:"session_id"`
	SessionName   string           `json:"session_name"`
	Progress      ProgressCounters `json:"progress"`
	LastExecution *LastExecution   `json:"last_execution,omitempty"`
}

// Execution reports a scheduled or sent execution. For internal executions
// the Contact fields describe the target session.
type Execution struct {
	CampaignID     string     `json:"campaign_id"`
	CampaignName   string     `json:"campaign_name"`
	SessionID      string     `json:"session_id"`
	SessionName    string     `json:"session_name"`
	ContactID      string     `json:"contact_id"`
	ContactName    string     `json:"contact_name"`
	ContactPhone   string     `json:"contact_phone"`
	MessageContent string     `json:"message_content"`
	MessageType    string     `json:"message_type"`
	Status         string     `json:"status"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

type HealthMetrics struct {
	MessagesSent           int     `json:"messages_sent"`
	MessagesDelivered      int     `json:"messages_delivered"`
	MessagesRead           int     `json:"messages_read"`
	ResponsesReceived      int     `json:"responses_received"`
	AverageMessagesPerHour float64 `json:"average_messages_per_hour"`
}

type HealthUpdate struct {
	CampaignID     string        `json:"campaign_id"`
	CampaignName   string        `json:"campaign_name"`
	SessionID      string        `json:"session_id"`
	SessionName    string        `json:"session_name"`
	Phone          string        `json:"phone"`
	PreviousHealth float64       `json:"previous_health"`
	CurrentHealth  float64       `json:"current_health"`
	HealthChange   float64       `json:"health_change"`
	Metrics        HealthMetrics `json:"metrics"`
	CalculatedAt   time.Time     `json:"calculated_at"`
}

type DailyLimit struct {
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	SessionID    string `json:"session_id"`
	SessionName  string `json:"session_name"`
	MessagesSent int    `json:"messages_sent"`
	DailyGoal    int    `json:"daily_goal"`
}

type CampaignStatus struct {
	CampaignID     string     `json:"campaign_id"`
	CampaignName   string     `json:"campaign_name"`
	Status         string     `json:"status"`
	Message        string     `json:"message,omitempty"`
	NextAllowedAt  *time.Time `json:"next_allowed_at,omitempty"`
	ActiveSessions int        `json:"active_sessions"`
	TotalSessions  int        `json:"total_sessions"`
}

type CampaignLog struct {
	CampaignID   string         `json:"campaign_id"`
	CampaignName string         `json:"campaign_name"`
	Level        string         `json:"level"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	SessionName  string         `json:"session_name,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

type ExecutionLog struct {
	ExecutionID    string     `json:"execution_id"`
	CampaignID     string     `json:"campaign_id"`
	CampaignName   string     `json:"campaign_name"`
	SessionID      string     `json:"session_id"`
	SessionName    string     `json:"session_name"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	TargetContact  string     `json:"target_contact,omitempty"`
	TargetSession  string     `json:"target_session,omitempty"`
	MessageContent string     `json:"message_content,omitempty"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

type BotHealth struct {
	SessionID      string    `json:"session_id"`
	SessionName    string    `json:"session_name"`
	CampaignID     string    `json:"campaign_id"`
	CampaignName   string    `json:"campaign_name"`
	HealthScore    float64   `json:"health_score"`
	DeliveryRate   float64   `json:"delivery_rate"`
	MessagesPerDay float64   `json:"messages_per_day"`
	LastActivity   time.Time `json:"last_activity"`
	Status         string    `json:"status"`
}
