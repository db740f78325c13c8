// internal/model/health_metric.go
package model

import "time"

// HealthMetric aggregates one calendar day of traffic for a CampaignSession.
type HealthMetric struct {
	ID                     string    `db:"id" json:"id"`
	CampaignSessionID      string    `db:"campaign_session_id" json:"campaign_session_id"`
	Date                   time.Time `db:"date" json:"date"`
	MessagesSent           int       `db:"messages_sent" json:"messages_sent"`
	MessagesDelivered      int       `db:"messages_delivered" json:"messages_delivered"`
	MessagesRead           int       `db:"messages_read" json:"messages_read"`
	ResponsesReceived      int       `db:"responses_received" json:"responses_received"`
	AverageMessagesPerHour float64   `db:"average_messages_per_hour" json:"average_messages_per_hour"`
	HealthScore            float64   `db:"health_score" json:"health_score"`
}
