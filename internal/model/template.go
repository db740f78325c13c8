// internal/model/template.go
package model

import "time"

// Message types accepted for templates.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeAudio    = "audio"
	MessageTypeDocument = "document"
	MessageTypeVideo    = "video"
)

// ValidMessageType reports whether t is one of the supported message types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio, MessageTypeDocument, MessageTypeVideo:
		return true
	}
	return false
}

type MessageTemplate struct {
	ID          string     `db:"id" json:"id"`
	CampaignID  string     `db:"campaign_id" json:"campaign_id"`
	Name        string     `db:"name" json:"name"`
	Content     string     `db:"content" json:"content"`
	MessageType string     `db:"message_type" json:"message_type"`
	Weight      int        `db:"weight" json:"weight"`
	MediaPath   *string    `db:"media_path" json:"media_path,omitempty"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
