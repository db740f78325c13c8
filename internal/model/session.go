// internal/model/session.go
package model

// Session status reported by the messaging gateway.
const (
	SessionStatusConnected    = "CONNECTED"
	SessionStatusDisconnected = "DISCONNECTED"
)

// Session is a sender identity paired with the messaging gateway.
type Session struct {
	ID             string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`
	Name           string `db:"name" json:"name"`
	Phone          string `db:"phone" json:"phone"`
	Status         string `db:"status" json:"status"`
}

// Contact is an external recipient.
type Contact struct {
	ID             string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`
	Name           string `db:"name" json:"name"`
	Phone          string `db:"phone" json:"phone"`
	Email          string `db:"email" json:"email"`
}
