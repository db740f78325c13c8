// internal/model/execution.go
package model

import "time"

type ExecutionType string

const (
	ExecutionInternal ExecutionType = "internal"
	ExecutionExternal ExecutionType = "external"
)

type ExecutionStatus string

// scheduled -> sent | failed. Both outcomes are terminal.
const (
	ExecutionScheduled ExecutionStatus = "scheduled"
	ExecutionSent      ExecutionStatus = "sent"
	ExecutionFailed    ExecutionStatus = "failed"
)

// WorkloadPlan is the target of one unit of traffic: either a peer session
// of the same campaign or an external contact. The only implementations are
// Internal and External.
type WorkloadPlan interface {
	Type() ExecutionType
	isWorkloadPlan()
}

// Internal targets another session of the campaign.
type Internal struct {
	ToSession *CampaignSession
}

func (Internal) Type() ExecutionType { return ExecutionInternal }
func (Internal) isWorkloadPlan()     {}

// External targets a contact.
type External struct {
	Contact *CampaignContact
}

func (External) Type() ExecutionType { return ExecutionExternal }
func (External) isWorkloadPlan()     {}

type Execution struct {
	ID             string          `db:"id" json:"id"`
	CampaignID     string          `db:"campaign_id" json:"campaign_id"`
	FromSessionID  string          `db:"from_session_id" json:"from_session_id"`
	ToSessionID    *string         `db:"to_session_id" json:"to_session_id,omitempty"`
	ContactID      *string         `db:"contact_id" json:"contact_id,omitempty"`
	TemplateID     *string         `db:"template_id" json:"template_id,omitempty"`
	MessageContent string          `db:"message_content" json:"message_content"`
	MessageType    string          `db:"message_type" json:"message_type"`
	ExecutionType  ExecutionType   `db:"execution_type" json:"execution_type"`
	Status         ExecutionStatus `db:"status" json:"status"`
	ScheduledAt    time.Time       `db:"scheduled_at" json:"scheduled_at"`
	SentAt         *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt    *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt         *time.Time      `db:"read_at" json:"read_at,omitempty"`
	ErrorMessage   *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// NewExecution builds a scheduled execution from a plan. The target columns
// are derived from the plan so exactly one of ToSessionID/ContactID is set.
func NewExecution(campaignID, fromSessionID string, plan WorkloadPlan, tpl *MessageTemplate, content string, scheduledAt time.Time) *Execution {
	e := &Execution{
		CampaignID:     campaignID,
		FromSessionID:  fromSessionID,
		MessageContent: content,
		MessageType:    MessageTypeText,
		ExecutionType:  plan.Type(),
		Status:         ExecutionScheduled,
		ScheduledAt:    scheduledAt,
	}
	switch p := plan.(type) {
	case Internal:
		id := p.ToSession.SessionID
		e.ToSessionID = &id
	case External:
		id := p.Contact.ContactID
		e.ContactID = &id
	}
	if tpl != nil {
		id := tpl.ID
		e.TemplateID = &id
		if tpl.MessageType != "" {
			e.MessageType = tpl.MessageType
		}
	}
	return e
}

// TargetConsistent reports whether the stored target columns agree with the
// execution type.
func (e *Execution) TargetConsistent() bool {
	switch e.ExecutionType {
	case ExecutionInternal:
		return e.ToSessionID != nil && e.ContactID == nil
	case ExecutionExternal:
		return e.ContactID != nil && e.ToSessionID == nil
	}
	return false
}

// Plan recovers the target variant from the stored columns. It returns nil
// when the columns disagree with ExecutionType.
func (e *Execution) Plan() WorkloadPlan {
	if !e.TargetConsistent() {
		return nil
	}
	if e.ExecutionType == ExecutionInternal {
		return Internal{ToSession: &CampaignSession{CampaignID: e.CampaignID, SessionID: *e.ToSessionID}}
	}
	return External{Contact: &CampaignContact{CampaignID: e.CampaignID, ContactID: *e.ContactID}}
}

// IsTerminal reports whether the execution reached sent or failed.
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionSent || e.Status == ExecutionFailed
}
