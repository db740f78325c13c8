package repository

import (
	"context"
	"time"

	"github.com/unclebandit/warmup-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	Update(ctx context.Context, c *model.Campaign) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, organizationID string, offset, limit int) ([]*model.Campaign, int, error)

	// SetActive flips is_active only when it differs from active. It reports
	// whether a row changed.
	SetActive(ctx context.Context, id string, active bool) (bool, error)

	// GetWithChildren loads sessions (with their Session), contacts (with their
	// Contact) and templates. activeOnly restricts children to active rows.
	GetWithChildren(ctx context.Context, id string, activeOnly bool) (*model.Campaign, error)
	// ListActiveWithChildren returns active campaigns with active children.
	ListActiveWithChildren(ctx context.Context) ([]*model.Campaign, error)
	// ListByOrganization returns every campaign of an organization with all children.
	ListByOrganization(ctx context.Context, organizationID string) ([]*model.Campaign, error)
}

// PauseState is the auto-pause bookkeeping of a campaign session.
type PauseState struct {
	CurrentPauseUntil     *time.Time
	ConversationStartedAt *time.Time
	LastConversationStart *time.Time
}

type CampaignSessionRepositoryInterface interface {
	// Attach inserts the pair or reactivates an existing one.
	Attach(ctx context.Context, campaignID, sessionID string, today time.Time) (*model.CampaignSession, error)
	Detach(ctx context.Context, campaignID, sessionID string) error
	GetByID(ctx context.Context, id string) (*model.CampaignSession, error)
	GetByCampaignAndSession(ctx context.Context, campaignID, sessionID string) (*model.CampaignSession, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.CampaignSession, error)

	// ResetDaily zeroes daily_messages_sent when last_reset_date is before today.
	// It reports whether the reset happened, so repeated calls within a day are no-ops.
	ResetDaily(ctx context.Context, id string, today time.Time) (bool, error)
	// IncrementCounters atomically bumps daily and total counters and sets
	// last_message_at, returning the new counter values.
	IncrementCounters(ctx context.Context, id string, lastMessageAt time.Time) (daily, total int, err error)
	UpdateHealthScore(ctx context.Context, id string, score float64) error
	UpdatePauseState(ctx context.Context, id string, state PauseState) error
	ResetPauses(ctx context.Context, campaignID string) error
	UpdateAutoRead(ctx context.Context, cs *model.CampaignSession) error
}

type CampaignContactRepositoryInterface interface {
	// Attach inserts the pair or reactivates an existing one with the new priority.
	Attach(ctx context.Context, campaignID, contactID string, priority int) (*model.CampaignContact, error)
	Detach(ctx context.Context, campaignID, contactID string) error
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.CampaignContact, error)
}

type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *model.MessageTemplate) error
	Update(ctx context.Context, t *model.MessageTemplate) error
	Delete(ctx context.Context, campaignID, id string) error
	GetByID(ctx context.Context, id string) (*model.MessageTemplate, error)
	ListByCampaign(ctx context.Context, campaignID string, activeOnly bool) ([]*model.MessageTemplate, error)
	DeactivateAll(ctx context.Context, campaignID string) error
	CountActive(ctx context.Context, campaignID string) (int, error)
}

// ExecutionFilter narrows execution listings. Zero values mean "any".
type ExecutionFilter struct {
	CampaignIDs   []string
	Status        model.ExecutionStatus
	ExecutionType model.ExecutionType
	FromSessionID string
	ToSessionID   string
	Start         *time.Time
	End           *time.Time
	Offset        int
	// Limit 0 returns every match.
	Limit int
}

// ExecutionCount is one group of a status/type breakdown.
type ExecutionCount struct {
	ExecutionType model.ExecutionType   `db:"execution_type"`
	Status        model.ExecutionStatus `db:"status"`
	Count         int                   `db:"count"`
}

type ExecutionRepositoryInterface interface {
	Create(ctx context.Context, e *model.Execution) error
	GetByID(ctx context.Context, id string) (*model.Execution, error)
	// ListDue returns scheduled executions with scheduled_at <= now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Execution, error)
	// MarkSent, MarkFailed and Reschedule only touch executions that are still
	// scheduled and report whether a row changed.
	MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, errorMessage string, at time.Time) (bool, error)
	Reschedule(ctx context.Context, id string, scheduledAt time.Time) (bool, error)
	// List returns matches newest first by created_at with the total match count.
	List(ctx context.Context, f ExecutionFilter) ([]*model.Execution, int, error)
	CountGrouped(ctx context.Context, f ExecutionFilter) ([]ExecutionCount, error)
}

type HealthMetricRepositoryInterface interface {
	// IncrementDay adds one sent and one delivered message to the day's row,
	// creating it if needed.
	IncrementDay(ctx context.Context, campaignSessionID string, day time.Time) error
	ListSince(ctx context.Context, campaignSessionID string, since time.Time) ([]*model.HealthMetric, error)
	UpdateScore(ctx context.Context, campaignSessionID string, day time.Time, score, avgPerHour float64) error
}

// SessionRepositoryInterface reads sender identities owned by the transport layer.
type SessionRepositoryInterface interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
}

type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	GetByID(ctx context.Context, id string) (*model.Contact, error)
}

// Provider runs fn inside a store transaction. Repositories called with the
// ctx passed to fn take part in that transaction.
type Provider interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repositories bundles every store the engine uses.
type Repositories struct {
	Campaigns        CampaignRepositoryInterface
	CampaignSessions CampaignSessionRepositoryInterface
	CampaignContacts CampaignContactRepositoryInterface
	Templates        TemplateRepositoryInterface
	Executions       ExecutionRepositoryInterface
	HealthMetrics    HealthMetricRepositoryInterface
	Sessions         SessionRepositoryInterface
	Contacts         ContactRepositoryInterface
	Tx               Provider
}
