package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
)

type CampaignRepository struct {
	DB *sqlx.DB
}

const campaignColumns = `id, organization_id, name, description, daily_message_goal,
	min_interval_minutes, max_interval_minutes, use_working_hours, working_hour_start,
	working_hour_end, allow_weekends, randomize_interval, enable_internal_conversations,
	internal_conversation_ratio, enable_auto_pauses, max_pause_time_minutes,
	min_conversation_time_minutes, is_active, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO warmup_campaigns (` + campaignColumns + `)
		VALUES (:id, :organization_id, :name, :description, :daily_message_goal,
			:min_interval_minutes, :max_interval_minutes, :use_working_hours, :working_hour_start,
			:working_hour_end, :allow_weekends, :randomize_interval, :enable_internal_conversations,
			:internal_conversation_ratio, :enable_auto_pauses, :max_pause_time_minutes,
			:min_conversation_time_minutes, :is_active, :created_at, :updated_at)
	`
	_, err := querier(ctx, r.DB).NamedExecContext(ctx, query, c)
	return err
}

func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	now := time.Now()
	c.UpdatedAt = &now
	query := `
		UPDATE warmup_campaigns SET
			name=:name, description=:description, daily_message_goal=:daily_message_goal,
			min_interval_minutes=:min_interval_minutes, max_interval_minutes=:max_interval_minutes,
			use_working_hours=:use_working_hours, working_hour_start=:working_hour_start,
			working_hour_end=:working_hour_end, allow_weekends=:allow_weekends,
			randomize_interval=:randomize_interval,
			enable_internal_conversations=:enable_internal_conversations,
			internal_conversation_ratio=:internal_conversation_ratio,
			enable_auto_pauses=:enable_auto_pauses, max_pause_time_minutes=:max_pause_time_minutes,
			min_conversation_time_minutes=:min_conversation_time_minutes, updated_at=:updated_at
		WHERE id=:id
	`
	res, err := querier(ctx, r.DB).NamedExecContext(ctx, query, c)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	return nil
}

// Delete removes the campaign; children go with it through ON DELETE CASCADE.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	res, err := querier(ctx, r.DB).ExecContext(ctx, `DELETE FROM warmup_campaigns WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	err := querier(ctx, r.DB).GetContext(ctx, &c, `SELECT `+campaignColumns+` FROM warmup_campaigns WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, organizationID string, offset, limit int) ([]*model.Campaign, int, error) {
	q := querier(ctx, r.DB)
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM warmup_campaigns
		WHERE ($1 = '' OR organization_id = $1)
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	if err := q.SelectContext(ctx, &campaigns, query, organizationID, limit, offset); err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM warmup_campaigns WHERE ($1 = '' OR organization_id = $1)`, organizationID); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	res, err := querier(ctx, r.DB).ExecContext(ctx,
		`UPDATE warmup_campaigns SET is_active=$2, updated_at=NOW() WHERE id=$1 AND is_active<>$2`,
		id, active)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ====================== Eager loading ======================

func (r *CampaignRepository) GetWithChildren(ctx context.Context, id string, activeOnly bool) (*model.Campaign, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, []*model.Campaign{c}, activeOnly); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListActiveWithChildren(ctx context.Context) ([]*model.Campaign, error) {
	campaigns := []*model.Campaign{}
	err := querier(ctx, r.DB).SelectContext(ctx, &campaigns,
		`SELECT `+campaignColumns+` FROM warmup_campaigns WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, campaigns, true); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *CampaignRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*model.Campaign, error) {
	campaigns := []*model.Campaign{}
	err := querier(ctx, r.DB).SelectContext(ctx, &campaigns,
		`SELECT `+campaignColumns+` FROM warmup_campaigns WHERE organization_id=$1 ORDER BY created_at`, organizationID)
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, campaigns, false); err != nil {
		return nil, err
	}
	return campaigns, nil
}

type campaignSessionRow struct {
	model.CampaignSession
	SessionOrg    string `db:"s_organization_id"`
	SessionName   string `db:"s_name"`
	SessionPhone  string `db:"s_phone"`
	SessionStatus string `db:"s_status"`
}

func (row *campaignSessionRow) toModel() *model.CampaignSession {
	cs := row.CampaignSession
	cs.Session = &model.Session{
		ID:             cs.SessionID,
		OrganizationID: row.SessionOrg,
		Name:           row.SessionName,
		Phone:          row.SessionPhone,
		Status:         row.SessionStatus,
	}
	return &cs
}

type campaignContactRow struct {
	model.CampaignContact
	ContactOrg   string `db:"c_organization_id"`
	ContactName  string `db:"c_name"`
	ContactPhone string `db:"c_phone"`
	ContactEmail string `db:"c_email"`
}

func (row *campaignContactRow) toModel() *model.CampaignContact {
	cc := row.CampaignContact
	cc.Contact = &model.Contact{
		ID:             cc.ContactID,
		OrganizationID: row.ContactOrg,
		Name:           row.ContactName,
		Phone:          row.ContactPhone,
		Email:          row.ContactEmail,
	}
	return &cc
}

func (r *CampaignRepository) loadChildren(ctx context.Context, campaigns []*model.Campaign, activeOnly bool) error {
	if len(campaigns) == 0 {
		return nil
	}
	q := querier(ctx, r.DB)
	ids := make([]string, len(campaigns))
	byID := make(map[string]*model.Campaign, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.ID
		byID[c.ID] = c
		c.Sessions = nil
		c.Contacts = nil
		c.Templates = nil
	}

	var sessions []campaignSessionRow
	err := q.SelectContext(ctx, &sessions, `
		SELECT `+campaignSessionColumns("cs")+`,
			s.organization_id AS s_organization_id, s.name AS s_name,
			s.phone AS s_phone, s.status AS s_status
		FROM warmup_campaign_sessions cs
		JOIN sessions s ON s.id = cs.session_id
		WHERE cs.campaign_id = ANY($1) AND (NOT $2 OR cs.is_active)
		ORDER BY cs.created_at, cs.id`, pq.Array(ids), activeOnly)
	if err != nil {
		return err
	}
	for i := range sessions {
		cs := sessions[i].toModel()
		byID[cs.CampaignID].Sessions = append(byID[cs.CampaignID].Sessions, cs)
	}

	var contacts []campaignContactRow
	err = q.SelectContext(ctx, &contacts, `
		SELECT cc.id, cc.campaign_id, cc.contact_id, cc.priority, cc.is_active, cc.created_at,
			c.organization_id AS c_organization_id, c.name AS c_name,
			c.phone AS c_phone, c.email AS c_email
		FROM warmup_campaign_contacts cc
		JOIN contacts c ON c.id = cc.contact_id
		WHERE cc.campaign_id = ANY($1) AND (NOT $2 OR cc.is_active)
		ORDER BY cc.created_at, cc.id`, pq.Array(ids), activeOnly)
	if err != nil {
		return err
	}
	for i := range contacts {
		cc := contacts[i].toModel()
		byID[cc.CampaignID].Contacts = append(byID[cc.CampaignID].Contacts, cc)
	}

	var templates []*model.MessageTemplate
	err = q.SelectContext(ctx, &templates, `
		SELECT `+templateColumns+` FROM warmup_message_templates
		WHERE campaign_id = ANY($1) AND (NOT $2 OR is_active)
		ORDER BY created_at, id`, pq.Array(ids), activeOnly)
	if err != nil {
		return err
	}
	for _, t := range templates {
		byID[t.CampaignID].Templates = append(byID[t.CampaignID].Templates, t)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
