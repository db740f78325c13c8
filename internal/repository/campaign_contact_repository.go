package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
)

type CampaignContactRepository struct {
	DB *sqlx.DB
}

func (r *CampaignContactRepository) Attach(ctx context.Context, campaignID, contactID string, priority int) (*model.CampaignContact, error) {
	var cc model.CampaignContact
	err := querier(ctx, r.DB).GetContext(ctx, &cc, `
		INSERT INTO warmup_campaign_contacts (id, campaign_id, contact_id, priority, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (campaign_id, contact_id) DO UPDATE SET is_active = TRUE, priority = EXCLUDED.priority
		RETURNING id, campaign_id, contact_id, priority, is_active, created_at`,
		uuid.NewString(), campaignID, contactID, priority)
	if err != nil {
		return nil, err
	}
	return &cc, nil
}

func (r *CampaignContactRepository) Detach(ctx context.Context, campaignID, contactID string) error {
	res, err := querier(ctx, r.DB).ExecContext(ctx,
		`DELETE FROM warmup_campaign_contacts WHERE campaign_id=$1 AND contact_id=$2`, campaignID, contactID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewContactNotFound(contactID)
	}
	return nil
}

func (r *CampaignContactRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.CampaignContact, error) {
	out := []*model.CampaignContact{}
	err := querier(ctx, r.DB).SelectContext(ctx, &out, `
		SELECT id, campaign_id, contact_id, priority, is_active, created_at
		FROM warmup_campaign_contacts WHERE campaign_id=$1 ORDER BY created_at, id`, campaignID)
	return out, err
}

var _ CampaignContactRepositoryInterface = (*CampaignContactRepository)(nil)
