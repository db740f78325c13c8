package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
)

type TemplateRepository struct {
	DB *sqlx.DB
}

const templateColumns = `id, campaign_id, name, content, message_type, weight, media_path, is_active, created_at, updated_at`

func (r *TemplateRepository) Create(ctx context.Context, t *model.MessageTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := querier(ctx, r.DB).NamedExecContext(ctx, `
		INSERT INTO warmup_message_templates (`+templateColumns+`)
		VALUES (:id, :campaign_id, :name, :content, :message_type, :weight, :media_path, :is_active, :created_at, :updated_at)`, t)
	return err
}

func (r *TemplateRepository) Update(ctx context.Context, t *model.MessageTemplate) error {
	now := time.Now()
	t.UpdatedAt = &now
	res, err := querier(ctx, r.DB).NamedExecContext(ctx, `
		UPDATE warmup_message_templates
		SET name=:name, content=:content, message_type=:message_type, weight=:weight,
			media_path=:media_path, is_active=:is_active, updated_at=:updated_at
		WHERE id=:id AND campaign_id=:campaign_id`, t)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewTemplateNotFound(t.ID)
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, campaignID, id string) error {
	res, err := querier(ctx, r.DB).ExecContext(ctx,
		`DELETE FROM warmup_message_templates WHERE id=$1 AND campaign_id=$2`, id, campaignID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewTemplateNotFound(id)
	}
	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*model.MessageTemplate, error) {
	var t model.MessageTemplate
	err := querier(ctx, r.DB).GetContext(ctx, &t, `SELECT `+templateColumns+` FROM warmup_message_templates WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) ListByCampaign(ctx context.Context, campaignID string, activeOnly bool) ([]*model.MessageTemplate, error) {
	out := []*model.MessageTemplate{}
	err := querier(ctx, r.DB).SelectContext(ctx, &out, `
		SELECT `+templateColumns+` FROM warmup_message_templates
		WHERE campaign_id=$1 AND (NOT $2 OR is_active)
		ORDER BY created_at, id`, campaignID, activeOnly)
	return out, err
}

func (r *TemplateRepository) DeactivateAll(ctx context.Context, campaignID string) error {
	_, err := querier(ctx, r.DB).ExecContext(ctx,
		`UPDATE warmup_message_templates SET is_active=FALSE, updated_at=NOW() WHERE campaign_id=$1`, campaignID)
	return err
}

func (r *TemplateRepository) CountActive(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := querier(ctx, r.DB).GetContext(ctx, &n,
		`SELECT COUNT(*) FROM warmup_message_templates WHERE campaign_id=$1 AND is_active`, campaignID)
	return n, err
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
