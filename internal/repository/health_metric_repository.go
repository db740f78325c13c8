package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/warmup-engine/internal/model"
)

type HealthMetricRepository struct {
	DB *sqlx.DB
}

const healthMetricColumns = `id, campaign_session_id, date, messages_sent, messages_delivered,
	messages_read, responses_received, average_messages_per_hour, health_score`

func (r *HealthMetricRepository) IncrementDay(ctx context.Context, campaignSessionID string, day time.Time) error {
	_, err := querier(ctx, r.DB).ExecContext(ctx, `
		INSERT INTO warmup_health_metrics (id, campaign_session_id, date, messages_sent, messages_delivered)
		VALUES ($1, $2, $3, 1, 1)
		ON CONFLICT (campaign_session_id, date) DO UPDATE SET
			messages_sent = warmup_health_metrics.messages_sent + 1,
			messages_delivered = warmup_health_metrics.messages_delivered + 1`,
		uuid.NewString(), campaignSessionID, day)
	return err
}

func (r *HealthMetricRepository) ListSince(ctx context.Context, campaignSessionID string, since time.Time) ([]*model.HealthMetric, error) {
	out := []*model.HealthMetric{}
	err := querier(ctx, r.DB).SelectContext(ctx, &out, `
		SELECT `+healthMetricColumns+` FROM warmup_health_metrics
		WHERE campaign_session_id=$1 AND date >= $2
		ORDER BY date DESC`, campaignSessionID, since)
	return out, err
}

func (r *HealthMetricRepository) UpdateScore(ctx context.Context, campaignSessionID string, day time.Time, score, avgPerHour float64) error {
	_, err := querier(ctx, r.DB).ExecContext(ctx, `
		UPDATE warmup_health_metrics SET health_score=$3, average_messages_per_hour=$4
		WHERE campaign_session_id=$1 AND date=$2`, campaignSessionID, day, score, avgPerHour)
	return err
}

var _ HealthMetricRepositoryInterface = (*HealthMetricRepository)(nil)
