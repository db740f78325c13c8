package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
)

type CampaignSessionRepository struct {
	DB *sqlx.DB
}

var campaignSessionFields = []string{
	"id", "campaign_id", "session_id", "daily_messages_sent", "total_messages_sent",
	"last_message_at", "last_reset_date", "health_score", "current_pause_until",
	"conversation_started_at", "last_conversation_start", "auto_read_enabled",
	"auto_read_interval", "auto_read_min_delay", "auto_read_max_delay", "is_active", "created_at",
}

// campaignSessionColumns renders the column list, optionally qualified by a table alias.
func campaignSessionColumns(alias string) string {
	if alias == "" {
		return strings.Join(campaignSessionFields, ", ")
	}
	cols := make([]string, len(campaignSessionFields))
	for i, f := range campaignSessionFields {
		cols[i] = alias + "." + f
	}
	return strings.Join(cols, ", ")
}

func (r *CampaignSessionRepository) Attach(ctx context.Context, campaignID, sessionID string, today time.Time) (*model.CampaignSession, error) {
	var cs model.CampaignSession
	err := querier(ctx, r.DB).GetContext(ctx, &cs, `
		INSERT INTO warmup_campaign_sessions (id, campaign_id, session_id, last_reset_date, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (campaign_id, session_id) DO UPDATE SET is_active = TRUE
		RETURNING `+campaignSessionColumns(""),
		uuid.NewString(), campaignID, sessionID, today)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

func (r *CampaignSessionRepository) Detach(ctx context.Context, campaignID, sessionID string) error {
	res, err := querier(ctx, r.DB).ExecContext(ctx,
		`DELETE FROM warmup_campaign_sessions WHERE campaign_id=$1 AND session_id=$2`, campaignID, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewSessionNotFound(sessionID)
	}
	return nil
}

func (r *CampaignSessionRepository) GetByID(ctx context.Context, id string) (*model.CampaignSession, error) {
	var cs model.CampaignSession
	err := querier(ctx, r.DB).GetContext(ctx, &cs,
		`SELECT `+campaignSessionColumns("")+` FROM warmup_campaign_sessions WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewSessionNotFound(id)
		}
		return nil, err
	}
	return &cs, nil
}

func (r *CampaignSessionRepository) GetByCampaignAndSession(ctx context.Context, campaignID, sessionID string) (*model.CampaignSession, error) {
	var cs model.CampaignSession
	err := querier(ctx, r.DB).GetContext(ctx, &cs,
		`SELECT `+campaignSessionColumns("")+` FROM warmup_campaign_sessions WHERE campaign_id=$1 AND session_id=$2`,
		campaignID, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewSessionNotFound(sessionID)
		}
		return nil, err
	}
	return &cs, nil
}

func (r *CampaignSessionRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.CampaignSession, error) {
	out := []*model.CampaignSession{}
	err := querier(ctx, r.DB).SelectContext(ctx, &out,
		`SELECT `+campaignSessionColumns("")+` FROM warmup_campaign_sessions WHERE campaign_id=$1 ORDER BY created_at, id`,
		campaignID)
	return out, err
}

func (r *CampaignSessionRepository) ResetDaily(ctx context.Context, id string, today time.Time) (bool, error) {
	res, err := querier(ctx, r.DB).ExecContext(ctx, `
		UPDATE warmup_campaign_sessions
		SET daily_messages_sent=0, last_reset_date=$2
		WHERE id=$1 AND last_reset_date < $2`, id, today)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignSessionRepository) IncrementCounters(ctx context.Context, id string, lastMessageAt time.Time) (int, int, error) {
	var counters struct {
		Daily int `db:"daily_messages_sent"`
		Total int `db:"total_messages_sent"`
	}
	err := querier(ctx, r.DB).GetContext(ctx, &counters, `
		UPDATE warmup_campaign_sessions
		SET daily_messages_sent = daily_messages_sent + 1,
			total_messages_sent = total_messages_sent + 1,
			last_message_at = $2
		WHERE id=$1
		RETURNING daily_messages_sent, total_messages_sent`, id, lastMessageAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, appErrors.NewSessionNotFound(id)
		}
		return 0, 0, err
	}
	return counters.Daily, counters.Total, nil
}

func (r *CampaignSessionRepository) UpdateHealthScore(ctx context.Context, id string, score float64) error {
	_, err := querier(ctx, r.DB).ExecContext(ctx,
		`UPDATE warmup_campaign_sessions SET health_score=$2 WHERE id=$1`, id, score)
	return err
}

func (r *CampaignSessionRepository) UpdatePauseState(ctx context.Context, id string, state PauseState) error {
	_, err := querier(ctx, r.DB).ExecContext(ctx, `
		UPDATE warmup_campaign_sessions
		SET current_pause_until=$2, conversation_started_at=$3, last_conversation_start=$4
		WHERE id=$1`,
		id, state.CurrentPauseUntil, state.ConversationStartedAt, state.LastConversationStart)
	return err
}

func (r *CampaignSessionRepository) ResetPauses(ctx context.Context, campaignID string) error {
	_, err := querier(ctx, r.DB).ExecContext(ctx, `
		UPDATE warmup_campaign_sessions
		SET current_pause_until=NULL, conversation_started_at=NULL, last_conversation_start=NULL
		WHERE campaign_id=$1`, campaignID)
	return err
}

func (r *CampaignSessionRepository) UpdateAutoRead(ctx context.Context, cs *model.CampaignSession) error {
	res, err := querier(ctx, r.DB).NamedExecContext(ctx, `
		UPDATE warmup_campaign_sessions
		SET auto_read_enabled=:auto_read_enabled, auto_read_interval=:auto_read_interval,
			auto_read_min_delay=:auto_read_min_delay, auto_read_max_delay=:auto_read_max_delay
		WHERE id=:id`, cs)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewSessionNotFound(cs.ID)
	}
	return nil
}

var _ CampaignSessionRepositoryInterface = (*CampaignSessionRepository)(nil)
