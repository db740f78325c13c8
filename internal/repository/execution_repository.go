package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
)

type ExecutionRepository struct {
	DB *sqlx.DB
}

const executionColumns = `id, campaign_id, from_session_id, to_session_id, contact_id, template_id,
	message_content, message_type, execution_type, status, scheduled_at, sent_at,
	delivered_at, read_at, error_message, created_at`

// ====================== Lifecycle ======================

func (r *ExecutionRepository) Create(ctx context.Context, e *model.Execution) error {
	if !e.TargetConsistent() {
		return fmt.Errorf("execution %s: target does not match type %q", e.ID, e.ExecutionType)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := querier(ctx, r.DB).NamedExecContext(ctx, `
		INSERT INTO warmup_executions (`+executionColumns+`)
		VALUES (:id, :campaign_id, :from_session_id, :to_session_id, :contact_id, :template_id,
			:message_content, :message_type, :execution_type, :status, :scheduled_at, :sent_at,
			:delivered_at, :read_at, :error_message, :created_at)`, e)
	return err
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*model.Execution, error) {
	var e model.Execution
	err := querier(ctx, r.DB).GetContext(ctx, &e, `SELECT `+executionColumns+` FROM warmup_executions WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewExecutionNotFound(id)
		}
		return nil, err
	}
	return &e, nil
}

func (r *ExecutionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Execution, error) {
	out := []*model.Execution{}
	err := querier(ctx, r.DB).SelectContext(ctx, &out, `
		SELECT `+executionColumns+` FROM warmup_executions
		WHERE status='scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $2`, now, limit)
	return out, err
}

func (r *ExecutionRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error) {
	return r.transition(ctx, `UPDATE warmup_executions SET status='sent', sent_at=$2
		WHERE id=$1 AND status='scheduled'`, id, sentAt)
}

func (r *ExecutionRepository) MarkFailed(ctx context.Context, id, errorMessage string, at time.Time) (bool, error) {
	return r.transition(ctx, `UPDATE warmup_executions SET status='failed', sent_at=$2, error_message=$3
		WHERE id=$1 AND status='scheduled'`, id, at, errorMessage)
}

func (r *ExecutionRepository) Reschedule(ctx context.Context, id string, scheduledAt time.Time) (bool, error) {
	return r.transition(ctx, `UPDATE warmup_executions SET scheduled_at=$2
		WHERE id=$1 AND status='scheduled'`, id, scheduledAt)
}

func (r *ExecutionRepository) transition(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := querier(ctx, r.DB).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ====================== Queries ======================

func buildExecutionWhere(f ExecutionFilter) (string, []interface{}) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	add := func(clause string, arg interface{}) {
		clauses = append(clauses, fmt.Sprintf(clause, argPos))
		args = append(args, arg)
		argPos++
	}

	if len(f.CampaignIDs) > 0 {
		add("campaign_id = ANY($%d)", pq.Array(f.CampaignIDs))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ExecutionType != "" {
		add("execution_type = $%d", string(f.ExecutionType))
	}
	if f.FromSessionID != "" {
		add("from_session_id = $%d", f.FromSessionID)
	}
	if f.ToSessionID != "" {
		add("to_session_id = $%d", f.ToSessionID)
	}
	if f.Start != nil {
		add("created_at >= $%d", *f.Start)
	}
	if f.End != nil {
		add("created_at <= $%d", *f.End)
	}
	return strings.Join(clauses, " AND "), args
}

func (r *ExecutionRepository) List(ctx context.Context, f ExecutionFilter) ([]*model.Execution, int, error) {
	q := querier(ctx, r.DB)
	where, args := buildExecutionWhere(f)

	query := `SELECT ` + executionColumns + ` FROM warmup_executions WHERE ` + where + ` ORDER BY created_at DESC, id DESC`
	pageArgs := append([]interface{}{}, args...)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		pageArgs = append(pageArgs, f.Limit, f.Offset)
	}

	out := []*model.Execution{}
	if err := q.SelectContext(ctx, &out, query, pageArgs...); err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM warmup_executions WHERE `+where, args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ExecutionRepository) CountGrouped(ctx context.Context, f ExecutionFilter) ([]ExecutionCount, error) {
	where, args := buildExecutionWhere(f)
	out := []ExecutionCount{}
	err := querier(ctx, r.DB).SelectContext(ctx, &out, `
		SELECT execution_type, status, COUNT(*) AS count
		FROM warmup_executions WHERE `+where+`
		GROUP BY execution_type, status`, args...)
	return out, err
}

var _ ExecutionRepositoryInterface = (*ExecutionRepository)(nil)
