package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Querier is the subset of sqlx used by the postgres repositories. Both
// *sqlx.DB and *sqlx.Tx satisfy it.
type Querier interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

var _ Querier = &sqlx.DB{}
var _ Querier = &sqlx.Tx{}

type ctxTxKeyType struct{}

var ctxTxKey = ctxTxKeyType{}

type providerImpl struct {
	db *sqlx.DB
}

// NewProvider returns a Provider backed by db.
func NewProvider(db *sqlx.DB) Provider {
	return &providerImpl{db: db}
}

func (p *providerImpl) Transact(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(ctxTxKey).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = fn(context.WithValue(ctx, ctxTxKey, tx))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// querier returns the transaction bound to ctx, or db outside a transaction.
func querier(ctx context.Context, db *sqlx.DB) Querier {
	if tx, ok := ctx.Value(ctxTxKey).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// NewPostgres wires every repository to db.
func NewPostgres(db *sqlx.DB) *Repositories {
	return &Repositories{
		Campaigns:        &CampaignRepository{DB: db},
		CampaignSessions: &CampaignSessionRepository{DB: db},
		CampaignContacts: &CampaignContactRepository{DB: db},
		Templates:        &TemplateRepository{DB: db},
		Executions:       &ExecutionRepository{DB: db},
		HealthMetrics:    &HealthMetricRepository{DB: db},
		Sessions:         &SessionRepository{DB: db},
		Contacts:         &ContactRepository{DB: db},
		Tx:               NewProvider(db),
	}
}
