package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
)

// SessionRepository reads the sender identities registered by the transport layer.
type SessionRepository struct {
	DB *sqlx.DB
}

func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := querier(ctx, r.DB).NamedExecContext(ctx, `
		INSERT INTO sessions (id, organization_id, name, phone, status)
		VALUES (:id, :organization_id, :name, :phone, :status)`, s)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := querier(ctx, r.DB).GetContext(ctx, &s,
		`SELECT id, organization_id, name, phone, status FROM sessions WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewSessionNotFound(id)
		}
		return nil, err
	}
	return &s, nil
}

type ContactRepository struct {
	DB *sqlx.DB
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := querier(ctx, r.DB).NamedExecContext(ctx, `
		INSERT INTO contacts (id, organization_id, name, phone, email)
		VALUES (:id, :organization_id, :name, :phone, :email)`, c)
	return err
}

func (r *ContactRepository) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	var c model.Contact
	err := querier(ctx, r.DB).GetContext(ctx, &c,
		`SELECT id, organization_id, name, phone, email FROM contacts WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewContactNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

var _ SessionRepositoryInterface = (*SessionRepository)(nil)
var _ ContactRepositoryInterface = (*ContactRepository)(nil)
