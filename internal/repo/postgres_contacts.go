package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calloutcrm/delivery/internal/model"
)

type PostgresContactStore struct {
	db *sql.DB
}

func NewPostgresContactStore(db *sql.DB) *PostgresContactStore {
	return &PostgresContactStore{db: db}
}

func (s *PostgresContactStore) Get(ctx context.Context, id int64) (model.Contact, error) {
	var (
		c             model.Contact
		lastContacted sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, phone, whatsapp, email, last_contacted_at
		FROM contacts
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Phone, &c.Whatsapp, &c.Email, &lastContacted)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Contact{}, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Contact{}, fmt.Errorf("get contact %d: %w", id, err)
	}

	if lastContacted.Valid {
		v := lastContacted.Time
		c.LastContactedAt = &v
	}
	return c, nil
}

func (s *PostgresContactStore) TouchLastContacted(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET last_contacted_at = $2, updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("touch contact %d: %w", id, err)
	}
	return nil
}

var _ ContactStore = (*PostgresContactStore)(nil)
