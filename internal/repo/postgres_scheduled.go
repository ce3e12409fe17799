package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calloutcrm/delivery/internal/model"
)

type PostgresScheduledMessageStore struct {
	db *sql.DB
}

func NewPostgresScheduledMessageStore(db *sql.DB) *PostgresScheduledMessageStore {
	return &PostgresScheduledMessageStore{db: db}
}

func (s *PostgresScheduledMessageStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact_id, user_id, channel, content, scheduled_at, status,
		       sent_at, error_message, created_at, updated_at
		FROM scheduled_messages
		WHERE status = 'PENDING' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due scheduled messages: %w", err)
	}
	defer rows.Close()

	var out []model.ScheduledMessage
	for rows.Next() {
		var (
			m        model.ScheduledMessage
			channel  string
			status   string
			sentAt   sql.NullTime
			errorMsg sql.NullString
		)

		if err := rows.Scan(
			&m.ID,
			&m.ContactID,
			&m.UserID,
			&channel,
			&m.Content,
			&m.ScheduledAt,
			&status,
			&sentAt,
			&errorMsg,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scheduled message: %w", err)
		}

		m.Channel = model.Channel(channel)
		m.Status = model.ScheduledStatus(status)

		if sentAt.Valid {
			v := sentAt.Time
			m.SentAt = &v
		}
		if errorMsg.Valid {
			v := errorMsg.String
			m.ErrorMessage = &v
		}

		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkSent finalizes a PENDING row as SENT. The status guard makes the
// transition a conditional claim: a row cancelled (or processed) between the
// due-list read and this update is left untouched and reported as false.
func (s *PostgresScheduledMessageStore) MarkSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'SENT', sent_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark scheduled message %d sent: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresScheduledMessageStore) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'FAILED', error_message = $2, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`, id, reason)
	if err != nil {
		return false, fmt.Errorf("mark scheduled message %d failed: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var _ ScheduledMessageStore = (*PostgresScheduledMessageStore)(nil)
