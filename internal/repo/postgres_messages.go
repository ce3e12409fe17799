package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calloutcrm/delivery/internal/model"
)

type PostgresMessageStore struct {
	db *sql.DB
}

func NewPostgresMessageStore(db *sql.DB) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

const messageColumns = `id, contact_id, user_id, channel, direction, status, content,
	       attachments, external_id, retry_count, failure_reason, idempotency_key,
	       created_at, updated_at, sent_at, delivered_at, read_at`

func (s *PostgresMessageStore) Create(ctx context.Context, m model.Message) (model.Message, error) {
	attachments, err := marshalAttachments(m.Attachments)
	if err != nil {
		return model.Message{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (contact_id, user_id, channel, direction, status, content,
		                      attachments, external_id, retry_count, failure_reason,
		                      idempotency_key, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`,
		m.ContactID,
		m.UserID,
		string(m.Channel),
		string(m.Direction),
		string(m.Status),
		m.Content,
		attachments,
		m.ExternalID,
		m.RetryCount,
		m.FailureReason,
		m.IdempotencyKey,
		m.SentAt,
	)

	if err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (s *PostgresMessageStore) ListFailedRetryable(ctx context.Context, maxRetries, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = 'FAILED' AND retry_count < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list retryable messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *PostgresMessageStore) ClaimForRetry(ctx context.Context, id int64, observedRetryCount int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'QUEUED', updated_at = now()
		WHERE id = $1 AND status = 'FAILED' AND retry_count = $2
	`, id, observedRetryCount)
	if err != nil {
		return false, fmt.Errorf("claim message %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresMessageStore) MarkSent(ctx context.Context, id int64, externalID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'SENT',
		    sent_at = now(),
		    external_id = $2,
		    retry_count = retry_count + 1,
		    failure_reason = NULL,
		    updated_at = now()
		WHERE id = $1
	`, id, externalID)
	if err != nil {
		return fmt.Errorf("mark message %d sent: %w", id, err)
	}
	return nil
}

func (s *PostgresMessageStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'FAILED',
		    retry_count = retry_count + 1,
		    failure_reason = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("mark message %d failed: %w", id, err)
	}
	return nil
}

func (s *PostgresMessageStore) ReleaseClaim(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'FAILED', updated_at = now()
		WHERE id = $1 AND status = 'QUEUED'
	`, id)
	if err != nil {
		return fmt.Errorf("release message %d: %w", id, err)
	}
	return nil
}

func (s *PostgresMessageStore) Exhaust(ctx context.Context, id int64, maxRetries int, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'FAILED',
		    retry_count = GREATEST(retry_count, $2),
		    failure_reason = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, maxRetries, reason)
	if err != nil {
		return fmt.Errorf("exhaust message %d: %w", id, err)
	}
	return nil
}

func (s *PostgresMessageStore) ListRecent(ctx context.Context, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	var out []model.Message
	for rows.Next() {
		var (
			m           model.Message
			channel     string
			direction   string
			status      string
			attachments []byte
			userID      sql.NullInt64
			externalID  sql.NullString
			failure     sql.NullString
			sentAt      sql.NullTime
			deliveredAt sql.NullTime
			readAt      sql.NullTime
		)

		if err := rows.Scan(
			&m.ID,
			&m.ContactID,
			&userID,
			&channel,
			&direction,
			&status,
			&m.Content,
			&attachments,
			&externalID,
			&m.RetryCount,
			&failure,
			&m.IdempotencyKey,
			&m.CreatedAt,
			&m.UpdatedAt,
			&sentAt,
			&deliveredAt,
			&readAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		m.Channel = model.Channel(channel)
		m.Direction = model.Direction(direction)
		m.Status = model.MessageStatus(status)

		if err := unmarshalAttachments(attachments, &m.Attachments); err != nil {
			return nil, err
		}

		if userID.Valid {
			v := userID.Int64
			m.UserID = &v
		}
		if externalID.Valid {
			v := externalID.String
			m.ExternalID = &v
		}
		if failure.Valid {
			v := failure.String
			m.FailureReason = &v
		}
		if sentAt.Valid {
			v := sentAt.Time
			m.SentAt = &v
		}
		if deliveredAt.Valid {
			v := deliveredAt.Time
			m.DeliveredAt = &v
		}
		if readAt.Valid {
			v := readAt.Time
			m.ReadAt = &v
		}

		out = append(out, m)
	}
	return out, rows.Err()
}

func marshalAttachments(attachments []string) ([]byte, error) {
	if attachments == nil {
		attachments = []string{}
	}
	b, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("marshal attachments: %w", err)
	}
	return b, nil
}

func unmarshalAttachments(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal attachments: %w", err)
	}
	return nil
}

var _ MessageStore = (*PostgresMessageStore)(nil)
