package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/bithra/platform/internal/models"
	"github.com/google/uuid"
)

// MessageStore implements store.MessageStore using PostgreSQL.
type MessageStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *MessageStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Append inserts a message into a negotiation's ledger.
func (s *MessageStore) Append(ctx context.Context, m *models.Message) error {
	if m.Token == uuid.Nil {
		m.Token = uuid.New()
	}

	query := `
		INSERT INTO negotiation_messages (token, negotiation_id, sender_id, body, is_ai_generated, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING id, created_at
	`
	var createdAt sql.NullTime
	if !m.CreatedAt.IsZero() {
		createdAt = sql.NullTime{Time: m.CreatedAt, Valid: true}
	}
	err := s.conn().QueryRowContext(ctx, query,
		m.Token, m.NegotiationID, m.SenderID, m.Body, m.IsAIGenerated, m.Flagged, createdAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListAfter retrieves messages after the cursor in (created_at, id) order.
func (s *MessageStore) ListAfter(ctx context.Context, negotiationID int64, after models.MessageCursor, limit int) ([]*models.MessageView, error) {
	query := `
		SELECT m.id, m.token, m.negotiation_id, m.sender_id, m.body, m.is_ai_generated, m.flagged,
			m.created_at, COALESCE(u.name, ''), COALESCE(u.avatar_url, '')
		FROM negotiation_messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.negotiation_id = $1
	`
	args := []any{negotiationID}
	if !after.IsZero() {
		query += ` AND (m.created_at, m.id) > ($2, $3)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += ` ORDER BY m.created_at, m.id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []*models.MessageView
	for rows.Next() {
		var v models.MessageView
		if err := rows.Scan(
			&v.ID, &v.Token, &v.NegotiationID, &v.SenderID, &v.Body, &v.IsAIGenerated, &v.Flagged,
			&v.CreatedAt, &v.SenderName, &v.SenderAvatarURL,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return out, nil
}

// Count returns the number of messages in a negotiation.
func (s *MessageStore) Count(ctx context.Context, negotiationID int64) (int, error) {
	var n int
	err := s.conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM negotiation_messages WHERE negotiation_id = $1`, negotiationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}
