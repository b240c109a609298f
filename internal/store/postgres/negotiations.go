package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bithra/platform/internal/models"
	"github.com/bithra/platform/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// activeNegotiationIndex is the partial unique index allowing one active
// negotiation per project and investor.
const activeNegotiationIndex = "negotiations_one_active_idx"

// NegotiationStore implements store.NegotiationStore using PostgreSQL.
type NegotiationStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *NegotiationStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const negotiationColumns = `id, token, project_id, investor_id, owner_id, status, target_amount,
	fee_total, started_at, expires_at, completed_at, agreement_reached, suggested_terms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNegotiation(row rowScanner) (*models.Negotiation, error) {
	var n models.Negotiation
	var status string
	var completedAt sql.NullTime
	var terms []byte
	err := row.Scan(
		&n.ID, &n.Token, &n.ProjectID, &n.InvestorID, &n.OwnerID, &status, &n.TargetAmount,
		&n.FeeTotal, &n.StartedAt, &n.ExpiresAt, &completedAt, &n.AgreementReached, &terms,
	)
	if err != nil {
		return nil, err
	}
	n.Status = models.NegotiationStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		n.CompletedAt = &t
	}
	if len(terms) > 0 {
		var st models.SuggestedTerms
		if err := json.Unmarshal(terms, &st); err != nil {
			return nil, fmt.Errorf("decoding suggested terms: %w", err)
		}
		n.SuggestedTerms = &st
	}
	return &n, nil
}

func encodeTerms(t *models.SuggestedTerms) (sql.NullString, error) {
	if t == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding suggested terms: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Create inserts a new negotiation. The partial unique index rejects a second
// active negotiation for the same pair.
func (s *NegotiationStore) Create(ctx context.Context, n *models.Negotiation) error {
	if n.Token == uuid.Nil {
		n.Token = uuid.New()
	}
	terms, err := encodeTerms(n.SuggestedTerms)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO negotiations (token, project_id, investor_id, owner_id, status, target_amount,
			fee_total, started_at, expires_at, suggested_terms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
		RETURNING id
	`
	err = s.conn().QueryRowContext(ctx, query,
		n.Token, n.ProjectID, n.InvestorID, n.OwnerID, string(n.Status), n.TargetAmount,
		n.FeeTotal, n.StartedAt, n.ExpiresAt, terms,
	).Scan(&n.ID)
	if err != nil {
		if isUniqueViolation(err) {
			if name := constraintName(err); name == "" || name == activeNegotiationIndex {
				return store.ErrDuplicateActiveNegotiation
			}
		}
		return fmt.Errorf("inserting negotiation: %w", err)
	}
	return nil
}

func (s *NegotiationStore) getOne(ctx context.Context, where string, args ...any) (*models.Negotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM negotiations WHERE ` + where
	n, err := scanNegotiation(s.conn().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting negotiation: %w", err)
	}
	return n, nil
}

// Get retrieves a negotiation by ID.
func (s *NegotiationStore) Get(ctx context.Context, id int64) (*models.Negotiation, error) {
	return s.getOne(ctx, `id = $1`, id)
}

// GetByToken retrieves a negotiation by its public token.
func (s *NegotiationStore) GetByToken(ctx context.Context, token uuid.UUID) (*models.Negotiation, error) {
	return s.getOne(ctx, `token = $1`, token)
}

// GetActive retrieves the active negotiation for a project and investor.
func (s *NegotiationStore) GetActive(ctx context.Context, projectID, investorID int64) (*models.Negotiation, error) {
	return s.getOne(ctx, `project_id = $1 AND investor_id = $2 AND status = 'active'`, projectID, investorID)
}

// ListByParticipant retrieves negotiations for a user, newest first.
func (s *NegotiationStore) ListByParticipant(ctx context.Context, userID int64, statuses []models.NegotiationStatus) ([]*models.Negotiation, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + negotiationColumns + ` FROM negotiations WHERE (investor_id = $1 OR owner_id = $1)`)
	args := []any{userID}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		b.WriteString(` AND status = ANY($2)`)
		args = append(args, pq.Array(names))
	}
	b.WriteString(` ORDER BY started_at DESC, id DESC`)

	rows, err := s.conn().QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing negotiations: %w", err)
	}
	defer rows.Close()

	var out []*models.Negotiation
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning negotiation: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating negotiations: %w", err)
	}
	return out, nil
}

// Transition moves an active negotiation to a new status. The update only
// applies while the row is still active, so concurrent closes have one winner.
func (s *NegotiationStore) Transition(ctx context.Context, id int64, t store.Transition) (bool, error) {
	terms, err := encodeTerms(t.Terms)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE negotiations
		SET status = $2, completed_at = $3, agreement_reached = $4,
			suggested_terms = COALESCE($5::jsonb, suggested_terms)
		WHERE id = $1 AND status = 'active'
	`
	result, err := s.conn().ExecContext(ctx, query, id, string(t.Status), t.CompletedAt, t.AgreementReached, terms)
	if err != nil {
		return false, fmt.Errorf("updating negotiation status: %w", err)
	}
	return affected(result)
}

// SetTerms replaces the suggested terms of an active negotiation.
func (s *NegotiationStore) SetTerms(ctx context.Context, id int64, terms *models.SuggestedTerms) (bool, error) {
	encoded, err := encodeTerms(terms)
	if err != nil {
		return false, err
	}

	query := `UPDATE negotiations SET suggested_terms = $2::jsonb WHERE id = $1 AND status = 'active'`
	result, err := s.conn().ExecContext(ctx, query, id, encoded)
	if err != nil {
		return false, fmt.Errorf("updating suggested terms: %w", err)
	}
	return affected(result)
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}
