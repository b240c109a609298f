package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bithra/platform/internal/models"
)

// ProjectStore implements store.ProjectStore using PostgreSQL.
type ProjectStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *ProjectStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new project.
func (s *ProjectStore) Create(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (creator_id, title, description, category, funding_goal,
			current_funding, timeline, team_size, traction)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := s.conn().QueryRowContext(ctx, query,
		p.CreatorID, p.Title, nullString(p.Description), nullString(p.Category),
		p.FundingGoal, p.CurrentFunding, nullString(p.Timeline), p.TeamSize, nullString(p.Traction),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

// Get retrieves a project by ID.
func (s *ProjectStore) Get(ctx context.Context, id int64) (*models.Project, error) {
	query := `
		SELECT id, creator_id, title, description, category, funding_goal, current_funding,
			timeline, team_size, traction, created_at
		FROM projects WHERE id = $1
	`
	var p models.Project
	var description, category, timeline, traction sql.NullString
	err := s.conn().QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.CreatorID, &p.Title, &description, &category, &p.FundingGoal, &p.CurrentFunding,
		&timeline, &p.TeamSize, &traction, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	p.Description = description.String
	p.Category = category.String
	p.Timeline = timeline.String
	p.Traction = traction.String
	return &p, nil
}
