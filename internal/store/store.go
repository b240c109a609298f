// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/bithra/platform/internal/models"
	"github.com/google/uuid"
)

// ErrDuplicateActiveNegotiation is returned by NegotiationStore.Create when the
// (project, investor) pair already has an active negotiation.
var ErrDuplicateActiveNegotiation = errors.New("an active negotiation already exists for this project and investor")

// ErrDuplicateEmail is returned when creating a user with an email already in use.
var ErrDuplicateEmail = errors.New("email already registered")

// UserStore defines operations for platform members.
type UserStore interface {
	// Create stores a new user with the given plain-text password hashed.
	Create(ctx context.Context, user *models.User, password string) error
	// GetByID retrieves a user by ID. Returns nil, nil if not found.
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// GetByEmail retrieves a user by email. Returns nil, nil if not found.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Authenticate verifies credentials and returns the user.
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// ProjectStore defines read access to fundraising projects.
type ProjectStore interface {
	// Create stores a new project.
	Create(ctx context.Context, project *models.Project) error
	// Get retrieves a project by ID. Returns nil, nil if not found.
	Get(ctx context.Context, id int64) (*models.Project, error)
}

// Transition describes a status change applied to an active negotiation.
type Transition struct {
	Status           models.NegotiationStatus
	CompletedAt      time.Time
	AgreementReached bool
	Terms            *models.SuggestedTerms
}

// NegotiationStore defines operations for negotiation sessions.
type NegotiationStore interface {
	// Create inserts a new negotiation. It returns ErrDuplicateActiveNegotiation
	// when another active session exists for the same project and investor.
	Create(ctx context.Context, n *models.Negotiation) error
	// Get retrieves a negotiation by ID. Returns nil, nil if not found.
	Get(ctx context.Context, id int64) (*models.Negotiation, error)
	// GetByToken retrieves a negotiation by its public token. Returns nil, nil if not found.
	GetByToken(ctx context.Context, token uuid.UUID) (*models.Negotiation, error)
	// GetActive retrieves the row stored as active for a project and investor,
	// regardless of its deadline. Returns nil, nil if none.
	GetActive(ctx context.Context, projectID, investorID int64) (*models.Negotiation, error)
	// ListByParticipant retrieves negotiations where the user is investor or owner,
	// optionally filtered by status, newest first.
	ListByParticipant(ctx context.Context, userID int64, statuses []models.NegotiationStatus) ([]*models.Negotiation, error)
	// Transition moves an active negotiation to a new status. It reports false,
	// without changing anything, when the negotiation is no longer active.
	Transition(ctx context.Context, id int64, t Transition) (bool, error)
	// SetTerms replaces the suggested terms of an active negotiation. It reports
	// false when the negotiation is no longer active.
	SetTerms(ctx context.Context, id int64, terms *models.SuggestedTerms) (bool, error)
}

// MessageStore defines operations for the append-only negotiation ledger.
type MessageStore interface {
	// Append inserts a message. ID, Token and CreatedAt are assigned when empty.
	Append(ctx context.Context, m *models.Message) error
	// ListAfter retrieves up to limit messages positioned after the cursor, in
	// ascending (created_at, id) order, with sender display information.
	ListAfter(ctx context.Context, negotiationID int64, after models.MessageCursor, limit int) ([]*models.MessageView, error)
	// Count returns the number of messages in a negotiation.
	Count(ctx context.Context, negotiationID int64) (int, error)
}

// Store is the main interface for database operations.
type Store interface {
	// Users returns the UserStore.
	Users() UserStore
	// Projects returns the ProjectStore.
	Projects() ProjectStore
	// Negotiations returns the NegotiationStore.
	Negotiations() NegotiationStore
	// Messages returns the MessageStore.
	Messages() MessageStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies the database connection.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
