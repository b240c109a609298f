// Package negotiation implements the negotiation session lifecycle between a
// project owner and an investor: start or resume, lazy expiry, closing, terms
// and the append-only message ledger.
//
// Expiry is evaluated on every access instead of by a background sweep. A
// session stored as active whose deadline has passed is persisted as expired
// the first time it is read.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bithra/platform/internal/fees"
	"github.com/bithra/platform/internal/greeting"
	"github.com/bithra/platform/internal/models"
	"github.com/bithra/platform/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultDuration is how long a negotiation stays open after it starts.
	DefaultDuration = 72 * time.Hour
	// DefaultPageSize is the number of messages fetched per ledger page.
	DefaultPageSize = 50
	// MaxMessageLength is the maximum message length in characters.
	MaxMessageLength = 4000
)

// Service coordinates negotiation sessions and their messages.
type Service struct {
	store    store.Store
	fees     *fees.Calculator
	duration time.Duration
	pageSize int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithDuration sets how long new sessions stay open.
func WithDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithPageSize sets the ledger page size.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewService creates a negotiation service.
func NewService(st store.Store, calc *fees.Calculator, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if calc == nil {
		calc = fees.NewCalculator(fees.DefaultSchedule())
	}
	s := &Service{
		store:    st,
		fees:     calc,
		duration: DefaultDuration,
		pageSize: DefaultPageSize,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Duration returns how long new sessions stay open.
func (s *Service) Duration() time.Duration {
	return s.duration
}

// StartResult is returned by Start.
type StartResult struct {
	Negotiation *models.Negotiation
	Greeting    string
	// Resumed is true when an existing active session was returned.
	Resumed bool
}

// Start opens a negotiation between investorID and the owner of projectID, or
// returns the pair's existing active negotiation. When targetAmount is set, the
// fee is quoted at the investor's subscription tier and stored on the session.
func (s *Service) Start(ctx context.Context, projectID, investorID int64, targetAmount decimal.NullDecimal) (*StartResult, error) {
	if targetAmount.Valid && !targetAmount.Decimal.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var result *StartResult
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		project, err := tx.Projects().Get(ctx, projectID)
		if err != nil {
			return fmt.Errorf("getting project: %w", err)
		}
		if project == nil {
			return ErrProjectNotFound
		}
		if project.CreatorID == investorID {
			return ErrInvalidParticipants
		}

		existing, err := s.activeSession(ctx, tx, projectID, investorID)
		if err != nil {
			return err
		}
		if existing != nil {
			result, err = s.resumed(ctx, tx, existing)
			return err
		}

		investor, err := tx.Users().GetByID(ctx, investorID)
		if err != nil {
			return fmt.Errorf("getting investor: %w", err)
		}
		if investor == nil {
			return ErrUserNotFound
		}
		owner, err := tx.Users().GetByID(ctx, project.CreatorID)
		if err != nil {
			return fmt.Errorf("getting owner: %w", err)
		}
		ownerName := ""
		if owner != nil {
			ownerName = owner.Name
		}

		now := s.now()
		n := &models.Negotiation{
			Token:        uuid.New(),
			ProjectID:    projectID,
			InvestorID:   investorID,
			OwnerID:      project.CreatorID,
			Status:       models.NegotiationActive,
			TargetAmount: targetAmount,
			StartedAt:    now,
			ExpiresAt:    now.Add(s.duration),
		}
		if targetAmount.Valid {
			quote, err := s.fees.Calculate(targetAmount.Decimal, investor.Tier)
			if err != nil {
				return err
			}
			n.FeeTotal = decimal.NullDecimal{Decimal: quote.TotalFee, Valid: true}
		}
		if err := tx.Negotiations().Create(ctx, n); err != nil {
			return err
		}

		text := greeting.Generate(project.Snapshot(ownerName))
		msg := &models.Message{
			Token:         uuid.New(),
			NegotiationID: n.ID,
			SenderID:      project.CreatorID,
			Body:          text,
			IsAIGenerated: true,
			CreatedAt:     now,
		}
		if err := tx.Messages().Append(ctx, msg); err != nil {
			return fmt.Errorf("appending greeting: %w", err)
		}

		result = &StartResult{Negotiation: n, Greeting: text}
		return nil
	})

	if errors.Is(err, store.ErrDuplicateActiveNegotiation) {
		// Another request created the session first; return theirs.
		s.logger.Debug("lost race creating negotiation, reading existing",
			"project_id", projectID, "investor_id", investorID)
		existing, rerr := s.activeSession(ctx, s.store, projectID, investorID)
		if rerr != nil {
			return nil, rerr
		}
		if existing == nil {
			return nil, ErrDuplicateActiveSession
		}
		return s.resumed(ctx, s.store, existing)
	}
	if err != nil {
		return nil, err
	}

	if result.Resumed {
		s.logger.Debug("resumed negotiation", "negotiation", result.Negotiation.Token, "project_id", projectID)
	} else {
		s.logger.Info("negotiation started",
			"negotiation", result.Negotiation.Token,
			"project_id", projectID,
			"investor_id", investorID,
			"owner_id", result.Negotiation.OwnerID,
			"expires_at", result.Negotiation.ExpiresAt,
		)
	}
	return result, nil
}

func (s *Service) resumed(ctx context.Context, st store.Store, n *models.Negotiation) (*StartResult, error) {
	first, err := st.Messages().ListAfter(ctx, n.ID, models.MessageCursor{}, 1)
	if err != nil {
		return nil, fmt.Errorf("getting greeting: %w", err)
	}
	r := &StartResult{Negotiation: n, Resumed: true}
	if len(first) > 0 {
		r.Greeting = first[0].Body
	}
	return r, nil
}

// Active returns the active negotiation between a project and an investor, or
// nil if there is none. A session past its deadline is expired and not returned.
func (s *Service) Active(ctx context.Context, projectID, investorID int64) (*models.Negotiation, error) {
	return s.activeSession(ctx, s.store, projectID, investorID)
}

// ActiveFor is Active on behalf of callerID, who must be the investor or the
// project's owner. The check runs before the lookup, so outsiders learn
// nothing about the pair and trigger no expiry writes.
func (s *Service) ActiveFor(ctx context.Context, callerID, projectID, investorID int64) (*models.Negotiation, error) {
	if callerID != investorID {
		project, err := s.store.Projects().Get(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("getting project: %w", err)
		}
		if project == nil {
			return nil, ErrProjectNotFound
		}
		if project.CreatorID != callerID {
			return nil, ErrNotParticipant
		}
	}
	return s.activeSession(ctx, s.store, projectID, investorID)
}

func (s *Service) activeSession(ctx context.Context, st store.Store, projectID, investorID int64) (*models.Negotiation, error) {
	n, err := st.Negotiations().GetActive(ctx, projectID, investorID)
	if err != nil {
		return nil, fmt.Errorf("getting active negotiation: %w", err)
	}
	if n == nil {
		return nil, nil
	}
	n, err = s.refresh(ctx, st, n)
	if err != nil {
		return nil, err
	}
	if n.Status != models.NegotiationActive {
		return nil, nil
	}
	return n, nil
}

// refresh applies the lazy expiry rule to n and returns its current state.
func (s *Service) refresh(ctx context.Context, st store.Store, n *models.Negotiation) (*models.Negotiation, error) {
	if !n.IsOverdue(s.now()) {
		return n, nil
	}

	ok, err := st.Negotiations().Transition(ctx, n.ID, store.Transition{
		Status:      models.NegotiationExpired,
		CompletedAt: n.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("expiring negotiation: %w", err)
	}
	if !ok {
		// Closed by someone else in the meantime.
		current, err := st.Negotiations().Get(ctx, n.ID)
		if err != nil {
			return nil, fmt.Errorf("reloading negotiation: %w", err)
		}
		if current == nil {
			return nil, ErrSessionNotFound
		}
		return current, nil
	}

	s.logger.Info("negotiation expired", "negotiation", n.Token, "expires_at", n.ExpiresAt)
	expiredAt := n.ExpiresAt
	n.Status = models.NegotiationExpired
	n.CompletedAt = &expiredAt
	return n, nil
}

// load fetches a session by token for a participant and applies lazy expiry.
func (s *Service) load(ctx context.Context, st store.Store, token uuid.UUID, callerID int64) (*models.Negotiation, error) {
	n, err := st.Negotiations().GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("getting negotiation: %w", err)
	}
	if n == nil {
		return nil, ErrSessionNotFound
	}
	if !n.IsParticipant(callerID) {
		return nil, ErrNotParticipant
	}
	return s.refresh(ctx, st, n)
}

// Get returns a negotiation visible to callerID.
func (s *Service) Get(ctx context.Context, token uuid.UUID, callerID int64) (*models.Negotiation, error) {
	return s.load(ctx, s.store, token, callerID)
}

// List returns the caller's negotiations, optionally filtered by status.
func (s *Service) List(ctx context.Context, callerID int64, statuses []models.NegotiationStatus) ([]*models.Negotiation, error) {
	all, err := s.store.Negotiations().ListByParticipant(ctx, callerID, nil)
	if err != nil {
		return nil, fmt.Errorf("listing negotiations: %w", err)
	}

	wanted := make(map[models.NegotiationStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	out := make([]*models.Negotiation, 0, len(all))
	for _, n := range all {
		n, err := s.refresh(ctx, s.store, n)
		if err != nil {
			return nil, err
		}
		if len(wanted) == 0 || wanted[n.Status] {
			out = append(out, n)
		}
	}
	return out, nil
}

// CloseRequest describes how a participant closes a negotiation.
type CloseRequest struct {
	Outcome          models.NegotiationStatus
	AgreementReached bool
	Terms            *models.SuggestedTerms
}

// Close moves an active negotiation to completed or expired.
func (s *Service) Close(ctx context.Context, token uuid.UUID, callerID int64, req CloseRequest) (*models.Negotiation, error) {
	if req.Outcome != models.NegotiationCompleted && req.Outcome != models.NegotiationExpired {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, req.Outcome)
	}
	if req.Outcome == models.NegotiationExpired && req.AgreementReached {
		return nil, fmt.Errorf("%w: an expired negotiation cannot reach agreement", ErrInvalidOutcome)
	}
	if req.Terms != nil {
		if err := req.Terms.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTerms, err)
		}
	}

	n, err := s.load(ctx, s.store, token, callerID)
	if err != nil {
		return nil, err
	}
	if n.Status != models.NegotiationActive {
		return nil, ErrSessionNotActive
	}

	ok, err := s.store.Negotiations().Transition(ctx, n.ID, store.Transition{
		Status:           req.Outcome,
		CompletedAt:      s.now(),
		AgreementReached: req.AgreementReached,
		Terms:            req.Terms,
	})
	if err != nil {
		return nil, fmt.Errorf("closing negotiation: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotActive
	}

	s.logger.Info("negotiation closed",
		"negotiation", n.Token,
		"outcome", req.Outcome,
		"agreement_reached", req.AgreementReached,
		"closed_by", callerID,
	)
	return s.Get(ctx, token, callerID)
}

// ProposeTerms attaches suggested terms to an active negotiation.
func (s *Service) ProposeTerms(ctx context.Context, token uuid.UUID, callerID int64, terms *models.SuggestedTerms) (*models.Negotiation, error) {
	if terms == nil {
		return nil, ErrInvalidTerms
	}
	if err := terms.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTerms, err)
	}

	n, err := s.load(ctx, s.store, token, callerID)
	if err != nil {
		return nil, err
	}
	if n.Status != models.NegotiationActive {
		return nil, ErrSessionClosed
	}

	ok, err := s.store.Negotiations().SetTerms(ctx, n.ID, terms)
	if err != nil {
		return nil, fmt.Errorf("setting terms: %w", err)
	}
	if !ok {
		return nil, ErrSessionClosed
	}
	n.SuggestedTerms = terms
	return n, nil
}

// Quote returns the fee for targetAmount at the given tier.
func (s *Service) Quote(targetAmount decimal.Decimal, tier models.SubscriptionTier) (*fees.Quote, error) {
	return s.fees.Calculate(targetAmount, tier)
}

// QuoteFor returns the fee for targetAmount at the user's own subscription tier.
func (s *Service) QuoteFor(ctx context.Context, userID int64, targetAmount decimal.Decimal) (*fees.Quote, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return s.fees.Calculate(targetAmount, user.Tier)
}
