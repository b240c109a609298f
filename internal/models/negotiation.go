package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NegotiationStatus represents the lifecycle state of a negotiation session.
type NegotiationStatus string

const (
	// NegotiationActive accepts new messages.
	NegotiationActive NegotiationStatus = "active"
	// NegotiationExpired is terminal; the session passed its deadline without agreement.
	NegotiationExpired NegotiationStatus = "expired"
	// NegotiationCompleted is terminal; the session was closed by a participant.
	NegotiationCompleted NegotiationStatus = "completed"
)

// ValidNegotiationStatuses lists every status a session can be in.
var ValidNegotiationStatuses = []NegotiationStatus{
	NegotiationActive,
	NegotiationExpired,
	NegotiationCompleted,
}

// IsValid reports whether s is a known status.
func (s NegotiationStatus) IsValid() bool {
	for _, v := range ValidNegotiationStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s NegotiationStatus) IsTerminal() bool {
	return s == NegotiationExpired || s == NegotiationCompleted
}

// Negotiation is a time-bounded conversation between a project owner and an investor.
type Negotiation struct {
	ID               int64               `json:"-"`
	Token            uuid.UUID           `json:"id"`
	ProjectID        int64               `json:"project_id"`
	InvestorID       int64               `json:"investor_id"`
	OwnerID          int64               `json:"owner_id"`
	Status           NegotiationStatus   `json:"status"`
	TargetAmount     decimal.NullDecimal `json:"target_amount"`
	FeeTotal         decimal.NullDecimal `json:"fee_total"`
	StartedAt        time.Time           `json:"started_at"`
	ExpiresAt        time.Time           `json:"expires_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	AgreementReached bool                `json:"agreement_reached"`
	SuggestedTerms   *SuggestedTerms     `json:"suggested_terms,omitempty"`
}

// IsParticipant reports whether userID is the investor or the owner of the session.
func (n *Negotiation) IsParticipant(userID int64) bool {
	return userID == n.InvestorID || userID == n.OwnerID
}

// IsOverdue reports whether an active session has passed its deadline at now.
func (n *Negotiation) IsOverdue(now time.Time) bool {
	return n.Status == NegotiationActive && now.After(n.ExpiresAt)
}
