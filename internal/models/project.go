package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Project is a fundraising project published by its creator.
type Project struct {
	ID             int64               `json:"id"`
	CreatorID      int64               `json:"creator_id"`
	Title          string              `json:"title"`
	Description    string              `json:"description,omitempty"`
	Category       string              `json:"category,omitempty"`
	FundingGoal    decimal.NullDecimal `json:"funding_goal"`
	CurrentFunding decimal.NullDecimal `json:"current_funding"`
	Timeline       string              `json:"timeline,omitempty"`
	TeamSize       int                 `json:"team_size,omitempty"`
	Traction       string              `json:"traction,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// ProjectSnapshot is the subset of project context used to open a negotiation.
// Any field may be zero.
type ProjectSnapshot struct {
	Title          string
	Description    string
	Category       string
	FundingGoal    decimal.NullDecimal
	CurrentFunding decimal.NullDecimal
	OwnerName      string
	Timeline       string
	TeamSize       int
	Traction       string
}

// Snapshot builds a ProjectSnapshot for the project with the given owner display name.
func (p *Project) Snapshot(ownerName string) ProjectSnapshot {
	return ProjectSnapshot{
		Title:          p.Title,
		Description:    p.Description,
		Category:       p.Category,
		FundingGoal:    p.FundingGoal,
		CurrentFunding: p.CurrentFunding,
		OwnerName:      ownerName,
		Timeline:       p.Timeline,
		TeamSize:       p.TeamSize,
		Traction:       p.Traction,
	}
}
