package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument is the kind of deal proposed in a negotiation.
type Instrument string

const (
	InstrumentEquity       Instrument = "equity"
	InstrumentLoan         Instrument = "loan"
	InstrumentRevenueShare Instrument = "revenue_share"
)

// SuggestedTerms are structured deal terms attached to a negotiation.
type SuggestedTerms struct {
	Instrument     Instrument          `json:"instrument"`
	Amount         decimal.Decimal     `json:"amount"`
	EquityPercent  decimal.NullDecimal `json:"equity_percent"`
	DurationMonths int                 `json:"duration_months,omitempty"`
	Notes          string              `json:"notes,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// Validate checks the terms against the schema for their instrument.
func (t *SuggestedTerms) Validate() error {
	switch t.Instrument {
	case InstrumentEquity, InstrumentLoan, InstrumentRevenueShare:
	default:
		return fmt.Errorf("unknown instrument %q", t.Instrument)
	}
	if !t.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if t.Instrument == InstrumentEquity && !t.EquityPercent.Valid {
		return errors.New("equity_percent is required for equity deals")
	}
	if t.EquityPercent.Valid {
		p := t.EquityPercent.Decimal
		if !p.IsPositive() || p.GreaterThan(hundred) {
			return errors.New("equity_percent must be in (0, 100]")
		}
	}
	if t.DurationMonths < 0 || t.DurationMonths > 120 {
		return errors.New("duration_months must be between 0 and 120")
	}
	if len([]rune(t.Notes)) > 1000 {
		return errors.New("notes must be at most 1000 characters")
	}
	return nil
}
