// Package fees computes the fee charged to open a negotiation.
package fees

import (
	"errors"
	"fmt"

	"github.com/bithra/platform/internal/models"
	"github.com/shopspring/decimal"
)

// Errors returned by the calculator.
var (
	ErrInvalidAmount = errors.New("target amount must be greater than zero")
	ErrUnknownTier   = errors.New("unknown subscription tier")
)

// currencyPlaces is the number of decimal places money is rounded to.
const currencyPlaces = 2

// discounts maps each subscription tier to the fraction taken off the fee.
var discounts = map[models.SubscriptionTier]decimal.Decimal{
	models.TierNone:     decimal.Zero,
	models.TierSilver:   decimal.RequireFromString("0.05"),
	models.TierGold:     decimal.RequireFromString("0.10"),
	models.TierPlatinum: decimal.RequireFromString("0.20"),
}

// Discount returns the discount fraction for tier.
func Discount(tier models.SubscriptionTier) (decimal.Decimal, error) {
	d, ok := discounts[tier]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return d, nil
}

// Line is one row of a fee breakdown.
type Line struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Quote is the result of a fee calculation.
type Quote struct {
	TargetAmount   decimal.Decimal         `json:"target_amount"`
	Tier           models.SubscriptionTier `json:"tier"`
	BaseFee        decimal.Decimal         `json:"base_fee"`
	RateFee        decimal.Decimal         `json:"rate_fee"`
	Subtotal       decimal.Decimal         `json:"subtotal"`
	Discount       decimal.Decimal         `json:"discount"`
	DiscountAmount decimal.Decimal         `json:"discount_amount"`
	TotalFee       decimal.Decimal         `json:"total_fee"`
	Breakdown      []Line                  `json:"breakdown"`
}

// Calculator computes fees against a fixed schedule. It is safe for concurrent use.
type Calculator struct {
	schedule Schedule
}

// NewCalculator creates a calculator for the given schedule.
func NewCalculator(schedule Schedule) *Calculator {
	return &Calculator{schedule: schedule}
}

// Schedule returns the schedule the calculator was built with.
func (c *Calculator) Schedule() Schedule {
	return c.schedule
}

// Calculate returns the fee quote for targetAmount at the given subscription tier.
//
// The base fee is flat + rate*targetAmount and the rate fee is
// surcharge*targetAmount. The total is (baseFee + rateFee) * (1 - discount),
// rounded to two decimals.
func (c *Calculator) Calculate(targetAmount decimal.Decimal, tier models.SubscriptionTier) (*Quote, error) {
	if !targetAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	discount, err := Discount(tier)
	if err != nil {
		return nil, err
	}

	base := c.schedule.Flat.Add(c.schedule.Rate.Mul(targetAmount))
	rate := c.schedule.Surcharge.Mul(targetAmount)
	subtotal := base.Add(rate)
	total := subtotal.Mul(decimal.NewFromInt(1).Sub(discount)).Round(currencyPlaces)
	discountAmount := subtotal.Sub(total)

	return &Quote{
		TargetAmount:   targetAmount,
		Tier:           tier,
		BaseFee:        base.Round(currencyPlaces),
		RateFee:        rate.Round(currencyPlaces),
		Subtotal:       subtotal.Round(currencyPlaces),
		Discount:       discount,
		DiscountAmount: discountAmount.Round(currencyPlaces),
		TotalFee:       total,
		Breakdown:      c.breakdown(base, rate, discountAmount, tier),
	}, nil
}

func (c *Calculator) breakdown(base, rate, discountAmount decimal.Decimal, tier models.SubscriptionTier) []Line {
	lines := []Line{{
		Label:  fmt.Sprintf("base fee (%s%% + %s)", percent(c.schedule.Rate), c.schedule.Flat),
		Amount: base.Round(currencyPlaces),
	}}
	if c.schedule.Surcharge.IsPositive() {
		lines = append(lines, Line{
			Label:  fmt.Sprintf("%s%% surcharge", percent(c.schedule.Surcharge)),
			Amount: rate.Round(currencyPlaces),
		})
	}
	return append(lines, Line{
		Label:  fmt.Sprintf("%s subscriber discount", tier),
		Amount: discountAmount.Round(currencyPlaces).Neg(),
	})
}

func percent(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).String()
}
