package fees

import (
	"errors"
	"testing"
	"time"

	"github.com/bithra/platform/internal/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// genTargetAmount generates positive amounts with cent precision.
func genTargetAmount() gopter.Gen {
	return gen.Int64Range(1, 10_000_000_00).Map(func(cents int64) decimal.Decimal {
		return decimal.New(cents, -2)
	})
}

// genNonPositiveAmount generates zero or negative amounts.
func genNonPositiveAmount() gopter.Gen {
	return gen.Int64Range(-10_000_000_00, 0).Map(func(cents int64) decimal.Decimal {
		return decimal.New(cents, -2)
	})
}

func genTier() gopter.Gen {
	return gen.OneConstOf(models.TierNone, models.TierSilver, models.TierGold, models.TierPlatinum)
}

// **Property: fee formula**
// For any positive target amount and tier, total = round((flat + (rate+surcharge)*amount) * (1 - discount), 2)
// and the total never exceeds the undiscounted subtotal.
func TestFeeFormula(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	sched := DefaultSchedule()
	sched.Surcharge = decimal.RequireFromString("0.005")
	calc := NewCalculator(sched)

	properties.Property("total fee follows the discounted schedule", prop.ForAll(
		func(amount decimal.Decimal, tier models.SubscriptionTier) bool {
			q, err := calc.Calculate(amount, tier)
			if err != nil {
				t.Logf("Calculate(%s, %s): %v", amount, tier, err)
				return false
			}
			sched := calc.Schedule()
			base := sched.Flat.Add(sched.Rate.Mul(amount))
			subtotal := base.Add(sched.Surcharge.Mul(amount))
			if !q.BaseFee.Equal(base.Round(2)) {
				t.Logf("base fee %s, want %s", q.BaseFee, base.Round(2))
				return false
			}
			want := subtotal.Mul(decimal.NewFromInt(1).Sub(discounts[tier])).Round(2)
			if !q.TotalFee.Equal(want) {
				t.Logf("total %s, want %s", q.TotalFee, want)
				return false
			}
			return q.TotalFee.LessThanOrEqual(subtotal)
		},
		genTargetAmount(),
		genTier(),
	))

	properties.Property("higher tiers never pay more", prop.ForAll(
		func(amount decimal.Decimal) bool {
			order := []models.SubscriptionTier{models.TierNone, models.TierSilver, models.TierGold, models.TierPlatinum}
			prev := decimal.Zero
			for i, tier := range order {
				q, err := calc.Calculate(amount, tier)
				if err != nil {
					return false
				}
				if i > 0 && q.TotalFee.GreaterThan(prev) {
					return false
				}
				prev = q.TotalFee
			}
			return true
		},
		genTargetAmount(),
	))

	properties.Property("non-positive amounts are rejected", prop.ForAll(
		func(amount decimal.Decimal, tier models.SubscriptionTier) bool {
			q, err := calc.Calculate(amount, tier)
			return q == nil && errors.Is(err, ErrInvalidAmount)
		},
		genNonPositiveAmount(),
		genTier(),
	))

	properties.TestingRun(t)
}

func TestCalculateGoldExample(t *testing.T) {
	calc := NewCalculator(DefaultSchedule())

	q, err := calc.Calculate(decimal.NewFromInt(100000), models.TierGold)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"base fee", q.BaseFee, "2050"},
		{"rate fee", q.RateFee, "0"},
		{"subtotal", q.Subtotal, "2050"},
		{"discount", q.Discount, "0.10"},
		{"discount amount", q.DiscountAmount, "205"},
		{"total fee", q.TotalFee, "1845.00"},
	}
	for _, c := range checks {
		if !c.got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if got := q.TotalFee.StringFixed(2); got != "1845.00" {
		t.Errorf("formatted total = %q, want 1845.00", got)
	}
	if len(q.Breakdown) != 2 {
		t.Fatalf("breakdown has %d lines, want 2", len(q.Breakdown))
	}
	if q.Breakdown[0].Label != "base fee (2% + 50)" || !q.Breakdown[0].Amount.Equal(decimal.NewFromInt(2050)) {
		t.Errorf("base line = %+v", q.Breakdown[0])
	}
}

func TestCalculateWithSurcharge(t *testing.T) {
	sched, err := ParseSchedule("0.02", "50", "0.01")
	if err != nil {
		t.Fatal(err)
	}

	q, err := NewCalculator(sched).Calculate(decimal.NewFromInt(100000), models.TierGold)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !q.BaseFee.Equal(decimal.NewFromInt(2050)) || !q.RateFee.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("base = %s, rate = %s, want 2050 and 1000", q.BaseFee, q.RateFee)
	}
	if got := q.TotalFee.StringFixed(2); got != "2745.00" {
		t.Errorf("total = %s, want 2745.00", got)
	}
	if len(q.Breakdown) != 3 || q.Breakdown[1].Label != "1% surcharge" {
		t.Errorf("breakdown = %+v", q.Breakdown)
	}
}

func TestCalculateRoundsToCents(t *testing.T) {
	calc := NewCalculator(Schedule{Rate: decimal.RequireFromString("0.015"), Flat: decimal.RequireFromString("9.99")})

	q, err := calc.Calculate(decimal.RequireFromString("333.33"), models.TierSilver)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// (9.99 + 4.99995) * 0.95 = 14.2404525
	if want := decimal.RequireFromString("14.24"); !q.TotalFee.Equal(want) {
		t.Errorf("total = %s, want %s", q.TotalFee, want)
	}
	if q.TotalFee.Exponent() < -2 {
		t.Errorf("total %s has more than two decimals", q.TotalFee)
	}
}

func TestCalculateUnknownTier(t *testing.T) {
	calc := NewCalculator(DefaultSchedule())
	if _, err := calc.Calculate(decimal.NewFromInt(10), "diamond"); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("err = %v, want ErrUnknownTier", err)
	}
}
