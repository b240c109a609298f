package fees

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Schedule is the fee schedule. The base fee is Rate of the target amount
// plus Flat. Surcharge is an optional extra rate charged on top of the base fee.
type Schedule struct {
	Rate      decimal.Decimal
	Flat      decimal.Decimal
	Surcharge decimal.Decimal
}

// DefaultSchedule returns 2% of the target amount plus 50, with no surcharge.
func DefaultSchedule() Schedule {
	return Schedule{
		Rate:      decimal.RequireFromString("0.02"),
		Flat:      decimal.NewFromInt(50),
		Surcharge: decimal.Zero,
	}
}

// Validate checks that the schedule cannot produce a negative fee.
func (s Schedule) Validate() error {
	if s.Rate.IsNegative() {
		return fmt.Errorf("fee rate must not be negative, got %s", s.Rate)
	}
	if s.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee rate must be below 1, got %s", s.Rate)
	}
	if s.Surcharge.IsNegative() {
		return fmt.Errorf("surcharge must not be negative, got %s", s.Surcharge)
	}
	if s.Rate.Add(s.Surcharge).GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee rate plus surcharge must be below 1, got %s", s.Rate.Add(s.Surcharge))
	}
	if s.Flat.IsNegative() {
		return fmt.Errorf("flat fee must not be negative, got %s", s.Flat)
	}
	return nil
}

// ParseSchedule builds a schedule from decimal strings. An empty surcharge is zero.
func ParseSchedule(rate, flat, surcharge string) (Schedule, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing fee rate %q: %w", rate, err)
	}
	f, err := decimal.NewFromString(flat)
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing flat fee %q: %w", flat, err)
	}
	sc := decimal.Zero
	if surcharge != "" {
		sc, err = decimal.NewFromString(surcharge)
		if err != nil {
			return Schedule{}, fmt.Errorf("parsing surcharge %q: %w", surcharge, err)
		}
	}
	s := Schedule{Rate: r, Flat: f, Surcharge: sc}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// scheduleFile is the on-disk YAML layout:
//
//	rate: "0.02"
//	flat: "50"
//	surcharge: "0"
type scheduleFile struct {
	Rate      string `yaml:"rate"`
	Flat      string `yaml:"flat"`
	Surcharge string `yaml:"surcharge"`
}

// LoadSchedule reads a YAML schedule file. Missing keys keep the defaults.
func LoadSchedule(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("reading fee schedule: %w", err)
	}
	return decodeSchedule(data)
}

func decodeSchedule(data []byte) (Schedule, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Schedule{}, fmt.Errorf("decoding fee schedule: %w", err)
	}
	def := DefaultSchedule()
	rate, flat := def.Rate.String(), def.Flat.String()
	if f.Rate != "" {
		rate = f.Rate
	}
	if f.Flat != "" {
		flat = f.Flat
	}
	return ParseSchedule(rate, flat, f.Surcharge)
}
