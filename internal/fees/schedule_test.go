package fees

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecodeSchedule(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantRate string
		wantFlat string
		wantErr  bool
	}{
		{name: "both keys", yaml: "rate: 0.03\nflat: 25\n", wantRate: "0.03", wantFlat: "25"},
		{name: "quoted values", yaml: "rate: \"0.015\"\nflat: \"10.50\"\n", wantRate: "0.015", wantFlat: "10.5"},
		{name: "only rate keeps default flat", yaml: "rate: 0.01\n", wantRate: "0.01", wantFlat: "50"},
		{name: "empty file keeps defaults", yaml: "", wantRate: "0.02", wantFlat: "50"},
		{name: "negative flat", yaml: "flat: -1\n", wantErr: true},
		{name: "rate of one", yaml: "rate: 1\n", wantErr: true},
		{name: "not a number", yaml: "rate: abc\n", wantErr: true},
		{name: "negative surcharge", yaml: "surcharge: -0.01\n", wantErr: true},
		{name: "rate plus surcharge of one", yaml: "rate: 0.5\nsurcharge: 0.5\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := decodeSchedule([]byte(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got schedule %+v", s)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeSchedule: %v", err)
			}
			if !s.Rate.Equal(decimal.RequireFromString(tt.wantRate)) {
				t.Errorf("rate = %s, want %s", s.Rate, tt.wantRate)
			}
			if !s.Flat.Equal(decimal.RequireFromString(tt.wantFlat)) {
				t.Errorf("flat = %s, want %s", s.Flat, tt.wantFlat)
			}
		})
	}
}

func TestLoadSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fees.yaml")
	if err := os.WriteFile(path, []byte("rate: 0.025\nflat: 40\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSchedule(path)
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if !s.Rate.Equal(decimal.RequireFromString("0.025")) || !s.Flat.Equal(decimal.NewFromInt(40)) {
		t.Errorf("unexpected schedule %s + %s", s.Rate, s.Flat)
	}

	if _, err := LoadSchedule(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
