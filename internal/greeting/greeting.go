// Package greeting renders the opening message of a negotiation from project context.
package greeting

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/bithra/platform/internal/models"
	"github.com/shopspring/decimal"
)

// Phrases used when the snapshot does not carry a value.
const (
	DefaultTitle    = "our project"
	DefaultOwner    = "the project owner"
	DefaultCategory = "general"
	DefaultFunding  = "a funding goal we will confirm together"
	DefaultTimeline = "12 months"
	DefaultTeam     = "a small founding team"
	DefaultTraction = "early validation in progress"
)

//go:embed greeting.tmpl
var greetingTemplate string

var tmpl = template.Must(template.New("greeting").Parse(greetingTemplate))

type view struct {
	Title       string
	Owner       string
	Description string
	Category    string
	Funding     string
	Timeline    string
	Team        string
	Traction    string
}

// Generate renders the greeting for a project snapshot. The output depends only on
// the snapshot, so equal snapshots always produce equal greetings.
func Generate(s models.ProjectSnapshot) string {
	v := view{
		Title:       orDefault(s.Title, DefaultTitle),
		Owner:       orDefault(s.OwnerName, DefaultOwner),
		Description: strings.TrimSpace(s.Description),
		Category:    orDefault(s.Category, DefaultCategory),
		Funding:     funding(s.FundingGoal, s.CurrentFunding),
		Timeline:    orDefault(s.Timeline, DefaultTimeline),
		Team:        team(s.TeamSize),
		Traction:    orDefault(s.Traction, DefaultTraction),
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, v); err != nil {
		return fmt.Sprintf("Hello, and thank you for your interest in %q.", v.Title)
	}
	return strings.TrimSpace(b.String())
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func team(size int) string {
	switch {
	case size == 1:
		return "1 member"
	case size > 1:
		return fmt.Sprintf("%d members", size)
	default:
		return DefaultTeam
	}
}

func funding(goal, current decimal.NullDecimal) string {
	if !goal.Valid || !goal.Decimal.IsPositive() {
		return DefaultFunding
	}
	out := "raising " + goal.Decimal.StringFixed(2)
	if current.Valid && !current.Decimal.IsNegative() {
		pct := current.Decimal.Div(goal.Decimal).Mul(decimal.NewFromInt(100)).Round(0)
		out += fmt.Sprintf(", %s secured so far (%s%%)", current.Decimal.StringFixed(2), pct.String())
	}
	return out
}
