package negotiation

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d(?:[\s\-]?\d){7,}`)
)

// needsModeration reports whether a message body shares contact details that
// would move the deal off the platform.
func needsModeration(body string) bool {
	return emailPattern.MatchString(body) || phonePattern.MatchString(body)
}
