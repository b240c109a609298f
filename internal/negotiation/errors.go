package negotiation

import (
	"errors"

	"github.com/bithra/platform/internal/fees"
)

// Errors returned by the negotiation service. All of them are business-rule
// failures; infrastructure errors are returned wrapped but otherwise unchanged.
var (
	ErrInvalidAmount          = fees.ErrInvalidAmount
	ErrProjectNotFound        = errors.New("project not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidParticipants    = errors.New("a project owner cannot negotiate with themselves")
	ErrSessionNotFound        = errors.New("negotiation not found")
	ErrSessionNotActive       = errors.New("negotiation is not active")
	ErrSessionClosed          = errors.New("negotiation is closed")
	ErrEmptyMessage           = errors.New("message must not be empty")
	ErrMessageTooLong         = errors.New("message is too long")
	ErrDuplicateActiveSession = errors.New("an active negotiation already exists")
	ErrNotParticipant         = errors.New("user is not a participant in this negotiation")
	ErrInvalidOutcome         = errors.New("invalid negotiation outcome")
	ErrInvalidTerms           = errors.New("invalid suggested terms")
)
