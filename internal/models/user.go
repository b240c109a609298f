// Package models provides data structures for the Bithra platform.
package models

import (
	"fmt"
	"time"
)

// SubscriptionTier represents a user's paid subscription level.
type SubscriptionTier string

const (
	TierNone     SubscriptionTier = "none"
	TierSilver   SubscriptionTier = "silver"
	TierGold     SubscriptionTier = "gold"
	TierPlatinum SubscriptionTier = "platinum"
)

// ParseSubscriptionTier converts a raw tier name. An empty string maps to TierNone.
func ParseSubscriptionTier(s string) (SubscriptionTier, error) {
	switch SubscriptionTier(s) {
	case "", TierNone:
		return TierNone, nil
	case TierSilver, TierGold, TierPlatinum:
		return SubscriptionTier(s), nil
	default:
		return "", fmt.Errorf("unknown subscription tier %q", s)
	}
}

// User represents a platform member. A user can own projects and invest in others.
type User struct {
	ID           int64            `json:"id"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	AvatarURL    string           `json:"avatar_url,omitempty"`
	Tier         SubscriptionTier `json:"subscription_tier"`
	PasswordHash string           `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
}
