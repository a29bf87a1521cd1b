package models

import (
	"time"
)

// CeremonyType scopes a challenge to the ceremony it was issued for.
type CeremonyType string

const (
	CeremonyRegistration   CeremonyType = "registration"
	CeremonyAuthentication CeremonyType = "authentication"
)

// Challenge is a single-use random value issued at the start of a ceremony.
// A row is consumed (fetched and deleted) exactly once; rows that are never
// consumed expire on their own.
type Challenge struct {
	ID string `json:"id"`

	// UserID is empty for user-less authentication starts
	// (discoverable-credential flows).
	UserID string `json:"userId,omitempty"`

	// Value is the base64url encoding of at least 32 random bytes.
	Value string `json:"value"`

	Ceremony  CeremonyType `json:"ceremony"`
	CreatedAt time.Time    `json:"createdAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
