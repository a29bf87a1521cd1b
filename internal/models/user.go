package models

import (
	"time"
)

// User is the account a passkey binds to. The surrounding user subsystem
// (signup, password login, sessions) lives outside this service; the engine
// only reads users to scope ceremonies and to check for an independent
// factor before deleting a last remaining passkey.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasPassword reports whether the user has a password configured as an
// independent authentication factor.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Handle returns the user handle sent to authenticators as user.id.
func (u *User) Handle() []byte {
	return []byte(u.ID)
}
