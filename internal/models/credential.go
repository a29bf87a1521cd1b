package models

import (
	"encoding/base64"
	"time"
)

// Device types reported for a credential, derived from the authenticator
// attachment hint the client sends alongside a registration response.
const (
	DeviceTypePlatform      = "platform"
	DeviceTypeCrossPlatform = "cross-platform"
)

// Credential is a passkey bound to a single user. Only the public half of
// the key pair and usage metadata are stored; the private key never leaves
// the authenticator.
type Credential struct {
	// ID is the credential id reported by the authenticator, globally
	// unique across all users.
	ID     []byte `json:"id"`
	UserID string `json:"userId"`

	// PublicKey is the verification key in DER-encoded SPKI form.
	PublicKey []byte `json:"publicKey"`

	// SignCount is the monotonic usage counter reported by the
	// authenticator, zero if the device does not support one.
	SignCount uint32 `json:"signCount"`

	Transports  []string  `json:"transports,omitempty"`
	DeviceType  string    `json:"deviceType"`
	BackedUp    bool      `json:"backedUp"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
}

// EncodedID returns the credential id in the base64url form used by the
// client layer and storage keys.
func (c *Credential) EncodedID() string {
	return base64.RawURLEncoding.EncodeToString(c.ID)
}
