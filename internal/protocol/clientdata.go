package protocol

import (
	"crypto/subtle"
	"encoding/json"
)

// Client data type values for the two ceremonies.
const (
	TypeCreate = "webauthn.create"
	TypeGet    = "webauthn.get"
)

// CollectedClientData is the contextual binding the client signs over:
// which ceremony, which challenge, and which origin it saw.
type CollectedClientData struct {
	Type        string `json:"type"`
	Challenge   string `json:"challenge"`
	Origin      string `json:"origin"`
	CrossOrigin bool   `json:"crossOrigin,omitempty"`
}

// ParseClientData decodes the clientDataJSON blob from a ceremony response.
func ParseClientData(raw []byte) (*CollectedClientData, error) {
	var cd CollectedClientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, decodeErr("client data JSON: %v", err)
	}
	if cd.Type == "" || cd.Challenge == "" || cd.Origin == "" {
		return nil, decodeErr("client data missing required fields")
	}
	return &cd, nil
}

// Verify checks ceremony type, challenge, and origin byte-exactly. The
// challenge compare is constant-time; each mismatch returns its own error
// kind for the audit trail, never for the end user.
func (cd *CollectedClientData) Verify(ceremonyType, challenge, origin string) error {
	if cd.Type != ceremonyType {
		return ErrTypeMismatch
	}
	if subtle.ConstantTimeCompare([]byte(cd.Challenge), []byte(challenge)) != 1 {
		return ErrChallengeMismatch
	}
	if cd.Origin != origin {
		return ErrOriginMismatch
	}
	return nil
}
