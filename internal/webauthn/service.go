// Package webauthn runs the registration and authentication ceremonies of
// the passwordless engine. Each ceremony spans two round trips: a begin call
// that issues options anchored to a fresh challenge, and a finish call that
// verifies the authenticator's response and mutates credential state. All
// ceremony state lives in the stores, so the service itself is stateless.
package webauthn

import (
	"github.com/keyfold/passkey/internal/audit"
	"github.com/keyfold/passkey/internal/challenge"
	"github.com/keyfold/passkey/internal/storage"
)

// Config is the relying-party identity, read once at startup.
type Config struct {
	// RPDisplayName is the human-readable service name shown by
	// authenticator prompts.
	RPDisplayName string
	// RPID is the relying-party id, a registrable domain suffix of the
	// origin.
	RPID string
	// RPOrigin is the exact origin URL responses must report.
	RPOrigin string
}

type Service struct {
	cfg        Config
	records    storage.RecordStorage
	challenges *challenge.Manager
	audit      *audit.Sink
}

func NewService(cfg Config, records storage.RecordStorage, challenges *challenge.Manager, sink *audit.Sink) *Service {
	return &Service{
		cfg:        cfg,
		records:    records,
		challenges: challenges,
		audit:      sink,
	}
}
