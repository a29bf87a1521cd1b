// Package challenge issues and consumes the single-use random values that
// anchor every ceremony. A challenge is matched by at most one Consume call;
// both the success path and the terminal failure path delete the row.
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/passkey/internal/models"
	"github.com/keyfold/passkey/internal/protocol"
	"github.com/keyfold/passkey/internal/storage"
)

// Lifetime is how long an issued challenge stays valid.
const Lifetime = 5 * time.Minute

// valueSize is the number of random bytes in a challenge value.
const valueSize = 32

type Manager struct {
	store storage.ChallengeStorage
}

func NewManager(store storage.ChallengeStorage) *Manager {
	return &Manager{store: store}
}

// Create draws a fresh random challenge scoped to a ceremony type and,
// optionally, a user. The returned row id is the correlation token the
// caller echoes back on finish; the value goes into the ceremony options.
func (m *Manager) Create(ctx context.Context, ceremony models.CeremonyType, userID string) (*models.Challenge, error) {
	raw := make([]byte, valueSize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}

	now := time.Now()
	challenge := &models.Challenge{
		ID:        uuid.NewString(),
		UserID:    userID,
		Value:     base64.RawURLEncoding.EncodeToString(raw),
		Ceremony:  ceremony,
		CreatedAt: now,
		ExpiresAt: now.Add(Lifetime),
	}

	if err := m.store.SaveChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("%w: save challenge: %v", protocol.ErrStore, err)
	}
	return challenge, nil
}

// Consume atomically removes the challenge row, then validates it. The row
// is gone before any validation verdict, so even a failing finish burns it.
// An expired row is reported as expired; a ceremony or user mismatch reports
// not-found without revealing which field differed. Pass an empty userID to
// skip user scoping (user-less authentication).
func (m *Manager) Consume(ctx context.Context, id string, ceremony models.CeremonyType, userID string) (string, error) {
	challenge, err := m.store.ConsumeChallenge(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", protocol.ErrChallengeNotFound
		}
		return "", fmt.Errorf("%w: consume challenge: %v", protocol.ErrStore, err)
	}

	if challenge.Expired(time.Now()) {
		return "", protocol.ErrChallengeExpired
	}
	if challenge.Ceremony != ceremony {
		return "", protocol.ErrChallengeNotFound
	}
	if userID != "" && challenge.UserID != userID {
		return "", protocol.ErrChallengeNotFound
	}
	return challenge.Value, nil
}
