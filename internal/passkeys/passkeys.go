// Package passkeys manages a user's bound credentials: listing, renaming,
// and deletion under the last-factor rule.
package passkeys

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/keyfold/passkey/internal/audit"
	"github.com/keyfold/passkey/internal/models"
	"github.com/keyfold/passkey/internal/protocol"
	"github.com/keyfold/passkey/internal/storage"
)

type Manager struct {
	records storage.RecordStorage
	audit   *audit.Sink
}

func NewManager(records storage.RecordStorage, sink *audit.Sink) *Manager {
	return &Manager{records: records, audit: sink}
}

// List returns the user's credentials.
func (m *Manager) List(ctx context.Context, userID string) ([]*models.Credential, error) {
	creds, err := m.records.GetUserCredentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list credentials: %v", protocol.ErrStore, err)
	}
	return creds, nil
}

// Rename changes a credential's display name.
func (m *Manager) Rename(ctx context.Context, userID string, credentialID []byte, newName string) error {
	cred, err := m.getOwned(ctx, userID, credentialID)
	if err != nil {
		return err
	}
	cred.DisplayName = newName
	if err := m.records.UpdateCredential(ctx, cred); err != nil {
		return fmt.Errorf("%w: update credential: %v", protocol.ErrStore, err)
	}
	return nil
}

// Delete removes a credential. Deleting the user's only remaining passkey is
// refused unless a password is configured as an independent factor, so an
// account can never be left with nothing to authenticate with.
func (m *Manager) Delete(ctx context.Context, userID string, credentialID []byte) error {
	cred, err := m.getOwned(ctx, userID, credentialID)
	if err != nil {
		return err
	}

	creds, err := m.records.GetUserCredentials(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: list credentials: %v", protocol.ErrStore, err)
	}
	if len(creds) <= 1 {
		user, err := m.records.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("%w: get user: %v", protocol.ErrStore, err)
		}
		if !user.HasPassword() {
			return protocol.ErrLastFactor
		}
	}

	if err := m.records.DeleteCredential(ctx, userID, credentialID); err != nil {
		return fmt.Errorf("%w: delete credential: %v", protocol.ErrStore, err)
	}
	m.audit.Record(ctx, userID, audit.EventPasskeyDeleted, map[string]any{
		"credential_id": cred.EncodedID(),
	})
	return nil
}

func (m *Manager) getOwned(ctx context.Context, userID string, credentialID []byte) (*models.Credential, error) {
	cred, err := m.records.GetCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, protocol.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("%w: get credential: %v", protocol.ErrStore, err)
	}
	if cred.UserID != userID || !bytes.Equal(cred.ID, credentialID) {
		return nil, protocol.ErrCredentialNotFound
	}
	return cred, nil
}
