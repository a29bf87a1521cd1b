package storage

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/keyfold/passkey/internal/models"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// credentialKey is the map/file/object key for a credential id, shared by
// every backend so records stay portable between them.
func credentialKey(credentialID []byte) string {
	return base64.RawURLEncoding.EncodeToString(credentialID)
}

// RecordStorage persists the durable records: users, credentials, backup
// codes, and the append-only security-event log.
type RecordStorage interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error

	// GetCredential looks a credential up by its authenticator-assigned
	// id, across all users.
	GetCredential(ctx context.Context, credentialID []byte) (*models.Credential, error)
	GetUserCredentials(ctx context.Context, userID string) ([]*models.Credential, error)
	SaveCredential(ctx context.Context, cred *models.Credential) error
	UpdateCredential(ctx context.Context, cred *models.Credential) error
	DeleteCredential(ctx context.Context, userID string, credentialID []byte) error

	// ReplaceBackupCodes overwrites any prior set for the user.
	ReplaceBackupCodes(ctx context.Context, set *models.BackupCodeSet) error
	GetBackupCodes(ctx context.Context, userID string) (*models.BackupCodeSet, error)
	// RemoveBackupCode removes a single hash from the user's set and
	// returns how many codes remain. ErrNotFound if the hash is absent.
	RemoveBackupCode(ctx context.Context, userID, codeHash string) (remaining int, err error)

	AppendSecurityEvent(ctx context.Context, event *models.SecurityEvent) error
}

// ChallengeStorage persists the short-lived ceremony challenges.
type ChallengeStorage interface {
	SaveChallenge(ctx context.Context, challenge *models.Challenge) error
	// ConsumeChallenge removes the row and returns it in one atomic step,
	// so at most one caller ever receives a given id. ErrNotFound for an
	// unknown or already-consumed id.
	ConsumeChallenge(ctx context.Context, id string) (*models.Challenge, error)
}
