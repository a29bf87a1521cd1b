package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keyfold/passkey/internal/models"
)

// FilesystemStorage stores each record as a JSON file under a base
// directory: users/, credentials/, backup-codes/, and events/.
type FilesystemStorage struct {
	basePath string
}

func NewFilesystemStorage(basePath string) (*FilesystemStorage, error) {
	for _, dir := range []string{"users", "credentials", "backup-codes", "events"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s path: %w", dir, err)
		}
	}
	return &FilesystemStorage{basePath: basePath}, nil
}

func (f *FilesystemStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := f.readJSON(filepath.Join("users", userID+".json"), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (f *FilesystemStorage) SaveUser(ctx context.Context, user *models.User) error {
	return f.writeJSON(filepath.Join("users", user.ID+".json"), user)
}

func (f *FilesystemStorage) GetCredential(ctx context.Context, credentialID []byte) (*models.Credential, error) {
	var cred models.Credential
	if err := f.readJSON(filepath.Join("credentials", credentialKey(credentialID)+".json"), &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (f *FilesystemStorage) GetUserCredentials(ctx context.Context, userID string) ([]*models.Credential, error) {
	entries, err := os.ReadDir(filepath.Join(f.basePath, "credentials"))
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	var creds []*models.Credential
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var cred models.Credential
		if err := f.readJSON(filepath.Join("credentials", entry.Name()), &cred); err != nil {
			continue // skip records deleted or corrupted mid-scan
		}
		if cred.UserID == userID {
			creds = append(creds, &cred)
		}
	}
	return creds, nil
}

func (f *FilesystemStorage) SaveCredential(ctx context.Context, cred *models.Credential) error {
	return f.writeJSON(filepath.Join("credentials", credentialKey(cred.ID)+".json"), cred)
}

func (f *FilesystemStorage) UpdateCredential(ctx context.Context, cred *models.Credential) error {
	path := filepath.Join("credentials", credentialKey(cred.ID)+".json")
	if _, err := os.Stat(filepath.Join(f.basePath, path)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to check credential file: %w", err)
	}
	return f.writeJSON(path, cred)
}

func (f *FilesystemStorage) DeleteCredential(ctx context.Context, userID string, credentialID []byte) error {
	cred, err := f.GetCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	if cred.UserID != userID {
		return ErrNotFound
	}
	path := filepath.Join(f.basePath, "credentials", credentialKey(credentialID)+".json")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete credential file: %w", err)
	}
	return nil
}

func (f *FilesystemStorage) ReplaceBackupCodes(ctx context.Context, set *models.BackupCodeSet) error {
	return f.writeJSON(filepath.Join("backup-codes", set.UserID+".json"), set)
}

func (f *FilesystemStorage) GetBackupCodes(ctx context.Context, userID string) (*models.BackupCodeSet, error) {
	var set models.BackupCodeSet
	if err := f.readJSON(filepath.Join("backup-codes", userID+".json"), &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (f *FilesystemStorage) RemoveBackupCode(ctx context.Context, userID, codeHash string) (int, error) {
	set, err := f.GetBackupCodes(ctx, userID)
	if err != nil {
		return 0, err
	}
	for i, hash := range set.CodeHashes {
		if hash == codeHash {
			set.CodeHashes = append(set.CodeHashes[:i], set.CodeHashes[i+1:]...)
			if err := f.ReplaceBackupCodes(ctx, set); err != nil {
				return 0, err
			}
			return len(set.CodeHashes), nil
		}
	}
	return 0, ErrNotFound
}

func (f *FilesystemStorage) AppendSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	// One file per event keeps the log append-only; the timestamp prefix
	// keeps directory listings chronological.
	name := fmt.Sprintf("%s-%s.json", event.CreatedAt.UTC().Format(time.RFC3339Nano), event.ID)
	return f.writeJSON(filepath.Join("events", name), event)
}

func (f *FilesystemStorage) readJSON(relPath string, v any) error {
	data, err := os.ReadFile(filepath.Join(f.basePath, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", relPath, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", relPath, err)
	}
	return nil
}

func (f *FilesystemStorage) writeJSON(relPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", relPath, err)
	}
	if err := os.WriteFile(filepath.Join(f.basePath, relPath), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", relPath, err)
	}
	return nil
}
