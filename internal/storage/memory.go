package storage

import (
	"context"
	"sync"
	"time"

	"github.com/keyfold/passkey/internal/models"
)

// MemoryStorage keeps every record in process memory. It backs tests and
// single-instance deployments, and is the default challenge store.
type MemoryStorage struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	credentials map[string]*models.Credential // keyed by base64url credential id
	backupCodes map[string]*models.BackupCodeSet
	events      []*models.SecurityEvent
	challenges  map[string]*models.Challenge
}

func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{
		users:       make(map[string]*models.User),
		credentials: make(map[string]*models.Credential),
		backupCodes: make(map[string]*models.BackupCodeSet),
		challenges:  make(map[string]*models.Challenge),
	}

	// Expired challenges that are never consumed get swept in the
	// background, same cadence as their expiry window.
	go s.sweepRoutine()

	return s
}

func (s *MemoryStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *MemoryStorage) SaveUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	s.users[user.ID] = &u
	return nil
}

func (s *MemoryStorage) GetCredential(ctx context.Context, credentialID []byte) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[credentialKey(credentialID)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *cred
	return &c, nil
}

func (s *MemoryStorage) GetUserCredentials(ctx context.Context, userID string) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var creds []*models.Credential
	for _, cred := range s.credentials {
		if cred.UserID == userID {
			c := *cred
			creds = append(creds, &c)
		}
	}
	return creds, nil
}

func (s *MemoryStorage) SaveCredential(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cred
	s.credentials[credentialKey(cred.ID)] = &c
	return nil
}

func (s *MemoryStorage) UpdateCredential(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(cred.ID)
	if _, ok := s.credentials[key]; !ok {
		return ErrNotFound
	}
	c := *cred
	s.credentials[key] = &c
	return nil
}

func (s *MemoryStorage) DeleteCredential(ctx context.Context, userID string, credentialID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(credentialID)
	cred, ok := s.credentials[key]
	if !ok || cred.UserID != userID {
		return ErrNotFound
	}
	delete(s.credentials, key)
	return nil
}

func (s *MemoryStorage) ReplaceBackupCodes(ctx context.Context, set *models.BackupCodeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *set
	c.CodeHashes = append([]string(nil), set.CodeHashes...)
	s.backupCodes[set.UserID] = &c
	return nil
}

func (s *MemoryStorage) GetBackupCodes(ctx context.Context, userID string) (*models.BackupCodeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.backupCodes[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *set
	c.CodeHashes = append([]string(nil), set.CodeHashes...)
	return &c, nil
}

func (s *MemoryStorage) RemoveBackupCode(ctx context.Context, userID, codeHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.backupCodes[userID]
	if !ok {
		return 0, ErrNotFound
	}
	for i, hash := range set.CodeHashes {
		if hash == codeHash {
			set.CodeHashes = append(set.CodeHashes[:i], set.CodeHashes[i+1:]...)
			return len(set.CodeHashes), nil
		}
	}
	return 0, ErrNotFound
}

func (s *MemoryStorage) AppendSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	s.events = append(s.events, &e)
	return nil
}

// SecurityEvents returns a snapshot of the event log, oldest first.
func (s *MemoryStorage) SecurityEvents() []*models.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.SecurityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryStorage) SaveChallenge(ctx context.Context, challenge *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *challenge
	s.challenges[challenge.ID] = &c
	return nil
}

// ConsumeChallenge removes and returns the row under a single lock hold, so
// concurrent consumers of the same id see exactly one winner.
func (s *MemoryStorage) ConsumeChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.challenges, id)
	c := *challenge
	return &c, nil
}

// sweepRoutine runs every 5 minutes to drop expired challenges.
func (s *MemoryStorage) sweepRoutine() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.sweep(time.Now())
	}
}

func (s *MemoryStorage) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, challenge := range s.challenges {
		if challenge.Expired(now) {
			delete(s.challenges, id)
		}
	}
}
