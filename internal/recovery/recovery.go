// Package recovery implements one-time backup codes, the fallback factor
// for an account whose passkey is lost. Codes are stored only as SHA-256
// hashes and each one is removed from the set when used.
package recovery

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keyfold/passkey/internal/audit"
	"github.com/keyfold/passkey/internal/models"
	"github.com/keyfold/passkey/internal/protocol"
	"github.com/keyfold/passkey/internal/storage"
)

// codeAlphabet is a 32-symbol set with the lookalikes I, L, O, U removed.
const codeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ0123456789"

const (
	// BatchSize is how many codes one generation produces.
	BatchSize = 10
	// codeGroupLen is the length of each half of an XXXX-XXXX code.
	codeGroupLen = 4
)

type Manager struct {
	records storage.RecordStorage
	audit   *audit.Sink
}

func NewManager(records storage.RecordStorage, sink *audit.Sink) *Manager {
	return &Manager{records: records, audit: sink}
}

// Generate creates a fresh batch of codes, replacing any earlier set, and
// returns the plaintext values. This is the only time they exist outside
// the caller's hands; only hashes are stored.
func (m *Manager) Generate(ctx context.Context, userID string) ([]string, error) {
	codes := make([]string, 0, BatchSize)
	hashes := make([]string, 0, BatchSize)
	for i := 0; i < BatchSize; i++ {
		code, err := newCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes = append(codes, code)
		hashes = append(hashes, hashCode(code))
	}

	set := &models.BackupCodeSet{
		UserID:      userID,
		CodeHashes:  hashes,
		GeneratedAt: time.Now(),
	}
	if err := m.records.ReplaceBackupCodes(ctx, set); err != nil {
		return nil, fmt.Errorf("%w: save backup codes: %v", protocol.ErrStore, err)
	}

	m.audit.Record(ctx, userID, audit.EventBackupCodesGenerated, map[string]any{
		"count": BatchSize,
	})
	return codes, nil
}

// Verify consumes a backup code. The input is normalized (case and
// separators ignored), hashed, and matched against the stored set; a hit
// removes that single hash so the code can never be replayed.
func (m *Manager) Verify(ctx context.Context, userID, code string) (bool, error) {
	normalized := normalize(code)
	if len(normalized) != codeGroupLen*2 {
		return false, nil
	}

	remaining, err := m.records.RemoveBackupCode(ctx, userID, hashCode(normalized))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: consume backup code: %v", protocol.ErrStore, err)
	}

	m.audit.Record(ctx, userID, audit.EventBackupCodeUsed, map[string]any{
		"remaining": remaining,
	})
	return true, nil
}

func newCode() (string, error) {
	raw := make([]byte, codeGroupLen*2)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, r := range raw {
		if i == codeGroupLen {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(r)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// normalize uppercases and strips everything outside the code alphabet, so
// "ab12-cd34", "AB12 CD34", and "AB12CD34" all verify the same.
func normalize(code string) string {
	code = strings.ToUpper(code)
	var b strings.Builder
	for _, r := range code {
		if strings.ContainsRune(codeAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// hashCode hashes the normalized code in its canonical XXXX-XXXX form.
func hashCode(code string) string {
	normalized := normalize(code)
	canonical := normalized[:codeGroupLen] + "-" + normalized[codeGroupLen:]
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
