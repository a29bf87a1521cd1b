// Package audit appends security events to the event log. Recording is
// fire-and-forget: a failing sink logs a warning and never fails the
// operation that produced the event.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/passkey/internal/models"
	"github.com/keyfold/passkey/internal/storage"
)

// Event types emitted by the engine.
const (
	EventPasskeyRegistered     = "passkey_registered"
	EventPasskeyAuthentication = "passkey_authentication"
	EventPasskeyDeleted        = "passkey_deleted"
	EventCounterWarning        = "passkey_counter_warning"
	EventBackupCodesGenerated  = "backup_codes_generated"
	EventBackupCodeUsed        = "backup_code_used"
	EventVerificationFailed    = "verification_failed"
)

type Sink struct {
	store storage.RecordStorage
}

func NewSink(store storage.RecordStorage) *Sink {
	return &Sink{store: store}
}

// Record appends one event. Errors are logged and swallowed.
func (s *Sink) Record(ctx context.Context, userID, eventType string, metadata map[string]any) {
	event := &models.SecurityEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      eventType,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := s.store.AppendSecurityEvent(ctx, event); err != nil {
		slog.Warn("Failed to record security event", "type", eventType, "user_id", userID, "error", err)
	}
}
