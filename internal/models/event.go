package models

import (
	"time"
)

// SecurityEvent is an append-only audit record. Events are never updated or
// deleted by this service.
type SecurityEvent struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
