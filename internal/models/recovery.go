package models

import (
	"time"
)

// BackupCodeSet holds a user's one-time recovery codes. Only SHA-256 hashes
// are stored; the plaintext codes are shown to the caller exactly once at
// generation time. Each hash is removed individually when its code is used.
type BackupCodeSet struct {
	UserID      string    `json:"userId"`
	CodeHashes  []string  `json:"codeHashes"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Remaining returns the number of unused codes left in the set.
func (s *BackupCodeSet) Remaining() int {
	return len(s.CodeHashes)
}
