package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/keyfold/passkey/internal/audit"
	"github.com/keyfold/passkey/internal/models"
	"github.com/keyfold/passkey/internal/passkeys"
	"github.com/keyfold/passkey/internal/protocol"
	"github.com/keyfold/passkey/internal/recovery"
	"github.com/keyfold/passkey/internal/webauthn"
)

type Server struct {
	webauthnService *webauthn.Service
	passkeyManager  *passkeys.Manager
	recoveryManager *recovery.Manager
	auditSink       *audit.Sink
}

func NewServer(webauthnService *webauthn.Service, passkeyManager *passkeys.Manager, recoveryManager *recovery.Manager, auditSink *audit.Sink) *Server {
	return &Server{
		webauthnService: webauthnService,
		passkeyManager:  passkeyManager,
		recoveryManager: recoveryManager,
		auditSink:       auditSink,
	}
}

// RegisterBeginHandler starts a registration ceremony.
// POST /api/v1/register/begin
func (s *Server) RegisterBeginHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID      string `json:"userId"`
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if request.UserID == "" || request.Username == "" {
		http.Error(w, "userId and username are required", http.StatusBadRequest)
		return
	}
	if request.DisplayName == "" {
		request.DisplayName = request.Username
	}

	user := &models.User{
		ID:          request.UserID,
		Name:        request.Username,
		DisplayName: request.DisplayName,
	}
	options, challengeID, err := s.webauthnService.BeginRegistration(r.Context(), user)
	if err != nil {
		s.writeCeremonyError(w, r, request.UserID, err)
		return
	}

	writeJSON(w, map[string]any{
		"publicKey":   options,
		"challengeId": challengeID,
	})
}

// RegisterFinishHandler completes a registration ceremony.
// POST /api/v1/register/finish
func (s *Server) RegisterFinishHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID      string                               `json:"userId"`
		ChallengeID string                               `json:"challengeId"`
		Label       string                               `json:"label"`
		Response    *protocol.CredentialCreationResponse `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if request.UserID == "" || request.ChallengeID == "" || request.Response == nil {
		http.Error(w, "userId, challengeId, and response are required", http.StatusBadRequest)
		return
	}

	credentialID, err := s.webauthnService.FinishRegistration(r.Context(), request.UserID, request.ChallengeID, request.Response, request.Label)
	if err != nil {
		s.writeCeremonyError(w, r, request.UserID, err)
		return
	}

	writeJSON(w, map[string]any{
		"status":       "registered",
		"credentialId": protocol.URLEncodedBase64(credentialID),
	})
}

// LoginBeginHandler starts an authentication ceremony. The userId field is
// optional; without it the options allow any discoverable credential.
// POST /api/v1/login/begin
func (s *Server) LoginBeginHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID string `json:"userId"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}

	options, challengeID, err := s.webauthnService.BeginAuthentication(r.Context(), request.UserID)
	if err != nil {
		s.writeCeremonyError(w, r, request.UserID, err)
		return
	}

	writeJSON(w, map[string]any{
		"publicKey":   options,
		"challengeId": challengeID,
	})
}

// LoginFinishHandler completes an authentication ceremony.
// POST /api/v1/login/finish
func (s *Server) LoginFinishHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ChallengeID string                                `json:"challengeId"`
		Response    *protocol.CredentialAssertionResponse `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if request.ChallengeID == "" || request.Response == nil {
		http.Error(w, "challengeId and response are required", http.StatusBadRequest)
		return
	}

	userID, err := s.webauthnService.FinishAuthentication(r.Context(), request.ChallengeID, request.Response)
	if err != nil {
		s.writeCeremonyError(w, r, "", err)
		return
	}

	writeJSON(w, map[string]any{
		"status": "authenticated",
		"userId": userID,
	})
}

// CredentialsHandler lists a user's passkeys.
// GET /api/v1/users/{userId}/credentials
func (s *Server) CredentialsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	creds, err := s.passkeyManager.List(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list credentials", "user_id", userID, "error", err)
		http.Error(w, "failed to list credentials", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]any, 0, len(creds))
	for _, cred := range creds {
		items = append(items, map[string]any{
			"credentialId": cred.EncodedID(),
			"displayName":  cred.DisplayName,
			"deviceType":   cred.DeviceType,
			"backedUp":     cred.BackedUp,
			"createdAt":    cred.CreatedAt,
			"lastUsedAt":   cred.LastUsedAt,
		})
	}
	writeJSON(w, map[string]any{"credentials": items})
}

// RenameCredentialHandler updates a passkey's display name.
// PATCH /api/v1/users/{userId}/credentials/{credentialId}
func (s *Server) RenameCredentialHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	credentialID, err := protocol.DecodeBase64(r.PathValue("credentialId"))
	if userID == "" || err != nil {
		http.Error(w, "userId and credentialId required", http.StatusBadRequest)
		return
	}

	var request struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.DisplayName == "" {
		http.Error(w, "displayName required", http.StatusBadRequest)
		return
	}

	if err := s.passkeyManager.Rename(r.Context(), userID, credentialID, request.DisplayName); err != nil {
		if errors.Is(err, protocol.ErrCredentialNotFound) {
			http.Error(w, "credential not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to rename credential", "user_id", userID, "error", err)
		http.Error(w, "failed to rename credential", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "renamed"})
}

// DeleteCredentialHandler removes a passkey, enforcing the last-factor rule.
// DELETE /api/v1/users/{userId}/credentials/{credentialId}
func (s *Server) DeleteCredentialHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	credentialID, err := protocol.DecodeBase64(r.PathValue("credentialId"))
	if userID == "" || err != nil {
		http.Error(w, "userId and credentialId required", http.StatusBadRequest)
		return
	}

	if err := s.passkeyManager.Delete(r.Context(), userID, credentialID); err != nil {
		switch {
		case errors.Is(err, protocol.ErrCredentialNotFound):
			http.Error(w, "credential not found", http.StatusNotFound)
		case errors.Is(err, protocol.ErrLastFactor):
			http.Error(w, "cannot delete the last authentication factor", http.StatusConflict)
		default:
			slog.Error("Failed to delete credential", "user_id", userID, "error", err)
			http.Error(w, "failed to delete credential", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

// BackupCodesHandler generates a fresh batch of backup codes.
// POST /api/v1/users/{userId}/backup-codes
func (s *Server) BackupCodesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	codes, err := s.recoveryManager.Generate(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to generate backup codes", "user_id", userID, "error", err)
		http.Error(w, "failed to generate backup codes", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"codes": codes})
}

// VerifyBackupCodeHandler consumes a backup code.
// POST /api/v1/users/{userId}/backup-codes/verify
func (s *Server) VerifyBackupCodeHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	var request struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Code == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return
	}

	ok, err := s.recoveryManager.Verify(r.Context(), userID, request.Code)
	if err != nil {
		slog.Error("Failed to verify backup code", "user_id", userID, "error", err)
		http.Error(w, "failed to verify backup code", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, protocol.PublicMessage, http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]string{"status": "verified"})
}

// HealthHandler reports liveness.
// GET /health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}

// writeCeremonyError maps any ceremony failure to one generic response so a
// caller cannot probe which check rejected them. The specific kind goes to
// the log and the audit trail only.
func (s *Server) writeCeremonyError(w http.ResponseWriter, r *http.Request, userID string, err error) {
	if protocol.IsVerificationFailure(err) {
		slog.Warn("Ceremony verification failed", "user_id", userID, "error", err)
		s.auditSink.Record(r.Context(), userID, audit.EventVerificationFailed, map[string]any{
			"reason": err.Error(),
		})
		http.Error(w, protocol.PublicMessage, http.StatusUnauthorized)
		return
	}
	slog.Error("Ceremony failed", "user_id", userID, "error", err)
	http.Error(w, "service unavailable", http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
