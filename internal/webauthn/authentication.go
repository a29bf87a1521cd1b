package webauthn

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/keyfold/passkey/internal/audit"
	"github.com/keyfold/passkey/internal/models"
	"github.com/keyfold/passkey/internal/protocol"
	"github.com/keyfold/passkey/internal/storage"
)

// BeginAuthentication builds request options. With an empty userID the
// options carry no allowCredentials, which lets the client offer any
// discoverable credential; the finish call resolves the owning user from
// the credential the authenticator actually used.
func (s *Service) BeginAuthentication(ctx context.Context, userID string) (*protocol.CredentialRequestOptions, string, error) {
	ch, err := s.challenges.Create(ctx, models.CeremonyAuthentication, userID)
	if err != nil {
		return nil, "", err
	}

	options := &protocol.CredentialRequestOptions{
		Challenge:        ch.Value,
		Timeout:          protocol.CeremonyTimeoutMillis,
		RPID:             s.cfg.RPID,
		UserVerification: protocol.RequirementPreferred,
	}

	if userID != "" {
		creds, err := s.records.GetUserCredentials(ctx, userID)
		if err != nil {
			return nil, "", fmt.Errorf("%w: list credentials: %v", protocol.ErrStore, err)
		}
		for _, cred := range creds {
			options.AllowCredentials = append(options.AllowCredentials, protocol.CredentialDescriptor{
				Type:       protocol.CredentialTypePublicKey,
				ID:         protocol.URLEncodedBase64(cred.ID),
				Transports: cred.Transports,
			})
		}
	}
	return options, ch.ID, nil
}

// FinishAuthentication verifies an assertion response and returns the id of
// the user who owns the asserted credential. The challenge is consumed
// without user scoping; ownership comes from the credential lookup.
func (s *Service) FinishAuthentication(ctx context.Context, challengeID string, resp *protocol.CredentialAssertionResponse) (string, error) {
	value, err := s.challenges.Consume(ctx, challengeID, models.CeremonyAuthentication, "")
	if err != nil {
		return "", err
	}

	cred, err := s.records.GetCredential(ctx, resp.RawID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", protocol.ErrCredentialNotFound
		}
		return "", fmt.Errorf("%w: get credential: %v", protocol.ErrStore, err)
	}

	clientData, err := protocol.ParseClientData(resp.Response.ClientDataJSON)
	if err != nil {
		return "", err
	}
	if err := clientData.Verify(protocol.TypeGet, value, s.cfg.RPOrigin); err != nil {
		return "", err
	}

	authData, err := protocol.ParseAuthenticatorData(resp.Response.AuthenticatorData, false)
	if err != nil {
		return "", err
	}
	rpIDHash := sha256.Sum256([]byte(s.cfg.RPID))
	if subtle.ConstantTimeCompare(authData.RPIDHash, rpIDHash[:]) != 1 {
		return "", protocol.ErrOriginMismatch
	}
	if !authData.UserPresent() {
		return "", protocol.ErrUserNotPresent
	}

	if err := protocol.VerifyAssertionSignature(
		cred.PublicKey,
		resp.Response.AuthenticatorData,
		resp.Response.ClientDataJSON,
		resp.Response.Signature,
	); err != nil {
		return "", err
	}

	// A counter that fails to advance while either side is nonzero can
	// mean a cloned authenticator. Policy is to warn, not block: plenty
	// of legitimate devices never increment the counter.
	if authData.SignCount <= cred.SignCount && (authData.SignCount != 0 || cred.SignCount != 0) {
		s.audit.Record(ctx, cred.UserID, audit.EventCounterWarning, map[string]any{
			"credential_id":  cred.EncodedID(),
			"stored_count":   cred.SignCount,
			"asserted_count": authData.SignCount,
		})
	}

	cred.SignCount = authData.SignCount
	cred.LastUsedAt = time.Now()
	if err := s.records.UpdateCredential(ctx, cred); err != nil {
		return "", fmt.Errorf("%w: update credential: %v", protocol.ErrStore, err)
	}

	s.audit.Record(ctx, cred.UserID, audit.EventPasskeyAuthentication, map[string]any{
		"credential_id": cred.EncodedID(),
	})
	return cred.UserID, nil
}
