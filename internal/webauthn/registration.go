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

// BeginRegistration builds creation options for binding a new passkey to
// the user. Already-registered credential ids go into excludeCredentials so
// an authenticator refuses to re-register itself. The returned challenge id
// must be echoed back on FinishRegistration.
func (s *Service) BeginRegistration(ctx context.Context, user *models.User) (*protocol.CredentialCreationOptions, string, error) {
	existing, err := s.records.GetUserCredentials(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: list credentials: %v", protocol.ErrStore, err)
	}

	ch, err := s.challenges.Create(ctx, models.CeremonyRegistration, user.ID)
	if err != nil {
		return nil, "", err
	}

	exclude := make([]protocol.CredentialDescriptor, 0, len(existing))
	for _, cred := range existing {
		exclude = append(exclude, protocol.CredentialDescriptor{
			Type:       protocol.CredentialTypePublicKey,
			ID:         protocol.URLEncodedBase64(cred.ID),
			Transports: cred.Transports,
		})
	}

	options := &protocol.CredentialCreationOptions{
		RP: protocol.RelyingPartyEntity{
			ID:   s.cfg.RPID,
			Name: s.cfg.RPDisplayName,
		},
		User: protocol.UserEntity{
			ID:          protocol.URLEncodedBase64(user.Handle()),
			Name:        user.Name,
			DisplayName: user.DisplayName,
		},
		Challenge: ch.Value,
		PubKeyCredParams: []protocol.CredentialParameter{
			{Type: protocol.CredentialTypePublicKey, Alg: protocol.AlgES256},
		},
		Timeout:            protocol.CeremonyTimeoutMillis,
		ExcludeCredentials: exclude,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.RequirementPreferred,
			UserVerification: protocol.RequirementPreferred,
		},
		Attestation: protocol.AttestationNone,
	}
	return options, ch.ID, nil
}

// FinishRegistration verifies a registration response against the consumed
// challenge and persists the new credential. Returns the credential id.
func (s *Service) FinishRegistration(ctx context.Context, userID, challengeID string, resp *protocol.CredentialCreationResponse, deviceLabel string) ([]byte, error) {
	value, err := s.challenges.Consume(ctx, challengeID, models.CeremonyRegistration, userID)
	if err != nil {
		return nil, err
	}

	clientData, err := protocol.ParseClientData(resp.Response.ClientDataJSON)
	if err != nil {
		return nil, err
	}
	if err := clientData.Verify(protocol.TypeCreate, value, s.cfg.RPOrigin); err != nil {
		return nil, err
	}

	attObj, err := protocol.DecodeAttestationObject(resp.Response.AttestationObject)
	if err != nil {
		return nil, err
	}
	if attObj.Format != protocol.AttestationNone {
		return nil, fmt.Errorf("%w: unsupported attestation format %q", protocol.ErrDecode, attObj.Format)
	}

	authData, err := protocol.ParseAuthenticatorData(attObj.AuthData, true)
	if err != nil {
		return nil, err
	}
	if len(authData.CredentialID) == 0 || len(authData.CredentialPublicKey) == 0 {
		return nil, fmt.Errorf("%w: response carries no attested credential", protocol.ErrDecode)
	}

	rpIDHash := sha256.Sum256([]byte(s.cfg.RPID))
	if subtle.ConstantTimeCompare(authData.RPIDHash, rpIDHash[:]) != 1 {
		return nil, protocol.ErrOriginMismatch
	}

	publicKey, err := protocol.ParseCOSEKey(authData.CredentialPublicKey)
	if err != nil {
		return nil, err
	}

	// A credential id may only ever be bound once, to one account.
	if _, err := s.records.GetCredential(ctx, authData.CredentialID); err == nil {
		return nil, protocol.ErrCredentialExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: check credential: %v", protocol.ErrStore, err)
	}

	deviceType := models.DeviceTypeCrossPlatform
	if resp.AuthenticatorAttachment == models.DeviceTypePlatform {
		deviceType = models.DeviceTypePlatform
	}
	if deviceLabel == "" {
		deviceLabel = "Passkey"
	}

	cred := &models.Credential{
		ID:          authData.CredentialID,
		UserID:      userID,
		PublicKey:   publicKey,
		SignCount:   authData.SignCount,
		Transports:  resp.Response.Transports,
		DeviceType:  deviceType,
		BackedUp:    authData.BackedUp(),
		DisplayName: deviceLabel,
		CreatedAt:   time.Now(),
	}
	if err := s.records.SaveCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: save credential: %v", protocol.ErrStore, err)
	}

	s.audit.Record(ctx, userID, audit.EventPasskeyRegistered, map[string]any{
		"credential_id": cred.EncodedID(),
		"device_type":   deviceType,
		"backed_up":     cred.BackedUp,
	})
	return cred.ID, nil
}
