package webauthn

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/passkey/internal/audit"
	"github.com/keyfold/passkey/internal/protocol"
)

func TestBeginRegistrationOptions(t *testing.T) {
	env := newTestEnv(t)

	options, challengeID, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)
	assert.NotEmpty(t, challengeID)

	assert.Equal(t, testRPID, options.RP.ID)
	assert.Equal(t, "Example", options.RP.Name)
	assert.Equal(t, env.user.Name, options.User.Name)
	assert.Equal(t, []byte(env.user.ID), []byte(options.User.ID))
	assert.Equal(t, protocol.AttestationNone, options.Attestation)
	require.Len(t, options.PubKeyCredParams, 1)
	assert.Equal(t, protocol.AlgES256, options.PubKeyCredParams[0].Alg)
	assert.Empty(t, options.ExcludeCredentials)

	// The challenge value decodes to at least 32 bytes of entropy.
	raw, err := base64.RawURLEncoding.DecodeString(options.Challenge)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(raw), 32)
}

func TestBeginRegistrationExcludesExistingCredentials(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	credID := env.register(t, auth)

	options, _, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)
	require.Len(t, options.ExcludeCredentials, 1)
	assert.Equal(t, credID, []byte(options.ExcludeCredentials[0].ID))
}

func TestFinishRegistrationStoresCredential(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)

	credID := env.register(t, auth)
	assert.Equal(t, auth.credID, credID)

	cred, err := env.store.GetCredential(context.Background(), credID)
	require.NoError(t, err)
	assert.Equal(t, env.user.ID, cred.UserID)
	assert.Equal(t, "Test Key", cred.DisplayName)
	assert.NotEmpty(t, cred.PublicKey)
	assert.False(t, cred.BackedUp)
	assert.Equal(t, []string{"internal"}, cred.Transports)

	require.Len(t, env.eventsOfType(audit.EventPasskeyRegistered), 1)
}

func TestFinishRegistrationRecordsBackupState(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)

	options, challengeID, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)

	flags := protocol.FlagUserPresent | protocol.FlagAttestedData |
		protocol.FlagBackupEligible | protocol.FlagBackedUp
	credID, err := env.svc.FinishRegistration(context.Background(), env.user.ID, challengeID, auth.attest(t, options.Challenge, flags), "")
	require.NoError(t, err)

	cred, err := env.store.GetCredential(context.Background(), credID)
	require.NoError(t, err)
	assert.True(t, cred.BackedUp)
	assert.Equal(t, "Passkey", cred.DisplayName) // default label
}

func TestFinishRegistrationChallengeTampered(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)

	_, challengeID, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)

	flags := protocol.FlagUserPresent | protocol.FlagAttestedData
	resp := auth.attest(t, "attacker-chosen-challenge", flags)
	_, err = env.svc.FinishRegistration(context.Background(), env.user.ID, challengeID, resp, "")
	require.ErrorIs(t, err, protocol.ErrChallengeMismatch)

	// The challenge burned on failure; a corrected retry cannot reuse it.
	_, err = env.svc.FinishRegistration(context.Background(), env.user.ID, challengeID, resp, "")
	require.ErrorIs(t, err, protocol.ErrChallengeNotFound)
}

func TestFinishRegistrationWrongOrigin(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)

	options, challengeID, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)

	flags := protocol.FlagUserPresent | protocol.FlagAttestedData
	resp := auth.attest(t, options.Challenge, flags)
	resp.Response.ClientDataJSON = clientDataJSON(t, protocol.TypeCreate, options.Challenge, "https://evil.example")

	_, err = env.svc.FinishRegistration(context.Background(), env.user.ID, challengeID, resp, "")
	require.ErrorIs(t, err, protocol.ErrOriginMismatch)
}

func TestFinishRegistrationWrongCeremonyType(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)

	options, challengeID, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)

	flags := protocol.FlagUserPresent | protocol.FlagAttestedData
	resp := auth.attest(t, options.Challenge, flags)
	resp.Response.ClientDataJSON = clientDataJSON(t, protocol.TypeGet, options.Challenge, testOrigin)

	_, err = env.svc.FinishRegistration(context.Background(), env.user.ID, challengeID, resp, "")
	require.ErrorIs(t, err, protocol.ErrTypeMismatch)
}

func TestFinishRegistrationUnsupportedAttestationFormat(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)

	options, challengeID, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)

	flags := protocol.FlagUserPresent | protocol.FlagAttestedData
	resp := auth.attest(t, options.Challenge, flags)

	obj, err := protocol.DecodeAttestationObject(resp.Response.AttestationObject)
	require.NoError(t, err)
	packed, err := cbor.Marshal(map[string]any{
		"fmt":      "packed",
		"attStmt":  map[string]any{},
		"authData": obj.AuthData,
	})
	require.NoError(t, err)
	resp.Response.AttestationObject = packed

	_, err = env.svc.FinishRegistration(context.Background(), env.user.ID, challengeID, resp, "")
	require.ErrorIs(t, err, protocol.ErrDecode)
}

func TestFinishRegistrationMissingCredentialBlock(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)

	options, challengeID, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)

	// Attestation without the attested-credential flag carries no key.
	resp := auth.attest(t, options.Challenge, protocol.FlagUserPresent)
	header := authDataHeader(testRPID, protocol.FlagUserPresent, 0)
	attObj, err := cbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": header,
	})
	require.NoError(t, err)
	resp.Response.AttestationObject = attObj

	_, err = env.svc.FinishRegistration(context.Background(), env.user.ID, challengeID, resp, "")
	require.ErrorIs(t, err, protocol.ErrDecode)
}

func TestFinishRegistrationDuplicateCredentialID(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	env.register(t, auth)

	// The same credential id cannot bind twice, even for another user.
	options, challengeID, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)
	flags := protocol.FlagUserPresent | protocol.FlagAttestedData
	_, err = env.svc.FinishRegistration(context.Background(), env.user.ID, challengeID, auth.attest(t, options.Challenge, flags), "")
	require.ErrorIs(t, err, protocol.ErrCredentialExists)
}

func TestFinishRegistrationExpiredChallenge(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)

	_, challengeID, err := env.svc.BeginRegistration(context.Background(), env.user)
	require.NoError(t, err)

	// Pull the row out and put it back already expired.
	ch, err := env.store.ConsumeChallenge(context.Background(), challengeID)
	require.NoError(t, err)
	ch.ExpiresAt = ch.CreatedAt.Add(-time.Second)
	require.NoError(t, env.store.SaveChallenge(context.Background(), ch))

	flags := protocol.FlagUserPresent | protocol.FlagAttestedData
	_, err = env.svc.FinishRegistration(context.Background(), env.user.ID, challengeID, auth.attest(t, ch.Value, flags), "")
	require.ErrorIs(t, err, protocol.ErrChallengeExpired)
}
