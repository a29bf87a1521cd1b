package webauthn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/passkey/internal/audit"
	"github.com/keyfold/passkey/internal/protocol"
)

func TestAuthenticationRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	credID := env.register(t, auth)

	options, challengeID, err := env.svc.BeginAuthentication(context.Background(), env.user.ID)
	require.NoError(t, err)
	require.Len(t, options.AllowCredentials, 1)
	assert.Equal(t, credID, []byte(options.AllowCredentials[0].ID))
	assert.Equal(t, testRPID, options.RPID)

	userID, err := env.svc.FinishAuthentication(context.Background(), challengeID, auth.assert(t, options.Challenge))
	require.NoError(t, err)
	assert.Equal(t, env.user.ID, userID)

	cred, err := env.store.GetCredential(context.Background(), credID)
	require.NoError(t, err)
	assert.Equal(t, auth.signCount, cred.SignCount)
	assert.False(t, cred.LastUsedAt.IsZero())

	require.Len(t, env.eventsOfType(audit.EventPasskeyAuthentication), 1)
	assert.Empty(t, env.eventsOfType(audit.EventCounterWarning))
}

func TestBeginAuthenticationUserless(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	env.register(t, auth)

	// No user hint: options advertise nothing, the finish call resolves the
	// owner from the asserted credential.
	options, challengeID, err := env.svc.BeginAuthentication(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, options.AllowCredentials)

	userID, err := env.svc.FinishAuthentication(context.Background(), challengeID, auth.assert(t, options.Challenge))
	require.NoError(t, err)
	assert.Equal(t, env.user.ID, userID)
}

func TestFinishAuthenticationUnknownCredential(t *testing.T) {
	env := newTestEnv(t)
	stranger := newAuthenticator(t) // never registered

	options, challengeID, err := env.svc.BeginAuthentication(context.Background(), "")
	require.NoError(t, err)

	_, err = env.svc.FinishAuthentication(context.Background(), challengeID, stranger.assert(t, options.Challenge))
	require.ErrorIs(t, err, protocol.ErrCredentialNotFound)
}

func TestFinishAuthenticationTamperedSignature(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	env.register(t, auth)

	options, challengeID, err := env.svc.BeginAuthentication(context.Background(), env.user.ID)
	require.NoError(t, err)

	resp := auth.assert(t, options.Challenge)
	resp.Response.Signature[len(resp.Response.Signature)/2] ^= 0x01

	_, err = env.svc.FinishAuthentication(context.Background(), challengeID, resp)
	require.ErrorIs(t, err, protocol.ErrSignatureInvalid)
}

func TestFinishAuthenticationSignatureOverWrongPayload(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	env.register(t, auth)

	options, challengeID, err := env.svc.BeginAuthentication(context.Background(), env.user.ID)
	require.NoError(t, err)

	// Valid signature, but the client data it covers is swapped for another
	// one carrying the same challenge.
	resp := auth.assert(t, options.Challenge)
	resp.Response.ClientDataJSON = append(resp.Response.ClientDataJSON, '\n')

	_, err = env.svc.FinishAuthentication(context.Background(), challengeID, resp)
	require.ErrorIs(t, err, protocol.ErrSignatureInvalid)
}

func TestFinishAuthenticationUserNotPresent(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	env.register(t, auth)

	options, challengeID, err := env.svc.BeginAuthentication(context.Background(), env.user.ID)
	require.NoError(t, err)

	resp := auth.assertAt(t, options.Challenge, protocol.FlagUserVerified, auth.signCount+1)
	_, err = env.svc.FinishAuthentication(context.Background(), challengeID, resp)
	require.ErrorIs(t, err, protocol.ErrUserNotPresent)
}

func TestFinishAuthenticationReplayedChallenge(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	env.register(t, auth)

	options, challengeID, err := env.svc.BeginAuthentication(context.Background(), env.user.ID)
	require.NoError(t, err)

	resp := auth.assert(t, options.Challenge)
	_, err = env.svc.FinishAuthentication(context.Background(), challengeID, resp)
	require.NoError(t, err)

	// Replaying the identical response fails: the challenge is spent.
	_, err = env.svc.FinishAuthentication(context.Background(), challengeID, resp)
	require.ErrorIs(t, err, protocol.ErrChallengeNotFound)
}

func TestFinishAuthenticationCounterRegressionWarnsButSucceeds(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	env.register(t, auth)

	options, challengeID, err := env.svc.BeginAuthentication(context.Background(), env.user.ID)
	require.NoError(t, err)
	_, err = env.svc.FinishAuthentication(context.Background(), challengeID, auth.assertAt(t, options.Challenge, protocol.FlagUserPresent, 10))
	require.NoError(t, err)

	// Counter goes backwards: a possible clone, but policy is warn-only.
	options, challengeID, err = env.svc.BeginAuthentication(context.Background(), env.user.ID)
	require.NoError(t, err)
	userID, err := env.svc.FinishAuthentication(context.Background(), challengeID, auth.assertAt(t, options.Challenge, protocol.FlagUserPresent, 4))
	require.NoError(t, err)
	assert.Equal(t, env.user.ID, userID)

	warnings := env.eventsOfType(audit.EventCounterWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, env.user.ID, warnings[0].UserID)

	// Stored counter tracks the asserted value even on regression.
	cred, err := env.store.GetCredential(context.Background(), auth.credID)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), cred.SignCount)
}

func TestFinishAuthenticationZeroCountersNoWarning(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	env.register(t, auth)

	// Devices that never implement the counter report zero on both sides;
	// that is not a clone signal.
	for i := 0; i < 2; i++ {
		options, challengeID, err := env.svc.BeginAuthentication(context.Background(), env.user.ID)
		require.NoError(t, err)
		_, err = env.svc.FinishAuthentication(context.Background(), challengeID, auth.assertAt(t, options.Challenge, protocol.FlagUserPresent, 0))
		require.NoError(t, err)
	}

	assert.Empty(t, env.eventsOfType(audit.EventCounterWarning))
}

func TestFinishAuthenticationWrongRPIDHash(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthenticator(t)
	env.register(t, auth)

	options, challengeID, err := env.svc.BeginAuthentication(context.Background(), env.user.ID)
	require.NoError(t, err)

	resp := auth.assert(t, options.Challenge)
	resp.Response.AuthenticatorData[0] ^= 0x01

	_, err = env.svc.FinishAuthentication(context.Background(), challengeID, resp)
	require.ErrorIs(t, err, protocol.ErrOriginMismatch)
}
