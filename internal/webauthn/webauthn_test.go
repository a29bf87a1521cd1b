package webauthn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/passkey/internal/audit"
	"github.com/keyfold/passkey/internal/challenge"
	"github.com/keyfold/passkey/internal/models"
	"github.com/keyfold/passkey/internal/protocol"
	"github.com/keyfold/passkey/internal/storage"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
)

type testEnv struct {
	svc   *Service
	store *storage.MemoryStorage
	user  *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewMemoryStorage()
	user := &models.User{ID: "user-1", Name: "alice@example.com", DisplayName: "Alice"}
	require.NoError(t, store.SaveUser(context.Background(), user))

	svc := NewService(Config{
		RPDisplayName: "Example",
		RPID:          testRPID,
		RPOrigin:      testOrigin,
	}, store, challenge.NewManager(store), audit.NewSink(store))

	return &testEnv{svc: svc, store: store, user: user}
}

func (e *testEnv) eventsOfType(eventType string) []*models.SecurityEvent {
	var out []*models.SecurityEvent
	for _, ev := range e.store.SecurityEvents() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// authenticator simulates one passkey: a P-256 key pair, a credential id,
// and a signature counter it advances on every assertion.
type authenticator struct {
	priv      *ecdsa.PrivateKey
	credID    []byte
	signCount uint32
}

func newAuthenticator(t *testing.T) *authenticator {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	credID := make([]byte, 16)
	_, err = rand.Read(credID)
	require.NoError(t, err)
	return &authenticator{priv: priv, credID: credID}
}

func (a *authenticator) coseKey(t *testing.T) []byte {
	t.Helper()
	x := make([]byte, 32)
	y := make([]byte, 32)
	a.priv.PublicKey.X.FillBytes(x)
	a.priv.PublicKey.Y.FillBytes(y)
	raw, err := cbor.Marshal(map[int]any{1: 2, 3: -7, -1: 1, -2: x, -3: y})
	require.NoError(t, err)
	return raw
}

func clientDataJSON(t *testing.T, ceremonyType, challengeValue, origin string) []byte {
	t.Helper()
	raw, err := json.Marshal(protocol.CollectedClientData{
		Type:      ceremonyType,
		Challenge: challengeValue,
		Origin:    origin,
	})
	require.NoError(t, err)
	return raw
}

func authDataHeader(rpID string, flags byte, signCount uint32) []byte {
	hash := sha256.Sum256([]byte(rpID))
	buf := append([]byte{}, hash[:]...)
	buf = append(buf, flags)
	return binary.BigEndian.AppendUint32(buf, signCount)
}

// attest answers creation options the way a real authenticator would for
// attestation format "none".
func (a *authenticator) attest(t *testing.T, challengeValue string, flags byte) *protocol.CredentialCreationResponse {
	t.Helper()
	authData := authDataHeader(testRPID, flags, a.signCount)
	authData = append(authData, make([]byte, 16)...) // zero AAGUID
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(a.credID)))
	authData = append(authData, a.credID...)
	authData = append(authData, a.coseKey(t)...)

	attObj, err := cbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	require.NoError(t, err)

	return &protocol.CredentialCreationResponse{
		ID:    base64.RawURLEncoding.EncodeToString(a.credID),
		RawID: a.credID,
		Type:  "public-key",
		Response: protocol.AuthenticatorAttestationResponse{
			ClientDataJSON:    clientDataJSON(t, protocol.TypeCreate, challengeValue, testOrigin),
			AttestationObject: attObj,
			Transports:        []string{"internal"},
		},
	}
}

// assertAt produces an assertion with an explicit counter value.
func (a *authenticator) assertAt(t *testing.T, challengeValue string, flags byte, signCount uint32) *protocol.CredentialAssertionResponse {
	t.Helper()
	authData := authDataHeader(testRPID, flags, signCount)
	cdj := clientDataJSON(t, protocol.TypeGet, challengeValue, testOrigin)

	clientHash := sha256.Sum256(cdj)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.priv, digest[:])
	require.NoError(t, err)

	return &protocol.CredentialAssertionResponse{
		ID:    base64.RawURLEncoding.EncodeToString(a.credID),
		RawID: a.credID,
		Type:  "public-key",
		Response: protocol.AuthenticatorAssertionResponse{
			ClientDataJSON:    cdj,
			AuthenticatorData: authData,
			Signature:         sig,
		},
	}
}

// assert advances the counter and signs, like a well-behaved device.
func (a *authenticator) assert(t *testing.T, challengeValue string) *protocol.CredentialAssertionResponse {
	a.signCount++
	return a.assertAt(t, challengeValue, protocol.FlagUserPresent|protocol.FlagUserVerified, a.signCount)
}

// register runs the full registration ceremony against the service.
func (e *testEnv) register(t *testing.T, auth *authenticator) []byte {
	t.Helper()
	options, challengeID, err := e.svc.BeginRegistration(context.Background(), e.user)
	require.NoError(t, err)

	flags := protocol.FlagUserPresent | protocol.FlagUserVerified | protocol.FlagAttestedData
	credID, err := e.svc.FinishRegistration(context.Background(), e.user.ID, challengeID, auth.attest(t, options.Challenge, flags), "Test Key")
	require.NoError(t, err)
	return credID
}
