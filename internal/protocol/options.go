package protocol

// Wire structures for the two ceremony-options payloads, shaped like the
// standard WebAuthn PublicKeyCredentialCreationOptions and
// PublicKeyCredentialRequestOptions so browsers can pass them straight to
// navigator.credentials.

// CredentialTypePublicKey is the only credential type WebAuthn defines.
const CredentialTypePublicKey = "public-key"

// AlgES256 is the COSE identifier for ECDSA on P-256 with SHA-256.
const AlgES256 = -7

// CeremonyTimeoutMillis is the client-side hint for how long an
// authenticator prompt may stay open.
const CeremonyTimeoutMillis = 60000

// User-verification and resident-key preferences sent in options.
const (
	RequirementPreferred = "preferred"
	AttestationNone      = "none"
)

type RelyingPartyEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserEntity struct {
	ID          URLEncodedBase64 `json:"id"`
	Name        string           `json:"name"`
	DisplayName string           `json:"displayName"`
}

type CredentialParameter struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

// CredentialDescriptor names an existing credential in exclude/allow lists.
type CredentialDescriptor struct {
	Type       string           `json:"type"`
	ID         URLEncodedBase64 `json:"id"`
	Transports []string         `json:"transports,omitempty"`
}

type AuthenticatorSelection struct {
	ResidentKey      string `json:"residentKey,omitempty"`
	UserVerification string `json:"userVerification,omitempty"`
}

// CredentialCreationOptions is the registration-ceremony options payload.
type CredentialCreationOptions struct {
	RP                     RelyingPartyEntity     `json:"rp"`
	User                   UserEntity             `json:"user"`
	Challenge              string                 `json:"challenge"`
	PubKeyCredParams       []CredentialParameter  `json:"pubKeyCredParams"`
	Timeout                int                    `json:"timeout,omitempty"`
	ExcludeCredentials     []CredentialDescriptor `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection"`
	Attestation            string                 `json:"attestation,omitempty"`
}

// CredentialRequestOptions is the authentication-ceremony options payload.
type CredentialRequestOptions struct {
	Challenge        string                 `json:"challenge"`
	Timeout          int                    `json:"timeout,omitempty"`
	RPID             string                 `json:"rpId"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                 `json:"userVerification,omitempty"`
}
