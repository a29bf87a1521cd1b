package protocol

// Response envelopes for the two ceremonies, matching the JSON a browser
// produces from a PublicKeyCredential.

// CredentialCreationResponse is the client's answer to creation options.
type CredentialCreationResponse struct {
	ID                      string                           `json:"id"`
	RawID                   URLEncodedBase64                 `json:"rawId"`
	Type                    string                           `json:"type"`
	AuthenticatorAttachment string                           `json:"authenticatorAttachment,omitempty"`
	Response                AuthenticatorAttestationResponse `json:"response"`
}

type AuthenticatorAttestationResponse struct {
	ClientDataJSON    URLEncodedBase64 `json:"clientDataJSON"`
	AttestationObject URLEncodedBase64 `json:"attestationObject"`
	Transports        []string         `json:"transports,omitempty"`
}

// CredentialAssertionResponse is the client's answer to request options.
type CredentialAssertionResponse struct {
	ID       string                         `json:"id"`
	RawID    URLEncodedBase64               `json:"rawId"`
	Type     string                         `json:"type"`
	Response AuthenticatorAssertionResponse `json:"response"`
}

type AuthenticatorAssertionResponse struct {
	ClientDataJSON    URLEncodedBase64 `json:"clientDataJSON"`
	AuthenticatorData URLEncodedBase64 `json:"authenticatorData"`
	Signature         URLEncodedBase64 `json:"signature"`
	UserHandle        URLEncodedBase64 `json:"userHandle,omitempty"`
}
