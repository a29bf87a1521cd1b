package protocol

import (
	"encoding/binary"
)

// Authenticator data flag bits.
const (
	FlagUserPresent    byte = 0x01
	FlagUserVerified   byte = 0x04
	FlagBackupEligible byte = 0x08
	FlagBackedUp       byte = 0x10
	FlagAttestedData   byte = 0x40
	FlagExtensionData  byte = 0x80
)

// Fixed layout of the authenticator data header:
// rpIdHash[32] | flags[1] | signCount[4].
const authDataHeaderLen = 32 + 1 + 4

// Authenticators cap credential ids at 1023 bytes.
const maxCredentialIDLen = 1023

// AuthenticatorData is the parsed binary structure carried in both
// attestation objects and assertion responses.
type AuthenticatorData struct {
	RPIDHash  []byte
	Flags     byte
	SignCount uint32

	// Set only when the attested-credential flag is present and the
	// caller asked for the credential block.
	AAGUID              []byte
	CredentialID        []byte
	CredentialPublicKey []byte
}

// UserPresent reports the user-presence flag bit.
func (a *AuthenticatorData) UserPresent() bool {
	return a.Flags&FlagUserPresent != 0
}

// BackedUp reports the backup-state flag bit, a hint that the credential is
// synced to a cloud keychain.
func (a *AuthenticatorData) BackedUp() bool {
	return a.Flags&FlagBackedUp != 0
}

// ParseAuthenticatorData parses the fixed 37-byte header and, when the
// attested-credential flag is set and withCredential is true, the attested
// credential block that follows it. Declared lengths are validated before
// any read.
func ParseAuthenticatorData(raw []byte, withCredential bool) (*AuthenticatorData, error) {
	if len(raw) < authDataHeaderLen {
		return nil, decodeErr("authenticator data is %d bytes, want at least %d", len(raw), authDataHeaderLen)
	}

	ad := &AuthenticatorData{
		RPIDHash:  raw[:32],
		Flags:     raw[32],
		SignCount: binary.BigEndian.Uint32(raw[33:37]),
	}
	if !withCredential || ad.Flags&FlagAttestedData == 0 {
		return ad, nil
	}

	rest := raw[authDataHeaderLen:]
	if len(rest) < 16+2 {
		return nil, decodeErr("attested credential block truncated")
	}
	ad.AAGUID = rest[:16]
	idLen := int(binary.BigEndian.Uint16(rest[16:18]))
	if idLen > maxCredentialIDLen {
		return nil, decodeErr("credential id length %d exceeds maximum", idLen)
	}
	rest = rest[18:]
	if idLen > len(rest) {
		return nil, decodeErr("credential id length %d exceeds %d remaining bytes", idLen, len(rest))
	}
	ad.CredentialID = rest[:idLen]

	// Everything after the credential id is the COSE public key (plus any
	// extensions, which the key parser's own framing rejects implicitly
	// by consuming exactly one CBOR item).
	ad.CredentialPublicKey = rest[idLen:]
	if len(ad.CredentialPublicKey) == 0 {
		return nil, decodeErr("attested credential has no public key")
	}
	return ad, nil
}
