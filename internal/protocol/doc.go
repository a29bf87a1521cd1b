// Package protocol implements the WebAuthn wire formats the engine needs:
// a bounds-checked decoder for the CBOR subset attestation objects use,
// authenticator-data and COSE-key parsing, client-data verification, the
// ceremony options/response JSON structures, and assertion signature
// verification. All parsing entry points are total over arbitrary byte
// slices; malformed input yields ErrDecode, never a panic.
package protocol
