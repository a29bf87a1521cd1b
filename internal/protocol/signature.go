package protocol

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
)

// VerifyAssertionSignature checks the assertion signature over
// authenticatorData || SHA-256(clientDataJSON) against a stored DER SPKI
// public key. The signature is ASN.1 DER as authenticators emit it.
func VerifyAssertionSignature(publicKeyDER, authData, clientDataJSON, signature []byte) error {
	pub, err := x509.ParsePKIXPublicKey(publicKeyDER)
	if err != nil {
		return decodeErr("stored public key: %v", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return decodeErr("stored public key is not ECDSA")
	}

	clientHash := sha256.Sum256(clientDataJSON)
	signed := make([]byte, 0, len(authData)+len(clientHash))
	signed = append(signed, authData...)
	signed = append(signed, clientHash[:]...)
	digest := sha256.Sum256(signed)

	if !ecdsa.VerifyASN1(ecPub, digest[:], signature) {
		return ErrSignatureInvalid
	}
	return nil
}
