package protocol

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"math/big"
)

// COSE key map labels and the values this engine accepts. Only EC2 keys on
// P-256 with ES256 are supported; everything else is a typed decode error
// rather than a silent fallback.
const (
	coseLabelKty = 1
	coseLabelAlg = 3
	coseLabelCrv = -1
	coseLabelX   = -2
	coseLabelY   = -3

	coseKtyEC2   = 2
	coseAlgES256 = -7
	coseCrvP256  = 1
)

// ParseCOSEKey decodes a COSE EC2 public key and re-encodes it as a
// DER-encoded SPKI (PKIX) structure, the interoperable form crypto/x509 can
// hand straight to an ECDSA verifier. The input may carry trailing bytes
// (authenticator-data extensions); exactly one CBOR item is consumed.
func ParseCOSEKey(raw []byte) ([]byte, error) {
	r := &cborReader{buf: raw}
	v, err := r.readValue(0)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[any]any)
	if !ok {
		return nil, decodeErr("COSE key is not a map")
	}

	kty, ok := m[int64(coseLabelKty)].(int64)
	if !ok || kty != coseKtyEC2 {
		return nil, decodeErr("unsupported COSE key type %v", m[int64(coseLabelKty)])
	}
	if alg, ok := m[int64(coseLabelAlg)].(int64); ok && alg != coseAlgES256 {
		return nil, decodeErr("unsupported COSE algorithm %d", alg)
	}
	crv, ok := m[int64(coseLabelCrv)].(int64)
	if !ok || crv != coseCrvP256 {
		return nil, decodeErr("unsupported COSE curve %v", m[int64(coseLabelCrv)])
	}

	xb, ok := m[int64(coseLabelX)].([]byte)
	if !ok || len(xb) != 32 {
		return nil, decodeErr("COSE key x coordinate missing or wrong size")
	}
	yb, ok := m[int64(coseLabelY)].([]byte)
	if !ok || len(yb) != 32 {
		return nil, decodeErr("COSE key y coordinate missing or wrong size")
	}

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xb),
		Y:     new(big.Int).SetBytes(yb),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, decodeErr("COSE key point is not on P-256")
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, decodeErr("encode public key: %v", err)
	}
	return der, nil
}
