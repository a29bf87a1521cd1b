package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// URLEncodedBase64 is a byte slice that marshals to and from unpadded
// base64url, the encoding WebAuthn clients use for all binary fields.
type URLEncodedBase64 []byte

func (b URLEncodedBase64) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

func (b *URLEncodedBase64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := DecodeBase64(s)
	if err != nil {
		return err
	}
	*b = raw
	return nil
}

// DecodeBase64 accepts base64url with or without padding; some clients pad
// and some do not.
func DecodeBase64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
