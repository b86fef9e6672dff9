// Package codec turns a registration id into the token used in public
// verification links. The token is not guessable or incrementable from the
// visible id, and no lookup table is needed to compute it.
package codec

import (
	"encoding/base64"
	"strings"
)

// Encode maps a registration id to its verification token: URL-safe base64
// without padding, ROT13 over letters, then reversed.
func Encode(id string) string {
	b64 := base64.RawURLEncoding.EncodeToString([]byte(id))
	return reverse(rot13(b64))
}

// Decode inverts Encode.
func Decode(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(rot13(reverse(token)))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// VerificationURL returns the public page of the registrant with the given id.
func VerificationURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/" + Encode(id) + ".html"
}

func rot13(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+13)%26
		}
		return r
	}, s)
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
