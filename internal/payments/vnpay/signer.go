// Package vnpay signs and verifies VNPay payment gateway parameters.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

const (
	// ParamSecureHash carries the HMAC-SHA512 signature.
	ParamSecureHash = "vnp_SecureHash"
	// ParamSecureHashType optionally names the hash algorithm.
	ParamSecureHashType = "vnp_SecureHashType"
)

// ErrSecretMissing is returned when a signer is built without a hash secret.
var ErrSecretMissing = errors.New("vnpay: hash secret is required")

// Signer computes VNPay HMAC-SHA512 signatures with the merchant hash secret.
type Signer struct {
	secret []byte
}

// NewSigner returns a signer bound to secret.
func NewSigner(secret string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrSecretMissing
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Canonicalize builds the string VNPay signs: every parameter except the
// signature fields, keys and values query-escaped, sorted by key and joined
// with '&'. Only the first value of a repeated key is used.
func Canonicalize(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == ParamSecureHash || key == ParamSecureHashType {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(key)))
	}
	return b.String()
}

// Sign returns the lowercase hex signature for params.
func (s *Signer) Sign(params url.Values) string {
	return hex.EncodeToString(s.mac(Canonicalize(params)))
}

// Verify reports whether params carry a valid vnp_SecureHash. Hex case is ignored.
func (s *Signer) Verify(params url.Values) bool {
	if s == nil {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(params.Get(ParamSecureHash)))
	if err != nil || len(provided) == 0 {
		return false
	}
	return hmac.Equal(provided, s.mac(Canonicalize(params)))
}

func (s *Signer) mac(canonical string) []byte {
	h := hmac.New(sha512.New, s.secret)
	h.Write([]byte(canonical))
	return h.Sum(nil)
}
