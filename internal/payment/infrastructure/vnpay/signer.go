package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"strings"
)

const (
	ParamSecureHash     = "vnp_SecureHash"
	ParamSecureHashType = "vnp_SecureHashType"
)

// CanonicalQuery drops the hash fields and empty values, then form-encodes the
// remaining parameters sorted by key.
func CanonicalQuery(params url.Values) string {
	clean := url.Values{}
	for k, vs := range params {
		if k == ParamSecureHash || k == ParamSecureHashType {
			continue
		}
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		clean.Set(k, vs[0])
	}
	return clean.Encode()
}

// Sign returns the lowercase hex HMAC-SHA512 of the canonical query.
func Sign(secret string, params url.Values) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(CanonicalQuery(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over params and compares it with the
// vnp_SecureHash they carry.
func Verify(secret string, params url.Values) bool {
	got := strings.ToLower(params.Get(ParamSecureHash))
	if got == "" {
		return false
	}
	want := Sign(secret, params)
	return hmac.Equal([]byte(got), []byte(want))
}
