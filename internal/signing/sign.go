package signing

import (
	"crypto/md5" //nolint:gosec // the remote protocol mandates MD5
	"encoding/hex"
	"sort"
	"strings"
)

const (
	// KeySignature carries the hex signature on signed payloads.
	KeySignature = "signature"
	// KeySignType names the digest algorithm on signed payloads.
	KeySignType = "sign_type"
	// SignTypeMD5 is the only signature type the service accepts.
	SignTypeMD5 = "MD5"
)

// Canonical renders the byte string that gets signed: reserved keys dropped,
// remaining keys sorted byte-wise, entries joined as k=v with '&'. Values are
// used raw, without URL encoding.
func Canonical(fields Fields) string {
	keys := make([]string, 0, fields.Len())
	for _, k := range fields.Keys() {
		if k == KeySignature || k == KeySignType {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields.Value(k))
	}
	return b.String()
}

// Sign returns the lowercase hex MD5 of the canonical string followed
// directly by key.
func Sign(fields Fields, key string) string {
	sum := md5.Sum([]byte(Canonical(fields) + key)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
