package smartpay

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/noah-isme/smartpay-gateway/internal/signing"
)

// MissingFieldsError lists every required field absent from a request.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("smartpay: missing required fields: %s", strings.Join(e.Fields, ","))
}

// SignedRequest is a fully signed request ready to be sent.
type SignedRequest struct {
	// Fields are the merged fields that were signed, without reserved keys.
	Fields    signing.Fields
	Signature string
	// Query is the encoded query string including signature and sign_type.
	Query string
}

// Builder merges, validates and signs request fields.
type Builder struct {
	Key string
}

// Build merges presets over caller fields, checks the schema and signs the
// result. Presets win on collision; caller keys keep their position and new
// preset keys are appended. Nothing is signed when a required field is missing.
func (b Builder) Build(schema Schema, caller, presets signing.Fields) (SignedRequest, error) {
	merged := caller.Merge(presets)
	if missing := schema.Missing(merged); len(missing) > 0 {
		return SignedRequest{}, &MissingFieldsError{Fields: missing}
	}
	merged = merged.WithoutReserved()
	signature := signing.Sign(merged, b.Key)
	return SignedRequest{
		Fields:    merged,
		Signature: signature,
		Query:     EncodeQuery(merged, signature),
	}, nil
}

// EncodeQuery renders fields in order as k=urlencode(v), then appends the
// signature and sign_type. Keys are emitted verbatim.
func EncodeQuery(fields signing.Fields, signature string) string {
	var sb strings.Builder
	for _, key := range fields.Keys() {
		if key == signing.KeySignature || key == signing.KeySignType {
			continue
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(fields.Value(key)))
		sb.WriteByte('&')
	}
	sb.WriteString(signing.KeySignature)
	sb.WriteByte('=')
	sb.WriteString(signature)
	sb.WriteByte('&')
	sb.WriteString(signing.KeySignType)
	sb.WriteByte('=')
	sb.WriteString(signing.SignTypeMD5)
	return sb.String()
}
