package signing

import (
	"crypto/subtle"
	"errors"
)

var (
	// ErrSignatureMissing is reported when a payload has no signature field.
	ErrSignatureMissing = errors.New("signing: signature missing")
	// ErrSignatureMismatch is reported when the recomputed signature differs.
	ErrSignatureMismatch = errors.New("signing: signature mismatch")
)

// Verifier checks signatures on payloads received from the service.
type Verifier struct {
	Key string
}

// Verify reports whether fields carry a signature matching the shared key.
func (v Verifier) Verify(fields Fields) bool {
	return v.VerifyDetailed(fields) == nil
}

// VerifyDetailed is Verify with the failure reason.
func (v Verifier) VerifyDetailed(fields Fields) error {
	received, ok := fields.Get(KeySignature)
	if !ok {
		return ErrSignatureMissing
	}
	expected := Sign(fields.WithoutReserved(), v.Key)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
