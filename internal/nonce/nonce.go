package nonce

import (
	"errors"
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

// DefaultAlphabet holds the 62 symbols used for request nonces.
const DefaultAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Length is the nonce length attached to every outbound request.
const Length = 16

var (
	// ErrInvalidLength is returned when a non-positive length is requested.
	ErrInvalidLength = errors.New("nonce: length must be positive")
	// ErrEmptyAlphabet is returned when the alphabet has no symbols.
	ErrEmptyAlphabet = errors.New("nonce: alphabet is empty")
	// ErrNonASCIIAlphabet is returned when the alphabet holds multi-byte symbols.
	ErrNonASCIIAlphabet = errors.New("nonce: alphabet must be ASCII")
)

// Generator produces random tokens. The zero value draws from math/rand/v2.
// Tokens are replay markers, not secrets.
type Generator struct {
	IntN func(n int) int
}

// Generate returns length symbols picked independently and uniformly from alphabet.
func (g Generator) Generate(length int, alphabet string) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}
	if alphabet == "" {
		return "", ErrEmptyAlphabet
	}
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] >= utf8.RuneSelf {
			return "", ErrNonASCIIAlphabet
		}
	}
	intn := g.IntN
	if intn == nil {
		intn = rand.IntN
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[intn(len(alphabet))])
	}
	return b.String(), nil
}

// MustGenerate behaves like Generate but panics on a contract violation.
func (g Generator) MustGenerate(length int, alphabet string) string {
	token, err := g.Generate(length, alphabet)
	if err != nil {
		panic(err)
	}
	return token
}

// New returns a fresh nonce of the standard length over DefaultAlphabet.
func New() string {
	return Generator{}.MustGenerate(Length, DefaultAlphabet)
}
