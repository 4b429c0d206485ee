// Package codegen produces short random codes for stamps and redemption
// tickets. It does not guarantee uniqueness on its own: callers combine
// Unique's bounded pre-check loop with a unique constraint in storage.
package codegen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	// Digits is the stamp code alphabet.
	Digits = "0123456789"
	// Base36 is the ticket code alphabet.
	Base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// ErrCodeSpaceExhausted is returned when every attempt produced a code that
// is already taken.
var ErrCodeSpaceExhausted = errors.New("code space exhausted")

// Format describes the shape of a code. Leading, when set, is the alphabet
// for the first character only.
type Format struct {
	Length   int
	Alphabet string
	Leading  string
}

// StampFormat returns numeric codes without a leading zero, so codes keep
// their length when typed into numeric fields.
func StampFormat(length int) Format {
	return Format{Length: length, Alphabet: Digits, Leading: Digits[1:]}
}

// TicketFormat returns upper-case base-36 codes.
func TicketFormat(length int) Format {
	return Format{Length: length, Alphabet: Base36}
}

// Space returns how many distinct codes the format can produce.
func (f Format) Space() *big.Int {
	if f.Length <= 0 || f.Alphabet == "" {
		return big.NewInt(0)
	}
	space := big.NewInt(int64(len(f.leading())))
	base := big.NewInt(int64(len(f.Alphabet)))
	for i := 1; i < f.Length; i++ {
		space.Mul(space, base)
	}
	return space
}

func (f Format) leading() string {
	if f.Leading != "" {
		return f.Leading
	}
	return f.Alphabet
}

// Generate returns a uniformly random code of the requested length drawn
// from alphabet.
func Generate(length int, alphabet string) (string, error) {
	return Format{Length: length, Alphabet: alphabet}.Generate()
}

// Generate returns one uniformly random code in this format.
func (f Format) Generate() (string, error) {
	if f.Length <= 0 {
		return "", fmt.Errorf("invalid code length %d", f.Length)
	}
	if f.Alphabet == "" {
		return "", fmt.Errorf("empty code alphabet")
	}

	code := make([]byte, f.Length)
	for i := range code {
		alphabet := f.Alphabet
		if i == 0 {
			alphabet = f.leading()
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Unique draws codes until exists reports a free one, giving up after
// attempts draws. The returned count is the number of collisions seen.
func Unique(ctx context.Context, f Format, attempts int, exists ExistsFunc) (string, int, error) {
	collisions := 0
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", collisions, err
		}
		code, err := f.Generate()
		if err != nil {
			return "", collisions, err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", collisions, fmt.Errorf("failed to check code: %w", err)
		}
		if !taken {
			return code, collisions, nil
		}
		collisions++
	}
	return "", collisions, ErrCodeSpaceExhausted
}
