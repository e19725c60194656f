// Package shortcode generates random short codes from a fixed base62
// alphabet using crypto/rand.
package shortcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet is the case-sensitive alphanumeric alphabet short codes are
// drawn from.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	// MinLength and MaxLength bound the configurable code length.
	MinLength = 6
	MaxLength = 8

	// DefaultLength gives 62^7 ≈ 3.5e12 possible codes.
	DefaultLength = 7
)

var base = big.NewInt(int64(len(Alphabet)))

// Generator produces uniformly random codes of a fixed length.
type Generator struct {
	length int
}

// New returns a Generator for codes of the given length. Lengths outside
// [MinLength, MaxLength] fall back to DefaultLength.
func New(length int) *Generator {
	if length < MinLength || length > MaxLength {
		length = DefaultLength
	}
	return &Generator{length: length}
}

// Length reports the length of generated codes.
func (g *Generator) Length() int {
	return g.length
}

// Generate draws a new random code. Uniqueness is enforced by the storage
// layer; on an insert conflict the caller draws again.
func (g *Generator) Generate() (string, error) {
	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		idx, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("reading random source: %w", err)
		}
		b.WriteByte(Alphabet[idx.Int64()])
	}
	return b.String(), nil
}
