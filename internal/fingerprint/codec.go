// Package fingerprint decodes hex-encoded perceptual audio fingerprints and
// compares them by Hamming distance.
package fingerprint

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// ErrMalformed is returned when a fingerprint contains a non-hex digit.
var ErrMalformed = errors.New("malformed fingerprint")

// Code is a decoded fingerprint, one nibble (4 bits) per hex digit, most
// significant nibble first.
type Code []byte

// Decode converts a hex fingerprint into its nibbles. Case is ignored.
// An empty string decodes to an empty Code.
func Decode(fp string) (Code, error) {
	code := make(Code, len(fp))
	for i := 0; i < len(fp); i++ {
		n, ok := nibble(fp[i])
		if !ok {
			return nil, fmt.Errorf("%w: invalid hex digit %q at %d", ErrMalformed, fp[i], i)
		}
		code[i] = n
	}
	return code, nil
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Valid reports whether fp is a non-empty, well-formed hex fingerprint.
func Valid(fp string) bool {
	if fp == "" {
		return false
	}
	_, err := Decode(fp)
	return err == nil
}

// Normalize trims whitespace and upper-cases fp so that equal codes compare
// equal as strings.
func Normalize(fp string) string {
	return strings.ToUpper(strings.TrimSpace(fp))
}

// Bits returns the bit length of the code.
func (c Code) Bits() int {
	return len(c) * 4
}

// Distance returns the number of differing bits between c and other after
// left-padding the shorter code with zero bits.
func (c Code) Distance(other Code) int {
	n := len(c)
	if len(other) > n {
		n = len(other)
	}
	padA := n - len(c)
	padB := n - len(other)
	var d int
	for i := 0; i < n; i++ {
		var x, y byte
		if i >= padA {
			x = c[i-padA]
		}
		if i >= padB {
			y = other[i-padB]
		}
		d += bits.OnesCount8(x ^ y)
	}
	return d
}

// Similarity returns the percentage of equal bits between c and other over
// the longer code's bit length. Two empty codes are identical.
func (c Code) Similarity(other Code) float64 {
	total := c.Bits()
	if other.Bits() > total {
		total = other.Bits()
	}
	if total == 0 {
		return 100
	}
	return float64(total-c.Distance(other)) / float64(total) * 100
}

// Similarity compares two hex fingerprints and returns a score in [0, 100].
//
// Identical strings (including two empty ones) score 100. If exactly one is
// empty, or either cannot be decoded, the score is 0. Otherwise the shorter
// code is left-padded with zero bits before counting matching positions. The
// padding is a heuristic: a missing high nibble is assumed to be zero.
func Similarity(a, b string) float64 {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	ca, err := Decode(a)
	if err != nil {
		return 0
	}
	cb, err := Decode(b)
	if err != nil {
		return 0
	}
	return ca.Similarity(cb)
}
