// Package domains handles loading labeled domain name records and
// encoding them into fixed width integer sequences for the classifier.
package domains

import (
	"errors"
	"fmt"
)

// VocabSize is the number of distinct character codes: one per ASCII value.
const VocabSize = 128

// ErrNotASCII is returned when a domain contains a byte outside the
// modeled character vocabulary. Such records are rejected, never clamped.
var ErrNotASCII = errors.New("domain contains non-ascii byte")

// Encoder converts domain strings to fixed width sequences of character
// codes. It is a pure transform: encoding the same string always yields
// the same sequence.
type Encoder struct {
	MaxLen int
}

// Encode returns a length MaxLen sequence of ASCII codes for s, zero
// padded on the right, plus the true character count capped at MaxLen.
// Strings longer than MaxLen are truncated. The empty string encodes to
// all zeros with length 0.
func (e Encoder) Encode(s string) ([]int64, int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] >= VocabSize {
			return nil, 0, fmt.Errorf("%w: %q position %d", ErrNotASCII, s, i)
		}
	}
	n := len(s)
	if n > e.MaxLen {
		n = e.MaxLen
	}
	seq := make([]int64, e.MaxLen)
	for i := 0; i < n; i++ {
		seq[i] = int64(s[i])
	}
	return seq, n, nil
}

// EncodeAll encodes a batch of strings, returning the sequences and true
// lengths in input order.
func (e Encoder) EncodeAll(ss []string) ([][]int64, []int, error) {
	seqs := make([][]int64, len(ss))
	lens := make([]int, len(ss))
	for i, s := range ss {
		seq, n, err := e.Encode(s)
		if err != nil {
			return nil, nil, err
		}
		seqs[i], lens[i] = seq, n
	}
	return seqs, lens, nil
}
