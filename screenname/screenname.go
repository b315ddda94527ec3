// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package screenname implements AIM screen name and ICQ UIN handling.
//
// Two screen names identify the same user when their normalized forms match:
// normalization removes all whitespace and case folds, so "Test User" and
// "testuser" are the same account. The formatted (display) form is preserved
// as entered and is what the server echoes back in presence updates.
package screenname

import (
	"errors"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// maxFormattedLen is the longest formatted screen name the protocol permits.
const maxFormattedLen = 97

// Errors returned while parsing screen names.
var (
	ErrEmpty       = errors.New("screenname: empty name")
	ErrTooLong     = errors.New("screenname: name longer than 97 bytes")
	ErrInvalidRune = errors.New("screenname: name must start with a letter or digit")
)

var normalizer = transform.Chain(
	runes.Remove(runes.In(unicode.White_Space)),
	cases.Fold(),
)

// A Name is a parsed screen name or UIN.
// The zero value is the empty name.
type Name struct {
	display string
	norm    string
}

// New parses and validates a screen name, retaining both the formatted form
// and the normalized comparison form.
func New(s string) (Name, error) {
	if s == "" {
		return Name{}, ErrEmpty
	}
	if len(s) > maxFormattedLen {
		return Name{}, ErrTooLong
	}
	norm, _, err := transform.String(normalizer, s)
	if err != nil {
		return Name{}, err
	}
	if norm == "" {
		return Name{}, ErrEmpty
	}
	r := []rune(norm)[0]
	if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
		return Name{}, ErrInvalidRune
	}
	return Name{display: s, norm: norm}, nil
}

// MustParse is like New but panics if the name cannot be parsed.
// It simplifies safe initialization of names from known-good constant
// strings.
func MustParse(s string) Name {
	n, err := New(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the formatted form of the name as originally entered.
func (n Name) String() string {
	return n.display
}

// Norm returns the normalized form used for comparison and map keys.
func (n Name) Norm() string {
	return n.norm
}

// Equal reports whether two names identify the same user.
func (n Name) Equal(o Name) bool {
	return n.norm == o.norm
}

// IsUIN reports whether the name is an ICQ UIN (all digits).
func (n Name) IsUIN() bool {
	for _, r := range n.norm {
		if r < '0' || r > '9' {
			return false
		}
	}
	return n.norm != ""
}
