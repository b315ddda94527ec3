// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package screenname_test

import (
	"strconv"
	"strings"
	"testing"

	"mellium.im/oscar/screenname"
)

var parseTestCases = [...]struct {
	in   string
	norm string
	err  error
}{
	0: {in: "Test User", norm: "testuser"},
	1: {in: "testuser", norm: "testuser"},
	2: {in: "12345678", norm: "12345678"},
	3: {in: "", err: screenname.ErrEmpty},
	4: {in: "   ", err: screenname.ErrEmpty},
	5: {in: strings.Repeat("a", 98), err: screenname.ErrTooLong},
	6: {in: "!bang", err: screenname.ErrInvalidRune},
	7: {in: "A B C", norm: "abc"},
}

func TestNew(t *testing.T) {
	for i, tc := range parseTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			n, err := screenname.New(tc.in)
			if err != tc.err {
				t.Fatalf("unexpected error: want=%v, got=%v", tc.err, err)
			}
			if err != nil {
				return
			}
			if n.Norm() != tc.norm {
				t.Errorf("wrong normalized form: want=%q, got=%q", tc.norm, n.Norm())
			}
			if n.String() != tc.in {
				t.Errorf("formatted form not preserved: want=%q, got=%q", tc.in, n.String())
			}
		})
	}
}

func TestEqual(t *testing.T) {
	a := screenname.MustParse("Test User")
	b := screenname.MustParse("testuser")
	if !a.Equal(b) {
		t.Errorf("%q and %q should identify the same user", a, b)
	}
	c := screenname.MustParse("otheruser")
	if a.Equal(c) {
		t.Errorf("%q and %q should not be equal", a, c)
	}
}

func TestIsUIN(t *testing.T) {
	if !screenname.MustParse("123456").IsUIN() {
		t.Error("expected all-digit name to be a UIN")
	}
	if screenname.MustParse("user1").IsUIN() {
		t.Error("expected mixed name not to be a UIN")
	}
}
