// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mux_test

import (
	"errors"
	"strconv"
	"testing"

	"mellium.im/oscar/mux"
	"mellium.im/oscar/snac"
)

var passTest = errors.New("mux_test: PASSED")

var passHandler mux.HandlerFunc = func(mux.ResponseWriter, *snac.SNAC) error {
	return passTest
}

var failHandler mux.HandlerFunc = func(mux.ResponseWriter, *snac.SNAC) error {
	return errors.New("mux_test: FAILED")
}

type nopWriter struct{}

func (nopWriter) WriteSNAC(snac.Header, []byte) error { return nil }

var testCases = [...]struct {
	m *mux.ServeMux
	h snac.Header
}{
	0: {
		m: mux.New(
			mux.HandleFunc(snac.FamBuddy, snac.BuddyArrived, passHandler),
			mux.HandleFunc(snac.FamBuddy, snac.BuddyDeparted, failHandler),
		),
		h: snac.Header{Family: snac.FamBuddy, Subtype: snac.BuddyArrived},
	},
	1: {
		m: mux.New(
			mux.Family(snac.FamICBM, failHandler),
			mux.HandleFunc(snac.FamICBM, snac.ICBMTyping, passHandler),
		),
		h: snac.Header{Family: snac.FamICBM, Subtype: snac.ICBMTyping},
	},
	2: {
		m: mux.New(mux.Family(snac.FamICBM, passHandler)),
		h: snac.Header{Family: snac.FamICBM, Subtype: 0x0042},
	},
	3: {
		m: mux.New(mux.ICBM(passHandler)),
		h: snac.Header{Family: snac.FamICBM, Subtype: snac.ICBMIncoming},
	},
	4: {
		m: mux.New(mux.Buddy(passHandler)),
		h: snac.Header{Family: snac.FamBuddy, Subtype: snac.BuddyDeparted},
	},
}

func TestMux(t *testing.T) {
	for i, tc := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			err := tc.m.HandleSNAC(nopWriter{}, &snac.SNAC{Header: tc.h})
			if err != passTest {
				t.Fatalf("unexpected error: `%v'", err)
			}
		})
	}
}

func TestUnknownIgnored(t *testing.T) {
	m := mux.New(mux.HandleFunc(snac.FamBuddy, snac.BuddyArrived, failHandler))
	err := m.HandleSNAC(nopWriter{}, &snac.SNAC{
		Header: snac.Header{Family: 0x7FFF, Subtype: 0x0001},
	})
	if err != nil {
		t.Errorf("unknown message should be ignored, got: %v", err)
	}
}

func TestReplace(t *testing.T) {
	m := mux.New()
	m.HandleFunc(snac.FamOService, snac.OServiceRedirect, failHandler)
	m.HandleFunc(snac.FamOService, snac.OServiceRedirect, passHandler)
	err := m.HandleSNAC(nopWriter{}, &snac.SNAC{
		Header: snac.Header{Family: snac.FamOService, Subtype: snac.OServiceRedirect},
	})
	if err != passTest {
		t.Fatalf("re-registration should replace the handler, got: %v", err)
	}
}

func TestNilHandlerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected registering a nil handler to panic")
		}
	}()
	mux.New().Handle(snac.FamBuddy, snac.BuddyArrived, nil)
}
