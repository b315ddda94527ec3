// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package mux

import (
	"mellium.im/oscar/snac"
)

// Option configures a ServeMux.
type Option func(m *ServeMux)

// Handle returns an option that registers the handler for the given
// (family, subtype) pair.
func Handle(family, subtype uint16, h Handler) Option {
	return func(m *ServeMux) {
		m.Handle(family, subtype, h)
	}
}

// HandleFunc returns an option that registers the handler function for the
// given (family, subtype) pair.
func HandleFunc(family, subtype uint16, h HandlerFunc) Option {
	return Handle(family, subtype, h)
}

// Family returns an option that registers the handler for every subtype of
// the given family.
func Family(family uint16, h Handler) Option {
	return func(m *ServeMux) {
		if h == nil {
			panic("mux: nil handler")
		}
		if m.families == nil {
			m.families = make(map[uint16]Handler)
		}
		m.families[family] = h
	}
}

// Buddy returns an option that registers the handler for buddy arrival and
// departure notifications.
func Buddy(h Handler) Option {
	return func(m *ServeMux) {
		m.Handle(snac.FamBuddy, snac.BuddyArrived, h)
		m.Handle(snac.FamBuddy, snac.BuddyDeparted, h)
	}
}

// ICBM returns an option that registers the handler for inbound instant
// messages and typing notifications.
func ICBM(h Handler) Option {
	return func(m *ServeMux) {
		m.Handle(snac.FamICBM, snac.ICBMIncoming, h)
		m.Handle(snac.FamICBM, snac.ICBMTyping, h)
	}
}
