// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package mux implements a SNAC multiplexer.
package mux

import (
	"mellium.im/oscar/snac"
)

// ResponseWriter is the sending half of the connection a SNAC arrived on.
// Handlers use it to write replies without taking ownership of the
// connection itself.
type ResponseWriter interface {
	WriteSNAC(h snac.Header, body []byte) error
}

// A Handler responds to a single SNAC message.
//
// Handlers may mutate session level state and may request new service
// connections, but must not block: they are invoked synchronously from the
// read loop of the connection that produced the message.
type Handler interface {
	HandleSNAC(w ResponseWriter, s *snac.SNAC) error
}

// The HandlerFunc type is an adapter to allow the use of ordinary functions
// as SNAC handlers.
// If f is a function with the appropriate signature, HandlerFunc(f) is a
// Handler that calls f.
type HandlerFunc func(w ResponseWriter, s *snac.SNAC) error

// HandleSNAC calls f(w, s).
func (f HandlerFunc) HandleSNAC(w ResponseWriter, s *snac.SNAC) error {
	return f(w, s)
}

type pattern struct {
	family  uint16
	subtype uint16
}

// ServeMux is a SNAC multiplexer.
// It matches the (family, subtype) pair in the header of each message
// against its registered patterns and calls the matching handler.
// Exact (family, subtype) registrations take precedence over whole-family
// registrations.
//
// Messages matching no registration are dropped without error: servers
// freely send optional extension messages and an unknown pair must never be
// treated as a fault.
type ServeMux struct {
	patterns map[pattern]Handler
	families map[uint16]Handler
}

// New allocates and returns a new ServeMux.
func New(opt ...Option) *ServeMux {
	m := &ServeMux{}
	for _, o := range opt {
		o(m)
	}
	return m
}

// Handler returns the handler registered for the (family, subtype) pair,
// falling back to a whole-family registration if one exists.
// If no handler matches, ok is false.
func (m *ServeMux) Handler(family, subtype uint16) (h Handler, ok bool) {
	h, ok = m.patterns[pattern{family, subtype}]
	if ok {
		return h, true
	}
	h, ok = m.families[family]
	return h, ok
}

// Handle registers the handler for the given (family, subtype) pair,
// replacing any previous registration.
// Replacement is deliberate: protocol version renegotiation swaps handlers
// on a live connection.
// Handle panics if h is nil.
func (m *ServeMux) Handle(family, subtype uint16, h Handler) {
	if h == nil {
		panic("mux: nil handler")
	}
	if m.patterns == nil {
		m.patterns = make(map[pattern]Handler)
	}
	m.patterns[pattern{family, subtype}] = h
}

// HandleFunc registers the handler function for the given (family, subtype)
// pair.
func (m *ServeMux) HandleFunc(family, subtype uint16, h HandlerFunc) {
	m.Handle(family, subtype, h)
}

// HandleSNAC dispatches the message to the handler registered for its
// header. Messages with no matching handler are silently ignored.
func (m *ServeMux) HandleSNAC(w ResponseWriter, s *snac.SNAC) error {
	h, ok := m.Handler(s.Family, s.Subtype)
	if !ok {
		return nil
	}
	return h.HandleSNAC(w, s)
}
