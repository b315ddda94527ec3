// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package oscar implements the session and connection plumbing of the OSCAR
// instant messaging protocol family (AIM and ICQ).
//
// One logical login is a Session. A session multiplexes several concurrent
// TCP connections, one per service: authentication, BOS (the primary always
// on connection carrying presence and messages), chat navigation, individual
// chat rooms, and the optional admin, email, and buddy icon services. The
// server moves a client between services by issuing redirects: instructions
// to open a new connection to a different host and port, carrying a cookie
// that ties the new connection back to the login.
//
// Each connection speaks FLAP framing (package flap) carrying SNAC messages
// (package snac) that are dispatched to handlers through a per connection
// multiplexer (package mux). Peer to peer channels for direct messaging and
// file transfer are managed by package rendezvous.
//
// All inbound traffic for a session is dispatched on a single goroutine, in
// arrival order per connection, so handler code never needs locks for
// session state.
package oscar // import "mellium.im/oscar"
