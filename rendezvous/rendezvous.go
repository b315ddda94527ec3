// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package rendezvous manages peer-to-peer OSCAR connections.
//
// Direct IM and file transfer bypass the central server: the server only
// carries an introduction (a "proposal") containing an opaque cookie and the
// proposing side's listen address. The cookie is the sole correlation key
// between the high level request and the eventual socket, and is unique
// within a login session.
package rendezvous

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"mellium.im/oscar/screenname"
)

// Kind is the type of a peer-to-peer channel.
type Kind uint8

// The rendezvous channel kinds.
const (
	DirectIM Kind = iota
	SendFile
)

// Direction records which side proposed the channel.
type Direction uint8

// Channel directions.
const (
	Outgoing Direction = iota
	Incoming
)

// Status is the lifecycle state of a peer channel.
//
//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -type=Status
type Status uint8

// Channel lifecycle states.
const (
	Pending Status = iota
	Listening
	Connected
	Transferring
	Done
	Cancelled
	Declined
)

// Errors returned by the manager.
var (
	ErrUnknownCookie = errors.New("rendezvous: unknown cookie")
	ErrCancelled     = errors.New("rendezvous: channel cancelled")
	ErrBadCookie     = errors.New("rendezvous: cookie must be 8 bytes")
)

// A Cookie is the opaque correlation token introduced by the server.
type Cookie [8]byte

// NewCookie returns a random cookie.
func NewCookie() (Cookie, error) {
	var c Cookie
	_, err := rand.Read(c[:])
	return c, err
}

// CookieFromBytes converts a wire cookie into a Cookie.
func CookieFromBytes(b []byte) (Cookie, error) {
	var c Cookie
	if len(b) != len(c) {
		return c, ErrBadCookie
	}
	copy(c[:], b)
	return c, nil
}

// String returns the cookie as hex for logging.
func (c Cookie) String() string {
	return hex.EncodeToString(c[:])
}

// An Event reports a terminal or connection-level change on a peer channel.
type Event struct {
	Type    EventType
	Cookie  Cookie
	Session *Session
}

// EventType enumerates the kinds of Event.
//
//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -type=EventType
type EventType uint8

// Event types.
const (
	EventConnected EventType = iota
	EventDone
	EventCancelled
	EventDeclined
)

// Config configures a Manager.
// All callbacks may be invoked from transfer goroutines.
type Config struct {
	// Announce sends a proposal for the channel through the session's primary
	// server connection, carrying the channel cookie and our listen address.
	Announce func(s *Session, addr string) error

	// Consent forwards an inbound proposal to the owning collaborator for an
	// accept or decline decision. Consent is mandatory for file transfer and
	// direct IM alike; nothing is auto-accepted.
	Consent func(p *Proposal)

	// Notify receives channel lifecycle events.
	Notify func(ev Event)

	// ListenAddr is the address proposals listen on. Defaults to ":0".
	ListenAddr string

	Logger *slog.Logger
}

// Manager tracks the peer channels of one login session, keyed by cookie.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[Cookie]*Session
}

// NewManager returns a manager with no active channels.
func NewManager(cfg Config) *Manager {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[Cookie]*Session),
	}
}

// Propose starts an outbound peer channel: it allocates a cookie, opens a
// listening socket for the peer to connect back to, and announces the
// proposal through the server connection. The proposal frame must carry a
// connectable address, so both channel kinds listen; the side that accepts
// makes the outbound connection.
func (m *Manager) Propose(peer screenname.Name, kind Kind) (*Session, error) {
	return m.propose(peer, kind, "", 0)
}

// ProposeFile is like Propose but records the metadata of the file offered
// over a SendFile channel so the announcement can carry it.
func (m *Manager) ProposeFile(peer screenname.Name, name string, size uint64) (*Session, error) {
	return m.propose(peer, SendFile, name, size)
}

func (m *Manager) propose(peer screenname.Name, kind Kind, name string, size uint64) (*Session, error) {
	cookie, err := NewCookie()
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Cookie:    cookie,
		Peer:      peer,
		Kind:      kind,
		Direction: Outgoing,
		FileName:  name,
		Size:      size,
		m:         m,
		ln:        ln,
		status:    Listening,
		sum:       NewChecksum(),
	}
	m.mu.Lock()
	m.sessions[cookie] = s
	m.mu.Unlock()

	go s.accept()

	if m.cfg.Announce != nil {
		if err := m.cfg.Announce(s, ln.Addr().String()); err != nil {
			_ = m.Cancel(cookie)
			return nil, err
		}
	}
	return s, nil
}

// HandlePropose records an inbound proposal from a peer and forwards it to
// the consent callback. The channel stays Pending until the collaborator
// calls Accept or Decline on the proposal.
func (m *Manager) HandlePropose(peer screenname.Name, cookie Cookie, kind Kind, host string, port uint16, name string, size uint64) {
	s := &Session{
		Cookie:    cookie,
		Peer:      peer,
		Kind:      kind,
		Direction: Incoming,
		FileName:  name,
		Size:      size,
		m:         m,
		status:    Pending,
		sum:       NewChecksum(),
	}
	m.mu.Lock()
	m.sessions[cookie] = s
	m.mu.Unlock()

	p := &Proposal{Session: s, Host: host, Port: port}
	if m.cfg.Consent != nil {
		m.cfg.Consent(p)
	}
}

// Get returns the channel for the given cookie.
func (m *Manager) Get(cookie Cookie) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[cookie]
	return s, ok
}

// Cancel tears down the channel for the given cookie.
// It is safe to call for cookies that are unknown, never connected, or
// already cancelled; only the first effective cancellation emits an event.
func (m *Manager) Cancel(cookie Cookie) error {
	m.mu.Lock()
	s, ok := m.sessions[cookie]
	delete(m.sessions, cookie)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if s.transition(Cancelled) {
		m.cfg.Logger.Debug("cancelled rendezvous channel",
			"cookie", cookie.String(), "peer", s.Peer.String())
		m.event(Event{Type: EventCancelled, Cookie: cookie, Session: s})
	}
	return nil
}

// CloseAll cancels every channel. It is called on session teardown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	cookies := make([]Cookie, 0, len(m.sessions))
	for c := range m.sessions {
		cookies = append(cookies, c)
	}
	m.mu.Unlock()
	for _, c := range cookies {
		_ = m.Cancel(c)
	}
}

func (m *Manager) event(ev Event) {
	if m.cfg.Notify != nil {
		m.cfg.Notify(ev)
	}
}

// A Proposal is an inbound rendezvous invitation awaiting consent.
type Proposal struct {
	Session *Session

	// The peer's listen address from the introduction.
	Host string
	Port uint16
}

// Accept connects to the proposing peer and marks the channel Connected.
func (p *Proposal) Accept(ctx context.Context) error {
	s := p.Session
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.FormatUint(uint64(p.Port), 10)))
	if err != nil {
		_ = s.m.Cancel(s.Cookie)
		return err
	}
	s.mu.Lock()
	if s.status == Cancelled {
		s.mu.Unlock()
		conn.Close()
		return ErrCancelled
	}
	s.conn = conn
	s.status = Connected
	s.mu.Unlock()
	s.m.event(Event{Type: EventConnected, Cookie: s.Cookie, Session: s})
	return nil
}

// Decline refuses the proposal and removes the pending channel.
func (p *Proposal) Decline() {
	s := p.Session
	s.m.mu.Lock()
	delete(s.m.sessions, s.Cookie)
	s.m.mu.Unlock()
	if s.transition(Declined) {
		s.m.event(Event{Type: EventDeclined, Cookie: s.Cookie, Session: s})
	}
}
