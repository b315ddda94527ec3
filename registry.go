// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"mellium.im/oscar/screenname"
)

// Config configures a Registry and the sessions it starts.
type Config struct {
	// AuthAddr is the address of the authorization service. The port may be
	// omitted.
	AuthAddr string

	// Credentials resolves account secrets. A nil resolver fails every login
	// with ErrCredentialUnavailable.
	Credentials CredentialResolver

	// Notifier receives events from every session. Defaults to a notifier
	// that discards everything.
	Notifier Notifier

	// ClientID is the client identification string presented during login.
	ClientID string

	// RendezvousAddr is the listen address for peer to peer channels.
	// Defaults to an ephemeral port on all interfaces.
	RendezvousAddr string

	// Dialer is used for all service connections. A nil Dialer is equivalent
	// to a zero one.
	Dialer *Dialer

	// Cache persists small artifacts such as icon checksums between logins.
	// May be nil.
	Cache Cache

	Logger *slog.Logger
}

// A Registry owns the sessions of a process, at most one per account.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry returns a registry with no sessions.
func NewRegistry(cfg Config) *Registry {
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &Dialer{}
	}
	if cfg.Credentials == nil {
		cfg.Credentials = noCredentials{}
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "mellium.im/oscar"
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// noCredentials is the resolver used when none is configured.
type noCredentials struct{}

func (noCredentials) Resolve(_ context.Context, _ string, done func(string, error)) {
	done("", ErrNoCredential)
}

// StartSession begins a login for the account and returns its session.
// Accounts are keyed by normalized name, so at most one session exists per
// account: starting a session for an account that already has a live one
// returns the existing session unchanged.
//
// The returned session is not yet online. Progress and the terminal outcome
// are delivered through the notifier.
func (r *Registry) StartSession(ctx context.Context, account string) (*Session, error) {
	name, err := screenname.New(account)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if sess, ok := r.sessions[name.Norm()]; ok {
		r.mu.Unlock()
		return sess, nil
	}
	sess := newSession(r, name)
	r.sessions[name.Norm()] = sess
	r.mu.Unlock()

	go sess.run()
	sess.notifier.StateChange(Connecting, nil)
	sess.post(func() { sess.start(ctx) })
	return sess, nil
}

// Session returns the live session for an account, if any.
func (r *Registry) Session(account string) (*Session, bool) {
	name, err := screenname.New(account)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[name.Norm()]
	return sess, ok
}

// EndSession closes the session for an account. Unknown accounts are a
// no-op.
func (r *Registry) EndSession(account string) error {
	sess, ok := r.Session(account)
	if !ok {
		return nil
	}
	return sess.End()
}

// Close ends every session and rejects future starts.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()
	for _, sess := range sessions {
		_ = sess.End()
	}
	return nil
}

// remove drops a session from the registry once it has been torn down.
func (r *Registry) remove(sess *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[sess.account.Norm()]; ok && cur == sess {
		delete(r.sessions, sess.account.Norm())
	}
	r.mu.Unlock()
}
