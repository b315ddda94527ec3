// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"context"

	"mellium.im/oscar/rendezvous"
	"mellium.im/oscar/screenname"
)

//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -type=SessionState -linecomment

// SessionState is the lifecycle state of a session.
type SessionState uint8

// Session lifecycle states, in the order a successful login traverses them.
const (
	Connecting     SessionState = iota // connecting
	Authenticating                     // authenticating
	Online                             // online
	Disconnecting                      // disconnecting
	Disconnected                       // disconnected
)

// A Notifier receives session events: lifecycle transitions, presence and
// typing updates, inbound messages, and rendezvous activity.
//
// Methods are called from the session's dispatch goroutine or from transfer
// goroutines and must not block; hand work that may take time off to another
// goroutine. Methods must not call back into the session synchronously.
type Notifier interface {
	// StateChange reports a lifecycle transition. reason is non-nil only for
	// terminal transitions caused by an error.
	StateChange(state SessionState, reason error)

	// Presence reports that a buddy arrived, departed, or changed state.
	Presence(info BuddyInfo)

	// Typing reports a typing notification from a peer.
	Typing(peer screenname.Name, typing bool)

	// Message delivers an inbound instant message.
	Message(peer screenname.Name, body string)

	// ChatJoined reports that a chat room connection is ready.
	ChatJoined(room ChatRoom)

	// ChatMessage delivers a message received in a chat room.
	ChatMessage(room ChatRoom, sender screenname.Name, body string)

	// Consent forwards an inbound rendezvous proposal for an accept or
	// decline decision. The decision arrives later through the proposal's
	// Accept and Decline methods; nothing is auto-accepted.
	Consent(p *rendezvous.Proposal)

	// Rendezvous reports lifecycle events on peer to peer channels.
	Rendezvous(ev rendezvous.Event)
}

// NopNotifier is a Notifier that discards all events. Embed it to implement
// only the methods of interest.
type NopNotifier struct{}

// StateChange implements Notifier.
func (NopNotifier) StateChange(SessionState, error) {}

// Presence implements Notifier.
func (NopNotifier) Presence(BuddyInfo) {}

// Typing implements Notifier.
func (NopNotifier) Typing(screenname.Name, bool) {}

// Message implements Notifier.
func (NopNotifier) Message(screenname.Name, string) {}

// ChatJoined implements Notifier.
func (NopNotifier) ChatJoined(ChatRoom) {}

// ChatMessage implements Notifier.
func (NopNotifier) ChatMessage(ChatRoom, screenname.Name, string) {}

// Consent implements Notifier.
func (NopNotifier) Consent(*rendezvous.Proposal) {}

// Rendezvous implements Notifier.
func (NopNotifier) Rendezvous(rendezvous.Event) {}

// A CredentialResolver looks up the secret for an account.
// Resolution is asynchronous: implementations invoke done exactly once,
// possibly before Resolve returns. A resolver with no entry for the account
// reports ErrNoCredential.
type CredentialResolver interface {
	Resolve(ctx context.Context, account string, done func(secret string, err error))
}

// Password is a CredentialResolver that always resolves to itself.
type Password string

// Resolve implements CredentialResolver.
func (p Password) Resolve(_ context.Context, _ string, done func(string, error)) {
	done(string(p), nil)
}

// A Cache persists small protocol artifacts between logins, such as buddy
// icon checksums and server assigned aliases. A nil value and a missing key
// both mean "no prior state".
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}
