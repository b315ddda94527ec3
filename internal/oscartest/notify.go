// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscartest

import (
	"testing"
	"time"

	"mellium.im/oscar"
	"mellium.im/oscar/rendezvous"
	"mellium.im/oscar/screenname"
)

// StateEvent is one lifecycle transition seen by a Recorder.
type StateEvent struct {
	State  oscar.SessionState
	Reason error
}

// MessageEvent is one inbound instant message seen by a Recorder.
type MessageEvent struct {
	Peer screenname.Name
	Body string
}

// TypingEvent is one typing notification seen by a Recorder.
type TypingEvent struct {
	Peer   screenname.Name
	Typing bool
}

// ChatMessageEvent is one chat room message seen by a Recorder.
type ChatMessageEvent struct {
	Room   oscar.ChatRoom
	Sender screenname.Name
	Body   string
}

// A Recorder is a Notifier that forwards every event onto buffered channels
// for tests to assert on.
type Recorder struct {
	States    chan StateEvent
	Presences chan oscar.BuddyInfo
	Typings   chan TypingEvent
	Messages  chan MessageEvent
	Chats     chan oscar.ChatRoom
	ChatMsgs  chan ChatMessageEvent
	Proposals chan *rendezvous.Proposal
	RdvEvents chan rendezvous.Event
}

// NewRecorder returns a recorder with room for a test's worth of events.
func NewRecorder() *Recorder {
	return &Recorder{
		States:    make(chan StateEvent, 16),
		Presences: make(chan oscar.BuddyInfo, 16),
		Typings:   make(chan TypingEvent, 16),
		Messages:  make(chan MessageEvent, 16),
		Chats:     make(chan oscar.ChatRoom, 16),
		ChatMsgs:  make(chan ChatMessageEvent, 16),
		Proposals: make(chan *rendezvous.Proposal, 16),
		RdvEvents: make(chan rendezvous.Event, 16),
	}
}

// StateChange implements oscar.Notifier.
func (r *Recorder) StateChange(state oscar.SessionState, reason error) {
	r.States <- StateEvent{State: state, Reason: reason}
}

// Presence implements oscar.Notifier.
func (r *Recorder) Presence(info oscar.BuddyInfo) {
	r.Presences <- info
}

// Typing implements oscar.Notifier.
func (r *Recorder) Typing(peer screenname.Name, typing bool) {
	r.Typings <- TypingEvent{Peer: peer, Typing: typing}
}

// Message implements oscar.Notifier.
func (r *Recorder) Message(peer screenname.Name, body string) {
	r.Messages <- MessageEvent{Peer: peer, Body: body}
}

// ChatJoined implements oscar.Notifier.
func (r *Recorder) ChatJoined(room oscar.ChatRoom) {
	r.Chats <- room
}

// ChatMessage implements oscar.Notifier.
func (r *Recorder) ChatMessage(room oscar.ChatRoom, sender screenname.Name, body string) {
	r.ChatMsgs <- ChatMessageEvent{Room: room, Sender: sender, Body: body}
}

// Consent implements oscar.Notifier.
func (r *Recorder) Consent(p *rendezvous.Proposal) {
	r.Proposals <- p
}

// Rendezvous implements oscar.Notifier.
func (r *Recorder) Rendezvous(ev rendezvous.Event) {
	r.RdvEvents <- ev
}

// AwaitState blocks until the recorder sees the given state and returns its
// reason, failing the test on timeout. Intermediate states are consumed.
func (r *Recorder) AwaitState(t *testing.T, state oscar.SessionState) error {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.States:
			if ev.State == state {
				return ev.Reason
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %v", state)
			return nil
		}
	}
}
