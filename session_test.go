// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mellium.im/oscar"
	"mellium.im/oscar/internal/oscartest"
	"mellium.im/oscar/screenname"
	"mellium.im/oscar/snac"
)

func mustName(t *testing.T, s string) screenname.Name {
	t.Helper()
	n, err := screenname.New(s)
	if err != nil {
		t.Fatalf("parse name %q: %v", s, err)
	}
	return n
}

func startTestSession(t *testing.T, srv *oscartest.Server, password string) (*oscar.Registry, *oscar.Session, *oscartest.Recorder) {
	t.Helper()
	rec := oscartest.NewRecorder()
	r := oscar.NewRegistry(oscar.Config{
		AuthAddr:    srv.AuthAddr(),
		Credentials: oscar.Password(password),
		Notifier:    rec,
	})
	t.Cleanup(func() { r.Close() })
	sess, err := r.StartSession(context.Background(), "Test User")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return r, sess, rec
}

func TestLoginBecomesOnline(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	_, sess, rec := startTestSession(t, srv, "hunter2")

	if reason := rec.AwaitState(t, oscar.Online); reason != nil {
		t.Fatalf("unexpected reason on online transition: %v", reason)
	}
	if got := sess.State(); got != oscar.Online {
		t.Errorf("wrong state: %v", got)
	}

	bos := srv.BOSConn()

	// Presence flows from arrival frames to the notifier.
	bos.WriteSNAC(snac.Header{Family: snac.FamBuddy, Subtype: snac.BuddyArrived}, oscartest.UserInfo("Buddy One"))
	select {
	case info := <-rec.Presences:
		if info.Name.Norm() != "buddyone" || !info.Online {
			t.Errorf("wrong presence: %+v", info)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for presence")
	}

	// Inbound messages reach the notifier.
	bos.WriteSNAC(snac.Header{Family: snac.FamICBM, Subtype: snac.ICBMIncoming}, oscartest.IMBody("Buddy One", "hello there"))
	select {
	case msg := <-rec.Messages:
		if msg.Body != "hello there" || msg.Peer.Norm() != "buddyone" {
			t.Errorf("wrong message: %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	// Outbound messages hit the wire.
	if err := sess.SendIM(mustName(t, "Buddy One"), "hi yourself"); err != nil {
		t.Fatalf("send im: %v", err)
	}
	out := bos.ReadSNAC()
	if out.Family != snac.FamICBM || out.Subtype != snac.ICBMOutgoing {
		t.Fatalf("expected outgoing im, got snac(%#04x,%#04x)", out.Family, out.Subtype)
	}
	if peer, text := oscartest.ParseIM(t, out.Body); peer != "Buddy One" || text != "hi yourself" {
		t.Errorf("wrong outgoing im: peer=%q text=%q", peer, text)
	}

	if err := sess.End(); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if reason := rec.AwaitState(t, oscar.Disconnected); reason != nil {
		t.Errorf("deliberate end should have no error reason, got %v", reason)
	}
}

func TestBadPassword(t *testing.T) {
	srv := oscartest.NewServer(t, "right password")
	_, _, rec := startTestSession(t, srv, "wrong password")

	reason := rec.AwaitState(t, oscar.Disconnected)
	if !errors.Is(reason, &oscar.AuthFailure{Reason: oscar.IncorrectCredentials}) {
		t.Errorf("expected incorrect credentials failure, got %v", reason)
	}
}

func TestAuthErrorCode(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	srv.FailCode = 0x0011
	_, _, rec := startTestSession(t, srv, "hunter2")

	reason := rec.AwaitState(t, oscar.Disconnected)
	if !errors.Is(reason, &oscar.AuthFailure{Reason: oscar.SuspendedAccount}) {
		t.Errorf("expected suspended account failure, got %v", reason)
	}
}

func TestNoCredential(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	rec := oscartest.NewRecorder()
	r := oscar.NewRegistry(oscar.Config{
		AuthAddr: srv.AuthAddr(),
		Notifier: rec,
	})
	t.Cleanup(func() { r.Close() })
	if _, err := r.StartSession(context.Background(), "Test User"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	reason := rec.AwaitState(t, oscar.Disconnected)
	if !errors.Is(reason, oscar.ErrCredentialUnavailable) {
		t.Errorf("expected credential unavailable, got %v", reason)
	}
}

func TestStartSessionIsIdempotent(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	r, sess, rec := startTestSession(t, srv, "hunter2")
	rec.AwaitState(t, oscar.Online)

	// Same account, differently formatted name: the live session is reused.
	again, err := r.StartSession(context.Background(), "TESTUSER")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if again != sess {
		t.Error("expected the existing session to be returned")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	r, sess, rec := startTestSession(t, srv, "hunter2")
	rec.AwaitState(t, oscar.Online)

	if err := sess.End(); err != nil {
		t.Fatalf("first end: %v", err)
	}
	if err := sess.End(); err != nil {
		t.Fatalf("second end: %v", err)
	}
	rec.AwaitState(t, oscar.Disconnected)

	// Count terminal transitions: exactly one Disconnected was delivered.
	select {
	case ev := <-rec.States:
		t.Errorf("unexpected extra state event: %+v", ev)
	default:
	}

	if _, ok := r.Session("Test User"); ok {
		t.Error("session should be removed from the registry after end")
	}
}

func TestUnknownFramesTolerated(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	_, _, rec := startTestSession(t, srv, "hunter2")
	rec.AwaitState(t, oscar.Online)

	bos := srv.BOSConn()
	// An unknown family, an unknown subtype, and a malformed body must all be
	// dropped without affecting the session.
	bos.WriteSNAC(snac.Header{Family: 0x7FFF, Subtype: 0x0001}, nil)
	bos.WriteSNAC(snac.Header{Family: snac.FamOService, Subtype: 0x7FFF}, nil)
	bos.WriteSNAC(snac.Header{Family: snac.FamBuddy, Subtype: snac.BuddyArrived}, []byte{0xFF})

	// The session is still alive and dispatching.
	bos.WriteSNAC(snac.Header{Family: snac.FamBuddy, Subtype: snac.BuddyArrived}, oscartest.UserInfo("still here"))
	select {
	case info := <-rec.Presences:
		if info.Name.Norm() != "stillhere" {
			t.Errorf("wrong presence: %+v", info)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for presence after junk frames")
	}
}

func TestOperationsAfterEnd(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	_, sess, rec := startTestSession(t, srv, "hunter2")
	rec.AwaitState(t, oscar.Online)

	if err := sess.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	rec.AwaitState(t, oscar.Disconnected)
	if err := sess.SendIM(mustName(t, "someone"), "too late"); !errors.Is(err, oscar.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestServerCloseTearsDown(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	_, _, rec := startTestSession(t, srv, "hunter2")
	rec.AwaitState(t, oscar.Online)

	bos := srv.BOSConn()
	bos.Close()
	reason := rec.AwaitState(t, oscar.Disconnected)
	if reason == nil {
		t.Error("losing the primary connection should report an error reason")
	}
}

func TestSendKeepalive(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	_, sess, rec := startTestSession(t, srv, "hunter2")
	rec.AwaitState(t, oscar.Online)

	bos := srv.BOSConn()
	if err := sess.SendKeepalive(); err != nil {
		t.Fatalf("send keepalive: %v", err)
	}
	f := bos.ReadFrame()
	if f.Channel != 0x05 {
		t.Errorf("expected keepalive channel, got %#02x", f.Channel)
	}
}

func TestJoinChatOrder(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	_, sess, rec := startTestSession(t, srv, "hunter2")
	rec.AwaitState(t, oscar.Online)
	bos := srv.BOSConn()

	// All three joins queue before chat navigation exists; only the first one
	// requests the service.
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if err := sess.JoinChat(name); err != nil {
			t.Fatalf("join %q: %v", name, err)
		}
	}
	req := bos.ReadSNAC()
	if req.Family != snac.FamOService || req.Subtype != snac.OServiceServiceRequest {
		t.Fatalf("expected service request, got snac(%#04x,%#04x)", req.Family, req.Subtype)
	}
	if group, _ := oscartest.ParseServiceRequest(t, req.Body); group != 0x000D {
		t.Fatalf("requested group %#04x, want chat navigation", group)
	}
	bos.WriteSNAC(snac.Header{Family: snac.FamOService, Subtype: snac.OServiceRedirect}, oscartest.RedirectBody(0x000D, srv.ChatNavAddr()))
	nav := srv.ChatNavConn()

	// The queued rooms are created in join order.
	for _, want := range []string{"alpha", "beta", "gamma"} {
		create := nav.ReadSNAC()
		if create.Family != snac.FamChatNav || create.Subtype != snac.ChatNavCreateRoom {
			t.Fatalf("expected create room, got snac(%#04x,%#04x)", create.Family, create.Subtype)
		}
		if got := oscartest.ParseCreateRoom(t, create.Body); got != want {
			t.Fatalf("created room %q, want %q", got, want)
		}
	}

	// Answer each create in turn and follow the join through the chat
	// redirect to the joined notification.
	for i, want := range []string{"alpha", "beta", "gamma"} {
		cookie := "room-" + want
		nav.WriteSNAC(snac.Header{Family: snac.FamChatNav, Subtype: snac.ChatNavInfoReply}, oscartest.RoomInfoBody(want, cookie, uint16(i+1)))

		req := bos.ReadSNAC()
		if req.Family != snac.FamOService || req.Subtype != snac.OServiceServiceRequest {
			t.Fatalf("expected chat service request, got snac(%#04x,%#04x)", req.Family, req.Subtype)
		}
		group, roomCookie := oscartest.ParseServiceRequest(t, req.Body)
		if group != 0x000E || roomCookie != cookie {
			t.Fatalf("chat request group=%#04x cookie=%q, want chat %q", group, roomCookie, cookie)
		}
		bos.WriteSNAC(snac.Header{Family: snac.FamOService, Subtype: snac.OServiceRedirect}, oscartest.RedirectBody(0x000E, srv.ChatAddr()))
		srv.ChatConn()

		select {
		case room := <-rec.Chats:
			if room.Name != want || room.Instance != uint16(i+1) {
				t.Errorf("joined %+v, want %q instance %d", room, want, i+1)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting to join %q", want)
		}
	}
}

func TestRequestServiceRetry(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	_, sess, rec := startTestSession(t, srv, "hunter2")
	rec.AwaitState(t, oscar.Online)
	bos := srv.BOSConn()

	if err := sess.RequestService(oscar.Icon); err != nil {
		t.Fatalf("request service: %v", err)
	}
	req := bos.ReadSNAC()
	if group, _ := oscartest.ParseServiceRequest(t, req.Body); group != 0x0010 {
		t.Fatalf("requested group %#04x, want icon", group)
	}

	// The server never answered the first request; asking again re-sends it
	// instead of failing as a duplicate.
	if err := sess.RequestService(oscar.Icon); err != nil {
		t.Fatalf("second request: %v", err)
	}
	req = bos.ReadSNAC()
	if group, _ := oscartest.ParseServiceRequest(t, req.Body); group != 0x0010 {
		t.Fatalf("re-sent group %#04x, want icon", group)
	}
}

func TestProposeDirectIMDefaultListener(t *testing.T) {
	srv := oscartest.NewServer(t, "hunter2")
	_, sess, rec := startTestSession(t, srv, "hunter2")
	rec.AwaitState(t, oscar.Online)
	bos := srv.BOSConn()

	// No rendezvous address is configured, so the listener binds the
	// unspecified address. The proposal must advertise the address this host
	// uses to reach the server.
	if _, err := sess.ProposeDirectIM(mustName(t, "Buddy One")); err != nil {
		t.Fatalf("propose direct im: %v", err)
	}
	out := bos.ReadSNAC()
	if out.Family != snac.FamICBM || out.Subtype != snac.ICBMOutgoing {
		t.Fatalf("expected outgoing proposal, got snac(%#04x,%#04x)", out.Family, out.Subtype)
	}
	peer, status, host, port := oscartest.ParseRendezvous(t, out.Body)
	if peer != "Buddy One" || status != 0x0000 {
		t.Errorf("wrong proposal: peer=%q status=%#04x", peer, status)
	}
	if host != "127.0.0.1" {
		t.Errorf("advertised host %q, want the primary connection's address", host)
	}
	if port == 0 {
		t.Error("advertised port is zero")
	}
}
