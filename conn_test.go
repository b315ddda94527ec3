// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"mellium.im/oscar/flap"
	"mellium.im/oscar/snac"
)

// A connection that finishes negotiating after its session has already been
// torn down has no loop to hand itself to; it must close the socket rather
// than leak it.
func TestOpenConnAfterTeardownClosesSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	sess := discardSession()
	sess.dialer = &Dialer{}
	sess.loopc = make(chan func())
	sess.done = make(chan struct{})
	sess.conns = make(map[connKey]*Conn)
	sess.pendingOpen = make(map[connKey]bool)
	close(sess.done)

	if err := sess.openConn(Icon, ln.Addr().String(), []byte{0x01, 0x02, 0x03, 0x04}, nil); err != nil {
		t.Fatalf("open conn: %v", err)
	}

	nc, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer nc.Close()
	deadline := time.Now().Add(5 * time.Second)
	sc := newConn(discardSession(), Icon, nc)
	if err := sc.writeFrame(flap.SignOn, binary.BigEndian.AppendUint32(nil, flapVersion)); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	if f, err := sc.readFrame(deadline); err != nil || f.Channel != flap.SignOn {
		t.Fatalf("client sign-on: frame %+v, err %v", f, err)
	}
	if err := sc.WriteSNAC(snac.Header{Family: snac.FamOService, Subtype: snac.OServiceHostReady}, nil); err != nil {
		t.Fatalf("write host ready: %v", err)
	}
	if _, err := sc.readSNAC(snac.FamOService, snac.OServiceRateRequest, deadline); err != nil {
		t.Fatalf("rate request: %v", err)
	}
	err = sc.WriteSNAC(snac.Header{Family: snac.FamOService, Subtype: snac.OServiceRateParams}, rateParamsBody(RateClass{ID: 1, WindowSize: 80, Current: 6000, Max: 6000}))
	if err != nil {
		t.Fatalf("write rate params: %v", err)
	}
	if _, err := sc.readSNAC(snac.FamOService, snac.OServiceRateAck, deadline); err != nil {
		t.Fatalf("rate ack: %v", err)
	}
	if _, err := sc.readSNAC(snac.FamOService, snac.OServiceClientReady, deadline); err != nil {
		t.Fatalf("client ready: %v", err)
	}

	// Negotiation succeeded but the session is gone; the next read must see
	// the client close the connection.
	if _, err := sc.readFrame(deadline); !errors.Is(err, io.EOF) {
		t.Fatalf("expected the negotiated socket to be closed, got %v", err)
	}
}
