// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscartest

import (
	"encoding/binary"
	"net"
	"testing"

	"mellium.im/oscar/tlv"
)

// IMBody encodes the body of an inbound SNAC(4,7) carrying a channel 1
// message from the named buddy.
func IMBody(from, text string) []byte {
	var cookie [8]byte
	b := append([]byte(nil), cookie[:]...)
	b = binary.BigEndian.AppendUint16(b, 0x0001)
	b = append(b, UserInfo(from)...)

	var msg []byte
	// Features fragment.
	msg = append(msg, 0x05, 0x01, 0x00, 0x04, 0x01, 0x01, 0x01, 0x02)
	// Message fragment: charset descriptor then text.
	msg = append(msg, 0x01, 0x01)
	msg = binary.BigEndian.AppendUint16(msg, uint16(4+len(text)))
	msg = binary.BigEndian.AppendUint16(msg, 0x0000)
	msg = binary.BigEndian.AppendUint16(msg, 0x0000)
	msg = append(msg, text...)
	return tlv.Append(b, 0x0002, msg)
}

// TypingBody encodes the body of an inbound SNAC(4,0x14) typing
// notification.
func TypingBody(from string, typing bool) []byte {
	var cookie [8]byte
	b := append([]byte(nil), cookie[:]...)
	b = binary.BigEndian.AppendUint16(b, 0x0001)
	b = append(b, byte(len(from)))
	b = append(b, from...)
	event := uint16(0x0000)
	if typing {
		event = 0x0002
	}
	return binary.BigEndian.AppendUint16(b, event)
}

// ParseIM decodes an outbound SNAC(4,6) body into the destination name and
// message text.
func ParseIM(t *testing.T, body []byte) (peer, text string) {
	t.Helper()
	if len(body) < 11 {
		t.Fatalf("short outgoing im: %d bytes", len(body))
	}
	n := int(body[10])
	if len(body) < 11+n {
		t.Fatalf("truncated outgoing im name")
	}
	peer = string(body[11 : 11+n])
	l, err := tlv.Decode(body[11+n:])
	if err != nil {
		t.Fatalf("decode im tlvs: %v", err)
	}
	msg, ok := l.Get(0x0002)
	if !ok {
		t.Fatalf("outgoing im without message block")
	}
	for len(msg) >= 4 {
		id := msg[0]
		fn := int(binary.BigEndian.Uint16(msg[2:4]))
		if len(msg) < 4+fn {
			t.Fatalf("truncated message fragment")
		}
		if id == 0x01 {
			if fn < 4 {
				t.Fatalf("short message fragment")
			}
			return peer, string(msg[4+4 : 4+fn])
		}
		msg = msg[4+fn:]
	}
	t.Fatalf("outgoing im without text fragment")
	return "", ""
}

// ParseRendezvous decodes an outbound SNAC(4,6) channel 2 body into the
// destination name, the rendezvous status, and the advertised host and port.
func ParseRendezvous(t *testing.T, body []byte) (peer string, status uint16, host string, port uint16) {
	t.Helper()
	if len(body) < 11 {
		t.Fatalf("short outgoing rendezvous: %d bytes", len(body))
	}
	if ch := binary.BigEndian.Uint16(body[8:10]); ch != 0x0002 {
		t.Fatalf("outgoing icbm on channel %#04x, want 0x0002", ch)
	}
	n := int(body[10])
	if len(body) < 11+n {
		t.Fatalf("truncated outgoing rendezvous name")
	}
	peer = string(body[11 : 11+n])
	l, err := tlv.Decode(body[11+n:])
	if err != nil {
		t.Fatalf("decode rendezvous tlvs: %v", err)
	}
	rv, ok := l.Get(0x0005)
	if !ok {
		t.Fatalf("outgoing rendezvous without rendezvous block")
	}
	if len(rv) < 26 {
		t.Fatalf("short rendezvous block: %d bytes", len(rv))
	}
	status = binary.BigEndian.Uint16(rv[0:2])
	inner, err := tlv.Decode(rv[26:])
	if err != nil {
		t.Fatalf("decode rendezvous block tlvs: %v", err)
	}
	if v, ok := inner.Get(0x0002); ok && len(v) == 4 {
		host = net.IP(v).String()
	}
	port, _ = inner.Uint16(0x0005)
	return peer, status, host, port
}
