// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package oscartest provides test servers and event recorders for testing
// session behavior against a scripted OSCAR server.
package oscartest

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"mellium.im/oscar/flap"
	"mellium.im/oscar/snac"
	"mellium.im/oscar/tlv"
)

// authMagic matches the constant clients mix into the roasted password hash.
const authMagic = "AOL Instant Messenger (SM)"

// Cookie is the login cookie the test server hands out.
var Cookie = []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}

// A Conn wraps one accepted server side connection with FLAP framing
// helpers. Helpers fail the test on error.
type Conn struct {
	t    *testing.T
	conn net.Conn
	enc  *flap.Encoder
	dec  flap.Decoder
}

func newConn(t *testing.T, nc net.Conn) *Conn {
	return &Conn{t: t, conn: nc, enc: flap.NewEncoder(nc)}
}

// WriteFrame writes a raw FLAP frame.
func (c *Conn) WriteFrame(ch flap.Channel, p []byte) {
	c.t.Helper()
	if err := c.enc.Encode(ch, p); err != nil {
		c.t.Fatalf("write frame: %v", err)
	}
}

// WriteSNAC writes a SNAC in a data frame.
func (c *Conn) WriteSNAC(h snac.Header, body []byte) {
	c.t.Helper()
	c.WriteFrame(flap.Data, snac.Marshal(h, body))
}

// ReadFrame reads one frame, failing the test after a timeout.
func (c *Conn) ReadFrame() flap.Frame {
	c.t.Helper()
	var buf [4096]byte
	deadline := time.Now().Add(5 * time.Second)
	for {
		f, err := c.dec.Next()
		if err == nil {
			return f
		}
		if err != flap.ErrIncomplete {
			c.t.Fatalf("decode frame: %v", err)
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			c.t.Fatalf("set deadline: %v", err)
		}
		n, err := c.conn.Read(buf[:])
		if n > 0 {
			c.dec.Write(buf[:n])
			continue
		}
		if err != nil {
			c.t.Fatalf("read: %v", err)
		}
	}
}

// ReadSNAC reads data frames until one carries a SNAC, skipping keepalives.
func (c *Conn) ReadSNAC() *snac.SNAC {
	c.t.Helper()
	for {
		f := c.ReadFrame()
		if f.Channel != flap.Data {
			continue
		}
		s, err := snac.Parse(f.Payload)
		if err != nil {
			c.t.Fatalf("parse snac: %v", err)
		}
		return s
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() {
	_ = c.conn.Close()
}

// A Server is a scripted authorization, BOS, chat navigation, and chat room
// service listening on localhost. The zero FailCode accepts any login whose
// hash matches Password; a nonzero FailCode rejects every login with that
// error code. Redirects are not issued automatically: tests write them on
// the BOS connection and drive the resulting service conversations.
type Server struct {
	Password string
	FailCode uint16

	t         *testing.T
	authLn    net.Listener
	bosLn     net.Listener
	chatNavLn net.Listener
	chatLn    net.Listener
	bosConns  chan *Conn
	navConns  chan *Conn
	chatConns chan *Conn
}

// NewServer starts the listeners and their accept loops. Everything shuts
// down in test cleanup.
func NewServer(t *testing.T, password string) *Server {
	t.Helper()
	s := &Server{
		Password:  password,
		t:         t,
		bosConns:  make(chan *Conn, 4),
		navConns:  make(chan *Conn, 4),
		chatConns: make(chan *Conn, 4),
	}
	for _, ln := range []*net.Listener{&s.authLn, &s.bosLn, &s.chatNavLn, &s.chatLn} {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		*ln = l
		t.Cleanup(func() { l.Close() })
	}
	go s.accept(s.authLn, s.serveAuth)
	go s.accept(s.bosLn, s.serveBOS)
	go s.accept(s.chatNavLn, s.serveAux(s.navConns))
	go s.accept(s.chatLn, s.serveAux(s.chatConns))
	return s
}

// AuthAddr returns the authorization service address to hand to a registry.
func (s *Server) AuthAddr() string {
	return s.authLn.Addr().String()
}

// ChatNavAddr returns the chat navigation address for redirect bodies.
func (s *Server) ChatNavAddr() string {
	return s.chatNavLn.Addr().String()
}

// ChatAddr returns the chat room service address for redirect bodies.
func (s *Server) ChatAddr() string {
	return s.chatLn.Addr().String()
}

// BOSConn returns the next fully negotiated BOS connection, failing the test
// if none arrives in time.
func (s *Server) BOSConn() *Conn {
	return s.await(s.bosConns, "BOS")
}

// ChatNavConn returns the next fully negotiated chat navigation connection.
func (s *Server) ChatNavConn() *Conn {
	return s.await(s.navConns, "chat navigation")
}

// ChatConn returns the next fully negotiated chat room connection.
func (s *Server) ChatConn() *Conn {
	return s.await(s.chatConns, "chat room")
}

func (s *Server) await(conns chan *Conn, what string) *Conn {
	s.t.Helper()
	select {
	case c := <-conns:
		return c
	case <-time.After(5 * time.Second):
		s.t.Fatalf("timed out waiting for %s connection", what)
		return nil
	}
}

func (s *Server) accept(ln net.Listener, serve func(*Conn)) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		go serve(newConn(s.t, nc))
	}
}

// serveAuth scripts the server half of the BUCP login conversation.
func (s *Server) serveAuth(c *Conn) {
	defer c.Close()
	c.WriteFrame(flap.SignOn, binary.BigEndian.AppendUint32(nil, 1))
	if f := c.ReadFrame(); f.Channel != flap.SignOn {
		s.t.Errorf("auth: expected sign-on, got channel %#02x", f.Channel)
		return
	}

	req := c.ReadSNAC()
	if req.Family != snac.FamBUCP || req.Subtype != snac.BUCPChallengeReq {
		s.t.Errorf("auth: expected challenge request, got snac(%#04x,%#04x)", req.Family, req.Subtype)
		return
	}
	challenge := []byte("0123456789")
	body := binary.BigEndian.AppendUint16(nil, uint16(len(challenge)))
	body = append(body, challenge...)
	c.WriteSNAC(snac.Header{Family: snac.FamBUCP, Subtype: snac.BUCPChallengeReply, RequestID: req.RequestID}, body)

	login := c.ReadSNAC()
	if login.Family != snac.FamBUCP || login.Subtype != snac.BUCPLoginRequest {
		s.t.Errorf("auth: expected login request, got snac(%#04x,%#04x)", login.Family, login.Subtype)
		return
	}
	l, err := tlv.Decode(login.Body)
	if err != nil {
		s.t.Errorf("auth: decode login tlvs: %v", err)
		return
	}

	var reply []byte
	reply = tlv.AppendString(reply, snac.TLVScreenName, l.String(snac.TLVScreenName))
	hash, _ := l.Get(snac.TLVPasswordMD5)
	h := md5.New()
	h.Write(challenge)
	h.Write([]byte(s.Password))
	h.Write([]byte(authMagic))
	switch {
	case s.FailCode != 0:
		reply = tlv.AppendUint16(reply, snac.TLVErrorCode, s.FailCode)
	case !bytes.Equal(hash, h.Sum(nil)):
		reply = tlv.AppendUint16(reply, snac.TLVErrorCode, 0x0005)
	default:
		reply = tlv.AppendString(reply, snac.TLVReconnectTo, s.bosLn.Addr().String())
		reply = tlv.Append(reply, snac.TLVAuthCookie, Cookie)
	}
	c.WriteSNAC(snac.Header{Family: snac.FamBUCP, Subtype: snac.BUCPLoginReply, RequestID: login.RequestID}, reply)
}

// negotiate scripts the server half of a service sign-on: greeting, cookie
// check, host ready, and the rate conversation.
func (s *Server) negotiate(c *Conn) bool {
	c.WriteFrame(flap.SignOn, binary.BigEndian.AppendUint32(nil, 1))
	f := c.ReadFrame()
	if f.Channel != flap.SignOn {
		s.t.Errorf("service: expected sign-on, got channel %#02x", f.Channel)
		return false
	}
	l, err := tlv.Decode(f.Payload[4:])
	if err != nil {
		s.t.Errorf("service: decode sign-on tlvs: %v", err)
		return false
	}
	if got, ok := l.Get(snac.TLVAuthCookie); !ok || !bytes.Equal(got, Cookie) {
		s.t.Errorf("service: sign-on without valid cookie")
		return false
	}
	c.WriteSNAC(snac.Header{Family: snac.FamOService, Subtype: snac.OServiceHostReady}, nil)

	req := c.ReadSNAC()
	if req.Family != snac.FamOService || req.Subtype != snac.OServiceRateRequest {
		s.t.Errorf("service: expected rate request, got snac(%#04x,%#04x)", req.Family, req.Subtype)
		return false
	}
	c.WriteSNAC(snac.Header{Family: snac.FamOService, Subtype: snac.OServiceRateParams, RequestID: req.RequestID}, RateParams())

	// Rate ack then client ready.
	for i := 0; i < 2; i++ {
		got := c.ReadSNAC()
		if got.Family != snac.FamOService {
			s.t.Errorf("service: unexpected snac(%#04x,%#04x) during negotiation", got.Family, got.Subtype)
			return false
		}
	}
	return true
}

// serveBOS negotiates, drains the capability advertisement that follows on
// the primary connection, and parks the connection for the test to drive.
func (s *Server) serveBOS(c *Conn) {
	if !s.negotiate(c) {
		return
	}
	if got := c.ReadSNAC(); got.Family != snac.FamLocate {
		s.t.Errorf("bos: expected capability advertisement, got snac(%#04x,%#04x)", got.Family, got.Subtype)
		return
	}
	s.bosConns <- c
}

// serveAux negotiates an auxiliary service connection and parks it.
func (s *Server) serveAux(conns chan *Conn) func(*Conn) {
	return func(c *Conn) {
		if !s.negotiate(c) {
			return
		}
		conns <- c
	}
}

// RateParams returns a rate parameters body with a single class.
func RateParams() []byte {
	b := binary.BigEndian.AppendUint16(nil, 1) // class count
	b = binary.BigEndian.AppendUint16(b, 1)    // class id
	// window, clear, alert, limit, disconnect, current, max, last time
	for _, level := range []uint32{80, 2500, 2000, 1500, 800, 6000, 6000, 0} {
		b = binary.BigEndian.AppendUint32(b, level)
	}
	b = append(b, 0x00) // state byte
	return b
}

// RedirectBody encodes a SNAC(1,5) body redirecting the named service group
// to addr.
func RedirectBody(group uint16, addr string) []byte {
	b := tlv.AppendUint16(nil, snac.TLVServiceID, group)
	b = tlv.AppendString(b, snac.TLVReconnectTo, addr)
	return tlv.Append(b, snac.TLVAuthCookie, Cookie)
}

// ParseServiceRequest decodes an outbound SNAC(1,4) body into the requested
// service group and, for chat requests, the room cookie.
func ParseServiceRequest(t *testing.T, body []byte) (group uint16, roomCookie string) {
	t.Helper()
	if len(body) < 2 {
		t.Fatalf("short service request: %d bytes", len(body))
	}
	group = binary.BigEndian.Uint16(body[0:2])
	l, err := tlv.Decode(body[2:])
	if err != nil {
		t.Fatalf("decode service request tlvs: %v", err)
	}
	if v, ok := l.Get(0x0001); ok && len(v) >= 3 {
		n := int(v[2])
		if len(v) >= 3+n {
			roomCookie = string(v[3 : 3+n])
		}
	}
	return group, roomCookie
}

// ParseCreateRoom decodes an outbound SNAC(0xD,8) body into the requested
// room name.
func ParseCreateRoom(t *testing.T, body []byte) string {
	t.Helper()
	if len(body) < 3 {
		t.Fatalf("short create room: %d bytes", len(body))
	}
	n := int(body[2])
	if len(body) < 3+n+5 {
		t.Fatalf("truncated create room")
	}
	v := body[3+n+5:]
	for len(v) >= 4 {
		typ := binary.BigEndian.Uint16(v[0:2])
		vn := int(binary.BigEndian.Uint16(v[2:4]))
		if len(v) < 4+vn {
			t.Fatalf("truncated create room tlv")
		}
		if typ == 0x00D3 {
			return string(v[4 : 4+vn])
		}
		v = v[4+vn:]
	}
	t.Fatalf("create room without name tlv")
	return ""
}

// RoomInfoBody encodes a SNAC(0xD,9) body describing a room the server
// created on the public exchange.
func RoomInfoBody(name, cookie string, instance uint16) []byte {
	info := binary.BigEndian.AppendUint16(nil, 0x0004)
	info = append(info, byte(len(cookie)))
	info = append(info, cookie...)
	info = binary.BigEndian.AppendUint16(info, instance)
	info = append(info, 0x01) // detail level
	info = binary.BigEndian.AppendUint16(info, 0x0001)
	info = tlv.AppendString(info, 0x00D3, name)
	return tlv.Append(nil, 0x0004, info)
}

// UserInfo encodes a minimal user info block for arrival frames.
func UserInfo(name string) []byte {
	b := []byte{byte(len(name))}
	b = append(b, name...)
	b = binary.BigEndian.AppendUint16(b, 0) // warning
	b = binary.BigEndian.AppendUint16(b, 0) // tlv count
	return b
}
