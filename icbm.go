// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"

	"mellium.im/oscar/rendezvous"
	"mellium.im/oscar/screenname"
	"mellium.im/oscar/snac"
	"mellium.im/oscar/tlv"
)

// ICBM message channels.
const (
	icbmChannelText       uint16 = 0x0001
	icbmChannelRendezvous uint16 = 0x0002
)

// TLV types inside ICBM frames.
const (
	icbmTLVMessage    uint16 = 0x0002
	icbmTLVRendezvous uint16 = 0x0005
)

// TLV types inside a rendezvous block.
const (
	rvTLVProposerIP uint16 = 0x0002
	rvTLVInternalIP uint16 = 0x0003
	rvTLVPort       uint16 = 0x0005
	rvTLVFileInfo   uint16 = 0x2711
)

// Rendezvous block status values.
const (
	rvStatusPropose uint16 = 0x0000
	rvStatusCancel  uint16 = 0x0001
	rvStatusAccept  uint16 = 0x0002
)

// Typing event codes in SNAC(4,0x14).
const (
	typingFinished uint16 = 0x0000
	typingTyped    uint16 = 0x0001
	typingBegun    uint16 = 0x0002
)

// handleIncomingICBM dispatches SNAC(4,7). Channel 1 carries instant message
// text; channel 2 carries rendezvous introductions. Other channels are
// dropped after a debug log.
func (sess *Session) handleIncomingICBM(s *snac.SNAC) error {
	b := s.Body
	if len(b) < 10 {
		return fmt.Errorf("oscar: short icbm")
	}
	var cookie [8]byte
	copy(cookie[:], b[0:8])
	channel := binary.BigEndian.Uint16(b[8:10])
	info, rest, err := parseUserInfo(b[10:])
	if err != nil {
		return err
	}
	l, err := tlv.Decode(rest)
	if err != nil {
		return err
	}

	switch channel {
	case icbmChannelText:
		v, ok := l.Get(icbmTLVMessage)
		if !ok {
			return fmt.Errorf("oscar: text icbm without message block")
		}
		text, err := parseMessageText(v)
		if err != nil {
			return err
		}
		sess.notifier.Message(info.Name, text)
		return nil
	case icbmChannelRendezvous:
		v, ok := l.Get(icbmTLVRendezvous)
		if !ok {
			return fmt.Errorf("oscar: rendezvous icbm without rendezvous block")
		}
		return sess.handleRendezvousBlock(info.Name, v)
	}
	sess.logger.Debug("dropping icbm on unsupported channel", "channel", channel)
	return nil
}

// handleTyping dispatches SNAC(4,0x14): cookie, channel, screen name, and a
// two byte event code.
func (sess *Session) handleTyping(s *snac.SNAC) error {
	b := s.Body
	if len(b) < 11 {
		return fmt.Errorf("oscar: short typing notification")
	}
	n := int(b[10])
	if len(b) < 11+n+2 {
		return fmt.Errorf("oscar: truncated typing notification")
	}
	name, err := screenname.New(string(b[11 : 11+n]))
	if err != nil {
		return err
	}
	event := binary.BigEndian.Uint16(b[11+n : 11+n+2])
	sess.notifier.Typing(name, event == typingBegun)
	return nil
}

// handleRendezvousBlock decodes a channel 2 payload: status, cookie, the
// capability GUID naming the channel kind, and a TLV list with the peer's
// address and optional file metadata.
func (sess *Session) handleRendezvousBlock(peer screenname.Name, v []byte) error {
	if len(v) < 26 {
		return fmt.Errorf("oscar: short rendezvous block")
	}
	status := binary.BigEndian.Uint16(v[0:2])
	cookie, err := rendezvous.CookieFromBytes(v[2:10])
	if err != nil {
		return err
	}
	var guid [16]byte
	copy(guid[:], v[10:26])
	l, err := tlv.Decode(v[26:])
	if err != nil {
		return err
	}

	switch status {
	case rvStatusCancel:
		return sess.rdv.Cancel(cookie)
	case rvStatusAccept:
		// The accepting peer connects to our listener; the socket arrival is
		// what advances the channel, so the accept frame is informational.
		sess.logger.Debug("peer accepted rendezvous", "cookie", cookie.String())
		return nil
	case rvStatusPropose:
	default:
		return fmt.Errorf("oscar: unknown rendezvous status 0x%04x", status)
	}

	var kind rendezvous.Kind
	switch guid {
	case guidDirectIM:
		kind = rendezvous.DirectIM
	case guidSendFile:
		kind = rendezvous.SendFile
	default:
		sess.logger.Debug("ignoring rendezvous proposal with unknown capability",
			"peer", peer.String())
		return nil
	}

	host := rvHost(l)
	port, _ := l.Uint16(rvTLVPort)
	var name string
	var size uint64
	if kind == rendezvous.SendFile {
		if fi, ok := l.Get(rvTLVFileInfo); ok {
			name, size = parseFileInfo(fi)
		}
	}
	sess.rdv.HandlePropose(peer, cookie, kind, host, port, name, size)
	return nil
}

// rvHost extracts the peer's address, preferring the proposer IP over the
// internal one.
func rvHost(l tlv.List) string {
	for _, t := range []uint16{rvTLVProposerIP, rvTLVInternalIP} {
		if v, ok := l.Get(t); ok && len(v) == 4 {
			return net.IP(v).String()
		}
	}
	return ""
}

// parseFileInfo decodes a 0x2711 block: multiple flag, file count, total
// size, and a NUL terminated file name.
func parseFileInfo(v []byte) (name string, size uint64) {
	if len(v) < 8 {
		return "", 0
	}
	size = uint64(binary.BigEndian.Uint32(v[4:8]))
	b := v[8:]
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	return string(b), size
}

// parseMessageText extracts the text from an ICBM message block. The block
// is a sequence of fragments, id(1) version(1) length(2) data; fragment 1 is
// the message, whose data starts with a four byte charset descriptor.
func parseMessageText(v []byte) (string, error) {
	for len(v) >= 4 {
		id := v[0]
		n := int(binary.BigEndian.Uint16(v[2:4]))
		if len(v) < 4+n {
			return "", fmt.Errorf("oscar: truncated message fragment")
		}
		data := v[4 : 4+n]
		if id == 0x01 {
			if len(data) < 4 {
				return "", fmt.Errorf("oscar: short message fragment")
			}
			return string(data[4:]), nil
		}
		v = v[4+n:]
	}
	return "", fmt.Errorf("oscar: message block without text fragment")
}

// appendMessageBlock encodes the features and text fragments for an outgoing
// message.
func appendMessageBlock(b []byte, text string) []byte {
	// Features fragment (id 5).
	features := []byte{0x01, 0x01, 0x01, 0x02}
	b = append(b, 0x05, 0x01)
	b = binary.BigEndian.AppendUint16(b, uint16(len(features)))
	b = append(b, features...)
	// Message fragment (id 1): charset descriptor then the text.
	b = append(b, 0x01, 0x01)
	b = binary.BigEndian.AppendUint16(b, uint16(4+len(text)))
	b = binary.BigEndian.AppendUint16(b, 0x0000) // charset: ASCII
	b = binary.BigEndian.AppendUint16(b, 0x0000)
	return append(b, text...)
}

// appendICBMHeader encodes the cookie, channel, and destination name that
// start every outgoing ICBM.
func appendICBMHeader(b []byte, cookie [8]byte, channel uint16, peer screenname.Name) []byte {
	b = append(b, cookie[:]...)
	b = binary.BigEndian.AppendUint16(b, channel)
	name := peer.String()
	b = append(b, byte(len(name)))
	return append(b, name...)
}

// sendIM writes a channel 1 ICBM on the primary connection. Loop goroutine
// only.
func (sess *Session) sendIM(peer screenname.Name, text string) error {
	c, ok := sess.conns[connKey{svc: BOS}]
	if !ok {
		return ErrNotConnected
	}
	cookie, err := rendezvous.NewCookie()
	if err != nil {
		return err
	}
	body := appendICBMHeader(nil, cookie, icbmChannelText, peer)
	body = tlv.Append(body, icbmTLVMessage, appendMessageBlock(nil, text))
	return c.WriteSNAC(snac.Header{
		Family:    snac.FamICBM,
		Subtype:   snac.ICBMOutgoing,
		RequestID: sess.nextReqID(),
	}, body)
}

// sendTyping writes a typing notification. Loop goroutine only.
func (sess *Session) sendTyping(peer screenname.Name, typing bool) error {
	c, ok := sess.conns[connKey{svc: BOS}]
	if !ok {
		return ErrNotConnected
	}
	event := typingFinished
	if typing {
		event = typingBegun
	}
	var cookie [8]byte
	b := appendICBMHeader(nil, cookie, icbmChannelText, peer)
	// The header for typing frames places the channel before the name just
	// like messages, but the cookie is unused and left zero.
	b = binary.BigEndian.AppendUint16(b, event)
	return c.WriteSNAC(snac.Header{
		Family:    snac.FamICBM,
		Subtype:   snac.ICBMTyping,
		RequestID: sess.nextReqID(),
	}, b)
}

// announceRendezvous builds and sends the channel 2 proposal frame for an
// outbound peer channel. It is installed as the rendezvous manager's
// Announce callback and may run off the loop goroutine, so the frame is
// written through the session's serialized writer.
func (sess *Session) announceRendezvous(rs *rendezvous.Session, addr string) error {
	hostStr, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return err
	}
	ip := net.ParseIP(hostStr)
	if ip != nil && ip.IsUnspecified() {
		// The default listener binds the unspecified address, which is not
		// connectable. Advertise the address this host uses to reach the
		// server instead; the peer can reach us where the server can.
		ip = sess.localIP()
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("oscar: rendezvous listener needs a connectable IPv4 address, got %q", hostStr)
	}

	var guid [16]byte
	switch rs.Kind {
	case rendezvous.DirectIM:
		guid = guidDirectIM
	case rendezvous.SendFile:
		guid = guidSendFile
	}

	rv := binary.BigEndian.AppendUint16(nil, rvStatusPropose)
	rv = append(rv, rs.Cookie[:]...)
	rv = append(rv, guid[:]...)
	rv = tlv.Append(rv, rvTLVProposerIP, ip4)
	rv = tlv.AppendUint16(rv, rvTLVPort, uint16(port))
	if rs.Kind == rendezvous.SendFile {
		rv = tlv.Append(rv, rvTLVFileInfo, appendFileInfo(nil, rs.FileName, rs.Size))
	}

	body := appendICBMHeader(nil, rs.Cookie, icbmChannelRendezvous, rs.Peer)
	body = tlv.Append(body, icbmTLVRendezvous, rv)
	return sess.writeBOS(snac.Header{
		Family:    snac.FamICBM,
		Subtype:   snac.ICBMOutgoing,
		RequestID: sess.nextReqID(),
	}, body)
}

// localIP returns the local address of the primary connection. Loop
// goroutine only.
func (sess *Session) localIP() net.IP {
	c, ok := sess.conns[connKey{svc: BOS}]
	if !ok {
		return nil
	}
	if addr, ok := c.conn.LocalAddr().(*net.TCPAddr); ok {
		return addr.IP
	}
	return nil
}

// appendFileInfo encodes a 0x2711 block for a single file offer.
func appendFileInfo(b []byte, name string, size uint64) []byte {
	b = binary.BigEndian.AppendUint16(b, 0x0001) // not a multi-file offer
	b = binary.BigEndian.AppendUint16(b, 0x0001) // file count
	b = binary.BigEndian.AppendUint32(b, uint32(size))
	b = append(b, name...)
	return append(b, 0x00)
}
