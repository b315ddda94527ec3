// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"time"

	"mellium.im/oscar/flap"
	"mellium.im/oscar/snac"
	"mellium.im/oscar/tlv"
)

// flapVersion is the protocol version exchanged on the sign-on channel.
const flapVersion uint32 = 0x00000001

// authMagic is the constant mixed into the roasted password hash.
// The exact bytes, trailing "(SM)" included, are part of the protocol.
const authMagic = "AOL Instant Messenger (SM)"

// negotiateAuth runs the BUCP login conversation on a fresh connection to the
// authorization service. On success it returns the BOS address and the login
// cookie from the reply; on rejection the error is an *AuthFailure.
//
// The secret is never sent on the wire. It is hashed together with a server
// challenge, so a captured exchange cannot be replayed.
func (c *Conn) negotiateAuth(account, secret, clientID string, deadline time.Time) (bosAddr string, cookie []byte, err error) {
	if err = c.signOn(nil, deadline); err != nil {
		return "", nil, err
	}

	// Ask for a challenge for this screen name.
	body := tlv.AppendString(nil, snac.TLVScreenName, account)
	err = c.WriteSNAC(snac.Header{
		Family:    snac.FamBUCP,
		Subtype:   snac.BUCPChallengeReq,
		RequestID: c.sess.nextReqID(),
	}, body)
	if err != nil {
		return "", nil, err
	}

	s, err := c.readSNAC(snac.FamBUCP, snac.BUCPChallengeReply, deadline)
	if err != nil {
		return "", nil, err
	}
	if len(s.Body) < 2 {
		return "", nil, fmt.Errorf("oscar: short challenge reply")
	}
	n := int(binary.BigEndian.Uint16(s.Body[0:2]))
	if len(s.Body) < 2+n {
		return "", nil, fmt.Errorf("oscar: truncated challenge")
	}
	challenge := s.Body[2 : 2+n]

	h := md5.New()
	h.Write(challenge)
	h.Write([]byte(secret))
	h.Write([]byte(authMagic))

	body = tlv.AppendString(nil, snac.TLVScreenName, account)
	body = tlv.AppendString(body, snac.TLVClientID, clientID)
	body = tlv.Append(body, snac.TLVPasswordMD5, h.Sum(nil))
	err = c.WriteSNAC(snac.Header{
		Family:    snac.FamBUCP,
		Subtype:   snac.BUCPLoginRequest,
		RequestID: c.sess.nextReqID(),
	}, body)
	if err != nil {
		return "", nil, err
	}

	s, err = c.readSNAC(snac.FamBUCP, snac.BUCPLoginReply, deadline)
	if err != nil {
		return "", nil, err
	}
	l, err := tlv.Decode(s.Body)
	if err != nil {
		return "", nil, err
	}
	if code, ok := l.Uint16(snac.TLVErrorCode); ok {
		return "", nil, newAuthFailure(code)
	}
	bosAddr = l.String(snac.TLVReconnectTo)
	cookie, ok := l.Get(snac.TLVAuthCookie)
	if bosAddr == "" || !ok {
		return "", nil, fmt.Errorf("oscar: authorization reply missing reconnect address or cookie")
	}
	return bosAddr, cookie, nil
}

// negotiateService runs the sign-on and rate negotiation for a non-auth
// service connection, presenting the login (or redirect) cookie. On return
// the server considers the client ready and asynchronous dispatch can begin.
func (c *Conn) negotiateService(cookie []byte, deadline time.Time) error {
	if err := c.signOn(cookie, deadline); err != nil {
		return err
	}
	if _, err := c.readSNAC(snac.FamOService, snac.OServiceHostReady, deadline); err != nil {
		return err
	}

	err := c.WriteSNAC(snac.Header{
		Family:    snac.FamOService,
		Subtype:   snac.OServiceRateRequest,
		RequestID: c.sess.nextReqID(),
	}, nil)
	if err != nil {
		return err
	}
	s, err := c.readSNAC(snac.FamOService, snac.OServiceRateParams, deadline)
	if err != nil {
		return err
	}
	rates, err := parseRateParams(s.Body)
	if err != nil {
		return err
	}
	c.rates = rates

	var ack []byte
	for _, rc := range rates {
		ack = binary.BigEndian.AppendUint16(ack, rc.ID)
	}
	err = c.WriteSNAC(snac.Header{
		Family:    snac.FamOService,
		Subtype:   snac.OServiceRateAck,
		RequestID: c.sess.nextReqID(),
	}, ack)
	if err != nil {
		return err
	}
	return c.WriteSNAC(snac.Header{
		Family:    snac.FamOService,
		Subtype:   snac.OServiceClientReady,
		RequestID: c.sess.nextReqID(),
	}, nil)
}

// signOn waits for the server's channel 1 greeting and answers with the
// protocol version, plus the auth cookie when one is presented.
func (c *Conn) signOn(cookie []byte, deadline time.Time) error {
	f, err := c.readFrame(deadline)
	if err != nil {
		return err
	}
	if f.Channel != flap.SignOn {
		return fmt.Errorf("oscar: expected sign-on frame, got channel 0x%02x", f.Channel)
	}
	p := binary.BigEndian.AppendUint32(nil, flapVersion)
	if cookie != nil {
		p = tlv.Append(p, snac.TLVAuthCookie, cookie)
	}
	return c.writeFrame(flap.SignOn, p)
}
