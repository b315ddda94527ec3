// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"mellium.im/oscar/flap"
	"mellium.im/oscar/mux"
	"mellium.im/oscar/snac"
)

// connKey identifies a connection within a session. Singleton services use
// the zero room; chat connections are keyed by the room they serve.
type connKey struct {
	svc  ServiceType
	room string
}

// A Conn is one service connection belonging to a session. It owns the
// underlying TCP connection, the FLAP encoder and decoder, and the SNAC
// multiplexer that dispatches inbound traffic for the service.
//
// Conn implements mux.ResponseWriter so handlers can reply on the connection
// they were invoked for.
type Conn struct {
	sess  *Session
	svc   ServiceType
	key   connKey
	conn  net.Conn
	enc   *flap.Encoder
	dec   flap.Decoder
	mux   *mux.ServeMux
	room  *ChatRoom
	rates []RateClass

	// closed is flipped on the session loop before the socket is torn down so
	// late writes fail fast instead of racing the close.
	closed bool
}

func newConn(sess *Session, svc ServiceType, nc net.Conn) *Conn {
	return &Conn{
		sess: sess,
		svc:  svc,
		key:  connKey{svc: svc},
		conn: nc,
		enc:  flap.NewEncoder(nc),
	}
}

// WriteSNAC marshals a SNAC onto the connection inside a data channel FLAP
// frame. It satisfies mux.ResponseWriter.
func (c *Conn) WriteSNAC(h snac.Header, body []byte) error {
	if c.closed {
		return ErrNotConnected
	}
	return c.enc.Encode(flap.Data, snac.Marshal(h, body))
}

// writeFrame sends a raw FLAP frame, used for sign-on and keepalive channels
// that do not carry SNACs.
func (c *Conn) writeFrame(ch flap.Channel, p []byte) error {
	if c.closed {
		return ErrNotConnected
	}
	return c.enc.Encode(ch, p)
}

// readFrame blocks until one complete FLAP frame has been decoded or the
// deadline passes. It is only used during synchronous negotiation, before
// the read loop starts; decoder state carries over so a frame split across
// the boundary is not lost.
func (c *Conn) readFrame(deadline time.Time) (flap.Frame, error) {
	var buf [4096]byte
	for {
		f, err := c.dec.Next()
		switch {
		case err == nil:
			return f, nil
		case !errors.Is(err, flap.ErrIncomplete):
			return flap.Frame{}, err
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return flap.Frame{}, err
		}
		n, err := c.conn.Read(buf[:])
		if n > 0 {
			c.dec.Write(buf[:n])
		}
		if err != nil {
			if n > 0 && errors.Is(err, io.EOF) {
				continue
			}
			return flap.Frame{}, err
		}
	}
}

// readSNAC reads frames until one carries the expected SNAC family and
// subtype, skipping keepalives. Any other data frame is a negotiation
// protocol error.
func (c *Conn) readSNAC(family, subtype uint16, deadline time.Time) (*snac.SNAC, error) {
	for {
		f, err := c.readFrame(deadline)
		if err != nil {
			return nil, err
		}
		switch f.Channel {
		case flap.KeepAlive:
			continue
		case flap.Data:
		default:
			return nil, fmt.Errorf("oscar: unexpected channel 0x%02x during negotiation", f.Channel)
		}
		s, err := snac.Parse(f.Payload)
		if err != nil {
			return nil, err
		}
		if s.Header.Family != family || s.Header.Subtype != subtype {
			return nil, fmt.Errorf("oscar: expected snac(%#04x,%#04x), got snac(%#04x,%#04x)",
				family, subtype, s.Header.Family, s.Header.Subtype)
		}
		return s, nil
	}
}

// readLoop consumes the socket after negotiation and posts each frame to the
// session's dispatch goroutine. Frames from one connection are dispatched in
// arrival order. The loop exits on any read error and reports the cause so
// the session can tear the connection down.
func (c *Conn) readLoop() {
	var buf [4096]byte
	// Negotiation deadlines no longer apply.
	_ = c.conn.SetReadDeadline(time.Time{})
	for {
		for {
			f, err := c.dec.Next()
			if err != nil {
				if errors.Is(err, flap.ErrIncomplete) {
					break
				}
				c.sess.post(func() { c.sess.connClosed(c, err) })
				return
			}
			frame := f
			if !c.sess.post(func() { c.handleFrame(frame) }) {
				return
			}
		}
		n, err := c.conn.Read(buf[:])
		if n > 0 {
			c.dec.Write(buf[:n])
		}
		if err != nil {
			if n > 0 {
				// Drain what we have before reporting the error.
				continue
			}
			c.sess.post(func() { c.sess.connClosed(c, err) })
			return
		}
	}
}

// handleFrame dispatches one inbound frame on the session loop.
func (c *Conn) handleFrame(f flap.Frame) {
	if c.closed {
		return
	}
	switch f.Channel {
	case flap.Data:
		s, err := snac.Parse(f.Payload)
		if err != nil {
			c.sess.logger.Debug("dropping malformed frame",
				"service", c.svc, "err", err)
			return
		}
		if err := c.mux.HandleSNAC(c, s); err != nil {
			// Handler failures are contained to the frame; the connection and
			// session stay up.
			c.sess.logger.Debug("handler error",
				"service", c.svc,
				"family", s.Header.Family,
				"subtype", s.Header.Subtype,
				"err", err)
		}
	case flap.SignOff, flap.Error:
		c.sess.connClosed(c, fmt.Errorf("oscar: server closed connection (channel 0x%02x)", f.Channel))
	case flap.KeepAlive:
		// Server keepalives need no reply.
	default:
		c.sess.logger.Debug("ignoring frame on unknown channel",
			"service", c.svc, "channel", f.Channel)
	}
}

// close tears down the socket. Safe to call more than once; only the first
// call does anything.
func (c *Conn) close() {
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}
