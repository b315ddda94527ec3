// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package rendezvous

import (
	"errors"
	"io"
	"net"
	"sync"

	"mellium.im/oscar/screenname"
)

// A Session is one peer-to-peer channel: a direct IM conversation or a
// single file transfer.
type Session struct {
	Cookie    Cookie
	Peer      screenname.Name
	Kind      Kind
	Direction Direction

	// File metadata; meaningful for SendFile channels only.
	FileName string
	Size     uint64

	m *Manager

	mu     sync.Mutex
	status Status
	conn   net.Conn
	ln     net.Listener
	offset uint64
	sum    *Checksum
}

// Status returns the channel's lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Offset returns the number of payload bytes transferred so far.
func (s *Session) Offset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Checksum returns the current rolling checksum over the transferred bytes.
func (s *Session) Checksum() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum.Sum32()
}

// Conn returns the peer connection, or nil if the peer has not connected.
func (s *Session) Conn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// accept waits for the peer to connect to our listener after an outbound
// proposal.
func (s *Session) accept() {
	conn, err := s.ln.Accept()
	if err != nil {
		// Listener closed by Cancel.
		return
	}
	s.mu.Lock()
	if s.status != Listening {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.status = Connected
	s.mu.Unlock()
	s.m.event(Event{Type: EventConnected, Cookie: s.Cookie, Session: s})
}

// transition moves the channel into a terminal state, closing any listener
// or connection. It reports whether the state actually changed, so callers
// can emit the corresponding event exactly once.
func (s *Session) transition(to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Done || s.status == Cancelled || s.status == Declined {
		return false
	}
	s.status = to
	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return true
}

// Send streams src to the connected peer, maintaining the offset counter and
// rolling checksum chunk by chunk.
func (s *Session) Send(src io.Reader) error {
	return s.pump(src, nil)
}

// Receive streams payload bytes from the connected peer into dst until Size
// bytes have arrived (or EOF for direct IM channels), updating the offset
// counter and rolling checksum per received chunk.
func (s *Session) Receive(dst io.Writer) error {
	return s.pump(nil, dst)
}

var errNotConnected = errors.New("rendezvous: peer not connected")

func (s *Session) pump(src io.Reader, dst io.Writer) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil || s.status != Connected {
		status := s.status
		s.mu.Unlock()
		if status == Cancelled {
			return ErrCancelled
		}
		return errNotConnected
	}
	s.status = Transferring
	s.mu.Unlock()

	var (
		buf  = make([]byte, 4096)
		read io.Reader
	)
	if src != nil {
		read = src
		dst = conn
	} else {
		read = conn
	}
	for {
		if s.Size > 0 {
			if remaining := s.Size - s.Offset(); remaining < uint64(len(buf)) {
				buf = buf[:remaining]
			}
		}
		if len(buf) == 0 {
			break
		}
		n, err := read.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				_ = s.m.Cancel(s.Cookie)
				return werr
			}
			s.mu.Lock()
			_, _ = s.sum.Write(buf[:n])
			s.offset += uint64(n)
			s.mu.Unlock()
		}
		if err == io.EOF {
			if s.Size > 0 && s.Offset() < s.Size {
				// Peer went away mid-file.
				_ = s.m.Cancel(s.Cookie)
				return io.ErrUnexpectedEOF
			}
			break
		}
		if err != nil {
			if s.Status() == Cancelled {
				return ErrCancelled
			}
			_ = s.m.Cancel(s.Cookie)
			return err
		}
	}

	s.m.mu.Lock()
	delete(s.m.sessions, s.Cookie)
	s.m.mu.Unlock()
	if s.transition(Done) {
		s.m.event(Event{Type: EventDone, Cookie: s.Cookie, Session: s})
	}
	return nil
}
