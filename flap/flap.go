// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package flap implements the FLAP framing layer that carries all traffic on
// OSCAR service connections.
//
// A FLAP frame is a six byte header followed by a payload:
//
//	0x2A  channel(1)  sequence(2)  length(2)  payload…
//
// Sequence numbers increase by one per frame on each direction of a
// connection and wrap at 0xFFFF. Multi-byte integers are big-endian.
package flap

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// Marker is the first byte of every FLAP frame.
const Marker = 0x2A

// headerLen is the fixed size of a frame header.
const headerLen = 6

// A Channel identifies the kind of payload a frame carries.
type Channel uint8

// FLAP channels.
const (
	SignOn    Channel = 0x01
	Data      Channel = 0x02
	Error     Channel = 0x03
	SignOff   Channel = 0x04
	KeepAlive Channel = 0x05
)

// Errors returned by the decoder.
var (
	// ErrIncomplete indicates that the buffered bytes do not yet contain a
	// whole frame. It is not fatal; feed more bytes and try again.
	ErrIncomplete = errors.New("flap: incomplete frame")

	// ErrCorrupt indicates that the stream is not positioned at a frame
	// boundary. Framing cannot be recovered and the connection that produced
	// the stream must be closed.
	ErrCorrupt = errors.New("flap: corrupt stream")

	// ErrFrameTooBig is returned by the encoder when a payload exceeds the 16
	// bit length field.
	ErrFrameTooBig = errors.New("flap: frame payload too large")
)

// Frame is a single decoded FLAP frame.
type Frame struct {
	Channel Channel
	Seq     uint16
	Payload []byte
}

// A Decoder accumulates bytes from a connection and splits them into frames.
// The zero value is ready for use.
type Decoder struct {
	buf []byte
}

// Write appends raw connection bytes to the decoder's buffer.
// It never fails; the error is part of the io.Writer contract.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Next decodes one frame from the buffered bytes.
// It returns ErrIncomplete if a whole frame is not yet available and
// ErrCorrupt if the buffer does not start with a frame marker.
func (d *Decoder) Next() (Frame, error) {
	if len(d.buf) < headerLen {
		return Frame{}, ErrIncomplete
	}
	if d.buf[0] != Marker {
		return Frame{}, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint16(d.buf[4:6]))
	if len(d.buf) < headerLen+n {
		return Frame{}, ErrIncomplete
	}
	f := Frame{
		Channel: Channel(d.buf[1]),
		Seq:     binary.BigEndian.Uint16(d.buf[2:4]),
		Payload: make([]byte, n),
	}
	copy(f.Payload, d.buf[headerLen:headerLen+n])
	d.buf = d.buf[headerLen+n:]
	return f, nil
}

// An Encoder writes frames to a connection, assigning sequence numbers.
// It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	w   io.Writer
	seq uint16
}

// NewEncoder returns an encoder that writes frames to w starting at an
// arbitrary initial sequence number.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes a single frame carrying p on the given channel.
func (e *Encoder) Encode(ch Channel, p []byte) error {
	if len(p) > 0xFFFF {
		return ErrFrameTooBig
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	b := make([]byte, headerLen+len(p))
	b[0] = Marker
	b[1] = byte(ch)
	binary.BigEndian.PutUint16(b[2:4], e.seq)
	binary.BigEndian.PutUint16(b[4:6], uint16(len(p)))
	copy(b[headerLen:], p)
	e.seq++

	_, err := e.w.Write(b)
	return err
}
