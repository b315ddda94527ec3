// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package snac implements the SNAC message header carried by FLAP data
// frames.
//
// A SNAC is a ten byte header followed by a service specific body:
//
//	family(2)  subtype(2)  flags(2)  request-id(4)  body…
//
// The (family, subtype) pair identifies the message kind and is the key used
// for dispatch; the request id correlates replies with requests.
package snac

import (
	"encoding/binary"
	"errors"
)

// HeaderLen is the fixed size of a SNAC header.
const HeaderLen = 10

// ErrTruncated is returned when a FLAP payload is too short to contain a
// SNAC header.
var ErrTruncated = errors.New("snac: truncated header")

// Header is a decoded SNAC header.
type Header struct {
	Family    uint16
	Subtype   uint16
	Flags     uint16
	RequestID uint32
}

// SNAC is a header together with its body.
type SNAC struct {
	Header
	Body []byte
}

// Parse decodes the header and body from a FLAP data frame payload.
// The body aliases b and must not be retained past the life of the frame.
func Parse(b []byte) (*SNAC, error) {
	if len(b) < HeaderLen {
		return nil, ErrTruncated
	}
	return &SNAC{
		Header: Header{
			Family:    binary.BigEndian.Uint16(b[0:2]),
			Subtype:   binary.BigEndian.Uint16(b[2:4]),
			Flags:     binary.BigEndian.Uint16(b[4:6]),
			RequestID: binary.BigEndian.Uint32(b[6:10]),
		},
		Body: b[HeaderLen:],
	}, nil
}

// Marshal encodes the header followed by body into a new buffer suitable for
// use as a FLAP data frame payload.
func Marshal(h Header, body []byte) []byte {
	b := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint16(b[0:2], h.Family)
	binary.BigEndian.PutUint16(b[2:4], h.Subtype)
	binary.BigEndian.PutUint16(b[4:6], h.Flags)
	binary.BigEndian.PutUint32(b[6:10], h.RequestID)
	copy(b[HeaderLen:], body)
	return b
}
