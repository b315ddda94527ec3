// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package tlv implements the type-length-value encoding used throughout the
// OSCAR protocol family.
//
// TLV blocks appear both in FLAP channel 1 payloads (for example the auth
// cookie sent when a service connection signs on) and inside SNAC bodies.
// All multi-byte integers are big-endian.
package tlv

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned when a TLV block ends before the length declared
// in its header.
var ErrTruncated = errors.New("tlv: truncated value")

// TLV is a single type-length-value element.
type TLV struct {
	Type  uint16
	Value []byte
}

// List is an ordered collection of TLVs as they appeared on the wire.
type List []TLV

// Append encodes the TLV and appends it to b, returning the updated slice.
func Append(b []byte, t uint16, v []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, t)
	b = binary.BigEndian.AppendUint16(b, uint16(len(v)))
	return append(b, v...)
}

// AppendUint16 appends a TLV with a two byte big-endian value.
func AppendUint16(b []byte, t, v uint16) []byte {
	return Append(b, t, binary.BigEndian.AppendUint16(nil, v))
}

// AppendString appends a TLV whose value is the raw bytes of s.
func AppendString(b []byte, t uint16, s string) []byte {
	return Append(b, t, []byte(s))
}

// Marshal encodes the list in order.
func Marshal(l List) []byte {
	var b []byte
	for _, el := range l {
		b = Append(b, el.Type, el.Value)
	}
	return b
}

// Decode parses b as a sequence of TLVs.
// Values are copied out of b so the input buffer may be reused.
func Decode(b []byte) (List, error) {
	var l List
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, ErrTruncated
		}
		t := binary.BigEndian.Uint16(b[0:2])
		n := int(binary.BigEndian.Uint16(b[2:4]))
		if len(b) < 4+n {
			return nil, ErrTruncated
		}
		v := make([]byte, n)
		copy(v, b[4:4+n])
		l = append(l, TLV{Type: t, Value: v})
		b = b[4+n:]
	}
	return l, nil
}

// Get returns the value of the first TLV with the given type.
func (l List) Get(t uint16) ([]byte, bool) {
	for _, el := range l {
		if el.Type == t {
			return el.Value, true
		}
	}
	return nil, false
}

// String returns the value of the first TLV with the given type as a string,
// or the empty string if no such TLV exists.
func (l List) String(t uint16) string {
	v, _ := l.Get(t)
	return string(v)
}

// Uint16 returns the first two value bytes of the first TLV with the given
// type as a big-endian integer.
func (l List) Uint16(t uint16) (uint16, bool) {
	v, ok := l.Get(t)
	if !ok || len(v) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(v), true
}
