// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package tlv_test

import (
	"bytes"
	"errors"
	"strconv"
	"testing"

	"mellium.im/oscar/tlv"
)

var decodeTestCases = [...]struct {
	in  []byte
	out tlv.List
	err error
}{
	0: {},
	1: {
		in:  []byte{0x00, 0x01, 0x00, 0x03, 'a', 'b', 'c'},
		out: tlv.List{{Type: 0x01, Value: []byte("abc")}},
	},
	2: {
		in: []byte{
			0x00, 0x05, 0x00, 0x00,
			0x00, 0x06, 0x00, 0x02, 0xbe, 0xef,
		},
		out: tlv.List{
			{Type: 0x05, Value: []byte{}},
			{Type: 0x06, Value: []byte{0xbe, 0xef}},
		},
	},
	3: {
		in:  []byte{0x00, 0x01, 0x00},
		err: tlv.ErrTruncated,
	},
	4: {
		in:  []byte{0x00, 0x01, 0x00, 0x05, 'a'},
		err: tlv.ErrTruncated,
	},
}

func TestDecode(t *testing.T) {
	for i, tc := range decodeTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			l, err := tlv.Decode(tc.in)
			if !errors.Is(err, tc.err) {
				t.Fatalf("unexpected error: want=%v, got=%v", tc.err, err)
			}
			if err != nil {
				return
			}
			if len(l) != len(tc.out) {
				t.Fatalf("wrong length: want=%d, got=%d", len(tc.out), len(l))
			}
			for j := range l {
				if l[j].Type != tc.out[j].Type || !bytes.Equal(l[j].Value, tc.out[j].Value) {
					t.Errorf("wrong TLV %d: want=%v, got=%v", j, tc.out[j], l[j])
				}
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	var b []byte
	b = tlv.AppendString(b, 0x01, "testuser")
	b = tlv.AppendUint16(b, 0x08, 0x0005)
	b = tlv.Append(b, 0x06, []byte{0x00, 0x01, 0x02})

	l, err := tlv.Decode(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := l.String(0x01); s != "testuser" {
		t.Errorf("wrong string value: want=%q, got=%q", "testuser", s)
	}
	if v, ok := l.Uint16(0x08); !ok || v != 0x0005 {
		t.Errorf("wrong uint16 value: want=0x0005, got=0x%04x (ok=%t)", v, ok)
	}
	if !bytes.Equal(tlv.Marshal(l), b) {
		t.Errorf("marshal did not round trip")
	}
}

func TestGetMissing(t *testing.T) {
	l := tlv.List{{Type: 0x01, Value: []byte("x")}}
	if _, ok := l.Get(0x02); ok {
		t.Error("expected lookup of missing type to fail")
	}
	if _, ok := l.Uint16(0x01); ok {
		t.Error("expected short value to fail uint16 conversion")
	}
}
