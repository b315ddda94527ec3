// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package flap_test

import (
	"bytes"
	"errors"
	"testing"

	"mellium.im/oscar/flap"
)

func TestDecodePartial(t *testing.T) {
	wire := []byte{0x2A, 0x02, 0x00, 0x07, 0x00, 0x03, 0x0A, 0x0B, 0x0C}

	var d flap.Decoder
	for i, b := range wire {
		if _, err := d.Write([]byte{b}); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
		f, err := d.Next()
		if i < len(wire)-1 {
			if !errors.Is(err, flap.ErrIncomplete) {
				t.Fatalf("byte %d: want=%v, got=%v", i, flap.ErrIncomplete, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error on final byte: %v", err)
		}
		if f.Channel != flap.Data {
			t.Errorf("wrong channel: want=%d, got=%d", flap.Data, f.Channel)
		}
		if f.Seq != 7 {
			t.Errorf("wrong sequence: want=7, got=%d", f.Seq)
		}
		if !bytes.Equal(f.Payload, []byte{0x0A, 0x0B, 0x0C}) {
			t.Errorf("wrong payload: %x", f.Payload)
		}
	}
}

func TestDecodeMultiple(t *testing.T) {
	var d flap.Decoder
	_, _ = d.Write([]byte{
		0x2A, 0x01, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x01,
		0x2A, 0x05, 0x00, 0x01, 0x00, 0x00,
	})

	f, err := d.Next()
	if err != nil {
		t.Fatalf("unexpected error on first frame: %v", err)
	}
	if f.Channel != flap.SignOn || !bytes.Equal(f.Payload, []byte{0, 0, 0, 1}) {
		t.Errorf("wrong first frame: %+v", f)
	}
	f, err = d.Next()
	if err != nil {
		t.Fatalf("unexpected error on second frame: %v", err)
	}
	if f.Channel != flap.KeepAlive || len(f.Payload) != 0 {
		t.Errorf("wrong second frame: %+v", f)
	}
	if _, err = d.Next(); !errors.Is(err, flap.ErrIncomplete) {
		t.Errorf("want=%v, got=%v", flap.ErrIncomplete, err)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	var d flap.Decoder
	_, _ = d.Write([]byte{0x2B, 0x02, 0x00, 0x00, 0x00, 0x00})
	if _, err := d.Next(); !errors.Is(err, flap.ErrCorrupt) {
		t.Errorf("want=%v, got=%v", flap.ErrCorrupt, err)
	}
}

func TestEncodeSequence(t *testing.T) {
	var buf bytes.Buffer
	e := flap.NewEncoder(&buf)
	if err := e.Encode(flap.SignOn, []byte{0, 0, 0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Encode(flap.Data, []byte{0xFF}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var d flap.Decoder
	_, _ = d.Write(buf.Bytes())
	for i := uint16(0); i < 2; i++ {
		f, err := d.Next()
		if err != nil {
			t.Fatalf("unexpected error decoding frame %d: %v", i, err)
		}
		if f.Seq != i {
			t.Errorf("wrong sequence on frame %d: got=%d", i, f.Seq)
		}
	}
}

func TestEncodeTooBig(t *testing.T) {
	e := flap.NewEncoder(&bytes.Buffer{})
	err := e.Encode(flap.Data, make([]byte, 0x10000))
	if !errors.Is(err, flap.ErrFrameTooBig) {
		t.Errorf("want=%v, got=%v", flap.ErrFrameTooBig, err)
	}
}
