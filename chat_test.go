// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"encoding/binary"
	"testing"

	"mellium.im/oscar/tlv"
)

func roomInfoBlock(exchange uint16, cookie, name string) []byte {
	b := binary.BigEndian.AppendUint16(nil, exchange)
	b = append(b, byte(len(cookie)))
	b = append(b, cookie...)
	b = binary.BigEndian.AppendUint16(b, 0x0001) // instance
	b = append(b, 0x02)                          // detail level
	if name == "" {
		b = binary.BigEndian.AppendUint16(b, 0)
		return b
	}
	b = binary.BigEndian.AppendUint16(b, 1)
	return tlv.AppendString(b, chatNavTLVName, name)
}

func TestParseRoomInfo(t *testing.T) {
	room, err := parseRoomInfo(roomInfoBlock(4, "!aol://2719:10-4-room", "general chat"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if room.Exchange != 4 {
		t.Errorf("wrong exchange: %d", room.Exchange)
	}
	if room.Instance != 1 {
		t.Errorf("wrong instance: %d", room.Instance)
	}
	if room.Name != "general chat" {
		t.Errorf("wrong name: %q", room.Name)
	}
	if room.cookie != "!aol://2719:10-4-room" {
		t.Errorf("wrong cookie: %q", room.cookie)
	}
}

func TestParseRoomInfoNameFallsBackToCookie(t *testing.T) {
	room, err := parseRoomInfo(roomInfoBlock(4, "cookie-only", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if room.Name != "cookie-only" {
		t.Errorf("expected cookie as name, got %q", room.Name)
	}
}

func TestParseRoomInfoTruncated(t *testing.T) {
	b := roomInfoBlock(4, "room", "name")
	for _, n := range []int{0, 2, 5} {
		if _, err := parseRoomInfo(b[:n]); err == nil {
			t.Errorf("expected error at %d bytes", n)
		}
	}
}
