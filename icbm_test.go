// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"testing"
)

func TestMessageBlockRoundTrip(t *testing.T) {
	for i, text := range []string{"hi", "a longer message with spaces", ""} {
		got, err := parseMessageText(appendMessageBlock(nil, text))
		if err != nil {
			t.Errorf("%d: unexpected error: %v", i, err)
			continue
		}
		if got != text {
			t.Errorf("%d: got %q, want %q", i, got, text)
		}
	}
}

func TestParseMessageTextErrors(t *testing.T) {
	block := appendMessageBlock(nil, "hello")
	if _, err := parseMessageText(block[:len(block)-2]); err == nil {
		t.Error("expected error for truncated fragment")
	}
	// A block with only a features fragment has no text.
	if _, err := parseMessageText(block[:8]); err == nil {
		t.Error("expected error for block without text fragment")
	}
}

func TestFileInfoRoundTrip(t *testing.T) {
	name, size := parseFileInfo(appendFileInfo(nil, "photo.jpg", 123456))
	if name != "photo.jpg" {
		t.Errorf("wrong name: %q", name)
	}
	if size != 123456 {
		t.Errorf("wrong size: %d", size)
	}
	if name, size := parseFileInfo(nil); name != "" || size != 0 {
		t.Error("expected zero values for empty block")
	}
}
