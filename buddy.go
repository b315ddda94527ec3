// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"mellium.im/oscar/screenname"
)

// A Capability is a bit set of peer to peer features a buddy advertises.
type Capability uint32

// Capabilities recognized from the 16 byte GUIDs in user info blocks.
const (
	CapChat Capability = 1 << iota
	CapDirectIM
	CapSendFile
	CapBuddyIcon
)

// Capability GUIDs as they appear on the wire.
var (
	guidChat      = [16]byte{0x74, 0x8F, 0x24, 0x20, 0x62, 0x87, 0x11, 0xD1, 0x82, 0x22, 0x44, 0x45, 0x53, 0x54, 0x00, 0x00}
	guidDirectIM  = [16]byte{0x09, 0x46, 0x13, 0x45, 0x4C, 0x7F, 0x11, 0xD1, 0x82, 0x22, 0x44, 0x45, 0x53, 0x54, 0x00, 0x00}
	guidSendFile  = [16]byte{0x09, 0x46, 0x13, 0x43, 0x4C, 0x7F, 0x11, 0xD1, 0x82, 0x22, 0x44, 0x45, 0x53, 0x54, 0x00, 0x00}
	guidBuddyIcon = [16]byte{0x09, 0x46, 0x13, 0x46, 0x4C, 0x7F, 0x11, 0xD1, 0x82, 0x22, 0x44, 0x45, 0x53, 0x54, 0x00, 0x00}
)

// Has reports whether all the given capability bits are set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// locateTLVCaps is the TLV type carrying capability GUIDs in a locate set
// info request.
const locateTLVCaps uint16 = 0x0005

// TLV types inside user info blocks.
const (
	userTLVOnlineSince uint16 = 0x0003
	userTLVIdleTime    uint16 = 0x0004
	userTLVCaps        uint16 = 0x000D
	userTLVIconInfo    uint16 = 0x001D
)

// BuddyInfo is the presence state of one buddy as reported by arrival and
// departure notifications.
type BuddyInfo struct {
	Name        screenname.Name
	Online      bool
	OnlineSince time.Time
	Warning     uint16
	Caps        Capability

	// IconChecksum is the hash from the buddy's icon advertisement, empty when
	// no icon is advertised. IconRequested tracks whether this session already
	// asked the icon service for the data behind the current checksum.
	IconChecksum  []byte
	IconRequested bool
}

// TypingSupported reports whether the buddy's client understands typing
// notifications.
func (b BuddyInfo) TypingSupported() bool {
	// Typing notifications ship with direct IM support in every client that
	// implements either.
	return b.Caps.Has(CapDirectIM)
}

// parseUserInfo decodes one user info block: a length prefixed screen name,
// the warning level, and a counted TLV list. It returns the bytes following
// the block, which in message frames carry the channel payload.
func parseUserInfo(b []byte) (BuddyInfo, []byte, error) {
	var info BuddyInfo
	if len(b) < 1 {
		return info, nil, fmt.Errorf("oscar: empty user info")
	}
	n := int(b[0])
	if len(b) < 1+n+4 {
		return info, nil, fmt.Errorf("oscar: truncated user info")
	}
	name, err := screenname.New(string(b[1 : 1+n]))
	if err != nil {
		return info, nil, err
	}
	info.Name = name
	b = b[1+n:]
	info.Warning = binary.BigEndian.Uint16(b[0:2])
	count := int(binary.BigEndian.Uint16(b[2:4]))
	b = b[4:]

	for i := 0; i < count; i++ {
		if len(b) < 4 {
			return info, nil, fmt.Errorf("oscar: truncated user info tlv")
		}
		t := binary.BigEndian.Uint16(b[0:2])
		vn := int(binary.BigEndian.Uint16(b[2:4]))
		if len(b) < 4+vn {
			return info, nil, fmt.Errorf("oscar: truncated user info tlv")
		}
		v := b[4 : 4+vn]
		b = b[4+vn:]
		switch t {
		case userTLVOnlineSince:
			if vn >= 4 {
				info.OnlineSince = time.Unix(int64(binary.BigEndian.Uint32(v)), 0)
			}
		case userTLVCaps:
			info.Caps = parseCaps(v)
		case userTLVIconInfo:
			info.IconChecksum = parseIconChecksum(v)
		}
	}
	return info, b, nil
}

// parseCaps folds a sequence of capability GUIDs into a bit set. Unknown
// GUIDs are ignored.
func parseCaps(v []byte) Capability {
	var caps Capability
	for len(v) >= 16 {
		g := v[:16]
		switch {
		case bytes.Equal(g, guidChat[:]):
			caps |= CapChat
		case bytes.Equal(g, guidDirectIM[:]):
			caps |= CapDirectIM
		case bytes.Equal(g, guidSendFile[:]):
			caps |= CapSendFile
		case bytes.Equal(g, guidBuddyIcon[:]):
			caps |= CapBuddyIcon
		}
		v = v[16:]
	}
	return caps
}

// parseIconChecksum pulls the hash out of an icon advertisement. The value
// is a sequence of items, each id(2) flags(1) length(1) data; item id 1 is
// the current buddy icon.
func parseIconChecksum(v []byte) []byte {
	for len(v) >= 4 {
		id := binary.BigEndian.Uint16(v[0:2])
		n := int(v[3])
		if len(v) < 4+n {
			return nil
		}
		if id == 0x0001 && n > 0 {
			sum := make([]byte, n)
			copy(sum, v[4:4+n])
			return sum
		}
		v = v[4+n:]
	}
	return nil
}

// marshalCaps encodes the GUIDs for the capabilities this library itself
// advertises inside rendezvous proposals.
func marshalCaps(caps Capability) []byte {
	var b []byte
	if caps.Has(CapChat) {
		b = append(b, guidChat[:]...)
	}
	if caps.Has(CapDirectIM) {
		b = append(b, guidDirectIM[:]...)
	}
	if caps.Has(CapSendFile) {
		b = append(b, guidSendFile[:]...)
	}
	if caps.Has(CapBuddyIcon) {
		b = append(b, guidBuddyIcon[:]...)
	}
	return b
}

// iconCacheKey is the cache key for a buddy's last fetched icon checksum.
func iconCacheKey(name screenname.Name) string {
	return "icon:" + name.Norm()
}
