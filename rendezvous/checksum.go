// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package rendezvous

// Checksum is the rolling file checksum used by the OSCAR file transfer
// protocol (OFT).
//
// The accumulator is updated one chunk at a time as bytes arrive; the whole
// file is never revisited. Peers compute the same value over the same byte
// stream, so the chunked accumulation must produce the identical result to a
// single pass, including when chunks split at odd offsets. Checksum
// implements io.Writer so it can sit in an io.MultiWriter on the transfer
// path.
//
// The zero value is not valid; use NewChecksum.
type Checksum struct {
	sum uint32
	n   int64
}

// NewChecksum returns a checksum in its initial state (0xFFFF0000).
func NewChecksum() *Checksum {
	return &Checksum{sum: 0xFFFF0000}
}

// Write folds p into the running checksum.
func (c *Checksum) Write(p []byte) (int, error) {
	sum := c.sum >> 16
	for i, b := range p {
		val := uint32(b)
		// Bytes at even absolute offsets occupy the high half of the 16 bit
		// word; parity is tracked across chunk boundaries.
		if (c.n+int64(i))&1 == 0 {
			val <<= 8
		}
		old := sum
		sum -= val
		if sum > old {
			sum--
		}
	}
	sum = (sum & 0xFFFF) + (sum >> 16)
	sum = (sum & 0xFFFF) + (sum >> 16)
	c.sum = sum << 16
	c.n += int64(len(p))
	return len(p), nil
}

// Sum32 returns the current checksum value as transmitted in OFT headers.
func (c *Checksum) Sum32() uint32 {
	return c.sum
}
