// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package oscar

import (
	"encoding/binary"
	"fmt"
	"time"
)

// rateRecordLen is the wire size of one rate class record: the class id,
// eight 32 bit levels, and a trailing state byte.
const rateRecordLen = 35

// A RateClass is one server assigned throttling bucket. Levels are rolling
// averages of the time between frames in milliseconds; a lower current level
// means the client is sending faster. Dropping below the alert level risks
// dropped frames and below the disconnect level the server hangs up.
type RateClass struct {
	ID         uint16
	WindowSize uint32
	Clear      uint32
	Alert      uint32
	Limit      uint32
	Disconnect uint32
	Current    uint32
	Max        uint32
}

// parseRateParams decodes the rate class records from a rate parameters
// reply. Group membership pairs that trail the records are not needed for
// pacing and are skipped.
func parseRateParams(b []byte) ([]RateClass, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("oscar: short rate parameters")
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	b = b[2:]
	if len(b) < n*rateRecordLen {
		return nil, fmt.Errorf("oscar: truncated rate parameters")
	}
	rates := make([]RateClass, 0, n)
	for i := 0; i < n; i++ {
		rates = append(rates, parseRateRecord(b[i*rateRecordLen:]))
	}
	return rates, nil
}

// parseRateRecord decodes one rate class record. The caller guarantees at
// least rateRecordLen bytes.
func parseRateRecord(b []byte) RateClass {
	return RateClass{
		ID:         binary.BigEndian.Uint16(b[0:2]),
		WindowSize: binary.BigEndian.Uint32(b[2:6]),
		Clear:      binary.BigEndian.Uint32(b[6:10]),
		Alert:      binary.BigEndian.Uint32(b[10:14]),
		Limit:      binary.BigEndian.Uint32(b[14:18]),
		Disconnect: binary.BigEndian.Uint32(b[18:22]),
		Current:    binary.BigEndian.Uint32(b[22:26]),
		Max:        binary.BigEndian.Uint32(b[26:30]),
	}
}

// applyRateChange folds a rate change notification into the connection's
// rate table. The body is a change code followed by a full rate record.
func (c *Conn) applyRateChange(b []byte) error {
	if len(b) < 2+rateRecordLen {
		return fmt.Errorf("oscar: short rate change")
	}
	code := binary.BigEndian.Uint16(b[0:2])
	rc := parseRateRecord(b[2:])
	for i := range c.rates {
		if c.rates[i].ID == rc.ID {
			c.rates[i] = rc
			c.sess.logger.Debug("rate change",
				"service", c.svc, "class", rc.ID, "code", code, "current", rc.Current)
			return nil
		}
	}
	// Unknown class; adopt it rather than drop the update.
	c.rates = append(c.rates, rc)
	return nil
}

// Delay suggests how long to pause before the next frame in this class.
// It returns zero while the current level is comfortably above the alert
// threshold and grows as the level approaches the limit.
func (rc RateClass) Delay() time.Duration {
	switch {
	case rc.Current > rc.Alert:
		return 0
	case rc.Current > rc.Limit:
		return 500 * time.Millisecond
	}
	return 2 * time.Second
}
