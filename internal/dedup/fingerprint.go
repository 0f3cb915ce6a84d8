// Package dedup decides which fetched signals are new relative to a bounded
// history of previously notified signals.
package dedup

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/rewired-gh/signalwatch/internal/models"
)

// Fingerprint is the identity of a signal for deduplication purposes.
type Fingerprint string

// FingerprintOf computes the fingerprint of a signal from its symbol,
// timeframe, creation time and comparison score.
func FingerprintOf(s models.Signal) Fingerprint {
	// A JSON array keeps absent fields (null) distinct from the literal
	// string "null" and avoids separator collisions.
	tuple := [4]any{s.Symbol, s.Timeframe, s.CreatedAt, s.ComparisonScore()}
	key, _ := json.Marshal(tuple)
	sum := sha256.Sum256(key)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// NotificationID maps the fingerprint to a stable non-negative int so that
// repeated alerts for the same signal replace each other.
func (f Fingerprint) NotificationID() int {
	raw, err := hex.DecodeString(string(f))
	if err != nil || len(raw) < 4 {
		sum := sha256.Sum256([]byte(f))
		raw = sum[:]
	}
	return int(binary.BigEndian.Uint32(raw[:4]) & 0x7fffffff)
}
