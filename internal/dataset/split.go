package dataset

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// InHoldout reports whether key belongs to the held-out split. The
// assignment depends only on key and percent, so it is stable across runs
// and shard layouts.
func InHoldout(key string, percent int) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	sum := blake2b.Sum256([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])%100 < uint64(percent)
}

// HoldoutFilter keeps samples in the held-out split when holdout is true
// and the remainder otherwise.
func HoldoutFilter(percent int, holdout bool) func(Sample) bool {
	return func(s Sample) bool {
		return InHoldout(s.Key, percent) == holdout
	}
}
