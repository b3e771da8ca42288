package data

import "hash/fnv"

// FNV1a64 returns the 64-bit FNV-1a hash of s's raw bytes. This is the
// canonical fingerprint function used throughout the system to address
// cache entries, route segments and translation keys; it performs no
// case-folding, so callers that need case-insensitive matches (none do
// today: see BuildRoute in route.go) must normalize case themselves
// before calling it.
func FNV1a64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// FNV1a64Bytes is like FNV1a64 but takes a byte slice directly, avoiding
// an allocation on hot paths (e.g. gateway parsers hashing route
// segments straight out of the read buffer).
func FNV1a64Bytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
