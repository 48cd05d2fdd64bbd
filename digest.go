// Shard digests for the chunk router.
//
// The sharded filter picks a value's shard from the leading 8 or 12 bits
// of a digest of the value, read the way a hex digest's first two or three
// digits would be. Only those bits matter, so an algorithm qualifies when
// its top bits are uniform over short, similar inputs such as sequential
// IDs. The choice is part of the filter's on-store layout: clients sharing
// shards must agree on it.
package sieve

import (
	"crypto/md5"
	"encoding/binary"
	"hash/fnv"
	"strconv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Shard digest constants.
const (
	// DigestXXHash3 is the default. Full avalanche on every output bit at
	// a few nanoseconds per value.
	DigestXXHash3 = 1

	// DigestFNV1a needs no external code, but its top bits mix poorly
	// for short keys that differ only in a trailing counter: shards fill
	// unevenly. Prefer it only for long or random values.
	DigestFNV1a = 2

	// DigestBlake2b is a cryptographic digest: shard choice cannot be
	// steered by crafted values.
	DigestBlake2b = 3

	// DigestMD5 reproduces the shard layout of filters written by
	// pyfilters, so existing sharded data stays reachable.
	DigestMD5 = 4
)

// leading returns the top 12 bits of value's digest under alg, i.e. the
// first three hex digits of the digest as pyfilters prints it.
func leading(value string, alg int) uint16 {
	var top uint64
	switch alg {
	case DigestXXHash3:
		top = xxh3.HashString(value)
	case DigestFNV1a:
		h := fnv.New64a()
		h.Write([]byte(value))
		top = h.Sum64()
	case DigestBlake2b:
		sum := blake2b.Sum256([]byte(value))
		top = binary.BigEndian.Uint64(sum[:8])
	case DigestMD5:
		sum := md5.Sum([]byte(value))
		top = binary.BigEndian.Uint64(sum[:8])
	}
	return uint16(top >> 52)
}

// router assigns values to one of n shard keys.
type router struct {
	base   string
	shards int
	shift  uint // drops the third hex digit for routers of up to 256 shards
	alg    int
}

func newRouter(base string, shards, alg int) router {
	r := router{base: base, shards: shards, shift: 4, alg: alg} // 0-255
	if shards > 256 {
		r.shift = 0 // 0-4095
	}
	return r
}

// index returns the shard number for value.
func (r router) index(value string) int {
	return int(leading(value, r.alg)>>r.shift) % r.shards
}

// key returns the store key of shard i.
func (r router) key(i int) string {
	return r.base + ":" + strconv.Itoa(i)
}

// route returns the store key holding value's bits.
func (r router) route(value string) string {
	return r.key(r.index(value))
}

// reachable is the number of shards the router can ever return.
func (r router) reachable() int {
	return min(r.shards, MaxShards)
}

func validDigest(alg int) bool {
	return alg >= DigestXXHash3 && alg <= DigestMD5
}
