// Package bitpage lays Redis-style bitmaps and counting hashes out over an
// ordered key-value store.
//
// A bitmap is split into fixed pages of PageBytes. Only pages that have
// had a bit set exist, so an empty filter costs nothing and a sparse one
// costs a page per touched region. Counters are stored one key per
// offset. Keys are, under the filter's Prefix:
//
//	prefix 'b' <page index, 8 bytes big-endian>   bitmap page
//	prefix 'c' <offset, 8 bytes big-endian>       counter, uint64 big-endian
//
// Bit numbering matches Redis SETBIT: the byte is offset/8 and offset%8
// counts from the most significant bit.
package bitpage

import (
	"encoding/binary"
	"errors"
	"slices"
)

// Page geometry.
const (
	PageBytes = 4096
	PageBits  = PageBytes * 8
)

// Key tags.
const (
	TagPage    = 'b'
	TagCounter = 'c'
)

// ErrCorruptPage is returned when a stored page cannot be decoded.
var ErrCorruptPage = errors.New("corrupt bitmap page")

// Locate returns the page, byte within the page and bit mask of offset.
func Locate(offset uint64) (page uint64, index int, mask byte) {
	page = offset / PageBits
	bit := offset % PageBits
	return page, int(bit / 8), 0x80 >> (bit % 8)
}

// PageKey returns the key of a bitmap page under prefix.
func PageKey(prefix []byte, page uint64) []byte {
	return appendKey(prefix, TagPage, page)
}

// CounterKey returns the key of the counter for offset under prefix.
func CounterKey(prefix []byte, offset uint64) []byte {
	return appendKey(prefix, TagCounter, offset)
}

func appendKey(prefix []byte, tag byte, n uint64) []byte {
	k := make([]byte, 0, len(prefix)+9)
	k = append(k, prefix...)
	k = append(k, tag)
	return binary.BigEndian.AppendUint64(k, n)
}

// Prefix returns the namespace of a filter key in a flat keyspace: the
// key's length as a uvarint, then the key. No prefix is a prefix of
// another, so "a" never matches "ab" or "a\x00b".
func Prefix(key string) []byte {
	p := binary.AppendUvarint(make([]byte, 0, len(key)+binary.MaxVarintLen64), uint64(len(key)))
	return append(p, key...)
}

// PrefixEnd returns the smallest key greater than every key under prefix.
func PrefixEnd(prefix []byte) []byte {
	end := slices.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff
}

// bit is one position within a page.
type bit struct {
	index int
	mask  byte
}

// group buckets offsets by page, returning the pages in ascending order.
func group(offsets []uint64) ([]uint64, map[uint64][]bit) {
	byPage := make(map[uint64][]bit)
	for _, off := range offsets {
		page, index, mask := Locate(off)
		byPage[page] = append(byPage[page], bit{index, mask})
	}
	pages := make([]uint64, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	slices.Sort(pages)
	return pages, byPage
}

// EncodeCount returns the stored form of a counter.
func EncodeCount(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

// DecodeCount parses a stored counter. Missing or short values are zero.
func DecodeCount(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}
