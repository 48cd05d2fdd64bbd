package bitpage

import "slices"

// Reader reads one key inside a store transaction. A missing key returns
// nil, nil. The returned slice is only read before the next call.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// Writer mutates keys inside the same transaction as its reads.
type Writer interface {
	Reader
	Put(key, value []byte) error
	Delete(key []byte) error
}

// SetBits sets every offset and reports whether any was clear. Only pages
// that actually change are written back.
func SetBits(w Writer, c Codec, prefix []byte, offsets []uint64) (bool, error) {
	pages, byPage := group(offsets)
	changed := false
	for _, p := range pages {
		key := PageKey(prefix, p)
		stored, err := w.Get(key)
		if err != nil {
			return false, err
		}
		page, err := c.Decode(stored)
		if err != nil {
			return false, err
		}
		dirty := false
		for _, b := range byPage[p] {
			if page[b.index]&b.mask == 0 {
				page[b.index] |= b.mask
				dirty = true
			}
		}
		if !dirty {
			continue
		}
		changed = true
		if err := w.Put(key, c.Encode(page)); err != nil {
			return false, err
		}
	}
	return changed, nil
}

// TestBits reports whether every offset is set.
func TestBits(r Reader, c Codec, prefix []byte, offsets []uint64) (bool, error) {
	pages, byPage := group(offsets)
	for _, p := range pages {
		stored, err := r.Get(PageKey(prefix, p))
		if err != nil {
			return false, err
		}
		if stored == nil {
			return false, nil
		}
		page, err := c.Decode(stored)
		if err != nil {
			return false, err
		}
		for _, b := range byPage[p] {
			if page[b.index]&b.mask == 0 {
				return false, nil
			}
		}
	}
	return true, nil
}

// counts is the current value and pending delta of each distinct field.
type counts struct {
	fields []uint64 // distinct, ascending
	value  map[uint64]uint64
	delta  map[uint64]uint64 // occurrences in the request
}

func readCounts(r Reader, prefix []byte, fields []uint64) (*counts, error) {
	c := &counts{
		value: make(map[uint64]uint64, len(fields)),
		delta: make(map[uint64]uint64, len(fields)),
	}
	for _, f := range fields {
		c.delta[f]++
	}
	for f := range c.delta {
		c.fields = append(c.fields, f)
	}
	slices.Sort(c.fields)
	for _, f := range c.fields {
		v, err := r.Get(CounterKey(prefix, f))
		if err != nil {
			return nil, err
		}
		c.value[f] = DecodeCount(v)
	}
	return c, nil
}

func (c *counts) positive() bool {
	for _, f := range c.fields {
		if c.value[f] == 0 {
			return false
		}
	}
	return true
}

// AddCounts increments every field unless all are already positive.
func AddCounts(w Writer, prefix []byte, fields []uint64) (bool, error) {
	c, err := readCounts(w, prefix, fields)
	if err != nil {
		return false, err
	}
	if c.positive() {
		return false, nil
	}
	for _, f := range c.fields {
		if err := w.Put(CounterKey(prefix, f), EncodeCount(c.value[f]+c.delta[f])); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RemoveCounts decrements every field if all are positive. Counters stop
// at zero and are deleted there, so an emptied filter leaves no keys.
func RemoveCounts(w Writer, prefix []byte, fields []uint64) (bool, error) {
	c, err := readCounts(w, prefix, fields)
	if err != nil {
		return false, err
	}
	if !c.positive() {
		return false, nil
	}
	for _, f := range c.fields {
		key := CounterKey(prefix, f)
		if c.value[f] <= c.delta[f] {
			if err := w.Delete(key); err != nil {
				return false, err
			}
			continue
		}
		if err := w.Put(key, EncodeCount(c.value[f]-c.delta[f])); err != nil {
			return false, err
		}
	}
	return true, nil
}

// TestCounts reports whether every field is positive.
func TestCounts(r Reader, prefix []byte, fields []uint64) (bool, error) {
	c, err := readCounts(r, prefix, fields)
	if err != nil {
		return false, err
	}
	return c.positive(), nil
}
