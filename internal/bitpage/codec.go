// Page encoding for embedded stores.
//
// A bitmap page is stored either raw or zstd-compressed behind a one-byte
// tag. Filter pages are mostly zero until the filter fills up, so
// compression saves a great deal of disk early on at the cost of one
// encode per write. The decoder accepts both forms, so compression can be
// switched on or off for an existing store.
package bitpage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Shared encoder/decoder, both documented as safe for concurrent use.
// Built once because construction allocates large internal tables.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Page tags.
const (
	tagRaw  = 0
	tagZstd = 1
)

// Codec encodes pages for storage.
type Codec struct {
	Compress bool
}

// Encode returns the stored form of a PageBytes page.
func (c Codec) Encode(page []byte) []byte {
	if !c.Compress {
		out := make([]byte, 1+len(page))
		out[0] = tagRaw
		copy(out[1:], page)
		return out
	}
	return zstdEncoder.EncodeAll(page, []byte{tagZstd})
}

// Decode returns a writable PageBytes page. A nil stored value decodes to
// a zero page.
func (c Codec) Decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return make([]byte, PageBytes), nil
	}
	var page []byte
	switch stored[0] {
	case tagRaw:
		page = make([]byte, len(stored)-1)
		copy(page, stored[1:])
	case tagZstd:
		out, err := zstdDecoder.DecodeAll(stored[1:], make([]byte, 0, PageBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrCorruptPage, err)
		}
		page = out
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrCorruptPage, stored[0])
	}
	if len(page) != PageBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptPage, len(page))
	}
	return page, nil
}
