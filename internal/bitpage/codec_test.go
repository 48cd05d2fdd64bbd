package bitpage

import (
	"bytes"
	"errors"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	full := bytes.Repeat([]byte{0xff}, PageBytes)
	sparse := make([]byte, PageBytes)
	sparse[0], sparse[100], sparse[PageBytes-1] = 0x80, 0x01, 0x10

	tests := []struct {
		name string
		page []byte
	}{
		{"zero", make([]byte, PageBytes)},
		{"full", full},
		{"sparse", sparse},
	}

	for _, tt := range tests {
		for _, c := range []Codec{{Compress: false}, {Compress: true}} {
			decoded, err := c.Decode(c.Encode(tt.page))
			if err != nil {
				t.Fatalf("%s compress=%v: %v", tt.name, c.Compress, err)
			}
			if !bytes.Equal(decoded, tt.page) {
				t.Errorf("%s compress=%v: round trip changed the page", tt.name, c.Compress)
			}
		}
	}
}

func TestCodecDecodesEitherForm(t *testing.T) {
	// A store written with compression must stay readable when it is
	// reopened without, and the other way round.
	page := make([]byte, PageBytes)
	page[7] = 0x42

	raw := Codec{}.Encode(page)
	packed := Codec{Compress: true}.Encode(page)

	for _, stored := range [][]byte{raw, packed} {
		for _, c := range []Codec{{}, {Compress: true}} {
			got, err := c.Decode(stored)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got[7] != 0x42 {
				t.Errorf("byte 7 = %#x, want 0x42", got[7])
			}
		}
	}
}

func TestCodecCompressesSparsePages(t *testing.T) {
	page := make([]byte, PageBytes)
	page[10] = 1
	if n := len(Codec{Compress: true}.Encode(page)); n >= PageBytes/10 {
		t.Errorf("sparse page encoded to %d bytes, expected heavy compression", n)
	}
}

func TestCodecDecodeMissing(t *testing.T) {
	page, err := Codec{}.Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if len(page) != PageBytes || !bytes.Equal(page, make([]byte, PageBytes)) {
		t.Error("Decode(nil) should return a zero page")
	}
}

func TestCodecRejectsCorruption(t *testing.T) {
	tests := []struct {
		name   string
		stored []byte
	}{
		{"unknown tag", []byte{9, 0, 0}},
		{"short raw page", []byte{tagRaw, 1, 2, 3}},
		{"bad zstd", []byte{tagZstd, 0xde, 0xad, 0xbe, 0xef}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Codec{}.Decode(tt.stored)
			if !errors.Is(err, ErrCorruptPage) {
				t.Errorf("got %v, want ErrCorruptPage", err)
			}
		})
	}
}
