package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Tag is a BER-TLV tag with its identifier octets packed big-endian, so the
// two-octet tag 9F 38 is Tag(0x9F38).
type Tag uint32

const maxTagLen = 4

// leading returns the first identifier octet.
func (t Tag) leading() byte {
	b := t.Bytes()
	return b[0]
}

// Constructed reports whether the tag's value holds nested TLV objects.
func (t Tag) Constructed() bool {
	return t.leading()&0x20 != 0
}

// Bytes returns the identifier octets of t.
func (t Tag) Bytes() []byte {
	return EncodeTag(t)
}

func (t Tag) String() string {
	return strings.ToUpper(hex.EncodeToString(t.Bytes()))
}

// EncodeTag returns the identifier octets for t.
func EncodeTag(t Tag) []byte {
	if t == 0 {
		return []byte{0x00}
	}
	out := make([]byte, 0, maxTagLen)
	started := false
	for shift := 24; shift >= 0; shift -= 8 {
		b := byte(t >> uint(shift))
		if b == 0 && !started {
			continue
		}
		started = true
		out = append(out, b)
	}
	return out
}

// ParseTag decodes one tag starting at b[off] and returns the tag together
// with the offset of the first octet after it.
//
// If bits B5-B1 of the leading octet are not all set, the tag is that single
// octet. Otherwise subsequent octets follow; each has B8 set except the last,
// and B7-B1 of the first subsequent octet must not all be zero.
func ParseTag(b []byte, off int) (Tag, int, error) {
	if off < 0 || off >= len(b) {
		return 0, off, ErrShortTag
	}
	first := b[off]
	t := Tag(first)
	i := off + 1
	if first&0x1F != 0x1F {
		return t, i, nil
	}
	for {
		if i >= len(b) {
			return 0, off, ErrShortTag
		}
		if i-off >= maxTagLen {
			return 0, off, ErrTagTooLong
		}
		octet := b[i]
		if i == off+1 && octet&0x7F == 0 {
			return 0, off, fmt.Errorf("%w: subsequent octet 0x%02X", ErrInvalidTag, octet)
		}
		t = t<<8 | Tag(octet)
		i++
		if octet&0x80 == 0 {
			return t, i, nil
		}
	}
}

// ParseTagString parses a hex tag such as "9F38". The whole string must be
// consumed by exactly one tag.
func ParseTagString(s string) (Tag, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidTag, s, err)
	}
	t, next, err := ParseTag(raw, 0)
	if err != nil {
		return 0, err
	}
	if next != len(raw) {
		return 0, fmt.Errorf("%w: %q has trailing octets", ErrInvalidTag, s)
	}
	return t, nil
}
