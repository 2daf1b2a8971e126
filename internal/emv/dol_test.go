package emv

import (
	"errors"
	"testing"

	"github.com/danmuck/emvtap/internal/protocol/tlv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDOL(t *testing.T) {
	dol, err := ParseDOL([]byte{0x9F, 0x66, 0x04, 0x9F, 0x02, 0x06, 0x95, 0x05})
	require.NoError(t, err)
	assert.Equal(t, DataObjectList{
		{Tag: 0x9F66, Length: 4},
		{Tag: 0x9F02, Length: 6},
		{Tag: 0x95, Length: 5},
	}, dol)
	assert.Equal(t, 15, dol.TotalLength())
}

func TestParseDOLMalformed(t *testing.T) {
	cases := map[string][]byte{
		"truncated tag":  {0x9F},
		"missing length": {0x9F, 0x66},
		"second entry":   {0x9F, 0x66, 0x04, 0x5F},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			dol, err := ParseDOL(in)
			require.Error(t, err)
			assert.Nil(t, dol)
			assert.True(t, errors.Is(err, ErrParse))
		})
	}
}

func TestResolvePadsShortValue(t *testing.T) {
	data := NewTerminalData(map[tlv.Tag][]byte{0x9F66: {0x36, 0x80, 0x40, 0x00}})
	out, mismatches := Resolve(DataObjectList{{Tag: 0x9F66, Length: 6}}, data)

	assert.Equal(t, []byte{0x36, 0x80, 0x40, 0x00, 0x00, 0x00}, out)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchPadded, mismatches[0].Kind)
	assert.Equal(t, 6, mismatches[0].Requested)
	assert.Equal(t, 4, mismatches[0].Available)
	assert.True(t, errors.Is(mismatches[0], ErrPolicyMismatch))
}

func TestResolveTruncatesLeftAligned(t *testing.T) {
	out, mismatches := Resolve(DataObjectList{{Tag: TagMerchantNameAndLocation, Length: 4}}, DefaultTerminalData())

	assert.Equal(t, []byte("ABC2"), out)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchTruncated, mismatches[0].Kind)
	assert.Equal(t, 32, mismatches[0].Available)
}

func TestResolveUnknownTagZeroFilled(t *testing.T) {
	dol := DataObjectList{
		{Tag: 0x9F66, Length: 4},
		{Tag: 0xDF01, Length: 3},
		{Tag: 0x9F35, Length: 1},
	}
	out, mismatches := Resolve(dol, DefaultTerminalData())

	assert.Equal(t, []byte{0x36, 0x80, 0x40, 0x00, 0x00, 0x00, 0x00, 0x14}, out)
	require.Len(t, mismatches, 1)
	assert.Equal(t, MismatchUnknownTag, mismatches[0].Kind)
	assert.Equal(t, tlv.Tag(0xDF01), mismatches[0].Tag)
}

func TestResolveExactMatchHasNoMismatch(t *testing.T) {
	out, mismatches := Resolve(DataObjectList{{Tag: TagTransactionCurrencyCode, Length: 2}}, DefaultTerminalData())
	assert.Equal(t, []byte{0x08, 0x40}, out)
	assert.Empty(t, mismatches)
}

func TestResolveLengthAlwaysMatchesRequest(t *testing.T) {
	data := DefaultTerminalData()
	tags := append(data.Tags(), 0x9F02, 0x9A, 0x9C)
	for _, tag := range tags {
		for _, n := range []int{0, 1, 2, 7, 32, 40, 255} {
			dol := DataObjectList{{Tag: tag, Length: n}, {Tag: TagTerminalType, Length: 1}}
			out, _ := Resolve(dol, data)
			assert.Len(t, out, dol.TotalLength(), "tag %s length %d", tag, n)
		}
	}
}

func TestResolveEmptyRequest(t *testing.T) {
	out, mismatches := Resolve(nil, DefaultTerminalData())
	assert.Empty(t, out)
	assert.Empty(t, mismatches)

	r := NewResolver(DefaultTerminalData(), zerolog.Nop())
	out, err := r.Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestResolverRejectsMalformedList(t *testing.T) {
	r := NewResolver(DefaultTerminalData(), zerolog.Nop())
	out, err := r.Resolve([]byte{0x9F, 0x66})
	assert.Nil(t, out)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "data object list", perr.What)
}

func TestTerminalDataIsCopied(t *testing.T) {
	src := map[tlv.Tag][]byte{0x9F35: {0x14}}
	data := NewTerminalData(src)
	src[0x9F35][0] = 0x22

	v, ok := data.Lookup(0x9F35)
	require.True(t, ok)
	assert.Equal(t, []byte{0x14}, v)

	merged := data.With(map[tlv.Tag][]byte{0x9F35: {0x22}, 0x9F02: {0x00}})
	v, _ = merged.Lookup(0x9F35)
	assert.Equal(t, []byte{0x22}, v)
	assert.Equal(t, 2, merged.Len())
	assert.Equal(t, 1, data.Len())
}
