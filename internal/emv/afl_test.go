package emv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAFLSingleEntry(t *testing.T) {
	entries, problems := DecodeAFL([]byte{0x18, 0x01, 0x03, 0x00})
	require.Empty(t, problems)
	require.Len(t, entries, 1)
	assert.Equal(t, FileEntry{SFI: 3, First: 1, Last: 3}, entries[0])
	assert.Equal(t, 3, entries[0].Records())
}

func TestDecodeAFLSkipsMalformedEntries(t *testing.T) {
	entries, problems := DecodeAFL([]byte{
		0x18, 0x03, 0x01, 0x00, // first > last
		0x10, 0x01, 0x01, 0x01,
		0x00, 0x01, 0x01, 0x00, // SFI 0
		0x20, 0x00, 0x02, 0x00, // record 0
	})
	require.Len(t, entries, 1)
	assert.Equal(t, FileEntry{SFI: 2, First: 1, Last: 1, OfflineRecords: 1}, entries[0])
	require.Len(t, problems, 3)
	assert.True(t, errors.Is(problems[0], errAFLRecordRange))
	for _, p := range problems {
		assert.True(t, errors.Is(p, ErrParse))
	}
}

func TestDecodeAFLRemainder(t *testing.T) {
	entries, problems := DecodeAFL([]byte{0x08, 0x01, 0x02, 0x00, 0x10})
	require.Len(t, entries, 1)
	assert.Equal(t, uint8(1), entries[0].SFI)
	require.Len(t, problems, 1)
	assert.True(t, errors.Is(problems[0], errAFLRemainder))
}

func TestDecodeAFLEmpty(t *testing.T) {
	entries, problems := DecodeAFL(nil)
	assert.Empty(t, entries)
	assert.Empty(t, problems)
}

func TestDecodeAFLFullRecordRange(t *testing.T) {
	entries, problems := DecodeAFL([]byte{0xF0, 0x01, 0xFF, 0x00})
	require.Empty(t, problems)
	require.Len(t, entries, 1)
	assert.Equal(t, uint8(30), entries[0].SFI)
	assert.Equal(t, 255, entries[0].Records())
}
