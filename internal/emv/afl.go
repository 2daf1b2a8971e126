package emv

import (
	"errors"
	"fmt"
)

const aflEntryLen = 4

var (
	errAFLRemainder   = errors.New("trailing partial entry")
	errAFLRecordRange = errors.New("first record after last record")
	errAFLRecordZero  = errors.New("record number 0")
	errAFLSFI         = errors.New("short file identifier out of range")
)

// FileEntry is one decoded AFL entry.
type FileEntry struct {
	SFI   uint8
	First uint8
	Last  uint8
	// OfflineRecords counts records used in offline data authentication.
	// It is decoded but not acted on.
	OfflineRecords uint8
}

// Records returns the number of records the entry addresses.
func (e FileEntry) Records() int {
	return int(e.Last) - int(e.First) + 1
}

func (e FileEntry) String() string {
	return fmt.Sprintf("SFI %d records %d-%d", e.SFI, e.First, e.Last)
}

// DecodeAFL decodes an application file locator into file entries. Malformed
// entries and a trailing partial entry are skipped and returned as problems;
// the remaining entries stay usable.
func DecodeAFL(b []byte) ([]FileEntry, []error) {
	var (
		entries  []FileEntry
		problems []error
	)
	full := len(b) - len(b)%aflEntryLen
	for i := 0; i < full; i += aflEntryLen {
		e := FileEntry{
			SFI:            b[i] >> 3,
			First:          b[i+1],
			Last:           b[i+2],
			OfflineRecords: b[i+3],
		}
		if err := validateFileEntry(e); err != nil {
			problems = append(problems, &ParseError{
				What: "application file locator",
				Err:  fmt.Errorf("entry %d (% X): %w", i/aflEntryLen, b[i:i+aflEntryLen], err),
			})
			continue
		}
		entries = append(entries, e)
	}
	if rem := len(b) - full; rem != 0 {
		problems = append(problems, &ParseError{
			What: "application file locator",
			Err:  fmt.Errorf("%w: %d bytes", errAFLRemainder, rem),
		})
	}
	return entries, problems
}

func validateFileEntry(e FileEntry) error {
	switch {
	case e.SFI == 0 || e.SFI > 30:
		return fmt.Errorf("%w: %d", errAFLSFI, e.SFI)
	case e.First == 0:
		return errAFLRecordZero
	case e.First > e.Last:
		return errAFLRecordRange
	default:
		return nil
	}
}
