package emv

import (
	"errors"
	"fmt"

	"github.com/danmuck/emvtap/internal/observability"
	"github.com/danmuck/emvtap/internal/protocol/tlv"
	"github.com/rs/zerolog"
)

var errShortDOLLength = errors.New("missing length octet")

// DataObject is one (tag, length) request of a data object list.
type DataObject struct {
	Tag    tlv.Tag
	Length int
}

// DataObjectList is a card-supplied request for terminal data. Order is
// significant: it fixes the concatenation order of the answer.
type DataObjectList []DataObject

// ParseDOL decodes a data object list: a BER tag followed by a one-octet
// length, repeated. Empty input is an empty list.
func ParseDOL(b []byte) (DataObjectList, error) {
	var dol DataObjectList
	for i := 0; i < len(b); {
		tag, next, err := tlv.ParseTag(b, i)
		if err != nil {
			return nil, &ParseError{What: "data object list", Err: fmt.Errorf("entry at offset %d: %w", i, err)}
		}
		if next >= len(b) {
			return nil, &ParseError{What: "data object list", Err: fmt.Errorf("entry %s: %w", tag, errShortDOLLength)}
		}
		dol = append(dol, DataObject{Tag: tag, Length: int(b[next])})
		i = next + 1
	}
	return dol, nil
}

// TotalLength is the exact length of any answer to l.
func (l DataObjectList) TotalLength() int {
	n := 0
	for _, obj := range l {
		n += obj.Length
	}
	return n
}

// Resolve answers dol from data. Each entry contributes exactly its requested
// length: known values are copied left aligned and truncated or zero padded,
// unknown tags are zero filled. Every deviation is returned as a
// PolicyMismatch; none of them is fatal.
func Resolve(dol DataObjectList, data TerminalData) ([]byte, []*PolicyMismatch) {
	out := make([]byte, 0, dol.TotalLength())
	var mismatches []*PolicyMismatch
	for _, obj := range dol {
		value, ok := data.Lookup(obj.Tag)
		if !ok {
			out = append(out, make([]byte, obj.Length)...)
			mismatches = append(mismatches, &PolicyMismatch{Tag: obj.Tag, Requested: obj.Length, Kind: MismatchUnknownTag})
			continue
		}
		n := min(len(value), obj.Length)
		out = append(out, value[:n]...)
		switch {
		case len(value) > obj.Length:
			mismatches = append(mismatches, &PolicyMismatch{Tag: obj.Tag, Requested: obj.Length, Available: len(value), Kind: MismatchTruncated})
		case len(value) < obj.Length:
			out = append(out, make([]byte, obj.Length-len(value))...)
			mismatches = append(mismatches, &PolicyMismatch{Tag: obj.Tag, Requested: obj.Length, Available: len(value), Kind: MismatchPadded})
		}
	}
	return out, mismatches
}

// Resolver answers card data object lists from one terminal dictionary and
// reports mismatches.
type Resolver struct {
	data TerminalData
	log  zerolog.Logger
}

func NewResolver(data TerminalData, logger zerolog.Logger) *Resolver {
	return &Resolver{
		data: data,
		log:  logger.With().Str("component", "emv.dol").Logger(),
	}
}

// Resolve parses raw as a data object list and answers it. Only a malformed
// list is an error.
func (r *Resolver) Resolve(raw []byte) ([]byte, error) {
	dol, err := ParseDOL(raw)
	if err != nil {
		return nil, err
	}
	out, mismatches := Resolve(dol, r.data)
	for _, m := range mismatches {
		observability.RecordDOLMismatch(m.Kind.String())
		r.log.Warn().
			Str("tag", m.Tag.String()).
			Int("requested", m.Requested).
			Int("available", m.Available).
			Str("kind", m.Kind.String()).
			Msg("data object length mismatch")
	}
	r.log.Debug().Int("entries", len(dol)).Int("bytes", len(out)).Msg("resolved data object list")
	return out, nil
}
