package emv

import (
	"sort"

	"github.com/danmuck/emvtap/internal/protocol/tlv"
)

// Terminal data object tags answered from the default dictionary.
const (
	TagTerminalTransactionQualifiers tlv.Tag = 0x9F66
	TagTransactionCurrencyCode       tlv.Tag = 0x5F2A
	TagTerminalRiskManagementData    tlv.Tag = 0x9F1D
	TagTerminalCountryCode           tlv.Tag = 0x9F1A
	TagTerminalType                  tlv.Tag = 0x9F35
	TagAcquirerIdentifier            tlv.Tag = 0x9F01
	TagApplicationLifeCycleData      tlv.Tag = 0x9F7E
	TagMerchantNameAndLocation       tlv.Tag = 0x9F4E
)

const merchantNameLen = 32

// TerminalData maps terminal data object tags to fixed values. It is never
// modified after construction and is safe to share between cycles.
type TerminalData struct {
	values map[tlv.Tag][]byte
}

// NewTerminalData copies values into a new dictionary.
func NewTerminalData(values map[tlv.Tag][]byte) TerminalData {
	d := TerminalData{values: make(map[tlv.Tag][]byte, len(values))}
	for tag, v := range values {
		d.values[tag] = append([]byte(nil), v...)
	}
	return d
}

// DefaultTerminalData returns the values of a US contactless terminal.
func DefaultTerminalData() TerminalData {
	merchant := make([]byte, merchantNameLen)
	copy(merchant, "ABC202408")
	return NewTerminalData(map[tlv.Tag][]byte{
		TagTerminalTransactionQualifiers: {0x36, 0x80, 0x40, 0x00},
		TagTransactionCurrencyCode:       {0x08, 0x40}, // USD
		TagTerminalRiskManagementData:    {0x40, 0x40, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00},
		TagTerminalCountryCode:           {0x08, 0x40}, // US
		TagTerminalType:                  {0x14},
		TagAcquirerIdentifier:            {0x01},
		TagApplicationLifeCycleData:      {0x01},
		TagMerchantNameAndLocation:       merchant,
	})
}

// With returns a new dictionary holding d's values replaced or extended by
// overrides.
func (d TerminalData) With(overrides map[tlv.Tag][]byte) TerminalData {
	merged := make(map[tlv.Tag][]byte, len(d.values)+len(overrides))
	for tag, v := range d.values {
		merged[tag] = v
	}
	for tag, v := range overrides {
		merged[tag] = v
	}
	return NewTerminalData(merged)
}

// Lookup returns the stored value for tag. Callers must not modify it.
func (d TerminalData) Lookup(tag tlv.Tag) ([]byte, bool) {
	v, ok := d.values[tag]
	return v, ok
}

func (d TerminalData) Len() int {
	return len(d.values)
}

// Tags returns the known tags in ascending order.
func (d TerminalData) Tags() []tlv.Tag {
	tags := make([]tlv.Tag, 0, len(d.values))
	for tag := range d.values {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
