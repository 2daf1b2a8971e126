// Package emv drives one EMV contactless read per card tap.
//
// Ownership boundary:
// - application discovery and candidate selection
// - PDOL resolution against static terminal data
// - AFL decoding and record reads
// - the tap loop that polls for a card and runs one cycle per presence
//
// Transport, BER-TLV decoding and APDU framing live in internal/transport,
// internal/protocol/tlv and internal/protocol/apdu.
package emv
