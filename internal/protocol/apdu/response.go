package apdu

import (
	"errors"
	"fmt"

	"github.com/skythen/apdu"
)

var (
	ErrStatus        = errors.New("apdu: error status")
	ErrShortResponse = errors.New("apdu: short response")
)

// StatusSuccess is the only status word treated as success. Continuation
// codes such as 61xx are not followed.
const StatusSuccess uint16 = 0x9000

// StatusError reports a response whose status words are not 90 00, or a
// response too short to carry status words at all.
type StatusError struct {
	SW1, SW2 byte
	// Length is set for short responses.
	Length int
	Short  bool
}

func (e *StatusError) Error() string {
	if e.Short {
		return fmt.Sprintf("apdu: short response: %d bytes", e.Length)
	}
	return fmt.Sprintf("apdu: status %02X%02X: %s", e.SW1, e.SW2, describeStatus(e.SW1, e.SW2))
}

// Is matches ErrStatus for every status failure and ErrShortResponse for
// short responses.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrStatus:
		return true
	case ErrShortResponse:
		return e.Short
	default:
		return false
	}
}

// SW returns both status words as one value.
func (e *StatusError) SW() uint16 {
	return uint16(e.SW1)<<8 | uint16(e.SW2)
}

// Response is a validated response APDU.
type Response struct {
	Data     []byte
	SW1, SW2 byte
}

// ParseResponse validates raw response bytes and returns the data field with
// the status words stripped. The returned data never aliases raw.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, &StatusError{Short: true, Length: len(raw)}
	}
	rapdu, err := apdu.ParseRapdu(raw)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrShortResponse, err)
	}
	if uint16(rapdu.SW1)<<8|uint16(rapdu.SW2) != StatusSuccess {
		return Response{}, &StatusError{SW1: rapdu.SW1, SW2: rapdu.SW2}
	}
	data := make([]byte, len(rapdu.Data))
	copy(data, rapdu.Data)
	return Response{Data: data, SW1: rapdu.SW1, SW2: rapdu.SW2}, nil
}

func describeStatus(sw1, sw2 byte) string {
	switch {
	case sw1 == 0x61:
		return "more data available"
	case sw1 == 0x62 && sw2 == 0x83:
		return "selected file invalidated"
	case sw1 == 0x63:
		return "warning"
	case sw1 == 0x67 && sw2 == 0x00:
		return "wrong length"
	case sw1 == 0x69 && sw2 == 0x84:
		return "referenced data invalidated"
	case sw1 == 0x69 && sw2 == 0x85:
		return "conditions of use not satisfied"
	case sw1 == 0x6A && sw2 == 0x81:
		return "function not supported"
	case sw1 == 0x6A && sw2 == 0x82:
		return "file or application not found"
	case sw1 == 0x6A && sw2 == 0x83:
		return "record not found"
	case sw1 == 0x6A && sw2 == 0x88:
		return "referenced data not found"
	case sw1 == 0x6C:
		return "wrong Le"
	case sw1 == 0x6D && sw2 == 0x00:
		return "instruction not supported"
	case sw1 == 0x6E && sw2 == 0x00:
		return "class not supported"
	default:
		return "error"
	}
}
