package emv

import (
	"bytes"

	"github.com/danmuck/emvtap/internal/protocol/apdu"
	"github.com/danmuck/emvtap/internal/protocol/tlv"
)

var (
	visaAID       = []byte{0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10}
	mastercardAID = []byte{0xA0, 0x00, 0x00, 0x00, 0x04, 0x10, 0x10}
)

func tl(tag tlv.Tag, parts ...[]byte) []byte {
	return tlv.Encode(tag, bytes.Join(parts, nil))
}

func ok(parts ...[]byte) []byte {
	return append(bytes.Join(parts, nil), 0x90, 0x00)
}

// appTemplate builds a 61 template. A negative priority omits 87.
func appTemplate(aid []byte, label string, priority int) []byte {
	parts := [][]byte{tl(TagAID, aid)}
	if label != "" {
		parts = append(parts, tl(TagApplicationLabel, []byte(label)))
	}
	if priority >= 0 {
		parts = append(parts, tl(TagApplicationPriority, []byte{byte(priority)}))
	}
	return tl(TagApplicationTemplate, parts...)
}

func ppseBody(templates ...[]byte) []byte {
	return tl(TagFCITemplate,
		tl(TagDFName, apdu.PaymentSystemEnvironment),
		tl(0xA5, tl(0xBF0C, templates...)),
	)
}

func mustDecode(b []byte) *tlv.Tree {
	tree, err := tlv.Decode(b)
	if err != nil {
		panic(err)
	}
	return tree
}

func mustEncode(cmd apdu.Command) []byte {
	b, err := cmd.Encode()
	if err != nil {
		panic(err)
	}
	return b
}
