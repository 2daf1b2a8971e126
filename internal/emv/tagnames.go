package emv

import "github.com/danmuck/emvtap/internal/protocol/tlv"

var tagNames = map[tlv.Tag]string{
	0x4F:   "Application Identifier (AID)",
	0x50:   "Application Label",
	0x56:   "Track 1 Data",
	0x57:   "Track 2 Equivalent Data",
	0x5A:   "Application PAN",
	0x5F24: "Application Expiration Date",
	0x5F25: "Application Effective Date",
	0x5F28: "Issuer Country Code",
	0x5F2A: "Transaction Currency Code",
	0x5F2D: "Language Preference",
	0x5F30: "Service Code",
	0x5F34: "Application PAN Sequence Number",
	0x61:   "Application Template",
	0x6F:   "FCI Template",
	0x70:   "READ RECORD Response Template",
	0x77:   "Response Message Template Format 2",
	0x80:   "Response Message Template Format 1",
	0x82:   "Application Interchange Profile",
	0x83:   "Command Template",
	0x84:   "DF Name",
	0x87:   "Application Priority Indicator",
	0x8C:   "CDOL1",
	0x8D:   "CDOL2",
	0x8E:   "CVM List",
	0x8F:   "CA Public Key Index",
	0x90:   "Issuer Public Key Certificate",
	0x92:   "Issuer Public Key Remainder",
	0x94:   "Application File Locator (AFL)",
	0x9F01: "Acquirer Identifier",
	0x9F07: "Application Usage Control",
	0x9F08: "Application Version Number",
	0x9F0D: "Issuer Action Code - Default",
	0x9F0E: "Issuer Action Code - Denial",
	0x9F0F: "Issuer Action Code - Online",
	0x9F10: "Issuer Application Data",
	0x9F11: "Issuer Code Table Index",
	0x9F12: "Application Preferred Name",
	0x9F1A: "Terminal Country Code",
	0x9F1D: "Terminal Risk Management Data",
	0x9F24: "Payment Account Reference (PAR)",
	0x9F26: "Application Cryptogram",
	0x9F27: "Cryptogram Information Data",
	0x9F32: "Issuer Public Key Exponent",
	0x9F35: "Terminal Type",
	0x9F36: "Application Transaction Counter",
	0x9F38: "PDOL",
	0x9F42: "Application Currency Code",
	0x9F44: "Application Currency Exponent",
	0x9F46: "ICC Public Key Certificate",
	0x9F47: "ICC Public Key Exponent",
	0x9F48: "ICC Public Key Remainder",
	0x9F49: "DDOL",
	0x9F4A: "Static Data Authentication Tag List",
	0x9F4D: "Log Entry",
	0x9F4E: "Merchant Name and Location",
	0x9F5D: "Available Offline Spending Amount",
	0x9F62: "PCVC3 (Track 1)",
	0x9F63: "PUNATC (Track 1)",
	0x9F64: "NATC (Track 1)",
	0x9F65: "PCVC3 (Track 2)",
	0x9F66: "Terminal Transaction Qualifiers",
	0x9F67: "NATC (Track 2)",
	0x9F69: "UDOL",
	0x9F6B: "Card CVM Limit",
	0x9F6C: "Card Transaction Qualifiers",
	0x9F6E: "Third Party Data",
	0x9F7E: "Application Life Cycle Data",
	0xA5:   "FCI Proprietary Template",
	0xBF0C: "FCI Issuer Discretionary Data",
}

// TagName returns a display name for tag, or "" when unknown.
func TagName(tag tlv.Tag) string {
	return tagNames[tag]
}
