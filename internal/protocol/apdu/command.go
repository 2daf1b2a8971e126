package apdu

import (
	"fmt"

	"github.com/danmuck/emvtap/internal/protocol/tlv"
	"github.com/skythen/apdu"
)

type Class byte

const (
	ClassInterindustry Class = 0x00
	ClassProprietary   Class = 0x80
)

type Instruction byte

// EMV Book 3, section 6.5.
const (
	InsSelect                Instruction = 0xA4
	InsReadRecord            Instruction = 0xB2
	InsGetProcessingOptions  Instruction = 0xA8
	InsGetResponse           Instruction = 0xC0
	InsGetData               Instruction = 0xCA
	InsGenerateApplicationAC Instruction = 0xAE
)

func (i Instruction) String() string {
	switch i {
	case InsSelect:
		return "SELECT"
	case InsReadRecord:
		return "READ RECORD"
	case InsGetProcessingOptions:
		return "GET PROCESSING OPTIONS"
	case InsGetResponse:
		return "GET RESPONSE"
	case InsGetData:
		return "GET DATA"
	case InsGenerateApplicationAC:
		return "GENERATE AC"
	default:
		return fmt.Sprintf("UnknownInstruction(0x%02X)", byte(i))
	}
}

const (
	// P1 for SELECT by DF name.
	selectByName byte = 0x04
	// P2 for SELECT first or only occurrence.
	selectFirst byte = 0x00
	// Low three bits of READ RECORD P2: P1 is a record number.
	recordNumberReference byte = 0x04

	// Ne of 256 is encoded as a single 0x00 Le octet.
	maxResponseLen = 256

	// TagCommandTemplate wraps the resolved PDOL data in GET PROCESSING OPTIONS.
	TagCommandTemplate tlv.Tag = 0x83
)

// PaymentSystemEnvironment is the proximity payment system directory name.
var PaymentSystemEnvironment = []byte("2PAY.SYS.DDF01")

// Command is one EMV command APDU.
type Command struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
}

// Encode returns the short-form command bytes. Every EMV command built here
// expects response data, so Le is always present.
func (c Command) Encode() ([]byte, error) {
	capdu := apdu.Capdu{
		Cla:  byte(c.Class),
		Ins:  byte(c.Instruction),
		P1:   c.P1,
		P2:   c.P2,
		Data: c.Data,
		Ne:   maxResponseLen,
	}
	b, err := capdu.Bytes()
	if err != nil {
		return nil, fmt.Errorf("apdu: encode %s: %w", c.Instruction, err)
	}
	return b, nil
}

func (c Command) String() string {
	return fmt.Sprintf("%s(P1=%02X P2=%02X Lc=%d)", c.Instruction, c.P1, c.P2, len(c.Data))
}

// SelectPPSE selects the proximity payment system environment directory.
func SelectPPSE() Command {
	return Select(PaymentSystemEnvironment)
}

// Select selects an application or directory by DF name.
func Select(name []byte) Command {
	data := make([]byte, len(name))
	copy(data, name)
	return Command{
		Class:       ClassInterindustry,
		Instruction: InsSelect,
		P1:          selectByName,
		P2:          selectFirst,
		Data:        data,
	}
}

// GetProcessingOptions wraps pdolData in the command template tag.
func GetProcessingOptions(pdolData []byte) Command {
	return Command{
		Class:       ClassProprietary,
		Instruction: InsGetProcessingOptions,
		Data:        tlv.Encode(TagCommandTemplate, pdolData),
	}
}

// ReadRecord reads one record of a short file.
func ReadRecord(sfi, record uint8) Command {
	return Command{
		Class:       ClassInterindustry,
		Instruction: InsReadRecord,
		P1:          record,
		P2:          sfi<<3 | recordNumberReference,
	}
}
