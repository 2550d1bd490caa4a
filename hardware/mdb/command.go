package mdb

import (
	"encoding/hex"
	"fmt"
)

// Command family is the first byte of a VMC command.
const (
	FamilyReset     byte = 0x10
	FamilySetup     byte = 0x11
	FamilyPoll      byte = 0x12
	FamilyVend      byte = 0x13
	FamilyReader    byte = 0x14
	FamilyExpansion byte = 0x17
)

// Full command is the first two bytes of a VMC command, see FullCommand().
type Command string

const (
	CmdResetFull Command = "\x10\x10"

	CmdSetupConfig Command = "\x11\x00"
	CmdSetupMaxMin Command = "\x11\x01"

	CmdPoll Command = "\x12"

	CmdVendRequest         Command = "\x13\x00"
	CmdVendCancel          Command = "\x13\x01"
	CmdVendSuccess         Command = "\x13\x02"
	CmdVendFailure         Command = "\x13\x03"
	CmdVendSessionComplete Command = "\x13\x04"
	CmdVendCashSale        Command = "\x13\x05"

	CmdReaderDisable Command = "\x14\x00"
	CmdReaderEnable  Command = "\x14\x01"
	CmdReaderCancel  Command = "\x14\x02"

	CmdExpansionRequestID   Command = "\x17\x00"
	CmdExpansionDiagnostics Command = "\x17\xff"
)

// Level 2 VMC without display.
var SetupConfigExpect = MustPacketFromHex("110002000000")

// VMC price range.
var SetupMaxMinExpect = MustPacketFromHex("1101000a000a")

var (
	RespAck       = Packet{}
	RespJustReset = MustPacketFromHex("00")
	// reader config data
	// 01 response to setup; 01 feature level 1; 1752 currency code;
	// 01 scaling factor; 02 decimal places; 02 max response seconds; 00 misc options
	RespSetupConfig = MustPacketFromHex("0101175201020200")
	// begin session, funds not yet determined
	RespBeginSession  = MustPacketFromHex("03ffff")
	RespSessionCancel = MustPacketFromHex("04")
	// vend approved, amount ffff means electronic token
	RespVendApproved = MustPacketFromHex("05ffff")
	RespVendDenied   = MustPacketFromHex("06")
	RespEndSession   = MustPacketFromHex("07")
	RespCancelled    = MustPacketFromHex("08")
	RespPeripheralID = MustPacketFromBytes(append([]byte{0x09}, make([]byte, 29)...))
	RespError        = MustPacketFromHex("0a30")
	RespCmdOutOfSeq  = MustPacketFromHex("0b")
	RespDiagnostics  = MustPacketFromHex("ff00")
)

var familyNames = map[byte]string{
	FamilyReset:     "RESET",
	FamilySetup:     "SETUP",
	FamilyPoll:      "POLL",
	FamilyVend:      "VEND",
	FamilyReader:    "READER",
	FamilyExpansion: "EXPANSION",
}

var commandNames = map[Command]string{
	CmdResetFull:            "RESET",
	CmdSetupConfig:          "SETUP_CONFIG",
	CmdSetupMaxMin:          "SETUP_MAXMIN",
	CmdPoll:                 "POLL",
	CmdVendRequest:          "VEND_REQUEST",
	CmdVendCancel:           "VEND_CANCEL",
	CmdVendSuccess:          "VEND_SUCCESS",
	CmdVendFailure:          "VEND_FAILURE",
	CmdVendSessionComplete:  "VEND_SESSION_COMPLETE",
	CmdVendCashSale:         "VEND_CASH_SALE",
	CmdReaderDisable:        "READER_DISABLE",
	CmdReaderEnable:         "READER_ENABLE",
	CmdReaderCancel:         "READER_CANCEL",
	CmdExpansionRequestID:   "EXPANSION_REQUEST_ID",
	CmdExpansionDiagnostics: "EXPANSION_DIAGNOSTICS",
}

var responseNames = map[string]string{}

func init() {
	for _, x := range []struct {
		p    Packet
		name string
	}{
		{RespAck, "ACK"},
		{RespJustReset, "JUST_RESET"},
		{RespSetupConfig, "SETUP_CONFIG"},
		{RespBeginSession, "BEGIN_SESSION"},
		{RespSessionCancel, "SESSION_CANCEL"},
		{RespVendApproved, "VEND_APPROVED"},
		{RespVendDenied, "VEND_DENIED"},
		{RespEndSession, "END_SESSION"},
		{RespCancelled, "CANCELLED"},
		{RespPeripheralID, "PERIPHERAL_ID"},
		{RespError, "ERROR"},
		{RespCmdOutOfSeq, "CMD_OUT_OF_SEQ"},
		{RespDiagnostics, "DIAGNOSTICS"},
	} {
		responseNames[string(x.p.Bytes())] = x.name
	}
}

// FullCommand returns up to two leading bytes, the key for sub-command dispatch.
// POLL has no sub-commands, trailing bytes are ignored.
func FullCommand(b []byte) Command {
	if len(b) > 0 && b[0] == FamilyPoll {
		return CmdPoll
	}
	if len(b) > 2 {
		b = b[:2]
	}
	return Command(b)
}

// Known reports whether b starts with a command from the closed set.
func Known(b []byte) bool {
	_, ok := commandNames[FullCommand(b)]
	return ok
}

// NameOf never fails: exact command, then family, then "UNKNOWN CMD <hex>".
func NameOf(b []byte) string {
	if Known(b) {
		return commandNames[FullCommand(b)]
	}
	if len(b) > 0 {
		if name, ok := familyNames[b[0]]; ok {
			return name
		}
	}
	return fmt.Sprintf("UNKNOWN CMD %s", hex.EncodeToString(b))
}

func NameOfResponse(b []byte) string {
	if name, ok := responseNames[string(b)]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN RSP %s", hex.EncodeToString(b))
}
