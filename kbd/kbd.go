// Package kbd speaks the vendor protocol of the 8-key programmable pad
// (2dc8:5200, interface 2): reading the stored profile out of device
// flash, editing an in-memory copy, and writing back only what changed.
package kbd

import "time"

// Device identity and the HID reports all traffic rides on.
const (
	VendorID     uint16 = 0x2dc8
	ProductID    uint16 = 0x5200
	InterfaceNum        = 2

	// OutID is the host-to-device report, InID the device-to-host one.
	OutID uint8 = 82
	InID  uint8 = 84
)

// Timeout is how long each exchange waits for the device to answer.
const Timeout = 5 * time.Second

// Every response that acknowledges a set operation starts with these
// two bytes.
const (
	responseCode    = 0xE4
	responseSuccess = 0x08
)

// Command opcodes, the first payload byte of every report-82 packet.
const (
	cmdSetName      = 0x70
	cmdSetMacroName = 0x74
	cmdSetMacro     = 0x76
	cmdDeleteMacro  = 0x77
	cmdGetName      = 0x80
	cmdGetKeys      = 0x81
	cmdGetMacros    = 0x82
	cmdGetKey       = 0x83
	cmdGetMacroName = 0x84
	cmdGetMacro     = 0x86
)

// cmdSetKey is the fixed prefix of a set-key packet, followed by
// (from_key, set_type, mod_key, to_key).
var cmdSetKey = []byte{0xFA, 0x03, 0x0C, 0x00, 0xAA, 0x09, 0x71}

// Set-key mapping types. Only the keyboard type is implemented; the
// mouse type is recognized so its decode can fail with a precise error.
const (
	SetTypeMouse = 1
	SetTypeKbd   = 7
)

const (
	macroConst       = 0x01 // event-stream header magic
	macroMore        = 0x01 // more-chunks flag value
	macroMorePos     = 2    // byte offset of the more flag in a chunk packet
	deleteMacroConst = 0x8C // third byte of a delete-macro packet
)

// Wire header sizes, the Go spelling of the original packed structs.
const (
	nameHdrSize      = 3 // opcode, name-length u16le
	keyHdrSize       = 3 // opcode, from_key, set_type
	macroNameHdrSize = 4 // opcode, from_key, name-length u16le
	macroPktHdrSize  = 6 // opcode, from_key, more, pos u16le, chunk-length
	macroHdrSize     = 4 // magic, repeats u16le, event count
	macroEventSize   = 3 // action, arg u16le
	macroDeleteSize  = 3 // opcode, from_key, const
)

// checkSuccess tests a report-84 response for the success sentinel.
func checkSuccess(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == responseCode && buf[1] == responseSuccess
}
