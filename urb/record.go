// Package urb reconstructs USB protocol state from a stream of Linux
// usbmon "mon_bin" records, as captured by wireshark/tshark into a
// pcapng file or replayed from a saved state snapshot.
package urb

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// RecordType is the single-byte URB kind: a request going out to the
// device (Submit) or the matching response coming back (Complete).
type RecordType uint8

const (
	RecordTypeSubmit   RecordType = 'S'
	RecordTypeComplete RecordType = 'C'
)

func (t RecordType) String() string {
	switch t {
	case RecordTypeSubmit:
		return "Submit"
	case RecordTypeComplete:
		return "Complete"
	default:
		return fmt.Sprintf("Unknown(%c)", byte(t))
	}
}

// TransferType is the URB's USB transfer type.
type TransferType uint8

const (
	TransferTypeIso       TransferType = 0
	TransferTypeInterrupt TransferType = 1
	TransferTypeControl   TransferType = 2
	TransferTypeBulk      TransferType = 3
)

func (t TransferType) String() string {
	switch t {
	case TransferTypeIso:
		return "ISO"
	case TransferTypeInterrupt:
		return "Interrupt"
	case TransferTypeControl:
		return "Control"
	case TransferTypeBulk:
		return "Bulk"
	default:
		return "Unknown"
	}
}

const (
	endpointDirMask = 0x80
	endpointNumMask = 0x0F

	// flagSetupPresent is the mon_bin convention that a zero flag_setup
	// byte means "setup packet follows", not "no setup" — an ASCII '-'
	// (0x2D) there instead means the field doesn't apply.
	flagSetupPresent = 0
	// flagDataPresent is the ASCII '=' sentinel mon_bin writes into
	// flag_data when payload bytes follow the header.
	flagDataPresent = '='
)

// Header is the fixed 40-byte prefix of every mon_bin record.
type Header struct {
	ID       uint64
	Type     RecordType
	XferType TransferType
	Epnum    uint8
	Devnum   uint8
	Busnum   uint16
	FlagSetup uint8
	FlagData  uint8
	TSSec    int64
	TSUsec   int32
	Status   int32
	Length   uint32
	LenCap   uint32
}

// Endpoint returns the endpoint number, stripping the direction bit.
func (h Header) Endpoint() uint8 { return h.Epnum & endpointNumMask }

// IsIn reports whether this URB targets a device-to-host endpoint.
func (h Header) IsIn() bool { return h.Epnum&endpointDirMask != 0 }

// HasSetup reports whether a SetupPacket follows the header.
func (h Header) HasSetup() bool { return h.FlagSetup == flagSetupPresent }

// HasData reports whether payload bytes follow the fixed portion.
func (h Header) HasData() bool { return h.FlagData == flagDataPresent }

// DevMap is the (bus, device) key this record's device is tracked
// under; it aliases to the same logical Device across replugs that
// report the same vendor/product/release triple.
type DevMap struct {
	Bus, Device uint16
}

func (d DevMap) String() string { return fmt.Sprintf("%d.%d", d.Bus, d.Device) }

// DevMap derives the lookup key for this record's device.
func (h Header) DevMap() DevMap { return DevMap{Bus: h.Busnum, Device: uint16(h.Devnum)} }

// SetupPacket is the control-transfer setup stage, present when
// XferType is Control and HasSetup is true.
type SetupPacket struct {
	BmRequestType uint8
	BRequest      uint8
	WValue        uint16
	WIndex        uint16
	WLength       uint16
}

// IsoHeader occupies the same 8 bytes as SetupPacket for isochronous
// transfers.
type IsoHeader struct {
	ErrorCount int32
	NumDesc    int32
}

// Record is one fully-parsed mon_bin entry: the fixed header, the
// setup-or-iso union (only one of Setup/ISO is populated, matching
// XferType), the tail fields, and whatever payload bytes the capture
// retained.
type Record struct {
	Header
	Setup *SetupPacket
	ISO   *IsoHeader

	Interval    int32
	StartFrame  int32
	XferFlags   uint32
	Ndesc       uint32

	Payload []byte
	Raw     []byte
}

// headerSize is the byte length of Header as it appears on the wire:
// 8+1+1+1+1+2+1+1+8+4+4+4+4.
const headerSize = 40

// unionSize is the byte length of the setup-or-iso union.
const unionSize = 8

// tailSize is the byte length of interval/start_frame/xfer_flags/ndesc.
const tailSize = 16

// FixedSize is the total byte length of a mon_bin record before its
// payload.
const FixedSize = headerSize + unionSize + tailSize

// Parse decodes one mon_bin record from raw capture bytes. A record
// shorter than FixedSize is rejected; one whose declared LenCap is
// less than its declared Length still parses (CaptureTruncated is the
// caller's concern, not Parse's — Parse only needs enough bytes to
// read the fixed portion and whatever payload survived).
func Parse(data []byte) (*Record, error) {
	if len(data) < FixedSize {
		return nil, fmt.Errorf("urb record too short: got %d bytes, need at least %d", len(data), FixedSize)
	}
	r := &Record{Raw: data}
	buf := bytes.NewReader(data)

	if err := binary.Read(buf, binary.LittleEndian, &r.Header); err != nil {
		return nil, fmt.Errorf("urb header: %w", err)
	}

	unionBytes := make([]byte, unionSize)
	if _, err := buf.Read(unionBytes); err != nil {
		return nil, fmt.Errorf("urb setup/iso union: %w", err)
	}
	unionReader := bytes.NewReader(unionBytes)
	switch r.XferType {
	case TransferTypeControl:
		setup := &SetupPacket{}
		if err := binary.Read(unionReader, binary.LittleEndian, setup); err == nil {
			r.Setup = setup
		}
	case TransferTypeIso:
		iso := &IsoHeader{}
		if err := binary.Read(unionReader, binary.LittleEndian, iso); err == nil {
			r.ISO = iso
		}
	}

	if err := binary.Read(buf, binary.LittleEndian, &r.Interval); err != nil {
		return nil, fmt.Errorf("urb tail: %w", err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &r.StartFrame); err != nil {
		return nil, fmt.Errorf("urb tail: %w", err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &r.XferFlags); err != nil {
		return nil, fmt.Errorf("urb tail: %w", err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &r.Ndesc); err != nil {
		return nil, fmt.Errorf("urb tail: %w", err)
	}

	r.Payload = data[FixedSize:]
	return r, nil
}
