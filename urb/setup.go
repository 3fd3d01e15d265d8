package urb

import "fmt"

// bmRequestType bit layout (USB 2.0 table 9-2).
const (
	typeDirMask          = 0x80
	typeDirHostToDevice  = 0x00
	typeDirDeviceToHost  = 0x80

	typeKindMask = 0x60
	typeStandard = 0x00
	typeClass    = 0x20
	typeVendor   = 0x40

	typeRecipientMask      = 0x1F
	typeRecipientDevice    = 0x00
	typeRecipientInterface = 0x01
	typeRecipientEndpoint  = 0x02
)

// Standard request codes (USB 2.0 table 9-4), plus the class request
// this device's interface uses for Set-Idle.
const (
	ReqGetStatus        = 0x00
	ReqClearFeature     = 0x01
	ReqSetFeature       = 0x03
	ReqSetAddress       = 0x05
	ReqGetDescriptor    = 0x06
	ReqSetDescriptor    = 0x07
	ReqGetConfiguration = 0x08
	ReqSetConfiguration = 0x09
	// ReqSetIdle and ReqGetInterface share opcode 0x0A; bmRequestType's
	// type bits disambiguate (class vs standard) per the decision
	// recorded for this ambiguity.
	ReqSetIdle      = 0x0A
	ReqGetInterface = 0x0A
	ReqSetInterface = 0x0B
	ReqSynchFrame   = 0x0C
)

// wValue high-byte descriptor type codes.
const (
	descMaskType  = 0xFF00
	descMaskIndex = 0x00FF

	DescDevice        = 0x0100
	DescConfiguration = 0x0200
	DescString        = 0x0300
	DescInterface     = 0x0400
	DescEndpoint      = 0x0500
	DescHIDReport     = 0x2200
)

// RequestMatch pairs bmRequestType with bRequest, the two fields the
// state machine actually switches on (wValue/wIndex disambiguate
// further within a match, e.g. which descriptor type).
type RequestMatch struct {
	BmRequestType uint8
	BRequest      uint8
}

// Match returns the (bmRequestType, bRequest) pair used to dispatch
// this setup packet.
func (s SetupPacket) Match() RequestMatch {
	return RequestMatch{BmRequestType: s.BmRequestType, BRequest: s.BRequest}
}

var (
	MatchGetStatus        = RequestMatch{typeDirDeviceToHost | typeStandard | typeRecipientDevice, ReqGetStatus}
	MatchClearFeature     = RequestMatch{typeDirHostToDevice | typeStandard | typeRecipientDevice, ReqClearFeature}
	MatchSetFeature       = RequestMatch{typeDirHostToDevice | typeStandard | typeRecipientDevice, ReqSetFeature}
	MatchSetAddress       = RequestMatch{typeDirHostToDevice | typeStandard | typeRecipientDevice, ReqSetAddress}
	MatchGetDescriptor    = RequestMatch{typeDirDeviceToHost | typeStandard | typeRecipientDevice, ReqGetDescriptor}
	MatchSetDescriptor    = RequestMatch{typeDirHostToDevice | typeStandard | typeRecipientDevice, ReqSetDescriptor}
	MatchGetConfiguration = RequestMatch{typeDirDeviceToHost | typeStandard | typeRecipientDevice, ReqGetConfiguration}
	MatchSetConfiguration = RequestMatch{typeDirHostToDevice | typeStandard | typeRecipientDevice, ReqSetConfiguration}
	MatchSetIdle          = RequestMatch{typeDirHostToDevice | typeClass | typeRecipientInterface, ReqSetIdle}
	MatchGetInterfaceDesc = RequestMatch{typeDirDeviceToHost | typeStandard | typeRecipientInterface, ReqGetDescriptor}
)

// DescValue returns the descriptor type named by wValue's high byte.
func (s SetupPacket) DescValue() uint16 { return s.WValue & descMaskType }

// DescIndex returns the descriptor index named by wValue's low byte.
func (s SetupPacket) DescIndex() uint8 { return uint8(s.WValue & descMaskIndex) }

func descriptorTypeName(v uint16) string {
	switch v {
	case DescDevice:
		return "Device"
	case DescConfiguration:
		return "Configuration"
	case DescString:
		return "String"
	case DescInterface:
		return "Interface"
	case DescEndpoint:
		return "Endpoint"
	default:
		return fmt.Sprintf("Unknown(0x%.4X)", v)
	}
}

// String renders a short, human-readable description of this setup
// packet, used by the reconstructor's line-per-URB output.
func (s SetupPacket) String() string {
	switch s.Match() {
	case MatchGetStatus:
		return "Get Status"
	case MatchClearFeature:
		return fmt.Sprintf("Clear Feature %d", s.WValue)
	case MatchSetFeature:
		return fmt.Sprintf("Set Feature %d", s.WValue)
	case MatchSetAddress:
		return fmt.Sprintf("Set Address %d", s.WValue)
	case MatchGetDescriptor:
		return fmt.Sprintf("Get Descriptor %s index %d lang %d length %d",
			descriptorTypeName(s.DescValue()), s.DescIndex(), s.WIndex, s.WLength)
	case MatchSetDescriptor:
		return fmt.Sprintf("Set Descriptor %s index %d", descriptorTypeName(s.DescValue()), s.DescIndex())
	case MatchGetConfiguration:
		return "Get Configuration"
	case MatchSetConfiguration:
		return fmt.Sprintf("Set Configuration %d", s.WValue)
	case MatchSetIdle:
		return "Set Idle"
	case MatchGetInterfaceDesc:
		if s.DescValue() == DescHIDReport {
			return fmt.Sprintf("Get HID Report Descriptor (interface %d)", s.WIndex)
		}
		return fmt.Sprintf("Get Interface Descriptor %s (interface %d)", descriptorTypeName(s.DescValue()), s.WIndex)
	default:
		return fmt.Sprintf("Unimplemented request 0x%.2X type 0x%.2X", s.BRequest, s.BmRequestType)
	}
}
