// Package hid implements the class-specific descriptor and report-item
// decoding for HID (Human Interface Device) class interfaces.
package hid

import (
	usb "github.com/eightkbd/kbdctl"
	"github.com/eightkbd/kbdctl/internal/kbderr"
)

// Descriptor is the class-specific descriptor that follows an
// InterfaceDescriptor for every HID(3) interface. It announces the HID
// specification version, the device's country code, and the length of
// the Report descriptor that must be fetched separately via
// GetDescriptor(Report).
type Descriptor struct {
	usb.DescriptorHeader
	BcdHID                   uint16
	CountryCode              uint8
	NumDescriptors           uint8
	DescriptorType           uint8
	DescriptorLength         uint16
	OptionalDescriptorType   uint8
	OptionalDescriptorLength uint16
}

const (
	DescriptorTypeHID      = usb.DescriptorType(0x21)
	DescriptorTypeReport   = usb.DescriptorType(0x22)
	DescriptorTypePhysical = usb.DescriptorType(0x23)
)

// HID class-specific request codes (USB HID 1.11 section 7.2).
const (
	ReqGetReport   = 0x01
	ReqGetIdle     = 0x02
	ReqGetProtocol = 0x03
	ReqSetReport   = 0x09
	ReqSetIdle     = 0x0A
	ReqSetProtocol = 0x0B
)

func init() {
	usb.RegisterDescriptorType(DescriptorTypeHID, Descriptor{})
}

// RequireDescriptor returns iface's class-specific HID descriptor,
// failing with UnsupportedInterfaceClass for anything that isn't a
// HID(3) interface carrying one.
func RequireDescriptor(iface *usb.Interface) (*Descriptor, error) {
	if iface.BInterfaceClass != usb.ClassCodeInterfaceHID {
		return nil, &kbderr.UnsupportedInterfaceClass{Class: uint8(iface.BInterfaceClass)}
	}
	desc, ok := iface.ClassDescriptor(DescriptorTypeHID).(*Descriptor)
	if !ok {
		return nil, &kbderr.UnsupportedInterfaceClass{Class: uint8(iface.BInterfaceClass)}
	}
	return desc, nil
}
