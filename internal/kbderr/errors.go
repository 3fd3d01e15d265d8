// Package kbderr defines the distinct error kinds that cross every
// component boundary in this module and are expected to reach the CLI.
package kbderr

import "fmt"

// MalformedDescriptor is returned by the descriptor and HID item-tree
// decoders when a buffer ends early or an item declares an impossible size.
type MalformedDescriptor struct {
	Reason string
	Offset int
}

func (e *MalformedDescriptor) Error() string {
	return fmt.Sprintf("malformed descriptor at offset %d: %s", e.Offset, e.Reason)
}

// UnsupportedInterfaceClass is returned when a parsed interface's class
// code is not HID(3).
type UnsupportedInterfaceClass struct {
	Class uint8
}

func (e *UnsupportedInterfaceClass) Error() string {
	return fmt.Sprintf("unsupported interface class 0x%.2X", e.Class)
}

// UnsupportedMappingType is returned when a key-mapping set-type byte is
// not the keyboard set-type (7).
type UnsupportedMappingType struct {
	SetType uint8
}

func (e *UnsupportedMappingType) Error() string {
	return fmt.Sprintf("unsupported key-mapping set-type 0x%.2X", e.SetType)
}

// BadReportId is returned when a payload names a report-id absent from
// the decoded report tree for the given direction.
type BadReportId struct {
	ReportID uint8
	Valid    []uint8
}

func (e *BadReportId) Error() string {
	return fmt.Sprintf("report id %d not found, valid ids: %v", e.ReportID, e.Valid)
}

// NameUnencodable is returned when a name cannot be truncated into a
// valid UTF-16BE sequence that fits the device's maximum byte length.
type NameUnencodable struct {
	Name    string
	MaxByte int
}

func (e *NameUnencodable) Error() string {
	return fmt.Sprintf("couldn't encode name %q, try to limit it to %d characters", e.Name, e.MaxByte/2)
}

// BadMacroChunkOrder is returned when macro-body reassembly receives a
// chunk whose pos does not contiguously follow what has been received.
type BadMacroChunkOrder struct {
	Expected int
	Got      int
}

func (e *BadMacroChunkOrder) Error() string {
	return fmt.Sprintf("out-of-order macro chunk: expected pos %d, got %d", e.Expected, e.Got)
}

// DeviceNonSuccess is returned when a device response to a SET_* command
// does not begin with the {0xE4, 0x08} success sentinel.
type DeviceNonSuccess struct {
	Got []byte
}

func (e *DeviceNonSuccess) Error() string {
	return fmt.Sprintf("device did not acknowledge success, got % X", e.Got)
}

// Timeout is returned when listen() exhausts its deadline while an
// operation still awaits a response.
type Timeout struct {
	Op string
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("timed out waiting for %s", e.Op)
}

// DeviceMissing is returned when no raw-HID node matches the requested
// vendor/product/interface triple.
type DeviceMissing struct {
	Vendor, Product uint16
	Interface       int
}

func (e *DeviceMissing) Error() string {
	return fmt.Sprintf("no hidraw device found for %.4X:%.4X interface %d", e.Vendor, e.Product, e.Interface)
}

// CaptureTruncated is informational: the packet's captured length was
// shorter than its wire length, but decoding proceeded best-effort.
type CaptureTruncated struct {
	Captured, Wire int
}

func (e *CaptureTruncated) Error() string {
	return fmt.Sprintf("incomplete packet: captured %d of %d bytes", e.Captured, e.Wire)
}
