package usb

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/eightkbd/kbdctl/internal/kbderr"
)

// Endpoint is an EndpointDescriptor owned by a specific Interface.
type Endpoint = EndpointDescriptor

// Number returns the endpoint number, ignoring the direction bit.
func (ep *EndpointDescriptor) Number() uint8 { return ep.BEndpointAddress & 0x0F }

// IsIn reports whether this is a device-to-host endpoint.
func (ep *EndpointDescriptor) IsIn() bool { return ep.BEndpointAddress&EndpointDirectionIn != 0 }

// OptString models a descriptor string field that is known by index at
// parse time but whose text only arrives later, from a separate
// GetDescriptor(String) fetch. Display code asks Value()/IsSet() rather
// than re-deriving "has this been resolved yet" from a zero value.
type OptString struct {
	text string
	set  bool
}

func (o OptString) String() string {
	if !o.set {
		return "<unset>"
	}
	return o.text
}

// IsSet reports whether a string has been filled in.
func (o OptString) IsSet() bool { return o.set }

// Value returns the resolved text, or "" if unset.
func (o OptString) Value() string { return o.text }

// Set records newVal as the resolved text, unless a proper prefix
// relationship with the current text indicates newVal is a truncated
// re-read that should be dropped (see §4.5's string-truncation filter).
func (o *OptString) Set(newVal string) {
	if o.set && strings.HasPrefix(o.text, newVal) && newVal != o.text {
		return
	}
	o.text = newVal
	o.set = true
}

// Interface aggregates one InterfaceDescriptor with the endpoints and
// class-specific descriptors (e.g. a HID class descriptor) that follow
// it in a configuration's descriptor stream, up to the next interface
// or the end of the stream.
type Interface struct {
	*InterfaceDescriptor
	Endpoints        map[uint8]*Endpoint // keyed by endpoint number, not address
	ClassDescriptors []Descriptor
	InterfaceString  OptString
}

// ClassDescriptor returns the first class-specific descriptor of the
// given type attached to this interface, or nil if none was present.
func (iface *Interface) ClassDescriptor(typ DescriptorType) Descriptor {
	for _, d := range iface.ClassDescriptors {
		if d.Type() == typ {
			return d
		}
	}
	return nil
}

func (iface *Interface) String() string {
	return fmt.Sprintf("Interface %d (alt %d): class=%s, %d endpoint(s)",
		iface.BInterfaceNumber, iface.BAlternateSetting, iface.BInterfaceClass, len(iface.Endpoints))
}

// Configuration aggregates one ConfigurationDescriptor with the
// Interfaces parsed out of the same byte stream (as returned by a
// GetDescriptor(Configuration) control transfer).
type Configuration struct {
	*ConfigurationDescriptor
	Interfaces          map[uint8]*Interface // keyed by BInterfaceNumber
	EndpointOwner       map[uint8]uint8      // endpoint address -> owning interface number
	ConfigurationString OptString
}

func (c *Configuration) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configuration %d: %d interface(s)\n", c.BConfigurationValue, len(c.Interfaces))
	for _, iface := range c.Interfaces {
		fmt.Fprintf(&sb, "  %s\n", iface)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ParseConfiguration walks a configuration descriptor's byte stream
// (the bytes returned by GetDescriptor(Configuration), which is
// self-describing via its own wTotalLength prefix followed by every
// interface, endpoint, and class-specific descriptor for the
// configuration) and groups them by the interface they belong to.
//
// wTotalLength is not separately validated against len(data): when a
// capture or a device response is shorter than advertised,
// ReadDescriptors simply stops at EOF and ParseConfiguration returns
// whatever was parsed, rather than treating the mismatch as fatal.
//
// Every interface in this capture's device is a HID(3) interface; one
// that isn't is reported as UnsupportedInterfaceClass rather than
// silently grouped in, since nothing downstream of C2 knows what to do
// with a non-HID interface's class-specific descriptors.
func ParseConfiguration(data []byte) (cfg *Configuration, err error) {
	cfg = &Configuration{
		Interfaces:    map[uint8]*Interface{},
		EndpointOwner: map[uint8]uint8{},
	}
	var curIface *Interface

	readErr := ReadDescriptors(bytes.NewReader(data), func(d Descriptor) {
		if err != nil {
			return
		}
		switch v := d.(type) {
		case *ConfigurationDescriptor:
			cfg.ConfigurationDescriptor = v
		case *InterfaceDescriptor:
			if v.BInterfaceClass != ClassCodeInterfaceHID {
				err = &kbderr.UnsupportedInterfaceClass{Class: uint8(v.BInterfaceClass)}
				return
			}
			curIface = &Interface{InterfaceDescriptor: v, Endpoints: map[uint8]*Endpoint{}}
			cfg.Interfaces[v.BInterfaceNumber] = curIface
		case *EndpointDescriptor:
			if curIface != nil {
				curIface.Endpoints[v.Number()] = v
				cfg.EndpointOwner[v.BEndpointAddress] = curIface.BInterfaceNumber
			}
		default:
			if curIface != nil {
				curIface.ClassDescriptors = append(curIface.ClassDescriptors, d)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	if cfg.ConfigurationDescriptor == nil {
		return nil, &kbderr.MalformedDescriptor{Reason: "configuration descriptor header missing", Offset: 0}
	}
	return cfg, nil
}

// Device aggregates a DeviceDescriptor with every Configuration that
// has been parsed for it so far, the resolved string descriptors, and
// the configuration currently selected by SET_CONFIGURATION.
type Device struct {
	*DeviceDescriptor
	Manufacturer        OptString
	Product             OptString
	SerialNumber        OptString
	Configurations      map[uint8]*Configuration // keyed by BConfigurationValue
	ActiveConfiguration uint8
}

// NewDevice wraps a freshly-parsed DeviceDescriptor in an empty
// Configurations map, ready to accrue GetDescriptor(Configuration)
// responses as they arrive.
func NewDevice(desc *DeviceDescriptor) *Device {
	return &Device{DeviceDescriptor: desc, Configurations: map[uint8]*Configuration{}}
}

// Equal reports whether two devices are the same physical unit by USB
// identity: same vendor, product, and release number. Two URBs seen on
// different bus/dev numbers (e.g. after a replug) still resolve to the
// same logical Device when this holds, so callers should alias rather
// than clone.
func (d *Device) Equal(o *Device) bool {
	if d == nil || o == nil || d.DeviceDescriptor == nil || o.DeviceDescriptor == nil {
		return false
	}
	return d.IDVendor == o.IDVendor && d.IDProduct == o.IDProduct && d.BcdDevice == o.BcdDevice
}

// AddConfiguration appends cfg unless a configuration with the same id
// already exists with a non-empty interface list (a re-request
// completing a previously-truncated capture must not clobber good data
// with another short read).
func (d *Device) AddConfiguration(cfg *Configuration) {
	if existing, ok := d.Configurations[cfg.BConfigurationValue]; ok && len(existing.Interfaces) > 0 {
		return
	}
	d.Configurations[cfg.BConfigurationValue] = cfg
}

func (d *Device) String() string {
	return fmt.Sprintf("Device %.4X:%.4X rev %.4X, class=%s", d.IDVendor, d.IDProduct, d.BcdDevice, d.BDeviceClass)
}
