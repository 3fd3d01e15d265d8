package urb

import (
	"fmt"

	usb "github.com/eightkbd/kbdctl"
	"github.com/eightkbd/kbdctl/hid"
)

// Device extends the generic usb.Device with the HID report trees
// decoded for each of its interfaces, so interrupt traffic on any
// endpoint can be rendered without re-requesting the report
// descriptor.
type Device struct {
	*usb.Device
	// HIDRoots is keyed by interface number; populated as each
	// interface's GET_DESCRIPTOR(HID_Report) response is observed.
	HIDRoots map[uint8]*hid.Collection
}

func newDevice(desc *usb.DeviceDescriptor) *Device {
	return &Device{Device: usb.NewDevice(desc), HIDRoots: map[uint8]*hid.Collection{}}
}

// reportsFor returns the direction-filtered report index for the
// interface owning the endpoint address ep (direction bit included) in
// the device's active configuration, or nil if no HID report descriptor
// has been decoded for it yet.
func (d *Device) reportsFor(ep uint8, in bool) map[uint8]*hid.Collection {
	cfg, ok := d.Configurations[d.ActiveConfiguration]
	if !ok {
		return nil
	}
	ifaceNum, ok := cfg.EndpointOwner[ep]
	if !ok {
		return nil
	}
	root, ok := d.HIDRoots[ifaceNum]
	if !ok {
		return nil
	}
	dir := hid.DirectionOut
	if in {
		dir = hid.DirectionIn
	}
	return hid.GetReports(root, dir)
}

func (d *Device) String() string {
	return fmt.Sprintf("Vendor: %.4X Product: %.4X Device Ver.: %.4X Class: %s Configurations: %d",
		d.IDVendor, d.IDProduct, d.BcdDevice, d.BDeviceClass, len(d.Configurations))
}
