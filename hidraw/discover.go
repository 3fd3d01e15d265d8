package hidraw

import (
	"fmt"
	"strconv"
	"strings"

	udev "github.com/jochenvg/go-udev"

	"github.com/eightkbd/kbdctl/internal/diag"
	"github.com/eightkbd/kbdctl/internal/kbderr"
)

// Discover finds the /dev/hidrawN node belonging to the HID interface
// ifaceNum of the USB device vendor:product. Each hidraw node's parent
// chain is hidraw -> hid-generic -> usb_interface -> usb_device; the
// usb_device carries the vendor/model udev properties, and the
// usb_interface's DEVPATH ends in ".<interface number>".
func Discover(vendor, product uint16, ifaceNum int) (string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("hidraw"); err != nil {
		return "", err
	}
	devices, err := e.Devices()
	if err != nil {
		return "", err
	}

	wantVendor := fmt.Sprintf("%04x", vendor)
	wantProduct := fmt.Sprintf("%04x", product)

	for _, dev := range devices {
		usbIface := parentN(dev, 2)
		usbDev := parentN(dev, 3)
		if usbIface == nil || usbDev == nil {
			continue
		}
		if usbDev.PropertyValue("ID_VENDOR_ID") != wantVendor ||
			usbDev.PropertyValue("ID_MODEL_ID") != wantProduct {
			continue
		}
		num, ok := interfaceFromDevpath(usbIface.PropertyValue("DEVPATH"))
		if !ok || num != ifaceNum {
			continue
		}
		diag.Logger.Debug().
			Str("component", "hidraw").
			Str("node", dev.Devnode()).
			Int("interface", num).
			Msg("matched hidraw node")
		return dev.Devnode(), nil
	}
	return "", &kbderr.DeviceMissing{Vendor: vendor, Product: product, Interface: ifaceNum}
}

func parentN(dev *udev.Device, n int) *udev.Device {
	for i := 0; i < n && dev != nil; i++ {
		dev = dev.Parent()
	}
	return dev
}

// interfaceFromDevpath parses the trailing ".<N>" of a usb_interface
// DEVPATH, e.g. ".../1-3:1.2" -> 2.
func interfaceFromDevpath(devpath string) (int, bool) {
	idx := strings.LastIndexByte(devpath, '.')
	if idx < 0 || idx == len(devpath)-1 {
		return 0, false
	}
	num, err := strconv.Atoi(devpath[idx+1:])
	if err != nil {
		return 0, false
	}
	return num, true
}
