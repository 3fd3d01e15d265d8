package hidraw

// From /usr/include/linux/hidraw.h

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// hidMaxDescriptorSize mirrors HID_MAX_DESCRIPTOR_SIZE in
// include/linux/hid.h.
const hidMaxDescriptorSize = 4096

type (
	hidrawReportDescriptor struct {
		Size  uint32
		Value [hidMaxDescriptorSize]byte
	}

	hidrawDevinfo struct {
		Bustype uint32
		Vendor  int16
		Product int16
	}
)

var (
	ctl_hidiocgdescsize = ioctl.IOR('H', 0x01, unsafe.Sizeof(int32(0)))
	ctl_hidiocgrdesc    = ioctl.IOR('H', 0x02, unsafe.Sizeof(hidrawReportDescriptor{}))
	ctl_hidiocgrawinfo  = ioctl.IOR('H', 0x03, unsafe.Sizeof(hidrawDevinfo{}))
)

// getDescriptorSize reads the report descriptor's byte length from the
// kernel.
func getDescriptorSize(fd int) (int, error) {
	var size int32
	if err := ioctl.Ioctl(uintptr(fd), ctl_hidiocgdescsize, uintptr(unsafe.Pointer(&size))); err != nil {
		return 0, err
	}
	return int(size), nil
}

// getDescriptor reads the raw report descriptor bytes from the kernel.
func getDescriptor(fd int) ([]byte, error) {
	size, err := getDescriptorSize(fd)
	if err != nil {
		return nil, err
	}
	buf := hidrawReportDescriptor{Size: uint32(size)}
	if err := ioctl.Ioctl(uintptr(fd), ctl_hidiocgrdesc, uintptr(unsafe.Pointer(&buf))); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, buf.Value[:size])
	return out, nil
}

// getRawInfo reads the bus type and vendor/product ids of the node.
func getRawInfo(fd int) (vendor, product uint16, err error) {
	var info hidrawDevinfo
	if err := ioctl.Ioctl(uintptr(fd), ctl_hidiocgrawinfo, uintptr(unsafe.Pointer(&info))); err != nil {
		return 0, 0, err
	}
	return uint16(info.Vendor), uint16(info.Product), nil
}
