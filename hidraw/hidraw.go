// Package hidraw is the live-device transport: it owns one raw-HID
// character device, decodes the device's report descriptor into the
// report-id indices the rest of the module works with, and provides the
// blocking-with-timeout listen loop every protocol exchange rides on.
package hidraw

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/eightkbd/kbdctl/hid"
	"github.com/eightkbd/kbdctl/internal/diag"
	"github.com/eightkbd/kbdctl/internal/kbderr"
)

// Device is an open raw-HID handle plus the report indices decoded from
// its report descriptor. Not safe for concurrent use; one operator
// drives one device.
type Device struct {
	fd   int
	path string

	Vendor    uint16
	Product   uint16
	Interface int

	Root       *hid.Collection
	InReports  map[uint8]*hid.Collection
	OutReports map[uint8]*hid.Collection
	AllReports map[uint8]*hid.Collection

	readBuf   []byte
	cancelled bool
}

// CacheFileName is the working-directory file the raw report descriptor
// is cached under for a given device identity.
func CacheFileName(vendor, product uint16, ifaceNum int) string {
	return fmt.Sprintf("%04x_%04x_%d.bin", vendor, product, ifaceNum)
}

// Open discovers the hidraw node for the identity triple, opens it
// non-blocking, and decodes its report descriptor. The descriptor is
// read from the on-disk cache when present (unless noCache), otherwise
// fetched from the kernel and written back to the cache.
func Open(vendor, product uint16, ifaceNum int, noCache bool) (*Device, error) {
	node, err := Discover(vendor, product, ifaceNum)
	if err != nil {
		return nil, err
	}
	fd, err := syscall.Open(node, syscall.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", node, err)
	}
	// the udev walk matched on properties; confirm the node itself
	// agrees before trusting its descriptor
	if vend, prod, err := getRawInfo(fd); err == nil && (vend != vendor || prod != product) {
		syscall.Close(fd)
		return nil, &kbderr.DeviceMissing{Vendor: vendor, Product: product, Interface: ifaceNum}
	}

	d := &Device{fd: fd, path: node, Vendor: vendor, Product: product, Interface: ifaceNum}

	desc, err := d.loadDescriptor(noCache)
	if err != nil {
		d.Close()
		return nil, err
	}
	if err := d.decodeDescriptor(desc); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// OpenCachedOnly builds a Device from the cached descriptor alone,
// without touching the OS. Write/Listen fail on such a device; it
// exists so packet generation and decode keep working when the keyboard
// is unplugged.
func OpenCachedOnly(vendor, product uint16, ifaceNum int) (*Device, error) {
	desc, err := os.ReadFile(CacheFileName(vendor, product, ifaceNum))
	if err != nil {
		return nil, &kbderr.DeviceMissing{Vendor: vendor, Product: product, Interface: ifaceNum}
	}
	d := &Device{fd: -1, Vendor: vendor, Product: product, Interface: ifaceNum}
	if err := d.decodeDescriptor(desc); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) loadDescriptor(noCache bool) ([]byte, error) {
	filename := CacheFileName(d.Vendor, d.Product, d.Interface)
	if !noCache {
		if desc, err := os.ReadFile(filename); err == nil {
			diag.Logger.Debug().Str("component", "hidraw").Str("file", filename).Msg("descriptor from cache")
			return desc, nil
		}
	}
	desc, err := getDescriptor(d.fd)
	if err != nil {
		return nil, fmt.Errorf("read report descriptor: %w", err)
	}
	if err := os.WriteFile(filename, desc, 0o644); err != nil {
		diag.Logger.Warn().Str("component", "hidraw").Err(err).Msg("descriptor cache not written")
	}
	return desc, nil
}

func (d *Device) decodeDescriptor(desc []byte) error {
	root, err := hid.Decode(desc)
	if err != nil {
		return err
	}
	d.Root = root
	d.OutReports = hid.GetReports(root, hid.DirectionOut)
	d.InReports = hid.GetReports(root, hid.DirectionIn)
	d.AllReports = make(map[uint8]*hid.Collection, len(d.OutReports)+len(d.InReports))
	largest := 0
	for id, col := range d.OutReports {
		d.AllReports[id] = col
		if s := col.ByteSize(); s > largest {
			largest = s
		}
	}
	for id, col := range d.InReports {
		d.AllReports[id] = col
		if s := col.ByteSize(); s > largest {
			largest = s
		}
	}
	d.readBuf = make([]byte, largest+1) // +1 for the report id byte
	return nil
}

// Close releases the file handle. Safe on a cache-only device.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := syscall.Close(d.fd)
	d.fd = -1
	return err
}

// ReportSize returns the declared payload byte size of a report.
func (d *Device) ReportSize(id uint8) (int, error) {
	col, ok := d.AllReports[id]
	if !ok {
		return 0, &kbderr.BadReportId{ReportID: id, Valid: hid.ValidReportIDs(d.AllReports)}
	}
	return col.ByteSize(), nil
}

// GenerateReport frames payload for a hidraw write: report id byte
// first, zero-padded to the report's declared size.
func (d *Device) GenerateReport(id uint8, payload []byte) ([]byte, error) {
	return hid.GenerateReport(id, d.AllReports, payload)
}

// Decode renders a received payload against the report tree, resolving
// the report's direction by which index it appears in.
func (d *Device) Decode(id uint8, payload []byte) (string, error) {
	if _, ok := d.OutReports[id]; ok {
		return hid.DecodeReport(id, d.OutReports, payload)
	}
	if _, ok := d.InReports[id]; ok {
		return hid.DecodeReport(id, d.InReports, payload)
	}
	return "", &kbderr.BadReportId{ReportID: id, Valid: hid.ValidReportIDs(d.AllReports)}
}

// Write sends one framed report to the device. The kernel enforces
// report sizing.
func (d *Device) Write(buf []byte) (int, error) {
	return syscall.Write(d.fd, buf)
}

// Read pulls one report off the handle. The handle is non-blocking, so
// callers wanting to wait go through Listen instead.
func (d *Device) Read() ([]byte, error) {
	n, err := syscall.Read(d.fd, d.readBuf)
	if err != nil {
		return nil, err
	}
	return d.readBuf[:n], nil
}

// selectRead waits for the handle to go readable within timeout.
// Returns false on timeout or an interrupted syscall.
func (d *Device) selectRead(timeout time.Duration) bool {
	var set syscall.FdSet
	set.Bits[d.fd/64] |= 1 << uint(d.fd%64)
	tv := syscall.NsecToTimeval(timeout.Nanoseconds())
	n, err := syscall.Select(d.fd+1, &set, nil, nil, &tv)
	if err != nil || n <= 0 {
		return false
	}
	return true
}

// Cancel makes the current and any future Listen return false at its
// next iteration, mirroring an operator interrupt.
func (d *Device) Cancel() { d.cancelled = true }

// Listen is the cooperative receive loop: it waits on the handle with
// the per-iteration timeout and hands each received report to cb as
// (reportID, payload-without-id). cb returning false stops the loop.
// count limits how many reports are consumed; count < 0 is unbounded.
// Listen returns true when cb ended the loop and false on timeout or
// cancellation.
func (d *Device) Listen(count int, timeout time.Duration, cb func(reportID uint8, payload []byte) bool) bool {
	for count != 0 {
		if d.cancelled {
			return false
		}
		if !d.selectRead(timeout) {
			return false
		}
		buf, err := d.Read()
		if err != nil {
			if err == syscall.EINTR || err == syscall.EAGAIN {
				continue
			}
			return false
		}
		if len(buf) > 0 {
			if !cb(buf[0], buf[1:]) {
				break
			}
		}
		if count > 0 {
			count--
		}
	}
	return true
}
