package urb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eightkbd/kbdctl/hid"
)

// reportDescriptorBytes declares report 84 as a 31-byte vendor input
// and report 82 as a 31-byte vendor output, the shape this pad's
// interface 2 actually exposes.
func reportDescriptorBytes() []byte {
	return []byte{
		0x06, 0x00, 0xFF, // Usage Page (vendor)
		0x09, 0x01, // Usage
		0xA1, 0x01, // Collection (Application)
		0x85, 0x54, //   Report ID (84)
		0x75, 0x08, //   Report Size (8)
		0x95, 0x1F, //   Report Count (31)
		0x15, 0x00, //   Logical Minimum (0)
		0x26, 0xFF, 0x00, //   Logical Maximum (255)
		0x09, 0x02, //   Usage (2)
		0x81, 0x02, //   Input
		0x85, 0x52, //   Report ID (82)
		0x95, 0x1F, //   Report Count (31)
		0x09, 0x03, //   Usage (3)
		0x91, 0x02, //   Output
		0xC0, // End Collection
	}
}

// configDescriptorBytes is a one-interface HID configuration: interface
// 2 with an Interrupt-In endpoint at address 0x83.
func configDescriptorBytes(reportDescLen int) []byte {
	return []byte{
		// configuration
		0x09, 0x02, 0x22, 0x00, 0x01, 0x01, 0x00, 0xA0, 0x32,
		// interface 2, class HID
		0x09, 0x04, 0x02, 0x00, 0x01, 0x03, 0x00, 0x00, 0x00,
		// HID class descriptor announcing the report descriptor
		0x09, 0x21, 0x11, 0x01, 0x00, 0x01, 0x22, uint8(reportDescLen), 0x00,
		// interrupt-in endpoint 0x83
		0x07, 0x05, 0x83, 0x03, 0x20, 0x00, 0x0A,
	}
}

// feedSession walks a context through the full enumeration a live
// capture shows: device, configuration, set-configuration, HID report
// descriptor.
func feedSession(t *testing.T, ctx *Context) {
	t.Helper()
	feedDeviceDescriptor(t, ctx)

	pair := func(usec int32, setup, payload []byte) *Decoded {
		_, err := ctx.Parse(buildRecord(t, submitHeader(TransferTypeControl, 0x80), setup, nil))
		require.NoError(t, err)
		d, err := ctx.Parse(buildRecord(t, completeHeader(TransferTypeControl, 0x80, usec), nil, payload))
		require.NoError(t, err)
		return d
	}

	rdesc := reportDescriptorBytes()
	cfg := configDescriptorBytes(len(rdesc))
	d := pair(2000, setupBytes(0x80, ReqGetDescriptor, 0x0200, 0, uint16(len(cfg))), cfg)
	assert.Contains(t, d.Text, "Configuration 1")

	d = pair(3000, setupBytes(0x00, ReqSetConfiguration, 0x0001, 0, 0), nil)
	assert.Contains(t, d.Text, "Set Configuration Response")

	d = pair(4000, setupBytes(0x81, ReqGetDescriptor, 0x2200, 2, uint16(len(rdesc))), rdesc)
	assert.Contains(t, d.Text, "HID Report Response")
}

func TestSessionDecodesInterruptReport(t *testing.T) {
	ctx := NewContext()
	feedSession(t, ctx)

	dev := ctx.Devices[DevMap{Bus: 1, Device: 5}]
	require.NotNil(t, dev)
	assert.Equal(t, uint8(1), dev.ActiveConfiguration)
	require.Contains(t, dev.HIDRoots, uint8(2))

	payload := make([]byte, 32)
	payload[0] = 0x54
	payload[1] = 0xE4
	payload[2] = 0x08
	d, err := ctx.Parse(buildRecord(t, completeHeader(TransferTypeInterrupt, 0x83, 9000), nil, payload))
	require.NoError(t, err)
	assert.Contains(t, d.Text, "HID Report In 84:")
	assert.Contains(t, d.Text, "E4 08")
}

func TestSessionReportSizesMatchDeclaredBytes(t *testing.T) {
	ctx := NewContext()
	feedSession(t, ctx)

	root := ctx.Devices[DevMap{Bus: 1, Device: 5}].HIDRoots[2]
	require.NotNil(t, root)

	// the sum of size x count over each report's items equals its
	// declared byte size, padding included
	in := hid.GetReports(root, hid.DirectionIn)
	require.Contains(t, in, uint8(0x54))
	assert.Equal(t, 31, in[0x54].ByteSize())

	out := hid.GetReports(root, hid.DirectionOut)
	require.Contains(t, out, uint8(0x52))
	assert.Equal(t, 31, out[0x52].ByteSize())
}
