package urb

import (
	"bytes"
	"encoding/binary"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRecord assembles a mon_bin record from its parts: the fixed
// header, the 8-byte setup-or-iso union, a zeroed tail, and the
// payload.
func buildRecord(t *testing.T, hdr Header, setup []byte, payload []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.LittleEndian, hdr))
	if setup == nil {
		setup = make([]byte, unionSize)
	}
	require.Len(t, setup, unionSize)
	buf.Write(setup)
	buf.Write(make([]byte, tailSize))
	buf.Write(payload)
	return buf.Bytes()
}

func setupBytes(bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, SetupPacket{
		BmRequestType: bmRequestType,
		BRequest:      bRequest,
		WValue:        wValue,
		WIndex:        wIndex,
		WLength:       wLength,
	})
	return buf.Bytes()
}

// deviceDescriptorBytes is the pad's 18-byte device descriptor:
// vendor 2DC8, product 5200.
func deviceDescriptorBytes() []byte {
	return []byte{
		0x12, 0x01, // length, type
		0x00, 0x02, // bcdUSB 2.00
		0x00, 0x00, 0x00, // class, subclass, protocol
		0x40,       // max packet size
		0xC8, 0x2D, // vendor
		0x00, 0x52, // product
		0x00, 0x01, // bcdDevice
		0x01, 0x02, 0x03, // string indices
		0x01, // num configurations
	}
}

func submitHeader(xfer TransferType, epnum uint8) Header {
	return Header{
		ID:        1,
		Type:      RecordTypeSubmit,
		XferType:  xfer,
		Epnum:     epnum,
		Devnum:    5,
		Busnum:    1,
		FlagSetup: flagSetupPresent,
		FlagData:  '-',
		TSSec:     100,
		TSUsec:    0,
		Status:    -int32(syscall.EINPROGRESS),
	}
}

func completeHeader(xfer TransferType, epnum uint8, usec int32) Header {
	return Header{
		ID:        1,
		Type:      RecordTypeComplete,
		XferType:  xfer,
		Epnum:     epnum,
		Devnum:    5,
		Busnum:    1,
		FlagSetup: '-',
		FlagData:  flagDataPresent,
		TSSec:     100,
		TSUsec:    usec,
	}
}

func feedDeviceDescriptor(t *testing.T, ctx *Context) (submitLine, completeLine *Decoded) {
	t.Helper()
	setup := setupBytes(0x80, ReqGetDescriptor, 0x0100, 0, 0x12)

	submit := buildRecord(t, submitHeader(TransferTypeControl, 0x80), setup, nil)
	d1, err := ctx.Parse(submit)
	require.NoError(t, err)

	complete := buildRecord(t, completeHeader(TransferTypeControl, 0x80, 1500), nil, deviceDescriptorBytes())
	d2, err := ctx.Parse(complete)
	require.NoError(t, err)
	return d1, d2
}

func TestContextInsertsDeviceFromDescriptorPair(t *testing.T) {
	ctx := NewContext()
	d1, d2 := feedDeviceDescriptor(t, ctx)

	assert.Contains(t, d1.Text, "Get Descriptor Device")

	key := DevMap{Bus: 1, Device: 5}
	dev, ok := ctx.Devices[key]
	require.True(t, ok, "the descriptor pair must insert a device at (bus, dev)")
	assert.Equal(t, uint16(0x2DC8), dev.IDVendor)
	assert.Equal(t, uint16(0x5200), dev.IDProduct)
	assert.Contains(t, d2.Text, "Vendor: 2DC8 Product: 5200")

	// the Complete's offset is measured from the first record seen
	assert.Equal(t, "0.001500", d2.String()[:8])
}

func TestContextAliasesDuplicateDevice(t *testing.T) {
	ctx := NewContext()
	feedDeviceDescriptor(t, ctx)
	first := ctx.Devices[DevMap{Bus: 1, Device: 5}]

	// the same identity shows up replugged at a new device number
	setup := setupBytes(0x80, ReqGetDescriptor, 0x0100, 0, 0x12)
	submit := submitHeader(TransferTypeControl, 0x80)
	submit.Devnum = 9
	_, err := ctx.Parse(buildRecord(t, submit, setup, nil))
	require.NoError(t, err)
	complete := completeHeader(TransferTypeControl, 0x80, 2000)
	complete.Devnum = 9
	_, err = ctx.Parse(buildRecord(t, complete, nil, deviceDescriptorBytes()))
	require.NoError(t, err)

	second, ok := ctx.Devices[DevMap{Bus: 1, Device: 9}]
	require.True(t, ok)
	assert.Same(t, first, second, "an equal device aliases rather than clones")
}

func TestContextRemovesDeviceOnENOENT(t *testing.T) {
	ctx := NewContext()
	feedDeviceDescriptor(t, ctx)
	key := DevMap{Bus: 1, Device: 5}
	require.Contains(t, ctx.Devices, key)
	require.NotEmpty(t, ctx.GetState())

	gone := completeHeader(TransferTypeControl, 0x80, 3000)
	gone.Status = -int32(syscall.ENOENT)
	d, err := ctx.Parse(buildRecord(t, gone, nil, nil))
	require.NoError(t, err)
	assert.Contains(t, d.Text, "Removing")
	assert.NotContains(t, ctx.Devices, key)
	assert.Empty(t, ctx.GetState(), "state records for a lost device are dropped")

	// traffic for the lost device decodes without crashing
	after := buildRecord(t, completeHeader(TransferTypeInterrupt, 0x83, 4000), nil, []byte{0x01})
	d, err = ctx.Parse(after)
	require.NoError(t, err)
	assert.Contains(t, d.Text, "Device not found")
}

func TestContextStateRoundTrip(t *testing.T) {
	ctx := NewContext()
	feedDeviceDescriptor(t, ctx)
	state := ctx.GetState()
	require.Len(t, state, 2)

	replayed := NewContext()
	require.NoError(t, replayed.SetState(state))
	dev, ok := replayed.Devices[DevMap{Bus: 1, Device: 5}]
	require.True(t, ok)
	assert.Equal(t, uint16(0x2DC8), dev.IDVendor)
}

func TestContextInterruptClassification(t *testing.T) {
	ctx := NewContext()
	feedDeviceDescriptor(t, ctx)

	// an empty interrupt after a control transfer is a plain heartbeat
	d, err := ctx.Parse(buildRecord(t, completeHeader(TransferTypeInterrupt, 0x83, 5000), nil, nil))
	require.NoError(t, err)
	assert.Contains(t, d.Text, "Interrupt In No Data")

	// the next empty one in the same direction acknowledges it
	d, err = ctx.Parse(buildRecord(t, completeHeader(TransferTypeInterrupt, 0x83, 6000), nil, nil))
	require.NoError(t, err)
	assert.Contains(t, d.Text, "Interrupt In Acknowledge")

	// a payload with no report tree decoded yet dumps as Unknown
	d, err = ctx.Parse(buildRecord(t, completeHeader(TransferTypeInterrupt, 0x83, 7000), nil, []byte{0x54, 0xE4, 0x08}))
	require.NoError(t, err)
	assert.Contains(t, d.Text, "Interrupt In Unknown")
}

func TestContextUnsupportedControlResponse(t *testing.T) {
	ctx := NewContext()
	feedDeviceDescriptor(t, ctx)

	// a vendor request this decoder doesn't know: never fatal
	setup := setupBytes(0x40, 0x42, 0, 0, 0)
	_, err := ctx.Parse(buildRecord(t, submitHeader(TransferTypeControl, 0), setup, nil))
	require.NoError(t, err)
	d, err := ctx.Parse(buildRecord(t, completeHeader(TransferTypeControl, 0, 8000), nil, nil))
	require.NoError(t, err)
	assert.Contains(t, d.Text, "Unsupported Control Response")
}

func TestParseRejectsShortRecord(t *testing.T) {
	_, err := Parse(make([]byte, FixedSize-1))
	assert.Error(t, err)
}
