package hid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A minimal two-report vendor-page descriptor: one application
// collection declaring report id 1 with eight 8-bit input fields and
// report id 2 with one 8-bit output field. The report id is carried by
// the Report ID global item, not by a field.
func sampleDescriptorBytes() []byte {
	return []byte{
		0x06, 0x00, 0xFF, // Usage Page (vendor, 0xFF00)
		0x09, 0x01, // Usage (1)
		0xA1, 0x01, // Collection (Application)
		0x85, 0x01, //   Report ID (1)
		0x75, 0x08, //   Report Size (8)
		0x95, 0x08, //   Report Count (8)
		0x15, 0x00, //   Logical Minimum (0)
		0x26, 0xFF, 0x00, //   Logical Maximum (255)
		0x09, 0x02, //   Usage (2)
		0x81, 0x02, //   Input (Data,Var,Abs)
		0x85, 0x02, //   Report ID (2)
		0x75, 0x08, //   Report Size (8)
		0x95, 0x01, //   Report Count (1)
		0x09, 0x03, //   Usage (3)
		0x91, 0x02, //   Output (Data,Var,Abs)
		0xC0, // End Collection
	}
}

func TestDecodeBuildsReportIDIndex(t *testing.T) {
	root, err := Decode(sampleDescriptorBytes())
	require.NoError(t, err)

	in := GetReports(root, DirectionIn)
	out := GetReports(root, DirectionOut)

	require.Contains(t, in, uint8(1))
	require.Contains(t, out, uint8(2))
	assert.NotContains(t, in, uint8(2))
	assert.NotContains(t, out, uint8(1))

	assert.Equal(t, 8, in[1].ByteSize())
	assert.Equal(t, 1, out[2].ByteSize())
}

func TestDecodeUsageComposition(t *testing.T) {
	root, err := Decode(sampleDescriptorBytes())
	require.NoError(t, err)

	in := GetReports(root, DirectionIn)
	// the index is rooted at the synthetic root; its first child is the
	// application collection
	item := in[1].Children[0].(*Collection).Children[0].(*ReportItem)
	require.Len(t, item.UsageList, 1)
	assert.Equal(t, uint32(0xFF000002), item.UsageList[0])
}

func TestDecodePushPopRestoresGlobalStateOnly(t *testing.T) {
	data := []byte{
		0x85, 0x05, // Report ID (5)
		0x75, 0x08, // Report Size (8)
		0x95, 0x01, // Report Count (1)
		0xA4,       // Push
		0x75, 0x01, // Report Size (1)   (shadowed inside push)
		0xB4,       // Pop -- restores Report Size back to 8
		0x09, 0x04, // Usage (4)
		0x81, 0x02, // Input
	}
	root, err := Decode(data)
	require.NoError(t, err)
	in := GetReports(root, DirectionIn)
	item := in[5].Children[0].(*ReportItem)
	assert.Equal(t, 8, item.BitSize, "Pop must restore the global report size saved by Push")
}

func TestDecodeConstantItemsCarryNoUsage(t *testing.T) {
	data := []byte{
		0x85, 0x07,
		0x75, 0x03,
		0x95, 0x01,
		0x81, 0x01, // Input (Constant) -- 3 bits of padding
		0x75, 0x05,
		0x95, 0x01,
		0x09, 0x01,
		0x81, 0x02, // Input (Data,Var,Abs) -- 5 bits
	}
	root, err := Decode(data)
	require.NoError(t, err)
	in := GetReports(root, DirectionIn)
	col := in[7]
	require.Len(t, col.Children, 2)

	constant := col.Children[0].(*ReportItem)
	assert.True(t, constant.IsConstant())
	assert.Empty(t, constant.UsageList)

	variable := col.Children[1].(*ReportItem)
	assert.False(t, variable.IsConstant())
	assert.Equal(t, []uint32{0x00000001}, variable.UsageList)

	assert.Equal(t, 8, col.BitSize(), "padding bits must still count toward the report's declared size")
}

func TestExtractByteAlignedIsIdentity(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04}
	got := Extract(buf, 1, 0, 16)
	assert.Equal(t, []byte{0x02, 0x03}, got)
}

func TestExtractSubByteKeepsTopBitsLeftAligned(t *testing.T) {
	// A single byte 0b10110101: a 4-bit field at bit 0 is the byte's top
	// nibble, returned left-aligned with the trailing bits zeroed.
	buf := []byte{0b10110101}
	got := Extract(buf, 0, 0, 4)
	require.Len(t, got, 1)
	assert.Equal(t, byte(0b10110000), got[0])
}

func TestExtractSpansBytesAtBitOffset(t *testing.T) {
	// 4 bits consumed from the top of the first byte: the field is the
	// low nibble of buf[0] followed by the high nibble of buf[1].
	buf := []byte{0b11110101, 0b10100000}
	got := Extract(buf, 0, 4, 8)
	require.Len(t, got, 1)
	assert.Equal(t, byte(0b01011010), got[0])
}

func TestExtractOutOfRangeBitsStayZero(t *testing.T) {
	buf := []byte{0xFF}
	got := Extract(buf, 0, 4, 8)
	// Only the low 4 bits of buf[0] remain within range; they land
	// left-aligned and the rest defaults to zero rather than panicking
	// on a short buffer.
	assert.Equal(t, []byte{0xF0}, got)
}
