package kbd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eightkbd/kbdctl/keys"
)

func TestNewKeyMappingNormalizesModifierTargets(t *testing.T) {
	// Assigning a key to a bare modifier moves the code into the
	// modifier slot.
	m, err := NewKeyMapping(0xE0, 0)
	require.NoError(t, err)
	assert.Equal(t, KeyMapping{ModKey: 0xE0, ToKey: 0}, m)

	// Normalization is idempotent: feeding the normalized form back in
	// yields the same mapping.
	again, err := NewKeyMapping(m.ToKey, m.ModKey)
	require.NoError(t, err)
	assert.Equal(t, m, again)
}

func TestNewKeyMappingValidation(t *testing.T) {
	_, err := NewKeyMapping(0xE0, 0xE1)
	assert.Error(t, err, "a modifier target can't also carry a modifier")

	_, err = NewKeyMapping(0x05, 0x06)
	assert.Error(t, err, "the modifier slot only takes modifier codes")

	_, err = NewKeyMapping(0x02, 0)
	assert.Error(t, err, "the error codes 0x01..0x03 are unassignable")

	m, err := NewKeyMapping(0, 0)
	require.NoError(t, err)
	assert.True(t, m.IsDisabled())
}

func TestKeyMappingSetPacket(t *testing.T) {
	m, err := NewKeyMapping(0x05, 0xE0) // left-control + b
	require.NoError(t, err)
	pkt := m.SetPacket(0x04, testPacketLen)
	require.Len(t, pkt, testPacketLen)
	assert.Equal(t, []byte{0xFA, 0x03, 0x0C, 0x00, 0xAA, 0x09, 0x71, 0x04, 0x07, 0xE0, 0x05}, pkt[:11])
	for _, b := range pkt[11:] {
		assert.Zero(t, b)
	}
}

func TestKeyMappingString(t *testing.T) {
	disabled := KeyMapping{}
	assert.Equal(t, keys.DisableName, disabled.String())

	modOnly, _ := NewKeyMapping(0xE0, 0)
	assert.Equal(t, "left-control", modOnly.String())

	combo, _ := NewKeyMapping(0x05, 0xE0)
	assert.Equal(t, "left-control+b", combo.String())
}

func TestProfileSetAllDefault(t *testing.T) {
	p, err := NewProfile("", testPacketLen)
	require.NoError(t, err)
	p.SetAllDefault()

	assert.Empty(t, p.Macros)
	assert.Len(t, p.Keys, len(keys.DeviceKeys()))

	// alphanumerics map to themselves
	assert.Equal(t, KeyMapping{ToKey: 0x04}, p.Keys[0x04])
	// the device's modifier slots map to the HUT modifiers
	assert.Equal(t, KeyMapping{ModKey: 0xE0}, p.Keys[0x64])
	// device-local keys with no HUT equivalent default to disabled
	assert.True(t, p.Keys[0x6E].IsDisabled())
}

func TestProfileNamePacket(t *testing.T) {
	p, err := NewProfile("A b", testPacketLen)
	require.NoError(t, err)
	pkt := p.NamePacket()
	assert.True(t, pkt.WantAck)
	require.Len(t, pkt.Data, testPacketLen)
	assert.Equal(t, []byte{0x70, 0x06, 0x00, 0x00, 0x41, 0x20, 0x00, 0x00, 0x62}, pkt.Data[:9])
}

func TestProfileAllPacketsOrdersAndAcks(t *testing.T) {
	p, err := NewProfile("x", testPacketLen)
	require.NoError(t, err)

	mapping, err := NewKeyMapping(0x06, 0)
	require.NoError(t, err)
	p.SetKey(0x05, mapping)

	var events []Event
	for i := 0; i < 40; i++ {
		events = append(events, Event{Action: EventPress, Arg: 0x04})
	}
	m := testMacro(t, "big", 1, events)
	p.SetMacro(0x04, m)

	packets, err := p.AllPackets(true)
	require.NoError(t, err)

	// name, key, macro name, then the body chunks
	assert.Equal(t, uint8(cmdSetName), packets[0].Data[0])
	assert.Equal(t, uint8(0xFA), packets[1].Data[0])
	assert.Equal(t, uint8(cmdSetMacroName), packets[2].Data[0])
	for _, pkt := range packets[3 : len(packets)-1] {
		assert.Equal(t, uint8(cmdSetMacro), pkt.Data[0])
		assert.False(t, pkt.WantAck, "intermediate body chunks carry no acknowledgement")
	}
	assert.True(t, packets[len(packets)-1].WantAck, "the final body chunk does")
}
