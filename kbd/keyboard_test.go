package kbd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eightkbd/kbdctl/internal/kbderr"
)

// fakeTransport scripts the device side of an exchange: every framed
// write is recorded, and Listen drains a queue of canned report-84
// payloads.
type fakeTransport struct {
	written   [][]byte
	responses [][]byte
}

func (f *fakeTransport) pushResponse(payload ...byte) {
	buf := make([]byte, testPacketLen)
	copy(buf, payload)
	f.responses = append(f.responses, buf)
}

func (f *fakeTransport) GenerateReport(id uint8, payload []byte) ([]byte, error) {
	buf := make([]byte, 1+testPacketLen)
	buf[0] = id
	copy(buf[1:], payload)
	return buf, nil
}

func (f *fakeTransport) Write(buf []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), buf...))
	return len(buf), nil
}

func (f *fakeTransport) Listen(count int, timeout time.Duration, cb func(uint8, []byte) bool) bool {
	for count != 0 {
		if len(f.responses) == 0 {
			return false // queue exhausted reads as a timeout
		}
		payload := f.responses[0]
		f.responses = f.responses[1:]
		if !cb(InID, payload) {
			return true
		}
		if count > 0 {
			count--
		}
	}
	return true
}

func (f *fakeTransport) Decode(id uint8, payload []byte) (string, error) { return "", nil }

func (f *fakeTransport) ReportSize(id uint8) (int, error) { return testPacketLen, nil }

func newTestKeyboard(t *testing.T) (*Keyboard, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	k, err := NewKeyboard(ft, false)
	require.NoError(t, err)
	return k, ft
}

func TestSetKeyEmitsSingleMappingPacket(t *testing.T) {
	k, ft := newTestKeyboard(t)
	require.NoError(t, k.SetKey(0x04, 0x05, 0xE0)) // a -> left-control+b

	ft.pushResponse(0xE4, 0x08)
	require.NoError(t, k.Submit(false))

	require.Len(t, ft.written, 1)
	want := []byte{0x52, 0xFA, 0x03, 0x0C, 0x00, 0xAA, 0x09, 0x71, 0x04, 0x07, 0xE0, 0x05}
	assert.Equal(t, want, ft.written[0][:12])
	for _, b := range ft.written[0][12:] {
		assert.Zero(t, b)
	}
}

func TestSubmitRejectsNonSuccessResponse(t *testing.T) {
	k, ft := newTestKeyboard(t)
	require.NoError(t, k.SetKey(0x04, 0x05, 0))

	ft.pushResponse(0xE4, 0x01)
	err := k.Submit(false)
	var nonSuccess *kbderr.DeviceNonSuccess
	require.ErrorAs(t, err, &nonSuccess)
	assert.Equal(t, []byte{0xE4, 0x01}, nonSuccess.Got)
}

func TestSubmitTimesOutWithoutResponse(t *testing.T) {
	k, _ := newTestKeyboard(t)
	require.NoError(t, k.SetKey(0x04, 0x05, 0))

	err := k.Submit(false)
	var timeout *kbderr.Timeout
	require.ErrorAs(t, err, &timeout)
}

func TestRedundantEditsEmitNothing(t *testing.T) {
	k, ft := newTestKeyboard(t)

	// the device already maps a -> disabled
	k.Current.SetKey(0x04, MapDisabled)
	require.NoError(t, k.SetKey(0x04, 0, 0))

	require.NoError(t, k.Submit(false))
	assert.Empty(t, ft.written, "an edit matching the current profile must not be sent")
}

func TestUnchangedNameEmitsNoNamePacket(t *testing.T) {
	k, _ := newTestKeyboard(t)
	packets, err := k.Packets()
	require.NoError(t, err)
	assert.Empty(t, packets)

	require.NoError(t, k.SetName("renamed"))
	packets, err = k.Packets()
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, uint8(cmdSetName), packets[0].Data[0])
}

func TestSetMacroDisablesMappedKey(t *testing.T) {
	k, _ := newTestKeyboard(t)
	mapping, err := NewKeyMapping(0x05, 0)
	require.NoError(t, err)
	k.Current.SetKey(0x04, mapping)

	require.NoError(t, k.SetMacro(0x04, "m", 1, []Event{{Action: EventPress, Arg: 0x06}}))
	assert.Equal(t, MapDisabled, k.New.Keys[0x04],
		"the official software disables a mapped key when a macro lands on it")
}

func TestSetKeyDeletesExistingMacro(t *testing.T) {
	k, _ := newTestKeyboard(t)
	m := testMacro(t, "m", 1, []Event{{Action: EventPress, Arg: 0x06}})
	k.Current.SetMacro(0x04, m)

	require.NoError(t, k.SetKey(0x04, 0x05, 0))
	require.Contains(t, k.New.Macros, uint8(0x04))
	assert.Zero(t, k.New.Macros[0x04].Repeats, "a mapping edit stages the macro's deletion")
}

func TestSetMacroRenameCollapsesToNameOnly(t *testing.T) {
	k, _ := newTestKeyboard(t)
	events := []Event{{Action: EventPress, Arg: 0x06}}
	existing := testMacro(t, "old", 2, events)
	k.Current.SetMacro(0x04, existing)

	require.NoError(t, k.SetMacro(0x04, "new", 2, events))
	staged := k.New.Macros[0x04]
	require.NotNil(t, staged)
	assert.Empty(t, staged.Events, "same events under a new name is a one-packet rename")
	assert.Equal(t, "new", staged.Name)

	// a macro identical in name and data stages nothing
	k2, _ := newTestKeyboard(t)
	k2.Current.SetMacro(0x04, existing)
	require.NoError(t, k2.SetMacro(0x04, "old", 2, events))
	assert.Empty(t, k2.New.Macros)
}

func TestMacroSubmitExpectsTwoAcks(t *testing.T) {
	k, ft := newTestKeyboard(t)
	// external-ya (0x6E) has no default mapping, so no mapping-disable
	// packet precedes the macro's own two
	require.NoError(t, k.SetMacro(0x6E, "m", 10, []Event{
		{Action: EventPress, Arg: 0x04},
		{Action: EventDelay, Arg: 100},
		{Action: EventRelease, Arg: 0x04},
		{Action: EventDelay, Arg: 100},
	}))

	ft.pushResponse(0xE4, 0x08) // after the name packet
	ft.pushResponse(0xE4, 0x08) // after the final body chunk
	require.NoError(t, k.Submit(false))

	require.Len(t, ft.written, 2)
	assert.Equal(t, uint8(cmdSetMacroName), ft.written[0][1])
	assert.Equal(t, uint8(cmdSetMacro), ft.written[1][1])
	assert.Empty(t, ft.responses, "both acknowledgements must be consumed")
}

func TestSubmitTestModeWritesNothing(t *testing.T) {
	k, ft := newTestKeyboard(t)
	require.NoError(t, k.SetKey(0x04, 0x05, 0))
	require.NoError(t, k.Submit(true))
	assert.Empty(t, ft.written)
}

func TestReadProfile(t *testing.T) {
	ft := &fakeTransport{}

	// GET_NAME: opcode echo, length, UTF-16BE "Hi"
	ft.pushResponse(cmdGetName, 4, 0, 0x00, 'H', 0x00, 'i')
	// GET_KEYS: one record naming key 0x04, zero-terminated
	ft.pushResponse(cmdGetKeys, 0x04, 0x00)
	// GET_MACROS: one record naming key 0x05, zero-terminated
	ft.pushResponse(cmdGetMacros, 0x05, 0x00, 0x00, 0x00)
	// GET_KEY 0x04: keyboard mapping left-control+b
	ft.pushResponse(cmdGetKey, 0x04, SetTypeKbd, 0xE0, 0x05)
	// GET_MACRO_NAME 0x05: UTF-16BE "M"
	ft.pushResponse(cmdGetMacroName, 0x05, 2, 0, 0x00, 'M')
	// GET_MACRO 0x05: one chunk, repeats 10, press/release of 'a'
	ft.pushResponse(cmdGetMacro, 0x05, 0x00, 0x00, 0x00, 10,
		0x01, 0x0A, 0x00, 0x02,
		0x81, 0x04, 0x00,
		0x01, 0x04, 0x00)

	k, err := NewKeyboard(ft, true)
	require.NoError(t, err)

	assert.Equal(t, "Hi", k.Current.Name)
	assert.Equal(t, KeyMapping{ModKey: 0xE0, ToKey: 0x05}, k.Current.Keys[0x04])

	macro := k.Current.Macros[0x05]
	require.NotNil(t, macro)
	assert.Equal(t, "M", macro.Name)
	assert.Equal(t, uint16(10), macro.Repeats)
	assert.Equal(t, []Event{
		{Action: EventPress, Arg: 0x04},
		{Action: EventRelease, Arg: 0x04},
	}, macro.Events)

	// six exchanges: name, key list, macro list, mapping, macro name,
	// macro body
	assert.Len(t, ft.written, 6)
}

func TestReadProfileRejectsMouseMapping(t *testing.T) {
	ft := &fakeTransport{}
	ft.pushResponse(cmdGetName, 0, 0)
	ft.pushResponse(cmdGetKeys, 0x04, 0x00)
	ft.pushResponse(cmdGetMacros, 0x00)
	ft.pushResponse(cmdGetKey, 0x04, SetTypeMouse, 0x00, 0x01)

	_, err := NewKeyboard(ft, true)
	var unsupported *kbderr.UnsupportedMappingType
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, uint8(SetTypeMouse), unsupported.SetType)
}

func TestReadProfileRefusesOutOfOrderMacroChunks(t *testing.T) {
	ft := &fakeTransport{}
	ft.pushResponse(cmdGetName, 0, 0)
	ft.pushResponse(cmdGetKeys, 0x00)
	ft.pushResponse(cmdGetMacros, 0x05, 0x00, 0x00, 0x00)
	ft.pushResponse(cmdGetMacroName, 0x05, 0, 0)
	// first macro chunk claims pos 9 instead of 0
	ft.pushResponse(cmdGetMacro, 0x05, 0x01, 0x09, 0x00, 3, 0x01, 0x00, 0x00)

	_, err := NewKeyboard(ft, true)
	var order *kbderr.BadMacroChunkOrder
	require.ErrorAs(t, err, &order)
}
