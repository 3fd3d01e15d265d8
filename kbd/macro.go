package kbd

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/eightkbd/kbdctl/internal/kbderr"
	"github.com/eightkbd/kbdctl/keys"
)

// EventAction is the wire code of one macro event.
type EventAction uint8

const (
	EventDelay      EventAction = 0x0F
	EventPress      EventAction = 0x81
	EventRelease    EventAction = 0x01
	EventModPress   EventAction = 0x83
	EventModRelease EventAction = 0x03
)

// Event is one step of a macro: a delay in milliseconds or a key (or
// modifier) going down or up.
type Event struct {
	Action EventAction
	// Arg is milliseconds for EventDelay, a HUT usage id otherwise.
	Arg uint16
}

func (e Event) String() string {
	keyName := func() string {
		name, ok := keys.NameFromHUTCode(uint8(e.Arg))
		if !ok {
			return fmt.Sprintf("0x%02X", e.Arg)
		}
		return name
	}
	switch e.Action {
	case EventDelay:
		return fmt.Sprintf("Delay: %d ms", e.Arg)
	case EventPress:
		return fmt.Sprintf("Press: %s", keyName())
	case EventRelease:
		return fmt.Sprintf("Release: %s", keyName())
	case EventModPress:
		return fmt.Sprintf("Modifier Press: %s", keyName())
	case EventModRelease:
		return fmt.Sprintf("Modifier Release: %s", keyName())
	}
	return fmt.Sprintf("Unknown event 0x%02X", uint8(e.Action))
}

// Macro is one stored key macro: a display name, a repeat count, and
// the ordered event list. Repeats of zero means "delete this macro";
// such a macro encodes to a single delete packet.
type Macro struct {
	Name    string
	Repeats uint16
	Events  []Event

	packetLen   int
	encodedName []byte
}

// NewMacro builds an empty macro bound to the device's packet length
// (which bounds how long the encoded name may be).
func NewMacro(name string, repeats uint16, packetLen int) (*Macro, error) {
	encoded, err := EncodeName(name, packetLen-macroNameHdrSize)
	if err != nil {
		return nil, err
	}
	return &Macro{Name: name, Repeats: repeats, packetLen: packetLen, encodedName: encoded}, nil
}

// SetName re-encodes the display name.
func (m *Macro) SetName(name string) error {
	encoded, err := EncodeName(name, m.packetLen-macroNameHdrSize)
	if err != nil {
		return err
	}
	m.Name = name
	m.encodedName = encoded
	return nil
}

// AddEvent validates and appends one event.
func (m *Macro) AddEvent(e Event) error {
	switch e.Action {
	case EventDelay:
		// Arg is uint16, the full delay range
	case EventPress, EventRelease, EventModPress, EventModRelease:
		if e.Arg > 0xFF {
			return fmt.Errorf("key value %d out of range", e.Arg)
		}
	default:
		return fmt.Errorf("unsupported event action 0x%02X", uint8(e.Action))
	}
	m.Events = append(m.Events, e)
	return nil
}

// AddEvents appends a list, stopping at the first invalid event.
func (m *Macro) AddEvents(events []Event) error {
	for _, e := range events {
		if err := m.AddEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// ClearEvents drops the event list, turning a body-edit back into a
// name-only edit.
func (m *Macro) ClearEvents() { m.Events = nil }

// Equal compares macro data only, never names: a rename is cheap (one
// packet) and must not force a body re-send. Two delete macros are
// always equal.
func (m *Macro) Equal(other *Macro) bool {
	if m.Repeats == 0 && other.Repeats == 0 {
		return true
	}
	if m.Repeats != other.Repeats || len(m.Events) != len(other.Events) {
		return false
	}
	for i, e := range m.Events {
		if e != other.Events[i] {
			return false
		}
	}
	return true
}

func (m *Macro) String() string {
	if m.Repeats == 0 {
		return "Delete Macro"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\nRepeats: %d\nEvents:\n", m.Name, m.Repeats)
	for _, e := range m.Events {
		fmt.Fprintf(&sb, "%s\n", e)
	}
	return sb.String()
}

// EncodeBody serializes the event stream: a 4-byte header
// {magic, repeats u16le, count} then 3 bytes per event.
func (m *Macro) EncodeBody() []byte {
	buf := make([]byte, 0, macroHdrSize+len(m.Events)*macroEventSize)
	buf = append(buf, macroConst)
	buf = binary.LittleEndian.AppendUint16(buf, m.Repeats)
	buf = append(buf, uint8(len(m.Events)))
	for _, e := range m.Events {
		buf = append(buf, uint8(e.Action))
		buf = binary.LittleEndian.AppendUint16(buf, e.Arg)
	}
	return buf
}

// DecodeBody reverses EncodeBody on a reassembled macro stream.
func DecodeBody(buf []byte) (repeats uint16, events []Event, err error) {
	if len(buf) < macroHdrSize {
		return 0, nil, fmt.Errorf("macro body too short: %d bytes", len(buf))
	}
	repeats = binary.LittleEndian.Uint16(buf[1:3])
	count := int(buf[3])
	if len(buf) < macroHdrSize+count*macroEventSize {
		return 0, nil, fmt.Errorf("macro body truncated: %d events declared, %d bytes", count, len(buf))
	}
	events = make([]Event, 0, count)
	for i := 0; i < count; i++ {
		off := macroHdrSize + i*macroEventSize
		events = append(events, Event{
			Action: EventAction(buf[off]),
			Arg:    binary.LittleEndian.Uint16(buf[off+1 : off+3]),
		})
	}
	return repeats, events, nil
}

// NamePacket frames the set-macro-name command for fromKey.
func (m *Macro) NamePacket(fromKey uint8) []byte {
	buf := make([]byte, 0, m.packetLen)
	buf = append(buf, cmdSetMacroName, fromKey)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.encodedName)))
	buf = append(buf, m.encodedName...)
	return pad(buf, m.packetLen)
}

// DeletePacket frames the delete-macro command for fromKey.
func (m *Macro) DeletePacket(fromKey uint8) []byte {
	return pad([]byte{cmdDeleteMacro, fromKey, deleteMacroConst}, m.packetLen)
}

// BodyPackets splits the encoded event stream into chunk packets. Each
// chunk carries its absolute byte offset so the receiver can verify
// ordering; chunk boundaries fall on whole events (the slice length is
// a multiple of 3 except on the final chunk), with the 4 stream-header
// bytes charged to the first chunk only.
func (m *Macro) BodyPackets(fromKey uint8) [][]byte {
	body := m.EncodeBody()
	var packets [][]byte

	pos := 0
	for pos < len(body) {
		itemsLen := 0
		if pos == 0 {
			itemsLen = macroHdrSize
		}
		itemsLen += (m.packetLen - macroPktHdrSize - itemsLen) / macroEventSize * macroEventSize
		more := uint8(macroMore)
		if pos+itemsLen >= len(body) {
			itemsLen = len(body) - pos
			more = 0
		}
		buf := make([]byte, 0, m.packetLen)
		buf = append(buf, cmdSetMacro, fromKey, more)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(pos))
		buf = append(buf, uint8(itemsLen))
		buf = append(buf, body[pos:pos+itemsLen]...)
		packets = append(packets, pad(buf, m.packetLen))
		pos += itemsLen
	}
	return packets
}

// Packets returns everything a macro sends: for a delete, the single
// delete packet; otherwise the name packet followed by the body chunks
// (none when the event list is empty, which is a pure rename).
func (m *Macro) Packets(fromKey uint8) (first []byte, rest [][]byte) {
	if m.Repeats == 0 {
		return m.DeletePacket(fromKey), nil
	}
	if len(m.Events) == 0 {
		return m.NamePacket(fromKey), nil
	}
	return m.NamePacket(fromKey), m.BodyPackets(fromKey)
}

// chunkReassembler rebuilds a macro body from GET_MACRO responses,
// refusing chunks whose pos doesn't continue what has been received.
type chunkReassembler struct {
	buf []byte
}

// add consumes one chunk packet's payload. done becomes true on the
// final chunk.
func (c *chunkReassembler) add(data []byte) (done bool, err error) {
	if len(data) < macroPktHdrSize {
		return false, fmt.Errorf("macro chunk too short: %d bytes", len(data))
	}
	pos := int(binary.LittleEndian.Uint16(data[3:5]))
	size := int(data[5])
	if pos != len(c.buf) {
		return false, &kbderr.BadMacroChunkOrder{Expected: len(c.buf), Got: pos}
	}
	if len(data) < macroPktHdrSize+size {
		return false, fmt.Errorf("macro chunk truncated: %d declared, %d available", size, len(data)-macroPktHdrSize)
	}
	c.buf = append(c.buf, data[macroPktHdrSize:macroPktHdrSize+size]...)
	return data[macroMorePos] == 0, nil
}

// pad zero-extends buf to length n.
func pad(buf []byte, n int) []byte {
	for len(buf) < n {
		buf = append(buf, 0)
	}
	return buf
}
