package kbd

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/eightkbd/kbdctl/internal/diag"
	"github.com/eightkbd/kbdctl/internal/kbderr"
	"github.com/eightkbd/kbdctl/keys"
)

// Transport is the slice of the raw-HID device the engine needs. The
// hidraw package's Device satisfies it; tests satisfy it with a
// scripted fake.
type Transport interface {
	GenerateReport(id uint8, payload []byte) ([]byte, error)
	Write(buf []byte) (int, error)
	Listen(count int, timeout time.Duration, cb func(reportID uint8, payload []byte) bool) bool
	Decode(id uint8, payload []byte) (string, error)
	ReportSize(id uint8) (int, error)
}

// Keyboard drives the vendor protocol over one transport. It holds the
// profile read from the device (Current), the operator's pending edits
// (New), and the factory default used by the key_in_profile predicate.
// Submit sends only what New changes relative to Current.
type Keyboard struct {
	hid       Transport
	packetLen int

	Current *Profile
	New     *Profile
	defProf *Profile

	deleteMacro *Macro
}

// NewKeyboard sizes the engine from the OUT report's declared length
// and, unless the caller forces all changes, reads the current profile
// off the device so Submit can diff against it.
func NewKeyboard(t Transport, readProfile bool) (*Keyboard, error) {
	size, err := t.ReportSize(OutID)
	if err != nil {
		return nil, err
	}
	k := &Keyboard{hid: t, packetLen: size}

	k.deleteMacro, err = NewMacro("", 0, size)
	if err != nil {
		return nil, err
	}
	k.defProf, err = NewProfile("", size)
	if err != nil {
		return nil, err
	}
	k.defProf.SetAllDefault()

	if readProfile {
		if err := k.ReadProfile(); err != nil {
			return nil, err
		}
	} else {
		k.Current, err = NewProfile("", size)
		if err != nil {
			return nil, err
		}
	}
	k.New, err = NewProfile(k.Current.Name, size)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// PacketLen is the payload byte length of every command packet.
func (k *Keyboard) PacketLen() int { return k.packetLen }

// command frames and writes one outgoing command payload.
func (k *Keyboard) command(payload []byte) error {
	if text, err := k.hid.Decode(OutID, pad(append([]byte(nil), payload...), k.packetLen)); err == nil {
		diag.Logger.Debug().Str("component", "kbd").Msg(text)
	}
	buf, err := k.hid.GenerateReport(OutID, payload)
	if err != nil {
		return err
	}
	_, err = k.hid.Write(buf)
	return err
}

// collectOne waits for a single report-84 response.
func (k *Keyboard) collectOne(op string) ([]byte, error) {
	var response []byte
	ok := k.hid.Listen(-1, Timeout, func(reportID uint8, payload []byte) bool {
		if text, err := k.hid.Decode(reportID, payload); err == nil {
			diag.Logger.Debug().Str("component", "kbd").Msg(text)
		}
		if reportID != InID {
			return true
		}
		response = append([]byte(nil), payload...)
		return false
	})
	if !ok {
		return nil, &kbderr.Timeout{Op: op}
	}
	return response, nil
}

// collectList gathers report-84 responses until one whose final byte is
// the zero terminator; each record is returned without that final byte.
func (k *Keyboard) collectList(op string) ([][]byte, error) {
	var records [][]byte
	ok := k.hid.Listen(-1, Timeout, func(reportID uint8, payload []byte) bool {
		if text, err := k.hid.Decode(reportID, payload); err == nil {
			diag.Logger.Debug().Str("component", "kbd").Msg(text)
		}
		if reportID != InID || len(payload) == 0 {
			return true
		}
		records = append(records, append([]byte(nil), payload[:len(payload)-1]...))
		return payload[len(payload)-1] != 0
	})
	if !ok {
		return nil, &kbderr.Timeout{Op: op}
	}
	return records, nil
}

// collectMacro reassembles a GET_MACRO response from its chunk packets.
func (k *Keyboard) collectMacro(op string) ([]byte, error) {
	var asm chunkReassembler
	var chunkErr error
	ok := k.hid.Listen(-1, Timeout, func(reportID uint8, payload []byte) bool {
		if text, err := k.hid.Decode(reportID, payload); err == nil {
			diag.Logger.Debug().Str("component", "kbd").Msg(text)
		}
		if reportID != InID {
			return true
		}
		done, err := asm.add(payload)
		if err != nil {
			chunkErr = err
			return false
		}
		return !done
	})
	if chunkErr != nil {
		return nil, chunkErr
	}
	if !ok {
		return nil, &kbderr.Timeout{Op: op}
	}
	return asm.buf, nil
}

// tryListenSuccess waits for the device's acknowledgement of a set
// operation and checks it for the success sentinel.
func (k *Keyboard) tryListenSuccess() error {
	response, err := k.collectOne("set acknowledgement")
	if err != nil {
		return err
	}
	if !checkSuccess(response) {
		got := response
		if len(got) > 2 {
			got = got[:2]
		}
		return &kbderr.DeviceNonSuccess{Got: got}
	}
	return nil
}

// ReadProfile pulls the stored profile out of device flash: name, the
// mapped-key and macro-key lists, then every mapping, macro name, and
// macro body.
func (k *Keyboard) ReadProfile() error {
	payload := make([]byte, k.packetLen)

	// profile name
	payload[0] = cmdGetName
	if err := k.command(payload); err != nil {
		return err
	}
	data, err := k.collectOne("profile name")
	if err != nil {
		return err
	}
	if len(data) < nameHdrSize {
		return fmt.Errorf("short profile name response: %d bytes", len(data))
	}
	strSize := int(binary.LittleEndian.Uint16(data[1:3]))
	if nameHdrSize+strSize > len(data) {
		strSize = len(data) - nameHdrSize
	}
	k.Current, err = NewProfile(DecodeName(data[nameHdrSize:nameHdrSize+strSize]), k.packetLen)
	if err != nil {
		return err
	}

	// which keys carry mappings
	payload[0] = cmdGetKeys
	if err := k.command(payload); err != nil {
		return err
	}
	records, err := k.collectList("mapped key list")
	if err != nil {
		return err
	}
	var mappedKeys []uint8
	for _, rec := range records {
		for i := 1; i < len(rec)-1; i += 2 {
			if rec[i] == 0 {
				break
			}
			mappedKeys = append(mappedKeys, rec[i])
		}
	}

	// which keys carry macros
	payload[0] = cmdGetMacros
	if err := k.command(payload); err != nil {
		return err
	}
	records, err = k.collectList("macro key list")
	if err != nil {
		return err
	}
	var macroKeys []uint8
	for _, rec := range records {
		for i := 1; i < len(rec)-1; i += 4 {
			if rec[i] == 0 {
				break
			}
			macroKeys = append(macroKeys, rec[i])
		}
	}

	// each mapping
	for _, key := range mappedKeys {
		payload[0] = cmdGetKey
		payload[1] = key
		if err := k.command(payload); err != nil {
			return err
		}
		data, err := k.collectOne("key mapping")
		if err != nil {
			return err
		}
		if len(data) < keyHdrSize+2 {
			return fmt.Errorf("short key mapping response: %d bytes", len(data))
		}
		fromKey, mapType := data[1], data[2]
		if fromKey != key {
			return fmt.Errorf("got mapping for key %d instead of %d", fromKey, key)
		}
		if mapType != SetTypeKbd {
			return &kbderr.UnsupportedMappingType{SetType: mapType}
		}
		mapping, err := NewKeyMapping(data[keyHdrSize+1], data[keyHdrSize])
		if err != nil {
			return err
		}
		k.Current.SetKey(key, mapping)
	}

	// macro names, then bodies
	macroNames := map[uint8]string{}
	for _, key := range macroKeys {
		payload[0] = cmdGetMacroName
		payload[1] = key
		if err := k.command(payload); err != nil {
			return err
		}
		data, err := k.collectOne("macro name")
		if err != nil {
			return err
		}
		if len(data) < macroNameHdrSize {
			return fmt.Errorf("short macro name response: %d bytes", len(data))
		}
		fromKey := data[1]
		if fromKey != key {
			return fmt.Errorf("got macro for key %d instead of %d", fromKey, key)
		}
		strSize := int(binary.LittleEndian.Uint16(data[2:4]))
		if macroNameHdrSize+strSize > len(data) {
			strSize = len(data) - macroNameHdrSize
		}
		macroNames[key] = DecodeName(data[macroNameHdrSize : macroNameHdrSize+strSize])
	}
	for _, key := range macroKeys {
		payload[0] = cmdGetMacro
		payload[1] = key
		if err := k.command(payload); err != nil {
			return err
		}
		body, err := k.collectMacro("macro body")
		if err != nil {
			return err
		}
		repeats, events, err := DecodeBody(body)
		if err != nil {
			return err
		}
		macro, err := NewMacro(macroNames[key], repeats, k.packetLen)
		if err != nil {
			return err
		}
		if err := macro.AddEvents(events); err != nil {
			return err
		}
		k.Current.SetMacro(key, macro)
	}

	return nil
}

// KeyInProfile reports whether fromKey is present with a non-disabled
// mapping in the default, current, or new profile — or, with a mapping
// argument, present with exactly that mapping in any of the three.
func (k *Keyboard) KeyInProfile(fromKey uint8, mapping *KeyMapping) bool {
	for _, p := range []*Profile{k.defProf, k.Current, k.New} {
		m, ok := p.Keys[fromKey]
		if !ok {
			continue
		}
		if mapping == nil {
			if !m.IsDisabled() {
				return true
			}
		} else if m == *mapping {
			return true
		}
	}
	return false
}

// SetName stages a profile rename.
func (k *Keyboard) SetName(name string) error {
	return k.New.SetName(name)
}

// SetKey stages one mapping edit. An edit that matches what the device
// already has is dropped here so Submit stays minimal. Mapping a key
// that carries a macro also stages that macro's deletion.
func (k *Keyboard) SetKey(fromKey, toKey, modKey uint8) error {
	mapping, err := NewKeyMapping(toKey, modKey)
	if err != nil {
		return err
	}
	if cur, ok := k.Current.Keys[fromKey]; ok && cur == mapping {
		return nil
	}
	k.New.SetKey(fromKey, mapping)
	_, inCurrent := k.Current.Macros[fromKey]
	_, inNew := k.New.Macros[fromKey]
	if inCurrent || inNew {
		k.New.SetMacro(fromKey, k.deleteMacro)
	}
	return nil
}

// SetMacro stages one macro edit. A macro identical to the device's is
// dropped; one whose events match but whose name differs collapses to a
// name-only edit (a single packet). The official software disables a
// mapped key when a macro lands on it; this mirrors that.
func (k *Keyboard) SetMacro(fromKey uint8, name string, repeats uint16, events []Event) error {
	macro, err := NewMacro(name, repeats, k.packetLen)
	if err != nil {
		return err
	}
	if err := macro.AddEvents(events); err != nil {
		return err
	}

	existing, ok := k.Current.Macros[fromKey]
	if ok && macro.Equal(existing) {
		if existing.Name == macro.Name {
			return nil
		}
		// same events, new name: a cheap rename
		macro.ClearEvents()
		k.New.SetMacro(fromKey, macro)
		return nil
	}

	k.New.SetMacro(fromKey, macro)
	if k.KeyInProfile(fromKey, nil) {
		k.New.SetKey(fromKey, MapDisabled)
	}
	return nil
}

// SetAllDefault stages a full reset: every key back to its identity
// mapping, and a deletion for every macro the current profile holds.
func (k *Keyboard) SetAllDefault() {
	k.New.SetAllDefault()
	for fromKey := range k.Current.Macros {
		k.New.SetMacro(fromKey, k.deleteMacro)
	}
}

// Packets frames everything Submit would send. The name packet is
// included only when the name literally differs: forcing it would set
// an unchanged name to an unchanged value, and an empty name disables
// the device's profile button.
func (k *Keyboard) Packets() ([]Packet, error) {
	return k.New.AllPackets(k.New.Name != k.Current.Name)
}

// Submit writes the staged edits to the device, waiting for the success
// acknowledgement after every packet that expects one. With test set,
// packets are framed and logged but nothing is written.
func (k *Keyboard) Submit(test bool) error {
	packets, err := k.Packets()
	if err != nil {
		return err
	}
	for _, pkt := range packets {
		if text, err := k.hid.Decode(OutID, pkt.Data); err == nil {
			diag.Logger.Debug().Str("component", "kbd").Msg(text)
		}
		if test {
			continue
		}
		buf, err := k.hid.GenerateReport(OutID, pkt.Data)
		if err != nil {
			return err
		}
		if _, err := k.hid.Write(buf); err != nil {
			return err
		}
		if pkt.WantAck {
			if err := k.tryListenSuccess(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListInCodes enumerates the device key codes a mapping can be set on,
// with their names.
func ListInCodes() []string {
	var out []string
	for _, code := range keys.DeviceKeys() {
		name, ok := keys.NameFromDeviceKey(code)
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("%d/0x%02X: %s", code, code, name))
	}
	return out
}

// ListOutCodes enumerates the HUT usage ids a key may be assigned to,
// with their names.
func ListOutCodes() []string {
	var out []string
	for code := 0; code < len(keys.HUTKeys); code++ {
		if !keys.IsAssignable(uint8(code), true) {
			continue
		}
		name, _ := keys.NameFromHUTCode(uint8(code))
		out = append(out, fmt.Sprintf("%d/0x%02X: %s", code, code, name))
	}
	return out
}
