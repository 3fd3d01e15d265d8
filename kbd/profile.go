package kbd

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/eightkbd/kbdctl/keys"
)

// KeyMapping is one key's assignment: an optional modifier held
// alongside the target key. The zero value is the disabled mapping.
type KeyMapping struct {
	ModKey uint8
	ToKey  uint8
}

// MapDisabled is the mapping that turns a key off.
var MapDisabled = KeyMapping{}

// NewKeyMapping validates and normalizes a mapping. A target that is
// itself a modifier moves into the modifier slot (so normalization is
// idempotent: an already-normalized mapping passes through unchanged).
func NewKeyMapping(toKey, modKey uint8) (KeyMapping, error) {
	if !keys.IsAssignable(toKey, true) {
		return KeyMapping{}, fmt.Errorf("key code %d is unassignable", toKey)
	}
	if keys.IsModifier(toKey, false) {
		if modKey != keys.KeyDisable {
			return KeyMapping{}, fmt.Errorf("multiple modifier keys can't be specified")
		}
		modKey = toKey
		toKey = 0
	}
	if !keys.IsModifier(modKey, true) {
		return KeyMapping{}, fmt.Errorf("key code %d is not a modifier", modKey)
	}
	return KeyMapping{ModKey: modKey, ToKey: toKey}, nil
}

// IsDisabled reports whether this mapping turns its key off.
func (k KeyMapping) IsDisabled() bool { return k == MapDisabled }

func (k KeyMapping) String() string {
	modName, _ := keys.NameFromHUTCode(k.ModKey)
	toName, _ := keys.NameFromHUTCode(k.ToKey)
	switch {
	case k.ToKey == 0 && k.ModKey == 0:
		return keys.DisableName
	case k.ToKey == 0:
		return modName
	case k.ModKey == 0:
		return toName
	}
	return fmt.Sprintf("%s+%s", modName, toName)
}

// SetPacket frames the set-key command for fromKey: the fixed prefix,
// then (from_key, keyboard set-type, mod_key, to_key), zero-padded.
func (k KeyMapping) SetPacket(fromKey uint8, packetLen int) []byte {
	buf := make([]byte, 0, packetLen)
	buf = append(buf, cmdSetKey...)
	buf = append(buf, fromKey, SetTypeKbd, k.ModKey, k.ToKey)
	return pad(buf, packetLen)
}

// Profile is one in-memory copy of what the device stores in flash: the
// profile name, the key mappings, and the macros, all keyed by device
// key code.
type Profile struct {
	Name   string
	Keys   map[uint8]KeyMapping
	Macros map[uint8]*Macro

	packetLen   int
	encodedName []byte
}

// NewProfile builds an empty profile bound to the device's packet
// length.
func NewProfile(name string, packetLen int) (*Profile, error) {
	p := &Profile{
		Keys:      map[uint8]KeyMapping{},
		Macros:    map[uint8]*Macro{},
		packetLen: packetLen,
	}
	if err := p.SetName(name); err != nil {
		return nil, err
	}
	return p, nil
}

// SetName re-encodes the profile name. The empty name is legal: it
// disables the device's profile button.
func (p *Profile) SetName(name string) error {
	encoded, err := EncodeName(name, p.packetLen-nameHdrSize)
	if err != nil {
		return err
	}
	p.Name = name
	p.encodedName = encoded
	return nil
}

// SetAllDefault maps every key to its identity HUT code (the
// device-local keys with no HUT equivalent end up disabled) and drops
// every macro.
func (p *Profile) SetAllDefault() {
	p.Keys = map[uint8]KeyMapping{}
	for _, code := range keys.DeviceKeys() {
		hut, _ := keys.HUTFromDeviceKey(code)
		mapping, err := NewKeyMapping(hut, keys.KeyDisable)
		if err != nil {
			continue
		}
		p.Keys[code] = mapping
	}
	p.Macros = map[uint8]*Macro{}
}

// SetKey records a mapping edit.
func (p *Profile) SetKey(fromKey uint8, mapping KeyMapping) {
	p.Keys[fromKey] = mapping
}

// SetMacro records a macro edit.
func (p *Profile) SetMacro(fromKey uint8, m *Macro) {
	p.Macros[fromKey] = m
}

// Packet pairs one framed payload with whether the device acknowledges
// it. Macro body chunks other than the last get no acknowledgement.
type Packet struct {
	Data    []byte
	WantAck bool
}

// NamePacket frames the set-name command.
func (p *Profile) NamePacket() Packet {
	buf := make([]byte, 0, p.packetLen)
	buf = append(buf, cmdSetName)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(p.encodedName)))
	buf = append(buf, p.encodedName...)
	return Packet{Data: pad(buf, p.packetLen), WantAck: true}
}

// KeyPacket frames the set-key command for one mapped key.
func (p *Profile) KeyPacket(fromKey uint8) (Packet, error) {
	mapping, ok := p.Keys[fromKey]
	if !ok {
		return Packet{}, fmt.Errorf("key %d has no mapping set", fromKey)
	}
	return Packet{Data: mapping.SetPacket(fromKey, p.packetLen), WantAck: true}, nil
}

// MacroPackets frames everything one macro sends, marking which packets
// expect an acknowledgement.
func (p *Profile) MacroPackets(fromKey uint8) ([]Packet, error) {
	m, ok := p.Macros[fromKey]
	if !ok {
		return nil, fmt.Errorf("key %d has no macro set", fromKey)
	}
	first, rest := m.Packets(fromKey)
	packets := []Packet{{Data: first, WantAck: true}}
	for i, buf := range rest {
		packets = append(packets, Packet{Data: buf, WantAck: i == len(rest)-1})
	}
	return packets, nil
}

// AllPackets frames the whole profile, the name first when requested.
// Keys and macros go out in ascending key order so a run is
// reproducible.
func (p *Profile) AllPackets(withName bool) ([]Packet, error) {
	var packets []Packet
	if withName {
		packets = append(packets, p.NamePacket())
	}
	for _, fromKey := range sortedKeys(p.Keys) {
		pkt, err := p.KeyPacket(fromKey)
		if err != nil {
			return nil, err
		}
		packets = append(packets, pkt)
	}
	for _, fromKey := range sortedMacroKeys(p.Macros) {
		pkts, err := p.MacroPackets(fromKey)
		if err != nil {
			return nil, err
		}
		packets = append(packets, pkts...)
	}
	return packets, nil
}

func (p *Profile) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Profile Name: %s\nKey Mappings:\n", p.Name)
	for _, fromKey := range sortedKeys(p.Keys) {
		name, _ := keys.NameFromDeviceKey(fromKey)
		fmt.Fprintf(&sb, "%s: %s\n", name, p.Keys[fromKey])
	}
	sb.WriteString("Macros:\n")
	for _, fromKey := range sortedMacroKeys(p.Macros) {
		name, _ := keys.NameFromDeviceKey(fromKey)
		fmt.Fprintf(&sb, "Key: %s\n%s", name, p.Macros[fromKey])
	}
	return sb.String()
}

func sortedKeys(m map[uint8]KeyMapping) []uint8 {
	out := make([]uint8, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedMacroKeys(m map[uint8]*Macro) []uint8 {
	out := make([]uint8, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
