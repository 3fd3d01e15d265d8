// Package keys holds the static key-code lookup tables used to translate
// between human-readable key names and the codes this keyboard actually
// accepts: the USB HID Usage Tables' Keyboard/Keypad page, and a small
// set of device-local codes for keys the Usage Tables don't cover
// (the two side modifier buttons and the eight external inputs).
package keys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HUTKeys indexes the Keyboard/Keypad page of the USB HID Usage Tables
// by usage id. Entry 0 is the reserved "no event" slot; unused ids in
// the middle of the table are named "reserved-XX".
var HUTKeys = [...]string{
	"reserved-00", "errorrollover", "errorpostfail", "errorundefined", "a", "b", "c", "d",
	"e", "f", "g", "h", "i", "j", "k", "l",
	"m", "n", "o", "p", "q", "r", "s", "t",
	"u", "v", "w", "x", "y", "z", "1", "2",
	"3", "4", "5", "6", "7", "8", "9", "0",
	"enter", "escape", "backspace", "tab", "spacebar", "-", "=", "[",
	"]", "\\", "non-us-#", ";", "'", "`", ",", ".",
	"/", "caps-lock", "f1", "f2", "f3", "f4", "f5", "f6",
	"f7", "f8", "f9", "f10", "f11", "f12", "print-screen", "scroll-lock",
	"pause", "insert", "home", "page-up", "delete", "end", "page-down", "right-arrow",
	"left-arrow", "down-arrow", "up-arrow", "kp-num-lock", "kp/", "kp*", "kp-", "kp+",
	"kp-enter", "kp1", "kp2", "kp3", "kp4", "kp5", "kp6", "kp7",
	"kp8", "kp9", "kp0", "kp.", "non-us-\\", "menu", "power", "kp=",
	"f13", "f14", "f15", "f16", "f17", "f18", "f19", "f20",
	"f21", "f22", "f23", "f24", "execute", "help", "sun-props", "select",
	"stop", "again", "undo", "cut", "copy", "paste", "find", "mute",
	"volume-up", "volume-down", "locking-caps-lock", "locking-num-lock", "locking-scroll-lock", "kp,", "as400-kp=", "intl-1",
	"intl-2", "intl-3", "intl-4", "intl-5", "intl-6", "intl-7", "intl-8", "intl-9",
	"lang-1", "lang-2", "lang-3", "lang-4", "lang-5", "lang-6", "lang-7", "lang-8",
	"lang-9", "alt-erase", "sysrq", "cancel", "clear", "prior", "return", "separator",
	"out", "oper", "clear/again", "crsel/props", "exsel", "reserved-a5", "reserved-a6", "reserved-a7",
	"reserved-a8", "reserved-a9", "reserved-aa", "reserved-ab", "reserved-ac", "reserved-ad", "reserved-ae", "reserved-af",
	"kp00", "kp000", "thousands-separator", "decimal-separator", "currency", "currency-subunit", "kp(", "kp)",
	"kp{", "kp}", "kp-tab", "kp-backspace", "kp-a", "kp-b", "kp-c", "kp-d",
	"kp-e", "kp-f", "kp-xor", "kp^", "kp%", "kp<", "kp>", "kp&",
	"kp&&", "kp|", "kp||", "kp:", "kp#", "kp-space", "kp@", "kp!",
	"kp-memory-store", "kp-memory-recall", "kp-memory-clear", "kp-memory-add", "kp-memory-subtract", "kp-memory-multiply", "kp-memory-divide", "kp-sign",
	"kp-clear", "kp-clear-entry", "kp-binary", "kp-octal", "kp-decimal", "kp-hexadecimal", "reserved-de", "reserved-df",
	"left-control", "left-shift", "left-alt", "left-win", "right-control", "right-shift", "right-alt", "right-win",
}

// deviceKeyNames names the device-local key codes this keyboard reports
// outside the Usage Tables range: the two extra modifier switches and
// the eight external pedal/footswitch inputs wired to the same connector.
var deviceKeyNames = map[uint8]string{
	0x6C: "modifier-b",
	0x6D: "modifier-a",
	0x6E: "external-ya",
	0x6F: "external-yb",
	0x70: "external-xa",
	0x71: "external-xb",
	0x72: "external-ba",
	0x73: "external-bb",
	0x74: "external-aa",
	0x75: "external-ab",
}

var nameToDeviceKey map[string]uint8

func init() {
	nameToDeviceKey = make(map[string]uint8, len(deviceKeyNames))
	for code, name := range deviceKeyNames {
		nameToDeviceKey[name] = code
	}
}

// deviceKeyToHUT maps every device key code this keyboard accepts in a
// key-mapping slot to the HUT usage id it corresponds to on the wire.
// Codes mapped to 0 here have no HUT equivalent and are looked up in
// deviceKeyNames/nameToDeviceKey instead.
var deviceKeyToHUT = buildDeviceKeyToHUT()

func buildDeviceKeyToHUT() map[uint8]uint8 {
	m := map[uint8]uint8{}
	for c := uint8(0x04); c <= 0x1D; c++ { // a-z
		m[c] = c
	}
	for c := uint8(0x1E); c <= 0x27; c++ { // 1-9, 0
		m[c] = c
	}
	for c := uint8(0x28); c <= 0x31; c++ {
		m[c] = c
	}
	for c := uint8(0x33); c <= 0x52; c++ {
		m[c] = c
	}
	// modifiers
	mods := []uint8{0x64, 0x65, 0x66, 0x67, 0x68, 0x69, 0x6A}
	for i, c := range mods {
		m[c] = 0xE0 + uint8(i)
	}
	// device-local keys with no HUT equivalent
	for c := range deviceKeyNames {
		m[c] = 0
	}
	return m
}

var hutToDeviceKey = buildHUTToDeviceKey()

func buildHUTToDeviceKey() map[uint8]uint8 {
	m := map[uint8]uint8{}
	for deviceKey, hut := range deviceKeyToHUT {
		if hut != 0 {
			m[hut] = deviceKey
		}
	}
	return m
}

// Unassignable lists device key codes this keyboard never lets a
// mapping target: reserved slots and a handful of codes the firmware
// rejects outright.
var Unassignable = [...]uint8{0x00, 0x01, 0x02, 0x03, 0x78, 0x79, 0x7A, 0x85, 0x86, 0x9E}

// Modifiers lists the HUT usage ids for the eight standard keyboard
// modifier keys (left/right ctrl/shift/alt/gui).
var Modifiers = [...]uint8{0xE0, 0xE1, 0xE2, 0xE3, 0xE4, 0xE5, 0xE6, 0xE7}

// DisableName is the key name that maps to KeyDisable.
const DisableName = "disabled"

// KeyDisable is the device key code that disables a mapping slot.
const KeyDisable uint8 = 0

// NameFromDeviceKey returns the human-readable name for a device key
// code read back from the keyboard.
func NameFromDeviceKey(code uint8) (string, bool) {
	hut, ok := deviceKeyToHUT[code]
	if !ok {
		return "", false
	}
	if hut == 0 {
		name, ok := deviceKeyNames[code]
		return name, ok
	}
	if int(hut) >= len(HUTKeys) {
		return "", false
	}
	return HUTKeys[hut], true
}

// DeviceKeyFromName resolves a name (or a decimal/hex numeric literal)
// to the device key code this keyboard's firmware expects in a mapping
// slot, failing if the resolved code isn't one this keyboard accepts.
// Key names are tried before the numeric reading, so "1" names the 1 key.
func DeviceKeyFromName(name string) (uint8, error) {
	lower := strings.ToLower(name)
	for hut, n := range HUTKeys {
		if n == lower {
			code, ok := hutToDeviceKey[uint8(hut)]
			if !ok {
				return 0, fmt.Errorf("key %q isn't on this keyboard", name)
			}
			return code, nil
		}
	}
	if code, ok := nameToDeviceKey[lower]; ok {
		return code, nil
	}
	if code, ok := parseNumeric(name); ok {
		if _, known := deviceKeyToHUT[code]; !known {
			return 0, fmt.Errorf("key %q isn't on this keyboard", name)
		}
		return code, nil
	}
	return 0, fmt.Errorf("no such key %q", name)
}

// HUTCodeFromName resolves a name (or numeric literal, or the special
// "disabled" name) to a raw HUT usage id, without restricting the
// result to keys this keyboard happens to expose. Key names are tried
// before the numeric reading, so "1" names the 1 key.
func HUTCodeFromName(name string) (uint8, error) {
	lower := strings.ToLower(name)
	if lower == DisableName {
		return KeyDisable, nil
	}
	for hut, n := range HUTKeys {
		if n == lower {
			return uint8(hut), nil
		}
	}
	if code, ok := parseNumeric(name); ok {
		if int(code) >= len(HUTKeys) {
			return 0, fmt.Errorf("numeric value %d doesn't map to a named key", code)
		}
		return code, nil
	}
	return 0, fmt.Errorf("no such key %q", name)
}

// ModifierCodeFromName resolves name to a HUT usage id and requires
// that it name one of the eight modifier keys.
func ModifierCodeFromName(name string) (uint8, error) {
	code, err := HUTCodeFromName(name)
	if err != nil {
		return 0, err
	}
	for _, m := range Modifiers {
		if m == code {
			return code, nil
		}
	}
	return 0, fmt.Errorf("key %q is not a modifier", name)
}

// IsModifier reports whether code is one of the eight modifier HUT
// usage ids. With allowZero, the disabled slot also passes, for fields
// where "no modifier" is legal.
func IsModifier(code uint8, allowZero bool) bool {
	if allowZero && code == KeyDisable {
		return true
	}
	for _, m := range Modifiers {
		if m == code {
			return true
		}
	}
	return false
}

// IsAssignable reports whether code is a HUT usage id this keyboard's
// firmware accepts as a mapping target. With disablable, the disabled
// slot also passes.
func IsAssignable(code uint8, disablable bool) bool {
	if disablable && code == KeyDisable {
		return true
	}
	return (code >= 0x04 && code <= 0x78) || (code >= 0xE0 && code <= 0xE7)
}

// DeviceKeys returns every device key code this keyboard exposes, in
// ascending order.
func DeviceKeys() []uint8 {
	out := make([]uint8, 0, len(deviceKeyToHUT))
	for code := range deviceKeyToHUT {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HUTFromDeviceKey returns the HUT usage id a device key code maps to
// on the wire, or 0 for the device-local keys with no HUT equivalent.
func HUTFromDeviceKey(code uint8) (uint8, bool) {
	hut, ok := deviceKeyToHUT[code]
	return hut, ok
}

// NameFromHUTCode returns the human-readable name for a raw HUT usage
// id, or the special "disabled" name for the zero slot.
func NameFromHUTCode(code uint8) (string, bool) {
	if code == KeyDisable {
		return DisableName, true
	}
	if int(code) >= len(HUTKeys) {
		return "", false
	}
	return HUTKeys[code], true
}

// IsUnassignable reports whether code is a device key slot this
// keyboard refuses to accept as a mapping target.
func IsUnassignable(code uint8) bool {
	for _, u := range Unassignable {
		if u == code {
			return true
		}
	}
	return false
}

func parseNumeric(s string) (uint8, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 16)
	if err != nil || v < 0 || v > 0xFF {
		return 0, false
	}
	return uint8(v), true
}
