package urb

import (
	"fmt"
	"syscall"
	"time"
	"unicode/utf16"

	usb "github.com/eightkbd/kbdctl"
	"github.com/eightkbd/kbdctl/hid"
	"github.com/eightkbd/kbdctl/internal/diag"
	"github.com/eightkbd/kbdctl/internal/hexdump"
)

// Context owns the protocol state rebuilt from a URB stream: the
// current (bus, device) view, the one-record lookbehind a Complete
// needs to find its Submit's setup, and the subset of records that
// carry device state for snapshotting.
type Context struct {
	Devices map[DevMap]*Device

	prev *Record

	startSec  int64
	startUsec int32
	started   bool

	stateURBs []*Record
}

// NewContext returns an empty reconstruction context. A context is
// seeded either by parsing a capture from its start or by replaying a
// saved state snapshot (SetState).
func NewContext() *Context {
	return &Context{Devices: map[DevMap]*Device{}}
}

// Decoded is one parsed-and-interpreted URB: the raw record, its
// wall-time offset from the first record this context saw, and the
// one-line human-readable interpretation.
type Decoded struct {
	*Record
	Offset time.Duration
	Text   string
}

func (d *Decoded) String() string {
	return fmt.Sprintf("%.6f %s", d.Offset.Seconds(), d.Text)
}

// endpointLabel is the bus.device.endpoint prefix on every decoded line.
func endpointLabel(h Header) string {
	return fmt.Sprintf("%d.%d.%d", h.Busnum, h.Devnum, h.Endpoint())
}

// Parse decodes one mon_bin record, runs it through the state machine,
// and returns its interpretation. Decoding errors that only affect one
// record's interpretation (unknown device, unmatched control) are
// folded into the returned text; only a structurally unreadable record
// returns an error.
func (c *Context) Parse(data []byte) (*Decoded, error) {
	rec, err := Parse(data)
	if err != nil {
		return nil, err
	}

	d := &Decoded{Record: rec, Offset: c.offset(rec.Header)}
	d.Text = c.process(rec)

	c.prev = rec
	return d, nil
}

// offset computes the record's time relative to the first record seen.
func (c *Context) offset(h Header) time.Duration {
	if !c.started {
		c.started = true
		c.startSec = h.TSSec
		c.startUsec = h.TSUsec
	}
	sec := h.TSSec - c.startSec
	usec := int64(h.TSUsec) - int64(c.startUsec)
	return time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond
}

// process runs the URB state machine for one record and returns the
// human-readable line for it.
func (c *Context) process(rec *Record) string {
	ep := endpointLabel(rec.Header)
	key := rec.DevMap()

	if rec.IsError() {
		if syscall.Errno(-rec.Status) == syscall.ENOENT {
			// device no longer exists: forget it, and drop any saved
			// state records that referenced it
			delete(c.Devices, key)
			c.dropStateFor(key)
			return fmt.Sprintf("%s Error device reported not found!  Removing.", ep)
		}
		return fmt.Sprintf("%s Error %d %s", ep, -rec.Status, syscall.Errno(-rec.Status).Error())
	}

	if _, known := c.Devices[key]; !known && !c.introducesDevice(rec) {
		return fmt.Sprintf("%s Device not found and not a device descriptor!", ep)
	}

	switch rec.XferType {
	case TransferTypeControl:
		return c.processControl(rec, ep, key)
	case TransferTypeInterrupt:
		dev := c.Devices[key]
		return fmt.Sprintf("%s %s", ep, decodeInterrupt(dev, rec, c.prev))
	}
	return fmt.Sprintf("%s Interpretation Unimplemented", ep)
}

// introducesDevice reports whether rec can legitimately reference a
// (bus,dev) this context has never seen: only a GET_DESCRIPTOR(Device)
// request or its response may do that.
func (c *Context) introducesDevice(rec *Record) bool {
	if rec.XferType != TransferTypeControl {
		return false
	}
	setup := rec.Setup
	if !rec.HasSetup() {
		if c.prev == nil || !c.prev.HasSetup() {
			return false
		}
		setup = c.prev.Setup
	}
	return setup != nil && setup.Match() == MatchGetDescriptor && setup.DescValue() == DescDevice
}

func (c *Context) processControl(rec *Record, ep string, key DevMap) string {
	c.stateURBs = append(c.stateURBs, rec)

	if rec.HasSetup() {
		if rec.Setup == nil {
			return fmt.Sprintf("%s Malformed setup packet", ep)
		}
		return fmt.Sprintf("%s %s", ep, rec.Setup)
	}

	// a Complete with no setup of its own interprets against the Submit
	// immediately before it
	if c.prev == nil || !c.prev.HasSetup() || c.prev.Setup == nil {
		return fmt.Sprintf("%s Unsupported Control Response", ep)
	}
	setup := c.prev.Setup

	switch setup.Match() {
	case MatchSetConfiguration:
		if dev, ok := c.Devices[key]; ok {
			dev.ActiveConfiguration = uint8(setup.WValue)
		}
		return fmt.Sprintf("%s Set Configuration Response", ep)
	case MatchSetIdle:
		return fmt.Sprintf("%s Set Idle Response", ep)
	case MatchGetDescriptor:
		if len(rec.Payload) == 0 {
			return fmt.Sprintf("%s Response with No Data", ep)
		}
		return c.processDescriptor(rec, setup, ep, key)
	case MatchGetInterfaceDesc:
		if setup.DescValue() == DescHIDReport {
			return c.processHIDReport(rec, setup, ep, key)
		}
	}
	return fmt.Sprintf("%s Unsupported Control Response", ep)
}

func (c *Context) processDescriptor(rec *Record, setup *SetupPacket, ep string, key DevMap) string {
	switch setup.DescValue() {
	case DescDevice:
		parsed, err := usb.ParseDescriptor(rec.Payload)
		if err != nil {
			return fmt.Sprintf("%s Malformed device descriptor: %v", ep, err)
		}
		desc, ok := parsed.(*usb.DeviceDescriptor)
		if !ok {
			return fmt.Sprintf("%s Device descriptor response carried %s", ep, parsed.Type())
		}
		dev := newDevice(desc)
		// alias to an already-known identical device so later strings
		// and configurations accrue to both keys
		for otherKey, other := range c.Devices {
			if other.Equal(dev.Device) {
				diag.Logger.Debug().
					Str("component", "urb").
					Stringer("devmap", key).
					Stringer("alias", otherKey).
					Msg("aliasing duplicate device")
				dev = other
				break
			}
		}
		c.Devices[key] = dev
		return fmt.Sprintf("%s %s", ep, dev)

	case DescConfiguration:
		cfg, err := usb.ParseConfiguration(rec.Payload)
		if err != nil {
			return fmt.Sprintf("%s Malformed configuration descriptor: %v", ep, err)
		}
		c.Devices[key].AddConfiguration(cfg)
		return fmt.Sprintf("%s %s", ep, cfg)

	case DescString:
		index := setup.DescIndex()
		if index == 0 {
			return fmt.Sprintf("%s String Languages Record:%s", ep, languageList(rec.Payload))
		}
		str := decodeStringDesc(rec.Payload)
		if !c.Devices[key].SetString(index, str) {
			diag.Logger.Debug().
				Str("component", "urb").
				Str("value", str).
				Uint8("index", index).
				Msg("string not used")
		}
		return fmt.Sprintf("%s String Response: %q", ep, str)
	}
	return fmt.Sprintf("%s Unsupported Control Response", ep)
}

func (c *Context) processHIDReport(rec *Record, setup *SetupPacket, ep string, key DevMap) string {
	root, err := hid.Decode(rec.Payload)
	if err != nil {
		return fmt.Sprintf("%s Malformed HID report descriptor: %v", ep, err)
	}
	ifaceNum := uint8(setup.WIndex)
	dev := c.Devices[key]
	dev.HIDRoots[ifaceNum] = root
	return fmt.Sprintf("%s HID Report Response (interface %d)\n%s", ep, ifaceNum, hexdump.String(rec.Payload))
}

// dropStateFor removes every saved state record referencing key.
func (c *Context) dropStateFor(key DevMap) {
	kept := c.stateURBs[:0]
	for _, rec := range c.stateURBs {
		if rec.DevMap() != key {
			kept = append(kept, rec)
		}
	}
	c.stateURBs = kept
}

// GetState returns the raw bytes of every record that contributed to
// the current device map, in the order they were seen. Replaying them
// through SetState rebuilds the map, so a capture that starts
// mid-session can be decoded against a prior session's state.
func (c *Context) GetState() [][]byte {
	out := make([][]byte, len(c.stateURBs))
	for i, rec := range c.stateURBs {
		out[i] = rec.Raw
	}
	return out
}

// SetState replays saved raw records through the state machine and then
// resets the time base so the next live record becomes offset zero.
func (c *Context) SetState(state [][]byte) error {
	for _, raw := range state {
		d, err := c.Parse(raw)
		if err != nil {
			return err
		}
		diag.Logger.Debug().Str("component", "urb").Msg(d.Text)
	}
	c.started = false
	return nil
}

// SetString propagates a resolved string descriptor to every field of
// the device (and its configurations and interfaces) holding the same
// string index. Truncated re-reads are filtered by OptString.
func (d *Device) SetString(index uint8, value string) bool {
	found := false
	if d.IManufacturer == index {
		d.Manufacturer.Set(value)
		found = true
	}
	if d.IProduct == index {
		d.Product.Set(value)
		found = true
	}
	if d.ISerialNumber == index {
		d.SerialNumber.Set(value)
		found = true
	}
	for _, cfg := range d.Configurations {
		if cfg.IConfiguration == index {
			cfg.ConfigurationString.Set(value)
			found = true
		}
		for _, iface := range cfg.Interfaces {
			if iface.IInterface == index {
				iface.InterfaceString.Set(value)
				found = true
			}
		}
	}
	return found
}

// decodeStringDesc decodes a STRING descriptor payload: a 2-byte
// header followed by UTF-16LE text.
func decodeStringDesc(data []byte) string {
	if len(data) < 2 {
		return ""
	}
	body := data[2:]
	units := make([]uint16, 0, len(body)/2)
	for i := 0; i+1 < len(body); i += 2 {
		units = append(units, uint16(body[i])|uint16(body[i+1])<<8)
	}
	return string(utf16.Decode(units))
}

// languageList renders a string-index-0 response: the supported LANGID
// codes.
func languageList(data []byte) string {
	out := ""
	for i := 2; i+1 < len(data); i += 2 {
		out += fmt.Sprintf(" %d", uint16(data[i])|uint16(data[i+1])<<8)
	}
	return out
}

// IsError reports whether this record's status is a real error:
// anything nonzero except EINPROGRESS, which merely marks a Submit
// still in flight.
func (r *Record) IsError() bool {
	if r.Status == 0 {
		return false
	}
	return syscall.Errno(-r.Status) != syscall.EINPROGRESS
}
