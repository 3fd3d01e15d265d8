package urb

import (
	"fmt"

	"github.com/eightkbd/kbdctl/hid"
)

// InterruptResult is the decoded meaning of one Interrupt-transfer URB:
// a heartbeat with nothing to say, an acknowledgement of one that did,
// a rendered report, or one this device's report tree has no entry
// for.
type InterruptResult interface {
	isInterruptResult()
	String() string
}

// InterruptNoData marks an empty Interrupt URB not immediately
// preceded by another in the same direction.
type InterruptNoData struct{ In bool }

func (InterruptNoData) isInterruptResult() {}
func (r InterruptNoData) String() string {
	return fmt.Sprintf("Interrupt %s No Data", dirLabel(r.In))
}

// InterruptAcknowledge marks an empty Interrupt URB that repeats the
// direction of the Interrupt URB immediately before it.
type InterruptAcknowledge struct{ In bool }

func (InterruptAcknowledge) isInterruptResult() {}
func (r InterruptAcknowledge) String() string {
	return fmt.Sprintf("Interrupt %s Acknowledge", dirLabel(r.In))
}

// InterruptReport is a successfully rendered HID report payload.
type InterruptReport struct {
	In   bool
	ID   uint8
	Text string
}

func (InterruptReport) isInterruptResult() {}
func (r InterruptReport) String() string {
	return fmt.Sprintf("HID Report %s %d: %s", dirLabel(r.In), r.ID, r.Text)
}

// InterruptUnknown marks a non-empty Interrupt URB this device's
// report tree couldn't decode (unrecognized report id, or no tree yet).
type InterruptUnknown struct {
	In   bool
	Data []byte
}

func (InterruptUnknown) isInterruptResult() {}
func (r InterruptUnknown) String() string {
	return fmt.Sprintf("Interrupt %s Unknown % X", dirLabel(r.In), r.Data)
}

func dirLabel(in bool) string {
	if in {
		return "In"
	}
	return "Out"
}

// decodeInterrupt classifies one Interrupt-transfer record against the
// device it targets and the record immediately before it.
func decodeInterrupt(dev *Device, rec, prev *Record) InterruptResult {
	in := rec.IsIn()
	if len(rec.Payload) == 0 {
		if prev != nil && prev.XferType == TransferTypeInterrupt && prev.IsIn() == in {
			return InterruptAcknowledge{In: in}
		}
		return InterruptNoData{In: in}
	}

	reports := dev.reportsFor(rec.Epnum, in)
	if reports == nil {
		return InterruptUnknown{In: in, Data: rec.Payload}
	}

	reportID := rec.Payload[0]
	body := rec.Payload[1:]
	text, err := hid.DecodeReport(reportID, reports, body)
	if err != nil {
		return InterruptUnknown{In: in, Data: rec.Payload}
	}
	return InterruptReport{In: in, ID: reportID, Text: text}
}
