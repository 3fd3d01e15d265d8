package urb

import (
	"errors"
	"io"

	"github.com/google/gopacket/pcapgo"

	"github.com/eightkbd/kbdctl/internal/diag"
	"github.com/eightkbd/kbdctl/internal/hexdump"
	"github.com/eightkbd/kbdctl/internal/kbderr"
)

// ScanCapture reads usbmon records out of a pcapng stream and runs each
// through the context, handing every decoded line to emit. A packet
// whose captured length is short of its wire length is reported
// (CaptureTruncated is informational) and still decoded best-effort.
// count limits how many packets are consumed; count < 0 reads to EOF.
func ScanCapture(ctx *Context, r io.Reader, count int, emit func(string)) error {
	ng, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return err
	}

	for count != 0 {
		data, ci, err := ng.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ci.CaptureLength < ci.Length {
			trunc := &kbderr.CaptureTruncated{Captured: ci.CaptureLength, Wire: ci.Length}
			diag.Logger.Warn().Str("component", "scan").Msg(trunc.Error())
		}

		d, err := ctx.Parse(data)
		if err != nil {
			// a structurally unreadable record gets dumped and ends the
			// scan; everything recoverable is folded into d.Text
			emit(hexdump.String(data))
			return err
		}
		emit(d.String())

		if count > 0 {
			count--
		}
	}
	return nil
}
