package hid

import (
	"fmt"
	"strings"

	"github.com/eightkbd/kbdctl/internal/kbderr"
)

// ErrPayloadTooLong is returned by GenerateReport when the caller's
// payload will not fit in the report's declared byte size.
var ErrPayloadTooLong = fmt.Errorf("hid: payload longer than report size")

// DecodeReport renders one report payload (report id stripped) against
// the already-selected report_id Collection from a GetReports index.
// Fields are walked in pre-order; Constant items advance the bit cursor
// but render nothing, non-constant fields render as hex bytes when
// their bit size is a multiple of 8, else as a '#'/'.' bitmap.
func DecodeReport(reportID uint8, reports map[uint8]*Collection, payload []byte) (string, error) {
	col, ok := reports[reportID]
	if !ok {
		return "", &kbderr.BadReportId{ReportID: reportID, Valid: ValidReportIDs(reports)}
	}

	var parts []string
	bitOffset := 0

	var walk func(n Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Collection:
			for _, child := range v.Children {
				walk(child)
			}
		case *ReportItem:
			for f := 0; f < v.Count; f++ {
				if v.IsConstant() {
					bitOffset += v.BitSize
					continue
				}
				field := Extract(payload, bitOffset/8, bitOffset%8, v.BitSize)
				bitOffset += v.BitSize
				if v.BitSize%8 == 0 {
					parts = append(parts, fmt.Sprintf("% X", field))
				} else {
					parts = append(parts, bitmapString(field, v.BitSize))
				}
			}
		}
	}
	walk(col)
	return strings.Join(parts, " "), nil
}

// bitmapString renders a sub-byte field as one '#' or '.' per bit in
// extraction order: Extract left-aligns the field, so its i-th bit
// sits at the i-th position counted from each byte's MSB.
func bitmapString(field []byte, numBits int) string {
	var sb strings.Builder
	for i := 0; i < numBits; i++ {
		byteIdx := i / 8
		bitIdx := i % 8
		bit := (field[byteIdx] >> uint(7-bitIdx)) & 1
		if bit != 0 {
			sb.WriteByte('#')
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

// GenerateReport zero-fills a report_id's declared byte size, copies
// payload into it, and prefixes the report id byte expected by hidraw
// writes. Feature/Output report generation never needs field-level
// packing here: every SET_* command this module issues writes whole
// pre-built payload bytes, so only the outer framing is templated.
func GenerateReport(reportID uint8, reports map[uint8]*Collection, payload []byte) ([]byte, error) {
	col, ok := reports[reportID]
	if !ok {
		return nil, &kbderr.BadReportId{ReportID: reportID, Valid: ValidReportIDs(reports)}
	}
	size := col.ByteSize()
	if len(payload) > size {
		return nil, ErrPayloadTooLong
	}
	buf := make([]byte, 1+size)
	buf[0] = reportID
	copy(buf[1:], payload)
	return buf, nil
}
