package urb

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteState serializes a GetState snapshot: one record per line, bytes
// as space-separated uppercase hex.
func WriteState(w io.Writer, state [][]byte) error {
	for _, rec := range state {
		var sb strings.Builder
		for _, b := range rec {
			fmt.Fprintf(&sb, " %02X", b)
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// ReadState reverses WriteState.
func ReadState(r io.Reader) ([][]byte, error) {
	var state [][]byte
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		rec := make([]byte, len(fields))
		for i, f := range fields {
			var b byte
			if _, err := fmt.Sscanf(f, "%02X", &b); err != nil {
				return nil, fmt.Errorf("state file: bad byte %q: %w", f, err)
			}
			rec[i] = b
		}
		state = append(state, rec)
	}
	return state, scanner.Err()
}
