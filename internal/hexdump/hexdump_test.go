package hexdump

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringFullRow(t *testing.T) {
	data := []byte("0123456789abcdef")
	got := String(data)
	assert.Equal(t, " 30 31 32 33 34 35 36 37-38 39 61 62 63 64 65 66  01234567 89abcdef", got)
}

func TestStringPartialRowPadsHexColumn(t *testing.T) {
	got := String([]byte{0x00, 0x7F, 0x41})
	assert.Equal(t, " 00 7F 41", got[:9])
	assert.Contains(t, got, "..A")
}

func TestStringEmpty(t *testing.T) {
	assert.Empty(t, String(nil))
}
