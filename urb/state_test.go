package urb

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFileRoundTrip(t *testing.T) {
	state := [][]byte{
		{0x00, 0x7F, 0xFF},
		{0xAB},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteState(buf, state))

	assert.Equal(t, " 00 7F FF\n AB\n", buf.String())

	got, err := ReadState(buf)
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestReadStateSkipsBlankLines(t *testing.T) {
	got, err := ReadState(strings.NewReader(" 01 02\n\n 03\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x01, 0x02}, {0x03}}, got)
}

func TestReadStateRejectsGarbage(t *testing.T) {
	_, err := ReadState(strings.NewReader(" ZZ\n"))
	assert.Error(t, err)
}
