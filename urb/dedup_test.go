package urb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func collectDedup() (*Dedup, *[]string) {
	var lines []string
	d := NewDedup(func(s string) { lines = append(lines, s) })
	return d, &lines
}

func TestDedupCollapsesLongRun(t *testing.T) {
	d, lines := collectDedup()
	for i := 0; i < 40; i++ {
		d.Add("HID Report In 1: (…)")
	}
	d.Add("distinct")
	d.Flush()

	assert.Equal(t, []string{
		"HID Report In 1: (…)",
		"(After 39 duplicate patterns, last size 1)",
		"distinct",
	}, *lines)
}

func TestDedupPrintsShortRunVerbatim(t *testing.T) {
	d, lines := collectDedup()
	d.Add("a")
	d.Add("a")
	d.Add("b")
	d.Flush()

	assert.Equal(t, []string{"a", "a", "b"}, *lines)
}

func TestDedupDetectsAlternatingPattern(t *testing.T) {
	d, lines := collectDedup()
	for i := 0; i < 3; i++ {
		d.Add("ping")
		d.Add("pong")
	}
	d.Add("end")
	d.Flush()

	assert.Equal(t, []string{
		"ping", "pong", "ping",
		"(After 3 duplicate patterns, last size 2)",
		"end",
	}, *lines)
}

func TestDedupFlushEmitsTrailingRun(t *testing.T) {
	d, lines := collectDedup()
	for i := 0; i < 5; i++ {
		d.Add("x")
	}
	d.Flush()

	assert.Equal(t, []string{
		"x",
		"(After 4 duplicate patterns, last size 1)",
	}, *lines)
}
