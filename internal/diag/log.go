// Package diag wires the module's single logging sink. All packages log
// through the package-level Logger rather than the standard library's
// log package, matching the console-friendly structured style used for
// the CLI's --verbose output.
package diag

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the shared sink. cmd/kbdctl raises its level from Info to
// Debug when --verbose is set; every other package just logs through it.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
	With().
	Timestamp().
	Logger()

// SetVerbose raises the global level to Debug, mirroring the original
// tool's scattered "if verbose" print guards with a single leveled sink.
func SetVerbose(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
