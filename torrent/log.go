package torrent

import (
	"log"

	"github.com/mitchellh/colorstring"
)

// logInfo, logWarn and logError generalize the tagged status-line
// convention ("[INFO]\t...", "[FAIL]\t...") used throughout this client into
// three colorized helpers for this package's status lines.
func logInfo(format string, args ...any) {
	log.Printf(colorstring.Color("[green][INFO][reset]\t"+format), args...)
}

func logWarn(format string, args ...any) {
	log.Printf(colorstring.Color("[yellow][WARN][reset]\t"+format), args...)
}

func logError(format string, args ...any) {
	log.Printf(colorstring.Color("[red][ERROR][reset]\t"+format), args...)
}
