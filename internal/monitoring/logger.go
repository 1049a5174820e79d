package monitoring

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/banshee-data/lanecount/internal/counting"
	"github.com/banshee-data/lanecount/internal/db"
	"github.com/banshee-data/lanecount/internal/ingest"
	"github.com/banshee-data/lanecount/internal/logstream"
)

// Logf is the command-level logger. It defaults to log.Printf but may be
// replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level selects which log streams are enabled.
type Level int

const (
	LevelQuiet Level = iota // nothing
	LevelOps                // actionable warnings and errors
	LevelDiag               // plus diagnostics
	LevelTrace              // plus per-detection telemetry
)

var levelNames = map[string]Level{
	"quiet": LevelQuiet,
	"ops":   LevelOps,
	"diag":  LevelDiag,
	"trace": LevelTrace,
}

// ParseLevel accepts quiet, ops, diag or trace, case-insensitively.
func ParseLevel(s string) (Level, error) {
	l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return LevelQuiet, fmt.Errorf("unknown log level %q (want quiet, ops, diag or trace)", s)
	}
	return l, nil
}

func (l Level) String() string {
	for name, v := range levelNames {
		if v == l {
			return name
		}
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// LogWriters holds the io.Writers for each logging stream.
type LogWriters = logstream.LogWriters

// Writers returns the streams enabled at level, all routed to w.
func (l Level) Writers(w io.Writer) LogWriters {
	var lw LogWriters
	if l >= LevelOps {
		lw.Ops = w
	}
	if l >= LevelDiag {
		lw.Diag = w
	}
	if l >= LevelTrace {
		lw.Trace = w
	}
	return lw
}

// ConfigureLogging routes the counting, ingest and db log streams enabled
// at level to w.
func ConfigureLogging(level Level, w io.Writer) {
	lw := level.Writers(w)
	counting.SetLogWriters(lw)
	ingest.SetLogWriters(lw)
	db.SetLogWriters(lw)
}
