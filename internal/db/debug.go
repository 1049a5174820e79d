package db

import "github.com/banshee-data/lanecount/internal/logstream"

var logs = logstream.New("[db] ")

// SetLogWriters configures the db log streams. Pass nil for any writer to
// disable that stream.
func SetLogWriters(w logstream.LogWriters) {
	logs.Set(w)
}

// opsf logs to the ops stream (write failures).
func opsf(format string, args ...interface{}) { logs.Opsf(format, args...) }

// diagf logs to the diag stream (schema migrations, session lifecycle).
func diagf(format string, args ...interface{}) { logs.Diagf(format, args...) }

// tracef logs to the trace stream (per-crossing inserts).
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
