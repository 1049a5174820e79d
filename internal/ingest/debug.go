package ingest

import "github.com/banshee-data/lanecount/internal/logstream"

var logs = logstream.New("[ingest] ")

// SetLogWriters configures the ingest log streams. Pass nil for any writer to
// disable that stream.
func SetLogWriters(w logstream.LogWriters) {
	logs.Set(w)
}

// opsf logs to the ops stream (malformed input, read failures).
func opsf(format string, args ...interface{}) { logs.Opsf(format, args...) }

// diagf logs to the diag stream (pipeline start and finish, cancellation).
func diagf(format string, args ...interface{}) { logs.Diagf(format, args...) }

// tracef logs to the trace stream (progress ticks, skipped frames).
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
