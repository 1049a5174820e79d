package counting

import "github.com/banshee-data/lanecount/internal/logstream"

var logs = logstream.New("[counting] ")

// SetLogWriters configures the counting log streams. Pass nil for any writer to
// disable that stream.
func SetLogWriters(w logstream.LogWriters) {
	logs.Set(w)
}

// opsf logs to the ops stream (rejected detections, cancellation).
func opsf(format string, args ...interface{}) { logs.Opsf(format, args...) }

// diagf logs to the diag stream (lane/direction disagreement, evictions, deferrals).
func diagf(format string, args ...interface{}) { logs.Diagf(format, args...) }

// tracef logs to the trace stream (per-detection telemetry).
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
