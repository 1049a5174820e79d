package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/lanecount/internal/counting"
)

// maxLineSize bounds a single JSON Lines record.
const maxLineSize = 1 << 20

// ErrMalformedLine marks a record that could not be decoded.
var ErrMalformedLine = errors.New("malformed detection record")

// LineError reports a malformed record and the 1-based line it was on.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// wireEvent mirrors counting.DetectionEvent with pointers so that missing
// fields can be told apart from zero values.
type wireEvent struct {
	FrameIndex *int64     `json:"frame_index"`
	TrackID    *int64     `json:"track_id"`
	BBox       *[]float64 `json:"bbox"`
	ClassID    *int       `json:"class_id"`
	Confidence *float64   `json:"confidence"`
}

// Decoder reads detection events from a JSON Lines stream. Blank lines are
// skipped.
type Decoder struct {
	r    *bufio.Reader
	buf  []byte
	line int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next event. It returns io.EOF at the end of the stream
// and a *LineError for a record that cannot be decoded, including one longer
// than maxLineSize; the caller may keep reading after a *LineError.
func (d *Decoder) Next() (counting.DetectionEvent, error) {
	for {
		raw, tooLong, err := d.readLine()
		if errors.Is(err, io.EOF) {
			return counting.DetectionEvent{}, io.EOF
		}
		if err != nil {
			return counting.DetectionEvent{}, fmt.Errorf("read line %d: %w", d.line+1, err)
		}
		d.line++
		if tooLong {
			return counting.DetectionEvent{}, &LineError{
				Line: d.line,
				Err:  fmt.Errorf("%w: record exceeds %d bytes", ErrMalformedLine, maxLineSize),
			}
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		ev, err := decodeEvent(raw)
		if err != nil {
			return counting.DetectionEvent{}, &LineError{Line: d.line, Err: err}
		}
		return ev, nil
	}
}

// readLine returns the next line without its newline. A line longer than
// maxLineSize is consumed to its end and reported with tooLong set and no
// content. io.EOF is returned only when no bytes remain.
func (d *Decoder) readLine() (line []byte, tooLong bool, err error) {
	d.buf = d.buf[:0]
	for {
		chunk, rerr := d.r.ReadSlice('\n')
		content := bytes.TrimSuffix(chunk, []byte{'\n'})
		if !tooLong {
			if len(d.buf)+len(content) > maxLineSize {
				tooLong = true
				d.buf = d.buf[:0]
			} else {
				d.buf = append(d.buf, content...)
			}
		}
		switch {
		case rerr == nil:
			return d.buf, tooLong, nil
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		case errors.Is(rerr, io.EOF):
			if len(chunk) == 0 && len(d.buf) == 0 && !tooLong {
				return nil, false, io.EOF
			}
			return d.buf, tooLong, nil
		default:
			return nil, false, rerr
		}
	}
}

func decodeEvent(raw []byte) (counting.DetectionEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return counting.DetectionEvent{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	switch {
	case w.FrameIndex == nil:
		return counting.DetectionEvent{}, fmt.Errorf("%w: missing frame_index", ErrMalformedLine)
	case w.TrackID == nil:
		return counting.DetectionEvent{}, fmt.Errorf("%w: missing track_id", ErrMalformedLine)
	case w.BBox == nil:
		return counting.DetectionEvent{}, fmt.Errorf("%w: missing bbox", ErrMalformedLine)
	case len(*w.BBox) != 4:
		return counting.DetectionEvent{}, fmt.Errorf("%w: bbox has %d values, want 4", ErrMalformedLine, len(*w.BBox))
	case w.ClassID == nil:
		return counting.DetectionEvent{}, fmt.Errorf("%w: missing class_id", ErrMalformedLine)
	case w.Confidence == nil:
		return counting.DetectionEvent{}, fmt.Errorf("%w: missing confidence", ErrMalformedLine)
	}

	ev := counting.DetectionEvent{
		FrameIndex: *w.FrameIndex,
		TrackID:    *w.TrackID,
		ClassID:    *w.ClassID,
		Confidence: *w.Confidence,
	}
	copy(ev.BBox[:], *w.BBox)
	return ev, nil
}
