package ingest

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanecount/internal/counting"
)

func TestDecoder_Next(t *testing.T) {
	t.Parallel()

	in := `{"frame_index":12,"track_id":7,"bbox":[10,20,110,120],"class_id":1,"confidence":0.83}

{"frame_index":13,"track_id":7,"bbox":[10,30,110,130],"class_id":0,"confidence":0.5,"extra":"ignored"}
`
	dec := NewDecoder(strings.NewReader(in))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, counting.DetectionEvent{
		FrameIndex: 12,
		TrackID:    7,
		BBox:       counting.BBox{10, 20, 110, 120},
		ClassID:    1,
		Confidence: 0.83,
	}, ev)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(13), ev.FrameIndex)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_MalformedLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want string
	}{
		{"not json", `{frame`, "malformed"},
		{"missing frame", `{"track_id":1,"bbox":[0,0,1,1],"class_id":0,"confidence":0.5}`, "missing frame_index"},
		{"missing track", `{"frame_index":1,"bbox":[0,0,1,1],"class_id":0,"confidence":0.5}`, "missing track_id"},
		{"missing bbox", `{"frame_index":1,"track_id":1,"class_id":0,"confidence":0.5}`, "missing bbox"},
		{"short bbox", `{"frame_index":1,"track_id":1,"bbox":[0,0,1],"class_id":0,"confidence":0.5}`, "3 values"},
		{"missing class", `{"frame_index":1,"track_id":1,"bbox":[0,0,1,1],"confidence":0.5}`, "missing class_id"},
		{"missing confidence", `{"frame_index":1,"track_id":1,"bbox":[0,0,1,1],"class_id":0}`, "missing confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(strings.NewReader("\n" + tt.line + "\n"))
			_, err := dec.Next()
			require.Error(t, err)

			var lineErr *LineError
			require.True(t, errors.As(err, &lineErr))
			assert.Equal(t, 2, lineErr.Line)
			assert.ErrorIs(t, err, ErrMalformedLine)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecoder_ContinuesAfterMalformedLine(t *testing.T) {
	t.Parallel()

	in := "garbage\n" + `{"frame_index":1,"track_id":1,"bbox":[0,0,1,1],"class_id":0,"confidence":0.5}`
	dec := NewDecoder(strings.NewReader(in))

	_, err := dec.Next()
	require.Error(t, err)

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.TrackID)
}

func TestDecoder_OversizedLineSkipped(t *testing.T) {
	t.Parallel()

	valid := `{"frame_index":1,"track_id":1,"bbox":[0,0,1,1],"class_id":0,"confidence":0.5}`
	huge := `{"frame_index":2,"pad":"` + strings.Repeat("x", 2*maxLineSize) + `"}`
	dec := NewDecoder(strings.NewReader(valid + "\n" + huge + "\n" + valid + "\n"))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.FrameIndex)

	_, err = dec.Next()
	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 2, lineErr.Line)
	assert.ErrorIs(t, err, ErrMalformedLine)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.TrackID)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_LineAtLimitAndUnterminated(t *testing.T) {
	t.Parallel()

	valid := `{"frame_index":3,"track_id":4,"bbox":[0,0,1,1],"class_id":0,"confidence":0.5}`
	atLimit := valid + strings.Repeat(" ", maxLineSize-len(valid))
	require.Len(t, atLimit, maxLineSize)

	// The last record has no trailing newline.
	dec := NewDecoder(strings.NewReader(atLimit + "\n" + valid))
	for range 2 {
		ev, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, int64(4), ev.TrackID)
	}
	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_OversizedFinalLine(t *testing.T) {
	t.Parallel()

	dec := NewDecoder(strings.NewReader(strings.Repeat("x", maxLineSize+1)))
	_, err := dec.Next()
	assert.ErrorIs(t, err, ErrMalformedLine)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}
