package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanecount/internal/counting"
	"github.com/banshee-data/lanecount/internal/report"
)

// twoWayTraffic is a car travelling down (right lane) and a bus travelling
// up (left lane), both crossing y=300.
func twoWayTraffic() string {
	down := []float64{200, 240, 280, 320, 360}
	up := []float64{400, 360, 320, 280, 240}
	var b strings.Builder
	for i := range down {
		fmt.Fprintf(&b, `{"frame_index":%d,"track_id":1,"bbox":[25,%g,175,%g],"class_id":0,"confidence":0.9}`+"\n", i, down[i]-50, down[i]+50)
		fmt.Fprintf(&b, `{"frame_index":%d,"track_id":2,"bbox":[25,%g,175,%g],"class_id":1,"confidence":0.8}`+"\n", i, up[i]-50, up[i]+50)
	}
	return b.String()
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func assertTwoWayCounts(t *testing.T, sum counting.Summary) {
	t.Helper()
	assert.Equal(t, 2, sum.TotalCounted)
	assert.Equal(t, 1, sum.ByLane[counting.LaneRight].ByClass[counting.ClassCar])
	assert.Equal(t, 1, sum.ByLane[counting.LaneLeft].ByClass[counting.ClassBus])
	assert.Equal(t, []int64{1, 2}, sum.CountedTrackIDs)
}

func TestRun_WritesOutputs(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "clip.jsonl", twoWayTraffic())
	resultsPath := filepath.Join(dir, "out", "results.json")
	pngPath := filepath.Join(dir, "counts.png")
	htmlPath := filepath.Join(dir, "report.html")
	metricsPath := filepath.Join(dir, "metrics.prom")

	_, _, err := execute(t, "", "run", "--log-level", "quiet", "--no-progress",
		"-i", input, "--line", "300",
		"-o", resultsPath, "--png", pngPath, "--html", htmlPath, "--metrics-textfile", metricsPath)
	require.NoError(t, err)

	results, err := report.ReadResultsFile(resultsPath)
	require.NoError(t, err)
	assertTwoWayCounts(t, results.Summary)
	assert.Equal(t, 300.0, results.LinePosition)
	assert.Equal(t, int64(5), results.Frames)
	assert.Equal(t, input, results.Source)
	assert.False(t, results.Cancelled)
	assert.Equal(t, 2, results.Dwell.Count)

	assert.FileExists(t, pngPath)
	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), results.SessionID)

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `lanecount_engine_crossings_total{class="bus",lane="left",method="direct"} 1`)
	assert.Contains(t, string(metrics), `lanecount_engine_crossings_total{class="car",lane="right",method="direct"} 1`)
}

func TestRun_StdinToStdout(t *testing.T) {
	out, _, err := execute(t, twoWayTraffic(), "run", "--log-level", "quiet", "--line", "300")
	require.NoError(t, err)

	var results report.Results
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assertTwoWayCounts(t, results.Summary)
	assert.Equal(t, "-", results.Source)
}

func TestRun_TOMLConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeInput(t, dir, "tuning.toml", "line_position = 300.0\nmin_detection_frames = 2\n")

	out, _, err := execute(t, twoWayTraffic(), "run", "--log-level", "quiet", "--config", cfgPath)
	require.NoError(t, err)

	var results report.Results
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assertTwoWayCounts(t, results.Summary)
}

func TestRun_FrameHeightPlacesLine(t *testing.T) {
	// 500 * 0.6 = 300
	out, _, err := execute(t, twoWayTraffic(), "run", "--log-level", "quiet", "--frame-height", "500")
	require.NoError(t, err)

	var results report.Results
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, 300.0, results.LinePosition)
	assert.Equal(t, 2, results.TotalCounted)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no line", []string{"run", "--log-level", "quiet"}},
		{"negative line", []string{"run", "--log-level", "quiet", "--line", "-5"}},
		{"missing input", []string{"run", "--log-level", "quiet", "--line", "300", "-i", "/nonexistent/clip.jsonl"}},
		{"bad config extension", []string{"run", "--log-level", "quiet", "--line", "300", "--config", "tuning.yaml"}},
		{"bad log level", []string{"run", "--log-level", "loud", "--line", "300"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "", tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRun_ProgressLogged(t *testing.T) {
	_, stderr, err := execute(t, twoWayTraffic(), "run", "--log-level", "ops", "--line", "300", "-o", filepath.Join(t.TempDir(), "r.json"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "-: frame ")
	assert.Contains(t, stderr, "2 vehicles counted")
}

func TestSessions_StoredRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "lanecount.db")
	input := writeInput(t, dir, "clip.jsonl", twoWayTraffic())

	out, _, err := execute(t, "", "run", "--log-level", "quiet", "--db", dbPath, "-i", input, "--line", "300")
	require.NoError(t, err)
	var results report.Results
	require.NoError(t, json.Unmarshal([]byte(out), &results))

	out, _, err = execute(t, "", "sessions", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, results.SessionID)
	assert.Contains(t, out, "completed")

	pngPath := filepath.Join(dir, "stored.png")
	htmlPath := filepath.Join(dir, "stored.html")
	out, _, err = execute(t, "", "sessions", "show", results.SessionID, "--db", dbPath, "--png", pngPath, "--html", htmlPath)
	require.NoError(t, err)

	var detail struct {
		ID           string                   `json:"session_id"`
		Status       string                   `json:"status"`
		TotalCounted int                      `json:"total_counted"`
		Crossings    []counting.CrossingEvent `json:"crossings"`
		Dwell        report.DwellStats        `json:"dwell"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, results.SessionID, detail.ID)
	assert.Equal(t, "completed", detail.Status)
	assert.Equal(t, 2, detail.TotalCounted)
	require.Len(t, detail.Crossings, 2)
	assert.Equal(t, results.Dwell, detail.Dwell)
	assert.FileExists(t, pngPath)
	assert.FileExists(t, htmlPath)

	out, _, err = execute(t, "", "sessions", "delete", results.SessionID, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, _, err = execute(t, "", "sessions", "show", results.SessionID, "--db", dbPath)
	assert.Error(t, err)
}

func TestSessions_RequireDB(t *testing.T) {
	_, _, err := execute(t, "", "sessions", "list")
	assert.ErrorIs(t, err, errNoDB)

	_, _, err = execute(t, "", "migrate", "version")
	assert.ErrorIs(t, err, errNoDB)
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "results")
	a := writeInput(t, dir, "a.jsonl", twoWayTraffic())
	b := writeInput(t, dir, "b.jsonl", twoWayTraffic())
	dbPath := filepath.Join(dir, "batch.db")

	out, _, err := execute(t, "", "batch", "--log-level", "quiet", "--db", dbPath,
		"--line", "300", "--out-dir", outDir, "-j", "2", "--html", a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "\n"))

	for _, name := range []string{"a", "b"} {
		results, err := report.ReadResultsFile(filepath.Join(outDir, name+".results.json"))
		require.NoError(t, err)
		assertTwoWayCounts(t, results.Summary)
		assert.FileExists(t, filepath.Join(outDir, name+".html"))
	}

	out, _, err = execute(t, "", "sessions", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "a.jsonl")
	assert.Contains(t, out, "b.jsonl")
}

func TestBatch_FailedInputDoesNotFailOthers(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "results")
	good := writeInput(t, dir, "good.jsonl", twoWayTraffic())
	dbPath := filepath.Join(dir, "batch.db")

	out, _, err := execute(t, "", "batch", "--log-level", "quiet", "--db", dbPath,
		"--line", "300", "--out-dir", outDir, good, filepath.Join(dir, "missing.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.jsonl")
	assert.Equal(t, 1, strings.Count(out, "\n"))

	results, err := report.ReadResultsFile(filepath.Join(outDir, "good.results.json"))
	require.NoError(t, err)
	assertTwoWayCounts(t, results.Summary)
	assert.NoFileExists(t, filepath.Join(outDir, "missing.results.json"))

	out, _, err = execute(t, "", "sessions", "list", "--db", dbPath)
	require.NoError(t, err)
	for _, l := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(l, "good.jsonl"):
			assert.Contains(t, l, "completed")
		case strings.Contains(l, "missing.jsonl"):
			assert.Contains(t, l, "failed")
		}
	}
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "failed")
}

func TestBatch_RequiresInputs(t *testing.T) {
	_, _, err := execute(t, "", "batch", "--line", "300")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "m.db")

	out, _, err := execute(t, "", "migrate", "version", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "schema version 0\n", out)

	out, _, err = execute(t, "", "migrate", "up", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "schema version 2\n", out)

	out, _, err = execute(t, "", "migrate", "down", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "schema version 1\n", out)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "lanecount dev"))
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()

	got, err := outputPath(dir, "/data/clip.jsonl", ".results.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clip.results.json"), got)

	got, err = outputPath(dir, "north cam #2.jsonl", ".html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "north_cam_2.html"), got)
}
