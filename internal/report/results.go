// Package report renders the outcome of a counting session as a results
// document, a static chart and an interactive HTML page.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/lanecount/internal/counting"
	"github.com/banshee-data/lanecount/internal/ingest"
)

// Results is the persisted outcome of one session. The summary fields are
// inlined so consumers of the plain summary document can read it unchanged.
type Results struct {
	counting.Summary

	SessionID      string         `json:"session_id"`
	Source         string         `json:"source,omitempty"`
	LinePosition   float64        `json:"line_position"`
	Frames         int64          `json:"frames"`
	ProcessingFPS  float64        `json:"processing_fps"`
	ProcessingTime float64        `json:"processing_time"`
	Cancelled      bool           `json:"cancelled"`
	Malformed      int64          `json:"malformed"`
	Stats          counting.Stats `json:"stats"`
	Dwell          DwellStats     `json:"dwell"`
}

// NewResults assembles Results from a pipeline run and the crossings it
// produced.
func NewResults(res ingest.Result, linePosition float64, crossings []counting.CrossingEvent) Results {
	return Results{
		Summary:        res.Summary,
		SessionID:      res.SessionID,
		Source:         res.Source,
		LinePosition:   linePosition,
		Frames:         res.Frames,
		ProcessingFPS:  res.FPS,
		ProcessingTime: res.Elapsed.Seconds(),
		Cancelled:      res.Cancelled,
		Malformed:      res.Malformed,
		Stats:          res.Stats,
		Dwell:          ComputeDwellStats(crossings),
	}
}

// Encode writes r as indented JSON.
func (r Results) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

// WriteResultsFile writes r to path through a temporary file in the same
// directory so readers never see a partial document.
func WriteResultsFile(path string, r Results) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".results-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadResultsFile loads a results document written by WriteResultsFile.
func ReadResultsFile(path string) (Results, error) {
	var r Results
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return r, nil
}
