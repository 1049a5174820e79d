package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// DefaultLineFraction places the counting line at 60% of the frame height
// when no absolute line position is configured.
const DefaultLineFraction = 0.60

// TuningConfig represents the root configuration for a counting session.
// Every field is optional; the Get* accessors supply defaults so partial
// files are safe. The same schema is accepted as JSON or TOML.
type TuningConfig struct {
	// Counting line
	LinePosition *float64 `json:"line_position,omitempty" toml:"line_position"`
	FrameHeight  *int     `json:"frame_height,omitempty" toml:"frame_height"`
	LineFraction *float64 `json:"line_fraction,omitempty" toml:"line_fraction"`

	// Detector class IDs (as strings, JSON object keys) to labels.
	ClassMap map[string]string `json:"class_map,omitempty" toml:"class_map"`

	// Crossing detection thresholds
	MinDetectionFrames *int     `json:"min_detection_frames,omitempty" toml:"min_detection_frames"`
	MinTrackDistance   *float64 `json:"min_track_distance,omitempty" toml:"min_track_distance"`
	CatchUpZone        *float64 `json:"catch_up_zone,omitempty" toml:"catch_up_zone"`
	MaxTrackingFrames  *int     `json:"max_tracking_frames,omitempty" toml:"max_tracking_frames"`
	MaxFramesSinceLine *int     `json:"max_frames_since_line,omitempty" toml:"max_frames_since_line"`

	// Track lifecycle
	MaxTrackAge      *int `json:"max_track_age,omitempty" toml:"max_track_age"`
	EvictionInterval *int `json:"eviction_interval,omitempty" toml:"eviction_interval"`

	// Ingest pipeline
	FrameSkip     *int `json:"frame_skip,omitempty" toml:"frame_skip"`
	ProgressEvery *int `json:"progress_every,omitempty" toml:"progress_every"`
	QueueSize     *int `json:"queue_size,omitempty" toml:"queue_size"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a .json or .toml file.
// The file must be under 1MB. Omitted fields keep their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that any values that are set are usable.
func (c *TuningConfig) Validate() error {
	if c.LinePosition != nil && *c.LinePosition <= 0 {
		return fmt.Errorf("line_position must be positive, got %f", *c.LinePosition)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}
	if c.LineFraction != nil && (*c.LineFraction <= 0 || *c.LineFraction >= 1) {
		return fmt.Errorf("line_fraction must be between 0 and 1, got %f", *c.LineFraction)
	}
	for k, v := range c.ClassMap {
		if _, err := strconv.Atoi(k); err != nil {
			return fmt.Errorf("class_map key %q is not an integer class id", k)
		}
		if v == "" {
			return fmt.Errorf("class_map entry %q has an empty label", k)
		}
		if v == "total" {
			return fmt.Errorf("class_map entry %q uses the reserved label %q", k, v)
		}
	}

	positiveInts := []struct {
		name string
		v    *int
	}{
		{"min_detection_frames", c.MinDetectionFrames},
		{"max_tracking_frames", c.MaxTrackingFrames},
		{"max_track_age", c.MaxTrackAge},
		{"eviction_interval", c.EvictionInterval},
		{"frame_skip", c.FrameSkip},
		{"queue_size", c.QueueSize},
	}
	for _, p := range positiveInts {
		if p.v != nil && *p.v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", p.name, *p.v)
		}
	}

	if c.MaxFramesSinceLine != nil && *c.MaxFramesSinceLine < 0 {
		return fmt.Errorf("max_frames_since_line must be non-negative, got %d", *c.MaxFramesSinceLine)
	}
	if c.ProgressEvery != nil && *c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every must be non-negative, got %d", *c.ProgressEvery)
	}
	if c.MinTrackDistance != nil && *c.MinTrackDistance < 0 {
		return fmt.Errorf("min_track_distance must be non-negative, got %f", *c.MinTrackDistance)
	}
	if c.CatchUpZone != nil && *c.CatchUpZone < 0 {
		return fmt.Errorf("catch_up_zone must be non-negative, got %f", *c.CatchUpZone)
	}
	return nil
}

// GetLinePosition returns the counting line y coordinate. An explicit
// line_position wins; otherwise the line is frame_height*line_fraction.
// Returns 0 when neither is known.
func (c *TuningConfig) GetLinePosition() float64 {
	if c.LinePosition != nil {
		return *c.LinePosition
	}
	if c.FrameHeight != nil {
		return float64(int(float64(*c.FrameHeight) * c.GetLineFraction()))
	}
	return 0
}

// GetLineFraction returns the line_fraction value or the default.
func (c *TuningConfig) GetLineFraction() float64 {
	if c.LineFraction == nil {
		return DefaultLineFraction
	}
	return *c.LineFraction
}

// GetClassMap returns class_map keyed by integer class id, or the
// detector's default mapping when unset.
func (c *TuningConfig) GetClassMap() map[int]string {
	if len(c.ClassMap) == 0 {
		return map[int]string{0: "car", 1: "bus", 2: "truck"}
	}
	out := make(map[int]string, len(c.ClassMap))
	for k, v := range c.ClassMap {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue // rejected by Validate
		}
		out[id] = v
	}
	return out
}

// GetMinDetectionFrames returns the min_detection_frames value or the default.
func (c *TuningConfig) GetMinDetectionFrames() int {
	if c.MinDetectionFrames == nil {
		return 2
	}
	return *c.MinDetectionFrames
}

// GetMinTrackDistance returns the min_track_distance value or the default.
func (c *TuningConfig) GetMinTrackDistance() float64 {
	if c.MinTrackDistance == nil {
		return 30
	}
	return *c.MinTrackDistance
}

// GetCatchUpZone returns the catch_up_zone value or the default.
func (c *TuningConfig) GetCatchUpZone() float64 {
	if c.CatchUpZone == nil {
		return 100
	}
	return *c.CatchUpZone
}

// GetMaxTrackingFrames returns the max_tracking_frames value or the default.
func (c *TuningConfig) GetMaxTrackingFrames() int {
	if c.MaxTrackingFrames == nil {
		return 60
	}
	return *c.MaxTrackingFrames
}

// GetMaxFramesSinceLine returns the max_frames_since_line value or the default.
func (c *TuningConfig) GetMaxFramesSinceLine() int {
	if c.MaxFramesSinceLine == nil {
		return 15
	}
	return *c.MaxFramesSinceLine
}

// GetMaxTrackAge returns the max_track_age value or the default.
func (c *TuningConfig) GetMaxTrackAge() int {
	if c.MaxTrackAge == nil {
		return 90
	}
	return *c.MaxTrackAge
}

// GetEvictionInterval returns the eviction_interval value or the default.
func (c *TuningConfig) GetEvictionInterval() int {
	if c.EvictionInterval == nil {
		return 30
	}
	return *c.EvictionInterval
}

// GetFrameSkip returns the frame_skip value or the default (every frame).
func (c *TuningConfig) GetFrameSkip() int {
	if c.FrameSkip == nil {
		return 1
	}
	return *c.FrameSkip
}

// GetProgressEvery returns the progress_every value or the default.
func (c *TuningConfig) GetProgressEvery() int {
	if c.ProgressEvery == nil {
		return 5
	}
	return *c.ProgressEvery
}

// GetQueueSize returns the queue_size value or the default.
func (c *TuningConfig) GetQueueSize() int {
	if c.QueueSize == nil {
		return 256
	}
	return *c.QueueSize
}
