package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/banshee-data/lanecount/internal/config"
	"github.com/banshee-data/lanecount/internal/counting"
	"github.com/banshee-data/lanecount/internal/db"
	"github.com/banshee-data/lanecount/internal/ingest"
	"github.com/banshee-data/lanecount/internal/monitoring"
	"github.com/banshee-data/lanecount/internal/report"
)

// tuningFlags are the configuration flags shared by run and batch.
type tuningFlags struct {
	configPath  string
	line        float64
	frameHeight int
	frameSkip   int
	totalFrames int64
	metricsFile string
	noProgress  bool
}

func (f *tuningFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "tuning config file (.json or .toml)")
	cmd.Flags().Float64Var(&f.line, "line", 0, "counting line y position in pixels (overrides config)")
	cmd.Flags().IntVar(&f.frameHeight, "frame-height", 0, "frame height in pixels, used with line_fraction when no line is given")
	cmd.Flags().IntVar(&f.frameSkip, "frame-skip", 0, "process every Nth frame (overrides config)")
	cmd.Flags().Int64Var(&f.totalFrames, "total-frames", 0, "expected frame count for progress percent and ETA")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-textfile", "", "write Prometheus metrics to this file when done")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "do not log progress")
}

// load reads the tuning file, if any, and applies flag overrides.
func (f *tuningFlags) load(cmd *cobra.Command) (*config.TuningConfig, error) {
	tc := config.EmptyTuningConfig()
	if f.configPath != "" {
		var err error
		if tc, err = config.LoadTuningConfig(f.configPath); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("line") {
		tc.LinePosition = &f.line
	}
	if cmd.Flags().Changed("frame-height") {
		tc.FrameHeight = &f.frameHeight
	}
	if cmd.Flags().Changed("frame-skip") {
		tc.FrameSkip = &f.frameSkip
	}
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return tc, nil
}

// env is everything sessions in one command invocation share.
type env struct {
	tuning   *config.TuningConfig
	engine   counting.Config
	pipeline ingest.Config
	registry *prometheus.Registry
	metrics  *counting.Metrics
	store    *db.DB
	progress bool
}

func newEnv(cmd *cobra.Command, root *rootOptions, flags *tuningFlags) (*env, error) {
	tc, err := flags.load(cmd)
	if err != nil {
		return nil, err
	}
	e := &env{
		tuning:   tc,
		engine:   counting.ConfigFromTuning(tc),
		pipeline: ingest.ConfigFromTuning(tc),
		registry: prometheus.NewRegistry(),
		progress: !flags.noProgress,
	}
	if err := e.engine.Validate(); err != nil {
		return nil, err
	}
	e.pipeline.TotalFrames = flags.totalFrames
	e.metrics = counting.NewMetrics(e.registry)

	if root.dbPath != "" {
		if e.store, err = db.NewDB(root.dbPath); err != nil {
			return nil, fmt.Errorf("failed to open db: %w", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			monitoring.Logf("failed to close db: %v", err)
		}
	}
}

func (e *env) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// sessionRun tracks one session from creation to its stored outcome.
// crossings is appended on the pipeline's consumer goroutine and read only
// after the pipeline returns.
type sessionRun struct {
	source    string
	session   *counting.Session
	recorder  *db.CrossingRecorder
	crossings []counting.CrossingEvent
}

func (e *env) newSessionRun(source string) (*sessionRun, error) {
	run := &sessionRun{source: source}
	if e.store != nil {
		run.recorder = e.store.NewCrossingRecorder()
	}
	s, err := counting.NewSession(e.engine,
		counting.WithMetrics(e.metrics),
		counting.WithCrossingHandler(run.handle),
	)
	if err != nil {
		return nil, err
	}
	run.session = s

	if e.store != nil {
		cfgJSON, err := json.Marshal(e.tuning)
		if err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		if err := e.store.CreateSession(&db.Session{
			ID:           s.ID(),
			Source:       source,
			LinePosition: e.engine.LinePosition,
			ConfigJSON:   string(cfgJSON),
		}); err != nil {
			return nil, err
		}
	}
	return run, nil
}

func (r *sessionRun) handle(ev counting.CrossingEvent) {
	r.crossings = append(r.crossings, ev)
	if r.recorder != nil {
		r.recorder.Record(ev)
	}
}

func (e *env) pipelineOptions(run *sessionRun) []ingest.PipelineOption {
	if !e.progress {
		return nil
	}
	return []ingest.PipelineOption{ingest.WithProgress(func(p ingest.Progress) {
		if p.TotalFrames > 0 {
			monitoring.Logf("%s: frame %d (%.1f%%) %.0f fps eta %s, %d counted",
				run.source, p.Frame, p.Percent, p.FPS, p.ETA.Round(time.Second), p.Counted)
			return
		}
		monitoring.Logf("%s: frame %d %.0f fps, %d counted", run.source, p.Frame, p.FPS, p.Counted)
	})}
}

// finish stores the outcome of a pipeline run and returns its results.
func (e *env) finish(run *sessionRun, res ingest.Result, runErr error) report.Results {
	results := report.NewResults(res, e.engine.LinePosition, run.crossings)
	if e.store == nil {
		return results
	}

	status := db.StatusCompleted
	switch {
	case runErr != nil:
		status = db.StatusFailed
	case res.Cancelled:
		status = db.StatusCancelled
	}
	if err := e.store.FinishSession(run.session.ID(), db.SessionOutcome{
		Status:         status,
		Summary:        res.Summary,
		Frames:         res.Frames,
		ProcessingTime: res.Elapsed,
		ProcessingFPS:  res.FPS,
		FinishedAt:     time.Now(),
	}); err != nil {
		monitoring.Logf("failed to store outcome of session %s: %v", run.session.ID(), err)
	}
	if err := run.recorder.Err(); err != nil {
		monitoring.Logf("session %s: %d crossings stored, some writes failed: %v",
			run.session.ID(), run.recorder.Count(), err)
	}
	return results
}

// openInput opens path for reading; "-" reads stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		in := cmd.InOrStdin()
		if rc, ok := in.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(in), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("input %s does not exist", path)
		}
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}
