package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lanecount/internal/counting"
	"github.com/banshee-data/lanecount/internal/ingest"
	"github.com/banshee-data/lanecount/internal/monitoring"
	"github.com/banshee-data/lanecount/internal/report"
	"github.com/banshee-data/lanecount/internal/security"
)

type batchOptions struct {
	tuningFlags
	outDir   string
	parallel int
	html     bool
}

func newBatchCmd(root *rootOptions) *cobra.Command {
	o := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch FILE...",
		Short: "Count several detection streams concurrently, one independent session each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, root, o, args)
		},
	}
	o.tuningFlags.register(cmd)
	cmd.Flags().StringVar(&o.outDir, "out-dir", ".", "directory for the per-input results documents")
	cmd.Flags().IntVarP(&o.parallel, "parallel", "j", 4, "maximum sessions running at once (0 for no limit)")
	cmd.Flags().BoolVar(&o.html, "html", false, "also write an HTML report per input")
	return cmd
}

// outputPath maps an input path to a file in dir named after it.
func outputPath(dir, input, suffix string) (string, error) {
	base := filepath.Base(input)
	name := security.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base))) + suffix
	return security.JoinWithin(dir, name)
}

func runBatch(cmd *cobra.Command, root *rootOptions, o *batchOptions, inputs []string) error {
	e, err := newEnv(cmd, root, &o.tuningFlags)
	if err != nil {
		return err
	}
	defer e.close()

	runs := make([]*sessionRun, len(inputs))
	jobs := make([]ingest.Job, len(inputs))
	for i, input := range inputs {
		run, err := e.newSessionRun(input)
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		runs[i] = run
		jobs[i] = ingest.Job{
			Name:    input,
			Open:    func() (io.ReadCloser, error) { return openInput(cmd, input) },
			Session: run.session,
			Options: e.pipelineOptions(run),
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, runErr := ingest.RunBatch(ctx, jobs, e.pipeline, o.parallel)

	total := 0
	for i, res := range results {
		out := e.finish(runs[i], res, res.Err)
		if res.Err != nil {
			continue
		}
		path, err := outputPath(o.outDir, inputs[i], ".results.json")
		if err != nil {
			return err
		}
		if err := report.WriteResultsFile(path, out); err != nil {
			return err
		}
		if o.html {
			title := fmt.Sprintf("Session %s (%s)", out.SessionID, inputs[i])
			htmlPath, err := outputPath(o.outDir, inputs[i], ".html")
			if err != nil {
				return err
			}
			if err := writeHTMLFile(htmlPath, title, out.Summary, runs[i].session.Classes(), runs[i].crossings); err != nil {
				return err
			}
		}
		total += out.TotalCounted
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n", inputs[i], path, out.TotalCounted)
	}
	monitoring.Logf("%d inputs, %d vehicles counted", len(inputs), total)

	if err := e.writeMetrics(o.metricsFile); err != nil {
		return err
	}
	return runErr
}

func writeHTMLFile(path, title string, sum counting.Summary, classes []counting.VehicleClass, crossings []counting.CrossingEvent) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := report.WriteHTML(f, title, sum, classes, crossings); err != nil {
		return err
	}
	return f.Close()
}
