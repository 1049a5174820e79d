package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lanecount/internal/ingest"
	"github.com/banshee-data/lanecount/internal/monitoring"
	"github.com/banshee-data/lanecount/internal/report"
)

type runOptions struct {
	tuningFlags
	input       string
	resultsPath string
	pngPath     string
	htmlPath    string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Count one detection stream (JSON Lines, one detection per line)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, root, o)
		},
	}
	o.tuningFlags.register(cmd)
	cmd.Flags().StringVarP(&o.input, "input", "i", "-", "detection stream to read, - for stdin")
	cmd.Flags().StringVarP(&o.resultsPath, "results", "o", "", "write the results document here instead of stdout")
	cmd.Flags().StringVar(&o.pngPath, "png", "", "write a bar chart of the counts (.png, .svg or .pdf)")
	cmd.Flags().StringVar(&o.htmlPath, "html", "", "write an interactive HTML report")
	return cmd
}

func runRun(cmd *cobra.Command, root *rootOptions, o *runOptions) error {
	e, err := newEnv(cmd, root, &o.tuningFlags)
	if err != nil {
		return err
	}
	defer e.close()

	in, err := openInput(cmd, o.input)
	if err != nil {
		return err
	}
	defer in.Close()

	run, err := e.newSessionRun(o.input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := ingest.NewPipeline(run.session, e.pipeline, e.pipelineOptions(run)...).Run(ctx, in)
	res.Source = o.input
	results := e.finish(run, res, runErr)
	if runErr != nil {
		return runErr
	}
	if res.Cancelled {
		monitoring.Logf("interrupted at frame %d: writing partial results", res.Stats.LastFrame)
	}

	if err := writeOutputs(cmd, o, results, run); err != nil {
		return err
	}
	return e.writeMetrics(o.metricsFile)
}

func writeOutputs(cmd *cobra.Command, o *runOptions, results report.Results, run *sessionRun) error {
	if o.resultsPath == "" {
		if err := results.Encode(cmd.OutOrStdout()); err != nil {
			return err
		}
	} else {
		if err := report.WriteResultsFile(o.resultsPath, results); err != nil {
			return err
		}
		monitoring.Logf("%d vehicles counted, results written to %s", results.TotalCounted, o.resultsPath)
	}

	classes := run.session.Classes()
	if o.pngPath != "" {
		if err := report.WritePNG(o.pngPath, results.Summary, classes); err != nil {
			return err
		}
	}
	if o.htmlPath != "" {
		title := "Session " + results.SessionID
		if err := writeHTMLFile(o.htmlPath, title, results.Summary, classes, run.crossings); err != nil {
			return err
		}
	}
	return nil
}
