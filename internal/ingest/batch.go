package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lanecount/internal/counting"
)

// Job is one independent session in a batch.
type Job struct {
	Name    string
	Open    func() (io.ReadCloser, error)
	Session *counting.Session
	Options []PipelineOption
}

// RunBatch runs every job in its own pipeline, at most limit at a time
// (limit < 1 means no limit). Sessions share nothing: a failing job does
// not stop the others. Results are returned in job order with each job's
// error in Result.Err; a job that could not be opened has only Source and
// Err set. The returned error joins every job error.
func RunBatch(ctx context.Context, jobs []Job, cfg Config, limit int) ([]Result, error) {
	results := make([]Result, len(jobs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, job := range jobs {
		g.Go(func() error {
			results[i] = runJob(ctx, job, cfg)
			if results[i].Err != nil {
				opsf("batch job %s failed: %v", job.Name, results[i].Err)
				return nil
			}
			diagf("batch job %s finished: %d counted", job.Name, results[i].Summary.TotalCounted)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return results, errors.Join(errs...)
}

func runJob(ctx context.Context, job Job, cfg Config) Result {
	rc, err := job.Open()
	if err != nil {
		return Result{Source: job.Name, Err: fmt.Errorf("%s: open: %w", job.Name, err)}
	}
	defer rc.Close()

	res, err := NewPipeline(job.Session, cfg, job.Options...).Run(ctx, rc)
	res.Source = job.Name
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", job.Name, err)
	}
	return res
}
