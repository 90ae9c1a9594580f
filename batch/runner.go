package batch

import (
	"context"
	"time"

	dbmove "github.com/emptyOVO/dbmove-go"
	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Runner abstracts how the tasks of a job are executed.
type Runner interface {
	Run(ctx context.Context, job dbmove.Job) (dbmove.Result, error)
}

var defaultRunner Runner = LocalRunner{}

// SetDefaultRunner overrides the process-wide runtime strategy.
func SetDefaultRunner(r Runner) {
	if r == nil {
		return
	}
	defaultRunner = r
}

// DefaultRunner returns the current process-wide runtime strategy.
func DefaultRunner() Runner {
	return defaultRunner
}

// LocalRunner runs every task in this process, job.Workers at a time.
type LocalRunner struct{}

func (LocalRunner) Run(ctx context.Context, job dbmove.Job) (dbmove.Result, error) {
	if err := job.Validate(); err != nil {
		return dbmove.Result{}, err
	}
	l := job.Log
	if l == nil {
		l = log.StandardLogger()
	}
	groups, err := dbmove.Plan(ctx, job.Source, job.Groups, l)
	if err != nil {
		return dbmove.Result{}, err
	}
	res := dbmove.Result{Groups: groups}
	if err := job.Sinks.Prepare(ctx); err != nil {
		return res, err
	}
	started := time.Now()
	results, err := runGroups(ctx, groups, job.Source, job.Sinks, job.Workers, l)
	for _, r := range results {
		res.Records += r.Records
	}
	res.Duration = time.Since(started)
	return res, err
}

// runGroups drains groups with at most parallel tasks at a time. The first
// failing task cancels the others.
func runGroups(ctx context.Context, groups []split.Group, open split.Opener, sinks task.SinkFactory, parallel int, l log.FieldLogger) ([]task.Result, error) {
	if parallel <= 0 || parallel > len(groups) {
		parallel = len(groups)
	}
	results := make([]task.Result, len(groups))
	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < parallel; w++ {
		g.Go(func() error {
			for i := range jobs {
				r, err := task.Run(gctx, groups[i], open, sinks, l)
				results[i] = r
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for i := range groups {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	err := g.Wait()
	return results, err
}
