package dbmove

import (
	"context"

	"github.com/emptyOVO/dbmove-go/worker"
)

// StartWorker runs tasks of job handed out by the master at masterAddr.
func StartWorker(ctx context.Context, job Job, masterAddr string) error {
	if err := job.Validate(); err != nil {
		return err
	}
	return worker.StartWorker(ctx, masterAddr, job.Source, job.Codec, job.Sinks, job.logger())
}
