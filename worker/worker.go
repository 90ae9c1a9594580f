// Package worker pulls tasks from a master and drains each one into a sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emptyOVO/dbmove-go/rpc"
	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// PollInterval is how long a worker waits before asking again when every
// task is taken but the job is not finished.
var PollInterval = 100 * time.Millisecond

type Worker struct {
	UUID   string
	ID     int
	Addr   string
	Client RpcClient
	Opener split.Opener
	Codec  split.Codec
	Sinks  task.SinkFactory

	log log.FieldLogger
}

func New(client RpcClient, opener split.Opener, codec split.Codec, sinks task.SinkFactory, logger log.FieldLogger) *Worker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	id := uuid.New().String()
	return &Worker{
		UUID:   id,
		Client: client,
		Opener: opener,
		Codec:  codec,
		Sinks:  sinks,
		log:    logger.WithField("worker", id),
	}
}

func (wr *Worker) info() rpc.WorkerInfo {
	return rpc.WorkerInfo{UUID: wr.UUID, Addr: wr.Addr}
}

// Run registers with the master and runs tasks until the master reports the
// job done. It returns the first error of a task run by this worker, after
// the failure has been reported.
func (wr *Worker) Run(ctx context.Context) error {
	id, err := wr.Client.WorkerRegister(ctx, wr.info())
	if err != nil {
		return err
	}
	wr.ID = id
	wr.log.WithField("id", id).Info("[Worker] registered")

	var taskErr error
	for {
		a, err := wr.Client.FetchTask(ctx, wr.info())
		if err != nil {
			return err
		}
		switch {
		case a.Done:
			wr.log.Info("[Worker] job done")
			return taskErr
		case a.Wait:
			wr.log.WithField("id", wr.ID).Trace("[Worker] no task yet")
			select {
			case <-time.After(PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		report := wr.runTask(ctx, a)
		if report.Err != "" && taskErr == nil {
			taskErr = errors.New(report.Err)
		}
		if err := wr.Client.ReportTask(ctx, report); err != nil {
			return err
		}
	}
}

func (wr *Worker) runTask(ctx context.Context, a rpc.Assignment) rpc.TaskReport {
	report := rpc.TaskReport{TaskID: a.TaskID, WorkerID: wr.UUID}
	splits := make([]split.Split, 0, len(a.Splits))
	for _, enc := range a.Splits {
		s, err := wr.Codec.DecodeSplit(enc)
		if err != nil {
			report.Err = fmt.Sprintf("decode split: %v", err)
			wr.log.WithError(err).WithField("task", a.TaskID).Error("[Worker] bad assignment")
			return report
		}
		splits = append(splits, s)
	}
	g := split.NewGroup(a.TaskID, splits)
	res, err := task.Run(ctx, g, wr.Opener, wr.Sinks, wr.log)
	report.Records = res.Records
	if err != nil {
		report.Err = err.Error()
		wr.log.WithError(err).WithField("task", a.TaskID).Error("[Worker] task failed")
	}
	return report
}
