// Package task drains one group of splits into one sink.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/emptyOVO/dbmove-go/split"
	log "github.com/sirupsen/logrus"
)

// Sink receives the records of one task.
type Sink interface {
	Write(ctx context.Context, rec split.Record) error
	Close() error
}

// SinkFactory opens one Sink per task. Prepare runs once per job, before
// any sink is opened.
type SinkFactory interface {
	Prepare(ctx context.Context) error
	Open(ctx context.Context, taskID int) (Sink, error)
}

// Result summarizes a finished task.
type Result struct {
	TaskID   int
	Splits   int
	Records  int64
	Duration time.Duration
}

// ProgressEvery is the number of records between two progress log lines.
var ProgressEvery int64 = 100000

// Run reads every record of g through a CompositeReader and writes it to a
// sink opened from sinks. The reader and the sink are closed on every path.
func Run(ctx context.Context, g split.Group, open split.Opener, sinks SinkFactory, logger log.FieldLogger) (res Result, err error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	l := logger.WithField("task", g.Index)
	res = Result{TaskID: g.Index, Splits: len(g.Splits)}
	started := time.Now()

	sink, err := sinks.Open(ctx, g.Index)
	if err != nil {
		return res, fmt.Errorf("task %d: open sink: %w", g.Index, err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("task %d: close sink: %w", g.Index, cerr)
		}
	}()

	r := split.NewCompositeReader(g, open, l)
	defer r.Close()

	l.WithFields(log.Fields{"splits": len(g.Splits), "size": g.TotalSize}).Info("[Task] start")
	for {
		ok, err := r.Next(ctx)
		if err != nil {
			return res, fmt.Errorf("task %d: read: %w", g.Index, err)
		}
		if !ok {
			break
		}
		if err := sink.Write(ctx, r.Record()); err != nil {
			return res, fmt.Errorf("task %d: write: %w", g.Index, err)
		}
		res.Records++
		if ProgressEvery > 0 && res.Records%ProgressEvery == 0 {
			l.WithFields(log.Fields{
				"records":  res.Records,
				"progress": fmt.Sprintf("%.1f%%", r.Progress()*100),
			}).Trace("[Task] progress")
		}
	}
	res.Duration = time.Since(started)
	l.WithFields(log.Fields{"records": res.Records, "duration": res.Duration}).Info("[Task] done")
	return res, nil
}
