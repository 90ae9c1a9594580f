package dbmove

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/emptyOVO/dbmove-go/master"
	log "github.com/sirupsen/logrus"
)

// StartMaster plans job, prepares its sink and serves the tasks on
// masterAddr until workers started elsewhere have run them all.
func StartMaster(ctx context.Context, job Job, masterAddr string) (Result, error) {
	lis, err := net.Listen("tcp", listenAddr(masterAddr))
	if err != nil {
		return Result{}, fmt.Errorf("master listen: %w", err)
	}
	m, res, err := newMaster(ctx, job)
	if err != nil {
		lis.Close()
		return res, err
	}
	started := time.Now()
	err = m.Serve(ctx, lis)
	res.Records = m.Records()
	res.Duration = time.Since(started)
	return res, err
}

// newMaster plans job and prepares its sink.
func newMaster(ctx context.Context, job Job) (*master.Master, Result, error) {
	if err := job.Validate(); err != nil {
		return nil, Result{}, err
	}
	l := job.logger()
	groups, err := Plan(ctx, job.Source, job.Groups, l)
	if err != nil {
		return nil, Result{}, err
	}
	res := Result{Groups: groups}
	l.WithFields(log.Fields{"groups": len(groups)}).Info("[Master] job planned")
	if err := job.Sinks.Prepare(ctx); err != nil {
		return nil, res, fmt.Errorf("prepare sink: %w", err)
	}
	return master.New(groups, job.Codec, l), res, nil
}
