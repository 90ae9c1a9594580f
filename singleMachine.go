package dbmove

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/emptyOVO/dbmove-go/worker"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func StartSingleMachineJob(ctx context.Context, job Job) (Result, error) {
	return StartSingleMachineJobWithAddr(ctx, job, MasterIP)
}

// StartSingleMachineJobWithAddr runs the master on masterAddr and
// job.Workers workers in this process.
func StartSingleMachineJobWithAddr(ctx context.Context, job Job, masterAddr string) (Result, error) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	m, res, err := newMaster(ctx, job)
	if err != nil {
		return res, err
	}
	if len(res.Groups) == 0 {
		job.logger().Warn("[Job] source has no splits, nothing to do")
		return res, nil
	}
	lis, err := net.Listen("tcp", listenAddr(masterAddr))
	if err != nil {
		return res, fmt.Errorf("master listen: %w", err)
	}
	addr := dialAddr(lis.Addr())

	nWorker := job.Workers
	if nWorker <= 0 {
		nWorker = 1
	}
	if nWorker > len(res.Groups) {
		nWorker = len(res.Groups)
	}
	job.logger().WithFields(log.Fields{"addr": addr, "workers": nWorker}).Info("[Job] single machine start")

	m.ExpectWorkers(nWorker)

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Serve(gctx, lis)
	})
	for i := 0; i < nWorker; i++ {
		g.Go(func() error {
			return worker.StartWorker(gctx, addr, job.Source, job.Codec, job.Sinks, job.logger())
		})
	}
	err = g.Wait()
	res.Records = m.Records()
	res.Duration = time.Since(started)
	return res, err
}
