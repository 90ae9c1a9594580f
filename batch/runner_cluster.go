package batch

import (
	"context"

	dbmove "github.com/emptyOVO/dbmove-go"
)

// ClusterRunner runs the job through the master/worker runtime. With Remote
// set only the master runs here and workers are started elsewhere with
// RunWorker; otherwise job.Workers workers run in this process.
type ClusterRunner struct {
	// Addr is the master listen address, dbmove.MasterIP when empty.
	Addr   string
	Remote bool
}

func (r ClusterRunner) addr() string {
	if r.Addr == "" {
		return dbmove.MasterIP
	}
	return r.Addr
}

func (r ClusterRunner) Run(ctx context.Context, job dbmove.Job) (dbmove.Result, error) {
	if r.Remote {
		return dbmove.StartMaster(ctx, job, r.addr())
	}
	return dbmove.StartSingleMachineJobWithAddr(ctx, job, r.addr())
}

// RunWorker runs tasks of job handed out by the master at masterAddr.
func RunWorker(ctx context.Context, job dbmove.Job, masterAddr string) error {
	return dbmove.StartWorker(ctx, job, masterAddr)
}
