package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/emptyOVO/dbmove-go/rpc"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RpcClient is the worker's view of the master.
type RpcClient interface {
	WorkerRegister(ctx context.Context, w rpc.WorkerInfo) (int, error)
	FetchTask(ctx context.Context, w rpc.WorkerInfo) (rpc.Assignment, error)
	ReportTask(ctx context.Context, r rpc.TaskReport) error
	Close() error
}

// Retry policy for calls that reach a master which is not up yet.
var (
	MaxAttempts = 40
	Backoff     = 200 * time.Millisecond
	CallTimeout = 2 * time.Second
)

type masterClient struct {
	master rpc.MasterClient
	conn   *grpc.ClientConn
}

// Connect dials the master at addr. The connection is lazy; the first call
// retries until the master answers.
func Connect(addr string) (RpcClient, error) {
	conn, err := grpc.Dial(addr, grpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("dial master %s: %w", addr, err)
	}
	return &masterClient{master: rpc.NewMasterClient(conn), conn: conn}, nil
}

// call runs fn until it succeeds, fails with a non transient code, or the
// attempts are used up.
func call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < MaxAttempts; i++ {
		cctx, cancel := context.WithTimeout(ctx, CallTimeout)
		log.Tracef("[Worker] %s rpc call", name)
		err := fn(cctx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		respErr, ok := status.FromError(err)
		if !ok {
			return fmt.Errorf("%s rpc failed: %w", name, err)
		}
		lastErr = fmt.Errorf("%s rpc failed: %s", name, respErr.Message())
		if respErr.Code() != codes.Unavailable && respErr.Code() != codes.DeadlineExceeded {
			return lastErr
		}
		select {
		case <-time.After(Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s rpc failed after retries", name)
	}
	return lastErr
}

func (client *masterClient) WorkerRegister(ctx context.Context, w rpc.WorkerInfo) (int, error) {
	in, err := w.ToStruct()
	if err != nil {
		return 0, err
	}
	var id int
	err = call(ctx, "register worker", func(ctx context.Context) error {
		r, err := client.master.WorkerRegister(ctx, in)
		if err != nil {
			return err
		}
		id = rpc.RegistrationFromStruct(r).ID
		return nil
	})
	return id, err
}

func (client *masterClient) FetchTask(ctx context.Context, w rpc.WorkerInfo) (rpc.Assignment, error) {
	in, err := w.ToStruct()
	if err != nil {
		return rpc.Assignment{}, err
	}
	var a rpc.Assignment
	err = call(ctx, "fetch task", func(ctx context.Context) error {
		r, err := client.master.FetchTask(ctx, in)
		if err != nil {
			return err
		}
		a, err = rpc.AssignmentFromStruct(r)
		return err
	})
	return a, err
}

func (client *masterClient) ReportTask(ctx context.Context, r rpc.TaskReport) error {
	in, err := r.ToStruct()
	if err != nil {
		return err
	}
	return call(ctx, "report task", func(ctx context.Context) error {
		_, err := client.master.ReportTask(ctx, in)
		return err
	})
}

func (client *masterClient) Close() error {
	return client.conn.Close()
}
