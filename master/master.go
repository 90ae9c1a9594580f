// Package master hands the groups of a job to pulling workers and waits for
// every task to be reported.
package master

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emptyOVO/dbmove-go/rpc"
	"github.com/emptyOVO/dbmove-go/split"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskDone
	taskFailed
)

// Master serves one job. Tasks are handed out in group order; a failed task
// stops the hand-out and fails the job.
type Master struct {
	rpc.UnimplementedMasterServer

	groups []split.Group
	codec  split.Codec
	log    log.FieldLogger

	mu       sync.Mutex
	state    []taskState
	owner    []string
	next     int
	workers  map[string]int
	released map[string]bool
	expect   int
	records  int64
	err      error
	left     int

	finished   chan struct{}
	finishOnce sync.Once
	drained    chan struct{}
	drainOnce  sync.Once
}

// DrainTimeout bounds how long Serve keeps answering after the job has
// finished, waiting for registered workers to learn they are done.
var DrainTimeout = 5 * time.Second

// New returns a master for groups. codec encodes the splits sent to workers.
func New(groups []split.Group, codec split.Codec, logger log.FieldLogger) *Master {
	if logger == nil {
		logger = log.StandardLogger()
	}
	m := &Master{
		groups:   groups,
		codec:    codec,
		log:      logger,
		state:    make([]taskState, len(groups)),
		owner:    make([]string, len(groups)),
		workers:  make(map[string]int),
		released: make(map[string]bool),
		left:     len(groups),
		finished: make(chan struct{}),
		drained:  make(chan struct{}),
	}
	if m.left == 0 {
		m.finish()
	}
	return m
}

// ExpectWorkers makes Serve wait, after the job finished, until at least n
// workers have been told so.
func (m *Master) ExpectWorkers(n int) {
	m.mu.Lock()
	m.expect = n
	m.mu.Unlock()
}

func (m *Master) WorkerRegister(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	w := rpc.WorkerInfoFromStruct(in)
	if w.UUID == "" {
		return nil, status.Error(codes.InvalidArgument, "worker uuid is required")
	}
	m.mu.Lock()
	id, ok := m.workers[w.UUID]
	if !ok {
		id = len(m.workers)
		m.workers[w.UUID] = id
	}
	m.mu.Unlock()
	m.log.WithFields(log.Fields{"worker": w.UUID, "id": id, "addr": w.Addr}).Info("[Master] worker registered")
	return rpc.Registration{ID: id}.ToStruct()
}

func (m *Master) FetchTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	w := rpc.WorkerInfoFromStruct(in)
	m.mu.Lock()
	if _, ok := m.workers[w.UUID]; !ok {
		m.mu.Unlock()
		return nil, status.Errorf(codes.FailedPrecondition, "worker %q is not registered", w.UUID)
	}
	if m.err != nil || m.left == 0 {
		m.released[w.UUID] = true
		if len(m.released) == len(m.workers) && len(m.released) >= m.expect {
			m.drainOnce.Do(func() { close(m.drained) })
		}
		m.mu.Unlock()
		return rpc.Assignment{Done: true}.ToStruct()
	}
	if m.next >= len(m.groups) {
		m.mu.Unlock()
		return rpc.Assignment{Wait: true}.ToStruct()
	}
	id := m.next
	m.next++
	m.state[id] = taskRunning
	m.owner[id] = w.UUID
	m.mu.Unlock()

	g := m.groups[id]
	a := rpc.Assignment{TaskID: id}
	for _, s := range g.Splits {
		enc, err := m.codec.EncodeSplit(s)
		if err != nil {
			m.fail(id, fmt.Errorf("encode split %s of task %d: %w", s, id, err))
			return nil, status.Error(codes.Internal, err.Error())
		}
		a.Splits = append(a.Splits, enc)
	}
	m.log.WithFields(log.Fields{"task": id, "worker": w.UUID, "splits": len(g.Splits), "size": g.TotalSize}).Info("[Master] task assigned")
	return a.ToStruct()
}

func (m *Master) ReportTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.TaskReportFromStruct(in)
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.TaskID < 0 || r.TaskID >= len(m.groups) {
		return nil, status.Errorf(codes.InvalidArgument, "unknown task %d", r.TaskID)
	}
	if m.owner[r.TaskID] != r.WorkerID {
		return nil, status.Errorf(codes.FailedPrecondition, "task %d is not running on worker %q", r.TaskID, r.WorkerID)
	}
	switch m.state[r.TaskID] {
	case taskRunning:
	case taskDone, taskFailed:
		// A retried report of a task this worker already reported.
		return rpc.Ack(), nil
	default:
		return nil, status.Errorf(codes.FailedPrecondition, "task %d is not running on worker %q", r.TaskID, r.WorkerID)
	}

	if r.Err != "" {
		m.failLocked(r.TaskID, errors.New(r.Err))
		return rpc.Ack(), nil
	}

	m.state[r.TaskID] = taskDone
	m.records += r.Records
	if m.err == nil {
		m.left--
		if m.left == 0 {
			m.finish()
		}
	}
	m.log.WithFields(log.Fields{"task": r.TaskID, "records": r.Records, "left": m.left}).Info("[Master] task done")
	return rpc.Ack(), nil
}

func (m *Master) fail(id int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLocked(id, err)
}

func (m *Master) failLocked(id int, err error) {
	m.state[id] = taskFailed
	m.log.WithError(err).WithField("task", id).Error("[Master] task failed")
	if m.err == nil {
		m.err = fmt.Errorf("task %d: %w", id, err)
		m.left = 0
		m.finish()
	}
}

func (m *Master) finish() {
	m.finishOnce.Do(func() { close(m.finished) })
}

// Wait blocks until every task is done or one has failed.
func (m *Master) Wait(ctx context.Context) error {
	select {
	case <-m.finished:
	case <-ctx.Done():
		select {
		case <-m.finished:
		default:
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Records returns the number of records reported by finished tasks.
func (m *Master) Records() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records
}

// Serve runs the master service on lis until the job finishes or ctx is
// done. After the job finishes it keeps answering until every registered
// worker has been told so, or DrainTimeout passes.
func (m *Master) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	rpc.RegisterMasterServer(srv, m)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()
	m.log.WithField("addr", lis.Addr().String()).Info("[Master] gRPC server start")

	err := m.Wait(ctx)
	if ctx.Err() == nil {
		select {
		case <-m.drained:
		case <-time.After(DrainTimeout):
			m.log.Warn("[Master] some workers were not told the job finished")
		case <-ctx.Done():
		}
	}
	m.log.Info("[Master] job finished, stopping server")
	srv.GracefulStop()
	if serr := <-serveErr; serr != nil && err == nil {
		err = serr
	}
	return err
}
