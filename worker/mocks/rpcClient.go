// Package mocks holds a scripted master client for worker tests.
package mocks

import (
	"context"
	"sync"

	"github.com/emptyOVO/dbmove-go/rpc"
)

// MasterClient answers FetchTask from Assignments in order, then with Done.
// Every call is recorded.
type MasterClient struct {
	ID          int
	Assignments []rpc.Assignment
	RegisterErr error

	mu         sync.Mutex
	Registered []rpc.WorkerInfo
	Fetches    int
	Reports    []rpc.TaskReport
	Closed     bool
}

func (c *MasterClient) WorkerRegister(ctx context.Context, w rpc.WorkerInfo) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Registered = append(c.Registered, w)
	return c.ID, c.RegisterErr
}

func (c *MasterClient) FetchTask(ctx context.Context, w rpc.WorkerInfo) (rpc.Assignment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Fetches++
	if len(c.Assignments) == 0 {
		return rpc.Assignment{Done: true}, nil
	}
	a := c.Assignments[0]
	c.Assignments = c.Assignments[1:]
	return a, nil
}

func (c *MasterClient) ReportTask(ctx context.Context, r rpc.TaskReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Reports = append(c.Reports, r)
	return nil
}

func (c *MasterClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}
