package task

import (
	"context"
	"sort"
	"sync"

	"github.com/emptyOVO/dbmove-go/split"
)

// MemSinkFactory keeps the records of every task in memory. It is safe for
// concurrent tasks.
type MemSinkFactory struct {
	mu       sync.Mutex
	prepared int
	rows     map[int][]split.Record
}

func (f *MemSinkFactory) Prepare(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared++
	return nil
}

func (f *MemSinkFactory) Open(ctx context.Context, taskID int) (Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows == nil {
		f.rows = make(map[int][]split.Record)
	}
	f.rows[taskID] = nil
	return &memTaskSink{f: f, task: taskID}, nil
}

// Prepared reports how many times Prepare ran.
func (f *MemSinkFactory) Prepared() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepared
}

// Tasks returns the ids of the tasks that opened a sink, in order.
func (f *MemSinkFactory) Tasks() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.rows))
	for id := range f.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Records returns the records written by task id.
func (f *MemSinkFactory) Records(id int) []split.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]split.Record(nil), f.rows[id]...)
}

// Total is the number of records written by all tasks.
func (f *MemSinkFactory) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rows := range f.rows {
		n += len(rows)
	}
	return n
}

type memTaskSink struct {
	f    *MemSinkFactory
	task int
}

func (s *memTaskSink) Write(ctx context.Context, rec split.Record) error {
	s.f.mu.Lock()
	s.f.rows[s.task] = append(s.f.rows[s.task], rec)
	s.f.mu.Unlock()
	return nil
}

func (s *memTaskSink) Close() error { return nil }
