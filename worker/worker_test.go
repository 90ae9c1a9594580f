package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/emptyOVO/dbmove-go/rpc"
	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
	"github.com/emptyOVO/dbmove-go/worker/mocks"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func source() *split.MemSource {
	return &split.MemSource{Splits: []*split.MemSplit{
		{Name: "a", Records: []split.Record{{"1"}, {"2"}}},
		{Name: "b", Records: []split.Record{{"3"}}},
		{Name: "c", Records: []split.Record{{"4"}, {"5"}, {"6"}}},
	}}
}

func assign(id int, names ...string) rpc.Assignment {
	a := rpc.Assignment{TaskID: id}
	for _, n := range names {
		a.Splits = append(a.Splits, map[string]interface{}{"name": n})
	}
	return a
}

func TestWorkerRunsAssignedTasks(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := source()
	client := &mocks.MasterClient{
		ID: 3,
		Assignments: []rpc.Assignment{
			assign(1, "c", "b"),
			{Wait: true},
			assign(0, "a"),
		},
	}
	sinks := &task.MemSinkFactory{}
	saved := PollInterval
	PollInterval = time.Millisecond
	defer func() { PollInterval = saved }()

	wr := New(client, src, src, sinks, logger)
	if err := wr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, want := wr.ID, 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := client.Fetches, 4; got != want {
		t.Errorf("got %v fetches, want %v", got, want)
	}
	want := []rpc.TaskReport{
		{TaskID: 1, WorkerID: wr.UUID, Records: 4},
		{TaskID: 0, WorkerID: wr.UUID, Records: 2},
	}
	if diff := cmp.Diff(want, client.Reports); diff != "" {
		t.Errorf("reports mismatch (-want +got):\n%s", diff)
	}
	wantRows := []split.Record{{"4"}, {"5"}, {"6"}, {"3"}}
	if diff := cmp.Diff(wantRows, sinks.Records(1)); diff != "" {
		t.Errorf("task 1 rows mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkerReportsBadAssignment(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := source()
	client := &mocks.MasterClient{Assignments: []rpc.Assignment{assign(0, "a", "missing")}}
	sinks := &task.MemSinkFactory{}

	wr := New(client, src, src, sinks, logger)
	err := wr.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("got %v, want a decode error", err)
	}
	if len(client.Reports) != 1 || client.Reports[0].Err == "" {
		t.Fatalf("got reports %+v, want one failure", client.Reports)
	}
	if len(sinks.Tasks()) != 0 {
		t.Errorf("no sink should be opened, got tasks %v", sinks.Tasks())
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := source()
	waits := make([]rpc.Assignment, 1000)
	for i := range waits {
		waits[i].Wait = true
	}
	client := &mocks.MasterClient{Assignments: waits}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	wr := New(client, src, src, &task.MemSinkFactory{}, logger)
	if err := wr.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("got %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestWorkerTracesWaits(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)
	src := source()
	client := &mocks.MasterClient{ID: 7, Assignments: []rpc.Assignment{{Wait: true}, {Wait: true}}}
	saved := PollInterval
	PollInterval = time.Millisecond
	defer func() { PollInterval = saved }()

	wr := New(client, src, src, &task.MemSinkFactory{}, logger)
	if err := wr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	waits := 0
	for _, e := range hook.AllEntries() {
		if e.Message != "[Worker] no task yet" {
			continue
		}
		waits++
		if got, want := e.Data["id"], 7; got != want {
			t.Errorf("got id %v, want %v", got, want)
		}
	}
	if got, want := waits, 2; got != want {
		t.Errorf("got %v wait entries, want %v", got, want)
	}
}
