package dbmove

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
)

func memSource(n int) *split.MemSource {
	src := &split.MemSource{}
	for i := 0; i < n; i++ {
		s := &split.MemSplit{Name: fmt.Sprintf("s%d", i)}
		for j := 0; j <= i; j++ {
			s.Records = append(s.Records, split.Record{s.Name, fmt.Sprint(j)})
		}
		src.Splits = append(src.Splits, s)
	}
	return src
}

var errBroken = errors.New("broken split")

// brokenSource fails to open one split.
type brokenSource struct {
	*split.MemSource
	broken string
}

func (b brokenSource) OpenReader(ctx context.Context, s split.Split) (split.RecordReader, error) {
	if s.String() == b.broken {
		return nil, errBroken
	}
	return b.MemSource.OpenReader(ctx, s)
}

func TestSingleMachineJob(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := memSource(10)
	sinks := &task.MemSinkFactory{}
	job := Job{Source: src, Codec: src, Sinks: sinks, Groups: 3, Workers: 2, Log: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := StartSingleMachineJobWithAddr(ctx, job, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(res.Groups), 3; got != want {
		t.Fatalf("got %v groups, want %v", got, want)
	}
	if got, want := res.Records, int64(55); got != want {
		t.Errorf("got %v records, want %v", got, want)
	}
	if got, want := sinks.Total(), 55; got != want {
		t.Errorf("got %v records in sink, want %v", got, want)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, sinks.Tasks()); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
	if got, want := sinks.Prepared(), 1; got != want {
		t.Errorf("sink prepared %v times, want %v", got, want)
	}
	for _, g := range res.Groups {
		if got, want := int64(len(sinks.Records(g.Index))), g.TotalSize; got != want {
			t.Errorf("task %d: got %v records, want %v", g.Index, got, want)
		}
	}
}

func TestSingleMachineJobMoreWorkersThanGroups(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := memSource(4)
	sinks := &task.MemSinkFactory{}
	job := Job{Source: src, Codec: src, Sinks: sinks, Groups: 0, Workers: 8, Log: logger}

	res, err := StartSingleMachineJobWithAddr(context.Background(), job, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(res.Groups), 4; got != want {
		t.Fatalf("got %v groups, want %v", got, want)
	}
	if got, want := sinks.Total(), 10; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSingleMachineJobFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := memSource(6)
	job := Job{
		Source:  brokenSource{MemSource: src, broken: "s3"},
		Codec:   src,
		Sinks:   &task.MemSinkFactory{},
		Groups:  2,
		Workers: 2,
		Log:     logger,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := StartSingleMachineJobWithAddr(ctx, job, "127.0.0.1:0")
	if err == nil {
		t.Fatal("expected the broken split to fail the job")
	}
}

func TestSingleMachineJobEmptySource(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := &split.MemSource{}
	res, err := StartSingleMachineJobWithAddr(context.Background(), Job{Source: src, Codec: src, Sinks: &task.MemSinkFactory{}, Log: logger}, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Groups) != 0 || res.Records != 0 {
		t.Errorf("got %+v, want an empty result", res)
	}
}

func TestJobValidate(t *testing.T) {
	src := &split.MemSource{}
	if _, err := StartSingleMachineJobWithAddr(context.Background(), Job{Source: src, Codec: src}, "127.0.0.1:0"); err == nil {
		t.Error("expected an error for a job without a sink")
	}
}

func TestAddrs(t *testing.T) {
	for _, c := range []struct{ in, want string }{
		{":10000", ":10000"},
		{"localhost", "localhost:10000"},
		{"10.0.0.1:9000", "10.0.0.1:9000"},
		{"", ":10000"},
	} {
		if got := listenAddr(c.in); got != c.want {
			t.Errorf("listenAddr(%q): got %v, want %v", c.in, got, c.want)
		}
	}
	addr := &net.TCPAddr{IP: net.IPv6unspecified, Port: 4000}
	if got, want := dialAddr(addr), "127.0.0.1:4000"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
