// Package dbmove moves records from a source to a sink. The source's splits
// are rebalanced into groups, and each group is drained by one task on a
// worker pulling work from a master.
package dbmove

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
	log "github.com/sirupsen/logrus"
)

var MasterIP string = ":10000"
var runtimeMu sync.Mutex

// Job describes one transfer.
type Job struct {
	Source split.Provider
	Codec  split.Codec
	Sinks  task.SinkFactory
	// Groups is the number of tasks to build. Zero or less means one task
	// per split.
	Groups int
	// Workers is the number of workers started by a single machine job.
	Workers int
	Log     log.FieldLogger
}

func (j Job) logger() log.FieldLogger {
	if j.Log == nil {
		return log.StandardLogger()
	}
	return j.Log
}

// Validate reports a job missing its source, codec or sink.
func (j Job) Validate() error {
	switch {
	case j.Source == nil:
		return fmt.Errorf("job has no source")
	case j.Codec == nil:
		return fmt.Errorf("job has no split codec")
	case j.Sinks == nil:
		return fmt.Errorf("job has no sink")
	}
	return nil
}

// Result summarizes a finished job.
type Result struct {
	Groups   []split.Group
	Records  int64
	Duration time.Duration
}

// Plan lists the splits of source and rebalances them into groups.
func Plan(ctx context.Context, source split.Provider, groups int, logger log.FieldLogger) ([]split.Group, error) {
	splits, err := source.ListSplits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	return split.Rebalancer{Log: logger}.Rebalance(splits, groups), nil
}

func masterPort(masterAddr string) int {
	raw := strings.TrimSpace(masterAddr)
	if raw == "" {
		return 10000
	}
	parts := strings.Split(raw, ":")
	last := strings.TrimSpace(parts[len(parts)-1])
	if p, err := strconv.Atoi(last); err == nil && p >= 0 {
		return p
	}
	return 10000
}

// listenAddr fills in the default port when masterAddr has none.
func listenAddr(masterAddr string) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(masterAddr))
	if err != nil {
		host = strings.TrimSpace(masterAddr)
	}
	return net.JoinHostPort(host, strconv.Itoa(masterPort(masterAddr)))
}

// dialAddr turns a listener address into one a local worker can dial.
func dialAddr(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
