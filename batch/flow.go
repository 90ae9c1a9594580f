package batch

import (
	"context"
	"strconv"
	"time"

	dbmove "github.com/emptyOVO/dbmove-go"
	"github.com/emptyOVO/dbmove-go/split"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// FlowConfig describes a source -> plan -> sink copy.
type FlowConfig struct {
	Version string           `json:"version"`
	Source  FlowSourceConfig `json:"source"`
	Plan    FlowPlanConfig   `json:"plan"`
	Sink    FlowSinkConfig   `json:"sink"`
}

type FlowSourceConfig struct {
	Type       string           `json:"type"`
	DB         DBConfig         `json:"db"`
	Config     SourceConfig     `json:"config"`
	FileConfig FileSourceConfig `json:"file_config"`
}

// FlowPlanConfig controls how splits become tasks and where tasks run.
type FlowPlanConfig struct {
	// Workers is the number of groups, hence tasks. Zero keeps one task per
	// split.
	Workers int `json:"workers"`
	// Parallel is the number of tasks running at once, Workers when zero.
	Parallel int `json:"parallel"`
	// Runner is "local" or "cluster".
	Runner string `json:"runner"`
	Port   int    `json:"port"`
}

type FlowSinkConfig struct {
	Type        string          `json:"type"`
	DB          DBConfig        `json:"db"`
	Redis       RedisConnConfig `json:"redis"`
	Config      SinkConfig      `json:"config"`
	FileConfig  FileSinkConfig  `json:"file_config"`
	RedisConfig RedisSinkConfig `json:"redis_config"`
}

func (c *FlowConfig) withDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = "mysql"
	}
	if c.Sink.Type == "" {
		c.Sink.Type = "mysql"
	}
	if c.Plan.Runner == "" {
		c.Plan.Runner = "local"
	}
	if c.Plan.Port == 0 {
		c.Plan.Port = 10000
	}
	c.Source.Config.WithDefaults()
	c.Source.FileConfig.WithDefaults()
	c.Sink.Config.WithDefaults()
	c.Sink.FileConfig.WithDefaults()
	c.Sink.Redis.WithDefaults()
	c.Sink.RedisConfig.WithDefaults()
	if len(c.Sink.Config.Columns) == 0 {
		c.Sink.Config.Columns = c.Source.Config.Columns
	}
	if len(c.Sink.RedisConfig.Fields) == 0 && c.Source.Type == "mysql" {
		c.Sink.RedisConfig.Fields = c.Source.Config.Columns
	}
}

// FlowBenchmarkResult captures plan/transfer stage durations.
type FlowBenchmarkResult struct {
	Groups           int
	Records          int64
	PlanDuration     time.Duration
	TransferDuration time.Duration
	TotalDuration    time.Duration
}

// RunFlow executes source -> plan -> sink defined by FlowConfig.
func RunFlow(ctx context.Context, cfg FlowConfig) error {
	_, err := runFlowInternal(ctx, cfg)
	return err
}

// RunFlowBenchmark executes a config-driven flow and reports stage durations.
func RunFlowBenchmark(ctx context.Context, cfg FlowConfig) (FlowBenchmarkResult, error) {
	return runFlowInternal(ctx, cfg)
}

func runFlowInternal(ctx context.Context, cfg FlowConfig) (FlowBenchmarkResult, error) {
	var bench FlowBenchmarkResult
	started := time.Now()

	cfg.withDefaults()
	job, release, err := OpenJob(ctx, cfg)
	if err != nil {
		return bench, err
	}
	defer release()
	l := job.Log

	res, err := runnerFor(cfg.Plan).Run(ctx, job)
	bench.Groups = len(res.Groups)
	bench.Records = res.Records
	bench.TransferDuration = res.Duration
	bench.TotalDuration = time.Since(started)
	bench.PlanDuration = bench.TotalDuration - res.Duration
	if err != nil {
		return bench, err
	}
	l.WithFields(log.Fields{
		"groups":   bench.Groups,
		"records":  bench.Records,
		"duration": bench.TotalDuration,
	}).Info("[Flow] done")
	return bench, nil
}

// OpenJob validates cfg and opens its source and sink. release frees the
// connections of both.
func OpenJob(ctx context.Context, cfg FlowConfig) (job dbmove.Job, release func(), err error) {
	cfg.withDefaults()
	if err := ValidateFlowConfig(cfg); err != nil {
		return job, nil, err
	}
	src, releaseSrc, err := OpenSource(ctx, cfg.Source)
	if err != nil {
		return job, nil, err
	}
	sinks, releaseSink, err := OpenSink(ctx, cfg.Sink)
	if err != nil {
		releaseSrc()
		return job, nil, err
	}
	job = dbmove.Job{
		Source:  src,
		Codec:   src,
		Sinks:   sinks,
		Groups:  cfg.Plan.Workers,
		Workers: cfg.Plan.Parallel,
		Log:     log.WithField("run", uuid.New().String()),
	}
	if job.Workers <= 0 {
		job.Workers = cfg.Plan.Workers
	}
	return job, func() {
		releaseSink()
		releaseSrc()
	}, nil
}

func runnerFor(p FlowPlanConfig) Runner {
	if p.Runner == "cluster" {
		return ClusterRunner{Addr: ":" + strconv.Itoa(p.Port)}
	}
	return DefaultRunner()
}

// PlanReport describes the groups a flow would run.
type PlanReport struct {
	Groups           []split.Group
	Spread           int64
	RoundRobinSpread int64
}

// Plan lists the splits of the flow's source and rebalances them without
// moving any record. The round-robin spread is reported for comparison.
func Plan(ctx context.Context, cfg FlowConfig) (PlanReport, error) {
	cfg.withDefaults()
	if err := ValidateFlowConfig(cfg); err != nil {
		return PlanReport{}, err
	}
	src, release, err := OpenSource(ctx, cfg.Source)
	if err != nil {
		return PlanReport{}, err
	}
	defer release()
	splits, err := src.ListSplits(ctx)
	if err != nil {
		return PlanReport{}, err
	}
	r := split.Rebalancer{Log: log.StandardLogger()}
	groups := r.Rebalance(splits, cfg.Plan.Workers)
	return PlanReport{
		Groups:           groups,
		Spread:           split.Spread(groups),
		RoundRobinSpread: split.Spread(r.RoundRobin(splits, cfg.Plan.Workers)),
	}, nil
}
