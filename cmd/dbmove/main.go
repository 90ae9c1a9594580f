package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	dbmove "github.com/emptyOVO/dbmove-go"
	"github.com/emptyOVO/dbmove-go/batch"
	"github.com/emptyOVO/dbmove-go/split"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func getenvDefault(name, d string) string {
	v := os.Getenv(name)
	if v == "" {
		return d
	}
	return v
}

func getenvInt(name string, d int) int {
	v := os.Getenv(name)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvBool(name string, d bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func loadFlowConfig(path string) (batch.FlowConfig, error) {
	var cfg batch.FlowConfig
	if path == "" {
		return cfg, fmt.Errorf("--config is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// envDB reads the connection of one side, falling back to the MYSQL_*
// variables shared by both sides.
func envDB(side string) batch.DBConfig {
	base := batch.DBConfig{
		Host:     getenvDefault("MYSQL_HOST", "127.0.0.1"),
		Port:     getenvInt("MYSQL_PORT", 3306),
		User:     getenvDefault("MYSQL_USER", "root"),
		Password: os.Getenv("MYSQL_PASSWORD"),
		Database: os.Getenv("MYSQL_DB"),
	}
	return batch.DBConfig{
		Host:     getenvDefault("MYSQL_"+side+"_HOST", base.Host),
		Port:     getenvInt("MYSQL_"+side+"_PORT", base.Port),
		User:     getenvDefault("MYSQL_"+side+"_USER", base.User),
		Password: getenvDefault("MYSQL_"+side+"_PASSWORD", base.Password),
		Database: getenvDefault("MYSQL_"+side+"_DB", base.Database),
	}
}

func main() {
	var (
		configPath string
		logLevel   string
		timeout    time.Duration
	)
	ctx := context.Background()
	var cancel context.CancelFunc = func() {}

	rootCmd := &cobra.Command{
		Use:   "dbmove",
		Short: "dbmove copies tables and files in size-balanced parallel tasks",
		Long: `dbmove cuts a source into splits, rebalances them into evenly sized groups
and drains every group into the sink in its own task, either in one process
or on workers pulling tasks from a master.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			ctx, cancel = context.WithTimeout(context.Background(), timeout)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DBMOVE_CONFIG"), "Flow config file path (JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getenvDefault("LOG_LEVEL", "info"), "trace|debug|info|warn|error")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Hour, "Give up after this long")

	var benchmark bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFlowConfig(configPath)
			if err != nil {
				return err
			}
			if !benchmark {
				if err := batch.RunFlow(ctx, cfg); err != nil {
					return err
				}
				fmt.Println("flow done")
				return nil
			}
			result, err := batch.RunFlowBenchmark(ctx, cfg)
			if err != nil {
				return err
			}
			fmt.Printf("groups=%d records=%d plan=%s transfer=%s total=%s\n",
				result.Groups, result.Records, result.PlanDuration, result.TransferDuration, result.TotalDuration)
			return nil
		},
	}
	runCmd.Flags().BoolVar(&benchmark, "benchmark", getenvBool("BENCHMARK", false), "Print stage durations")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a flow config without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFlowConfig(configPath)
			if err != nil {
				return err
			}
			if err := batch.ValidateFlowConfig(cfg); err != nil {
				return err
			}
			fmt.Println("config check pass")
			return nil
		},
	}

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the groups a flow would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFlowConfig(configPath)
			if err != nil {
				return err
			}
			rep, err := batch.Plan(ctx, cfg)
			if err != nil {
				return err
			}
			printPlan(rep)
			return nil
		},
	}

	var prepareCfg batch.PrepareConfig
	var prepareTarget string
	prepareCmd := &cobra.Command{
		Use:   "prepare",
		Short: "Create a synthetic skewed source table",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := batch.OpenForApp(ctx, envDB("SOURCE"))
			if err != nil {
				return err
			}
			defer db.Close()
			if err := batch.PrepareSyntheticSource(ctx, db, prepareCfg, prepareTarget); err != nil {
				return err
			}
			fmt.Println("prepare done")
			return nil
		},
	}
	prepareCmd.Flags().StringVar(&prepareCfg.SourceTable, "table", getenvDefault("SOURCE_TABLE", "source_events"), "Source table to create")
	prepareCmd.Flags().StringVar(&prepareTarget, "target", os.Getenv("TARGET_TABLE"), "Empty copy target to create next to the source")
	prepareCmd.Flags().Int64Var(&prepareCfg.Rows, "rows", int64(getenvInt("ROWS", 1000000)), "Rows to insert")
	prepareCmd.Flags().Int64Var(&prepareCfg.KeyMod, "key-mod", int64(getenvInt("KEY_MOD", 100000)), "Distinct biz_key values")
	prepareCmd.Flags().Int64Var(&prepareCfg.Skew, "skew", int64(getenvInt("SKEW", 1)), "Growth of the id gaps")

	var validateCfg batch.ValidateConfig
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Compare a copied table with its source",
		RunE: func(cmd *cobra.Command, args []string) error {
			srcDB, err := batch.OpenForApp(ctx, envDB("SOURCE"))
			if err != nil {
				return err
			}
			defer srcDB.Close()
			dstDB, err := batch.OpenForApp(ctx, envDB("TARGET"))
			if err != nil {
				return err
			}
			defer dstDB.Close()
			src, dst, err := batch.ValidateCopy(ctx, srcDB, dstDB, validateCfg)
			if err != nil {
				return err
			}
			fmt.Printf("validate pass rows=%d sum=%d (target rows=%d sum=%d)\n", src.Rows, src.Sum, dst.Rows, dst.Sum)
			return nil
		},
	}
	validateCmd.Flags().StringVar(&validateCfg.SourceTable, "source-table", getenvDefault("SOURCE_TABLE", "source_events"), "Source table")
	validateCmd.Flags().StringVar(&validateCfg.TargetTable, "target-table", getenvDefault("TARGET_TABLE", "target_events"), "Target table")
	validateCmd.Flags().StringVar(&validateCfg.SumColumn, "sum", getenvDefault("SUM_COL", "metric"), "Column summed on both sides, empty to count rows only")
	validateCmd.Flags().StringVar(&validateCfg.Where, "where", getenvDefault("SOURCE_WHERE", "1=1"), "Filter applied to the source")

	var addr string
	masterCmd := &cobra.Command{
		Use:   "master",
		Short: "Serve the tasks of a flow to remote workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFlowConfig(configPath)
			if err != nil {
				return err
			}
			job, release, err := batch.OpenJob(ctx, cfg)
			if err != nil {
				return err
			}
			defer release()
			res, err := batch.ClusterRunner{Addr: addr, Remote: true}.Run(ctx, job)
			if err != nil {
				return err
			}
			fmt.Printf("groups=%d records=%d duration=%s\n", len(res.Groups), res.Records, res.Duration)
			return nil
		},
	}
	masterCmd.Flags().StringVar(&addr, "addr", getenvDefault("MASTER_ADDR", dbmove.MasterIP), "Listen address")

	var masterAddr string
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run tasks handed out by a master",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFlowConfig(configPath)
			if err != nil {
				return err
			}
			job, release, err := batch.OpenJob(ctx, cfg)
			if err != nil {
				return err
			}
			defer release()
			return batch.RunWorker(ctx, job, masterAddr)
		},
	}
	workerCmd.Flags().StringVar(&masterAddr, "master", getenvDefault("MASTER_ADDR", "127.0.0.1:10000"), "Master address")

	rootCmd.AddCommand(runCmd, checkCmd, planCmd, prepareCmd, validateCmd, masterCmd, workerCmd)

	err := rootCmd.Execute()
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printPlan(rep batch.PlanReport) {
	for _, g := range rep.Groups {
		fmt.Printf("group %d: %d splits, size %d\n", g.Index, len(g.Splits), g.TotalSize)
		if log.IsLevelEnabled(log.DebugLevel) {
			for _, s := range g.Splits {
				fmt.Printf("  %s\n", describe(s))
			}
		}
	}
	fmt.Printf("spread=%d round-robin spread=%d\n", rep.Spread, rep.RoundRobinSpread)
}

func describe(s split.Split) string {
	n, err := s.Size()
	if err != nil {
		return fmt.Sprintf("%s (size unknown: %v)", s, err)
	}
	return fmt.Sprintf("%s (%d)", s, n)
}
