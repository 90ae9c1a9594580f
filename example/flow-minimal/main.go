package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/emptyOVO/dbmove-go/batch"
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

func main() {
	db := batch.DBConfig{
		Host:     getenvDefault("MYSQL_HOST", "localhost"),
		Port:     getenvInt("MYSQL_PORT", 3306),
		User:     getenvDefault("MYSQL_USER", "root"),
		Password: getenvDefault("MYSQL_PASSWORD", "123456"),
		Database: getenvDefault("MYSQL_DB", "dbmove"),
	}
	columns := []string{"id", "biz_key", "metric", "note"}

	cfg := batch.FlowConfig{
		Version: batch.FlowVersionV1,
		Source: batch.FlowSourceConfig{
			Type: "mysql",
			DB:   db,
			Config: batch.SourceConfig{
				Table:     getenvDefault("SOURCE_TABLE", "source_events"),
				Columns:   columns,
				Shards:    getenvInt("SOURCE_SHARDS", 32),
				CountRows: true,
			},
		},
		Plan: batch.FlowPlanConfig{
			Workers: getenvInt("WORKERS", 4),
		},
		Sink: batch.FlowSinkConfig{
			Type: "mysql",
			DB:   db,
			Config: batch.SinkConfig{
				TargetTable: getenvDefault("TARGET_TABLE", "target_events"),
				Replace:     true,
			},
		},
	}

	res, err := batch.RunFlowBenchmark(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("groups=%d records=%d total=%s", res.Groups, res.Records, res.TotalDuration)
}
