package batch

import (
	"fmt"
	"strings"
)

const FlowVersionV1 = "v1"

// ValidateFlowConfig validates v1 flow schema and required fields.
func ValidateFlowConfig(cfg FlowConfig) error {
	cfg.withDefaults()

	if strings.TrimSpace(cfg.Version) != FlowVersionV1 {
		return fmt.Errorf("unsupported version: %q (expected %q)", cfg.Version, FlowVersionV1)
	}
	if cfg.Source.Type != "mysql" && cfg.Source.Type != "file" {
		return fmt.Errorf("unsupported source.type: %s", cfg.Source.Type)
	}
	if cfg.Sink.Type != "mysql" && cfg.Sink.Type != "file" && cfg.Sink.Type != "redis" {
		return fmt.Errorf("unsupported sink.type: %s", cfg.Sink.Type)
	}

	if cfg.Plan.Workers < 0 {
		return fmt.Errorf("plan.workers must be >= 0, got %d", cfg.Plan.Workers)
	}
	if cfg.Plan.Parallel < 0 {
		return fmt.Errorf("plan.parallel must be >= 0, got %d", cfg.Plan.Parallel)
	}
	if cfg.Plan.Runner != "local" && cfg.Plan.Runner != "cluster" {
		return fmt.Errorf("unsupported plan.runner: %s", cfg.Plan.Runner)
	}
	if cfg.Plan.Port < 0 || cfg.Plan.Port > 65535 {
		return fmt.Errorf("plan.port out of range: %d", cfg.Plan.Port)
	}

	switch cfg.Source.Type {
	case "mysql":
		if cfg.Source.DB.User == "" || cfg.Source.DB.Database == "" {
			return fmt.Errorf("source.db.user and source.db.database are required for mysql source")
		}
		if strings.TrimSpace(cfg.Source.Config.Table) == "" {
			return fmt.Errorf("source.config.table is required for mysql source")
		}
		if len(cfg.Source.Config.Columns) == 0 {
			return fmt.Errorf("source.config.columns is required for mysql source")
		}
	case "file":
		if strings.TrimSpace(cfg.Source.FileConfig.InputGlob) == "" {
			return fmt.Errorf("source.file_config.inputglob is required for file source")
		}
	}
	switch cfg.Sink.Type {
	case "mysql":
		if cfg.Sink.DB.User == "" || cfg.Sink.DB.Database == "" {
			return fmt.Errorf("sink.db.user and sink.db.database are required for mysql sink")
		}
		if strings.TrimSpace(cfg.Sink.Config.TargetTable) == "" {
			return fmt.Errorf("sink.config.targettable is required for mysql sink")
		}
		if len(cfg.Sink.Config.Columns) == 0 {
			return fmt.Errorf("sink.config.columns is required for mysql sink")
		}
	case "file":
		if strings.TrimSpace(cfg.Sink.FileConfig.OutputDir) == "" {
			return fmt.Errorf("sink.file_config.outputdir is required for file sink")
		}
	case "redis":
		if strings.TrimSpace(cfg.Sink.RedisConfig.KeyPrefix) == "" {
			return fmt.Errorf("sink.redis_config.key_prefix is required for redis sink")
		}
		if len(cfg.Sink.RedisConfig.Fields) < 2 {
			return fmt.Errorf("sink.redis_config.fields needs a key field and at least one value field")
		}
	}
	return nil
}
