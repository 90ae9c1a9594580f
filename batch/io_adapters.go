package batch

import (
	"context"
	"fmt"

	"github.com/emptyOVO/dbmove-go/batch/file_batch"
	"github.com/emptyOVO/dbmove-go/batch/mysql_batch"
	"github.com/emptyOVO/dbmove-go/batch/redis_batch"
	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
)

// Source is a split provider that can also move its splits over the wire.
type Source interface {
	split.Provider
	split.Codec
}

func nop() {}

// OpenSource opens the source described by cfg. release frees the
// connections it holds.
func OpenSource(ctx context.Context, cfg FlowSourceConfig) (src Source, release func(), err error) {
	switch cfg.Type {
	case "mysql":
		db, err := openDB(ctx, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("open source db: %w", err)
		}
		s, err := mysql_batch.NewSourceAdapter(cfg.Config).Open(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil
	case "file":
		s, err := file_batch.NewSource(cfg.FileConfig)
		if err != nil {
			return nil, nil, err
		}
		return s, nop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source.type: %s", cfg.Type)
	}
}

// OpenSink opens the sink described by cfg. release frees the connections
// it holds.
func OpenSink(ctx context.Context, cfg FlowSinkConfig) (sinks task.SinkFactory, release func(), err error) {
	switch cfg.Type {
	case "mysql":
		db, err := openDB(ctx, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("open sink db: %w", err)
		}
		f, err := mysql_batch.NewSinkAdapter(cfg.Config).Open(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return f, func() { db.Close() }, nil
	case "file":
		return file_batch.NewSinkFactory(cfg.FileConfig), nop, nil
	case "redis":
		f, err := redis_batch.NewSinkFactory(cfg.Redis, cfg.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		return f, nop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported sink.type: %s", cfg.Type)
	}
}
