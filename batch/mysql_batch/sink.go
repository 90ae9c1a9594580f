package mysql_batch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
)

// SinkFactory opens batched insert sinks on one target table.
type SinkFactory struct {
	db        *sql.DB
	cfg       SinkConfig
	table     string
	insertSQL string
	rowSQL    string
	suffixSQL string
}

// NewSinkFactory validates cfg and prepares the insert statement parts.
func NewSinkFactory(db *sql.DB, cfg SinkConfig) (*SinkFactory, error) {
	cfg.WithDefaults()
	if cfg.TargetTable == "" {
		return nil, fmt.Errorf("target table is required")
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("target columns are required")
	}
	if cfg.ReplaceRows && cfg.Upsert {
		return nil, fmt.Errorf("replace_rows and upsert cannot both be set")
	}
	table, err := quoteIdentifier(cfg.TargetTable)
	if err != nil {
		return nil, err
	}
	cols, err := quoteColumns(cfg.Columns)
	if err != nil {
		return nil, err
	}
	verb := "INSERT"
	if cfg.ReplaceRows {
		verb = "REPLACE"
	}
	f := &SinkFactory{
		db:        db,
		cfg:       cfg,
		table:     table,
		insertSQL: fmt.Sprintf("%s INTO %s (%s) VALUES ", verb, table, cols),
		rowSQL:    "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cfg.Columns)), ", ") + ")",
	}
	if cfg.Upsert {
		updates := make([]string, 0, len(cfg.Columns))
		for _, c := range cfg.Columns {
			q, _ := quoteIdentifier(c)
			updates = append(updates, fmt.Sprintf("%s=VALUES(%s)", q, q))
		}
		f.suffixSQL = " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	}
	return f, nil
}

// Prepare truncates the target table when Replace is set.
func (f *SinkFactory) Prepare(ctx context.Context) error {
	if !f.cfg.Replace {
		return nil
	}
	_, err := f.db.ExecContext(ctx, fmt.Sprintf(`TRUNCATE TABLE %s`, f.table))
	return err
}

func (f *SinkFactory) Open(ctx context.Context, taskID int) (task.Sink, error) {
	return &sink{f: f, batch: make([]split.Record, 0, f.cfg.BatchSize)}, nil
}

type sink struct {
	f     *SinkFactory
	batch []split.Record
}

func (s *sink) Write(ctx context.Context, rec split.Record) error {
	if len(rec) != len(s.f.cfg.Columns) {
		return fmt.Errorf("record has %d fields, target has %d columns", len(rec), len(s.f.cfg.Columns))
	}
	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.f.cfg.BatchSize {
		return s.flush(ctx)
	}
	return nil
}

func (s *sink) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	sqlStr, args := s.f.buildInsert(s.batch)
	if _, err := s.f.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	s.batch = s.batch[:0]
	return nil
}

func (s *sink) Close() error {
	return s.flush(context.Background())
}

func (f *SinkFactory) buildInsert(batch []split.Record) (string, []interface{}) {
	args := make([]interface{}, 0, len(batch)*len(f.cfg.Columns))
	valueSQL := make([]string, 0, len(batch))
	for _, rec := range batch {
		valueSQL = append(valueSQL, f.rowSQL)
		for _, v := range rec {
			if v == NullString {
				args = append(args, nil)
				continue
			}
			args = append(args, v)
		}
	}
	return f.insertSQL + strings.Join(valueSQL, ",") + f.suffixSQL, args
}
