package mysql_batch

import (
	"database/sql"

	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
)

var (
	_ split.Provider   = (*Source)(nil)
	_ split.Codec      = (*Source)(nil)
	_ task.SinkFactory = (*SinkFactory)(nil)
)

// SourceAdapter binds a source config to the database it reads.
type SourceAdapter struct {
	cfg SourceConfig
}

func NewSourceAdapter(cfg SourceConfig) SourceAdapter {
	return SourceAdapter{cfg: cfg}
}

func (a SourceAdapter) Open(db *sql.DB) (*Source, error) {
	return NewSource(db, a.cfg)
}

// SinkAdapter binds a sink config to the database it writes.
type SinkAdapter struct {
	cfg SinkConfig
}

func NewSinkAdapter(cfg SinkConfig) SinkAdapter {
	return SinkAdapter{cfg: cfg}
}

func (a SinkAdapter) Open(db *sql.DB) (*SinkFactory, error) {
	return NewSinkFactory(db, a.cfg)
}
