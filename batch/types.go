package batch

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/emptyOVO/dbmove-go/batch/file_batch"
	"github.com/emptyOVO/dbmove-go/batch/mysql_batch"
	"github.com/emptyOVO/dbmove-go/batch/redis_batch"
	_ "github.com/go-sql-driver/mysql"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DBConfig defines MySQL connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Params   map[string]string
}

func (c DBConfig) dsn() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 3306
	}
	params := map[string]string{
		"parseTime": "true",
		"charset":   "utf8mb4",
	}
	for k, v := range c.Params {
		params[k] = v
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.User,
		c.Password,
		host,
		port,
		c.Database,
		strings.Join(parts, "&"),
	)
}

func openDB(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("db user is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("db database is required")
	}
	db, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenForApp opens a MySQL connection for advanced/custom flows.
func OpenForApp(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	return openDB(ctx, cfg)
}

func quoteIdentifier(s string) (string, error) {
	if !identifierRe.MatchString(s) {
		return "", fmt.Errorf("invalid identifier: %s", s)
	}
	return "`" + s + "`", nil
}

// Source and sink config aliases exposed by the batch package.
type SourceConfig = mysql_batch.SourceConfig
type SinkConfig = mysql_batch.SinkConfig
type FileSourceConfig = file_batch.SourceConfig
type FileSinkConfig = file_batch.SinkConfig
type RedisConnConfig = redis_batch.ConnConfig
type RedisSinkConfig = redis_batch.SinkConfig

// PrepareConfig configures synthetic source table generation for benchmarking.
// Rows are spread over the id space with growing gaps so that equal span
// primary key ranges hold very different row counts.
type PrepareConfig struct {
	SourceTable string
	Rows        int64
	KeyMod      int64
	Skew        int64
}

func (c *PrepareConfig) withDefaults() {
	if c.SourceTable == "" {
		c.SourceTable = "source_events"
	}
	if c.Rows <= 0 {
		c.Rows = 1000000
	}
	if c.KeyMod <= 0 {
		c.KeyMod = 100000
	}
	if c.Skew <= 0 {
		c.Skew = 1
	}
}

// ValidateConfig compares a copied table with its source.
type ValidateConfig struct {
	SourceTable string
	TargetTable string
	// SumColumn is summed on both sides. Empty compares row counts only.
	SumColumn string
	// Where filters the source the same way the copy did.
	Where string
}

func (c *ValidateConfig) withDefaults() {
	if c.Where == "" {
		c.Where = "1=1"
	}
}
