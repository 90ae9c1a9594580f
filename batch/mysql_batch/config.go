package mysql_batch

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NullString stands for SQL NULL in text records.
const NullString = `\N`

// SourceConfig configures how a MySQL table is cut into primary key range
// splits.
type SourceConfig struct {
	Table     string   `json:"table"`
	PKColumn  string   `json:"pkcolumn"`
	Columns   []string `json:"columns"`
	Where     string   `json:"where"`
	Shards    int      `json:"shards"`
	CountRows bool     `json:"countrows"`
	Parallel  int      `json:"parallel"`
}

func (c *SourceConfig) WithDefaults() {
	if c.PKColumn == "" {
		c.PKColumn = "id"
	}
	if c.Where == "" {
		c.Where = "1=1"
	}
	if c.Shards <= 0 {
		c.Shards = 16
	}
	if c.Parallel <= 0 {
		c.Parallel = 4
	}
}

// SinkConfig configures batched inserts into a MySQL table.
type SinkConfig struct {
	TargetTable string   `json:"targettable"`
	Columns     []string `json:"columns"`
	// Replace truncates the target once before any task runs.
	Replace bool `json:"replace"`
	// ReplaceRows writes with REPLACE INTO, so a row whose key already
	// exists is deleted and inserted again.
	ReplaceRows bool `json:"replace_rows"`
	Upsert      bool `json:"upsert"`
	BatchSize   int  `json:"batchsize"`
}

func (c *SinkConfig) WithDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 2000
	}
}

func quoteIdentifier(s string) (string, error) {
	if !identifierRe.MatchString(s) {
		return "", fmt.Errorf("invalid identifier: %s", s)
	}
	return "`" + s + "`", nil
}

func quoteColumns(cols []string) (string, error) {
	quoted := make([]string, 0, len(cols))
	for _, c := range cols {
		q, err := quoteIdentifier(c)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, ", "), nil
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return NullString
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
