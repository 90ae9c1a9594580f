package redis_batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
)

var _ task.SinkFactory = (*SinkFactory)(nil)

// SinkConfig maps records to hashes: the KeyIndex field, prefixed with
// KeyPrefix, names the hash and Fields name the record fields in order.
type SinkConfig struct {
	KeyPrefix string   `json:"key_prefix"`
	KeyIndex  int      `json:"key_index"`
	Fields    []string `json:"fields"`
	Replace   bool     `json:"replace"`
	BatchSize int      `json:"batchsize"`
}

func (c *SinkConfig) WithDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "dbmove:"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
}

// SinkFactory opens one Redis connection per task.
type SinkFactory struct {
	conn ConnConfig
	cfg  SinkConfig
}

func NewSinkFactory(conn ConnConfig, cfg SinkConfig) (*SinkFactory, error) {
	cfg.WithDefaults()
	if len(cfg.Fields) < 2 {
		return nil, fmt.Errorf("redis sink needs a key field and at least one value field")
	}
	if cfg.KeyIndex < 0 || cfg.KeyIndex >= len(cfg.Fields) {
		return nil, fmt.Errorf("redis sink key_index %d out of range", cfg.KeyIndex)
	}
	return &SinkFactory{conn: conn, cfg: cfg}, nil
}

// Prepare deletes every key under KeyPrefix when Replace is set.
func (f *SinkFactory) Prepare(ctx context.Context) error {
	if !f.cfg.Replace {
		return nil
	}
	c, err := openRedis(ctx, f.conn)
	if err != nil {
		return err
	}
	defer c.close()
	return deletePrefix(c, f.cfg.KeyPrefix)
}

func deletePrefix(c *client, prefix string) error {
	cursor := "0"
	for {
		v, err := c.do("SCAN", cursor, "MATCH", prefix+"*", "COUNT", "1000")
		if err != nil {
			return err
		}
		arr, ok := v.([]interface{})
		if !ok || len(arr) != 2 {
			return fmt.Errorf("unexpected SCAN response")
		}
		cursor = toString(arr[0])
		keysRaw, ok := arr[1].([]interface{})
		if !ok {
			return fmt.Errorf("unexpected SCAN keys response")
		}
		if len(keysRaw) > 0 {
			del := []string{"DEL"}
			for _, kv := range keysRaw {
				if k := toString(kv); k != "" {
					del = append(del, k)
				}
			}
			if len(del) > 1 {
				if _, err := c.do(del[0], del[1:]...); err != nil {
					return err
				}
			}
		}
		if cursor == "0" {
			return nil
		}
	}
}

func (f *SinkFactory) Open(ctx context.Context, taskID int) (task.Sink, error) {
	c, err := openRedis(ctx, f.conn)
	if err != nil {
		return nil, err
	}
	return &sink{c: c, cfg: f.cfg}, nil
}

type sink struct {
	c       *client
	cfg     SinkConfig
	pending [][]string
}

func (s *sink) Write(ctx context.Context, rec split.Record) error {
	cmd, err := hsetCommand(s.cfg, rec)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, cmd)
	if len(s.pending) >= s.cfg.BatchSize {
		return s.flush()
	}
	return nil
}

func hsetCommand(cfg SinkConfig, rec split.Record) ([]string, error) {
	if len(rec) != len(cfg.Fields) {
		return nil, fmt.Errorf("record has %d fields, sink expects %d", len(rec), len(cfg.Fields))
	}
	key := strings.TrimSpace(rec[cfg.KeyIndex])
	if key == "" {
		return nil, fmt.Errorf("record %v has an empty key", rec)
	}
	cmd := make([]string, 0, 2+2*len(rec))
	cmd = append(cmd, "HSET", cfg.KeyPrefix+key)
	for i, v := range rec {
		if i == cfg.KeyIndex {
			continue
		}
		cmd = append(cmd, cfg.Fields[i], v)
	}
	return cmd, nil
}

func (s *sink) flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	if _, err := s.c.pipeline(s.pending); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *sink) Close() error {
	err := s.flush()
	if cerr := s.c.close(); err == nil {
		err = cerr
	}
	return err
}
