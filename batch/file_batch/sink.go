package file_batch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
)

var (
	_ split.Provider   = (*Source)(nil)
	_ split.Codec      = (*Source)(nil)
	_ task.SinkFactory = (*SinkFactory)(nil)
)

// SinkFactory writes the records of each task to <OutputDir>/<FilePrefix>-<task>.txt.
type SinkFactory struct {
	cfg SinkConfig
}

func NewSinkFactory(cfg SinkConfig) *SinkFactory {
	cfg.WithDefaults()
	return &SinkFactory{cfg: cfg}
}

// Prepare creates the output directory and, with Replace set, removes the
// output files of an earlier run.
func (f *SinkFactory) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(f.cfg.OutputDir, 0o755); err != nil {
		return err
	}
	if !f.cfg.Replace {
		return nil
	}
	old, err := filepath.Glob(f.OutputGlob())
	if err != nil {
		return err
	}
	for _, o := range old {
		if err := os.Remove(o); err != nil {
			return fmt.Errorf("remove old output: %w", err)
		}
	}
	return nil
}

// OutputGlob matches every file this factory writes.
func (f *SinkFactory) OutputGlob() string {
	return filepath.Join(f.cfg.OutputDir, f.cfg.FilePrefix+"-*.txt")
}

func (f *SinkFactory) Open(ctx context.Context, taskID int) (task.Sink, error) {
	name := filepath.Join(f.cfg.OutputDir, fmt.Sprintf("%s-%05d.txt", f.cfg.FilePrefix, taskID))
	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &sink{file: file, w: bufio.NewWriterSize(file, 1<<20), delim: f.cfg.Delimiter}, nil
}

type sink struct {
	file  *os.File
	w     *bufio.Writer
	delim string
}

func (s *sink) Write(ctx context.Context, rec split.Record) error {
	if _, err := s.w.WriteString(strings.Join(rec, s.delim)); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *sink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
