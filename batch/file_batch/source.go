package file_batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/emptyOVO/dbmove-go/split"
)

// FileRange is the split [From, To) of a file. A line belongs to the range
// holding its first byte.
type FileRange struct {
	Path string
	From int64
	To   int64
}

func (r FileRange) Size() (int64, error) { return r.To - r.From, nil }

func (r FileRange) String() string {
	return fmt.Sprintf("%s[%d,%d)", filepath.Base(r.Path), r.From, r.To)
}

// Source cuts the files matched by a glob into byte ranges.
type Source struct {
	cfg SourceConfig
}

func NewSource(cfg SourceConfig) (*Source, error) {
	cfg.WithDefaults()
	if strings.TrimSpace(cfg.InputGlob) == "" {
		return nil, fmt.Errorf("source input glob is required")
	}
	if _, err := filepath.Match(cfg.InputGlob, ""); err != nil {
		return nil, fmt.Errorf("bad input glob %q: %w", cfg.InputGlob, err)
	}
	return &Source{cfg: cfg}, nil
}

// ListSplits returns the ranges of every matched file in path order. Empty
// files yield no split.
func (s *Source) ListSplits(ctx context.Context) ([]split.Split, error) {
	files, err := filepath.Glob(s.cfg.InputGlob)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []split.Split
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		for from := int64(0); from < info.Size(); from += s.cfg.SplitSize {
			to := from + s.cfg.SplitSize
			if to > info.Size() {
				to = info.Size()
			}
			out = append(out, FileRange{Path: abs, From: from, To: to})
		}
	}
	return out, nil
}

func (s *Source) OpenReader(ctx context.Context, sp split.Split) (split.RecordReader, error) {
	r, ok := sp.(FileRange)
	if !ok {
		return nil, fmt.Errorf("unexpected split type %T", sp)
	}
	return openLineReader(r, s.cfg.Delimiter)
}

func (s *Source) EncodeSplit(sp split.Split) (map[string]interface{}, error) {
	r, ok := sp.(FileRange)
	if !ok {
		return nil, fmt.Errorf("unexpected split type %T", sp)
	}
	return map[string]interface{}{
		"path": r.Path,
		"from": strconv.FormatInt(r.From, 10),
		"to":   strconv.FormatInt(r.To, 10),
	}, nil
}

func (s *Source) DecodeSplit(m map[string]interface{}) (split.Split, error) {
	path, _ := m["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("decode file range: missing path")
	}
	fromS, _ := m["from"].(string)
	from, err := strconv.ParseInt(fromS, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode file range from: %w", err)
	}
	toS, _ := m["to"].(string)
	to, err := strconv.ParseInt(toS, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode file range to: %w", err)
	}
	return FileRange{Path: path, From: from, To: to}, nil
}

type lineReader struct {
	f     *os.File
	rd    *bufio.Reader
	r     FileRange
	delim string
	pos   int64
	rec   split.Record
}

func openLineReader(r FileRange, delim string) (*lineReader, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, err
	}
	lr := &lineReader{f: f, r: r, delim: delim, pos: r.From}
	start := r.From
	if start > 0 {
		// Back up one byte: if it is a newline, the range starts on a line
		// boundary and nothing of the first line belongs to the previous range.
		start--
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	lr.rd = bufio.NewReaderSize(f, 1<<20)
	if r.From > 0 {
		skipped, err := lr.rd.ReadString('\n')
		if err != nil && err != io.EOF {
			f.Close()
			return nil, err
		}
		lr.pos = start + int64(len(skipped))
	}
	return lr, nil
}

func (l *lineReader) Next(ctx context.Context) (bool, error) {
	if l.pos >= l.r.To {
		return false, nil
	}
	line, err := l.rd.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	if len(line) == 0 {
		return false, nil
	}
	l.pos += int64(len(line))
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	l.rec = strings.Split(line, l.delim)
	return true, nil
}

func (l *lineReader) Record() split.Record { return l.rec }

func (l *lineReader) Progress() float64 {
	n := l.r.To - l.r.From
	if n <= 0 {
		return 1
	}
	return float64(l.pos-l.r.From) / float64(n)
}

func (l *lineReader) Close() error { return l.f.Close() }
