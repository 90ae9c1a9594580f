package file_batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/emptyOVO/dbmove-go/split"
	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, s *Source, splits []split.Split) []string {
	t.Helper()
	ctx := context.Background()
	var out []string
	for _, sp := range splits {
		r, err := s.OpenReader(ctx, sp)
		if err != nil {
			t.Fatal(err)
		}
		for {
			ok, err := r.Next(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				break
			}
			out = append(out, strings.Join(r.Record(), "|"))
		}
		if err := r.Close(); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

func TestEveryLineReadOnce(t *testing.T) {
	dir := t.TempDir()
	var lines, want []string
	for i := 0; i < 200; i++ {
		// Vary line length so range boundaries fall everywhere.
		key := strings.Repeat("k", i%17)
		lines = append(lines, fmt.Sprintf("%d\t%s\t%d", i, key, i*3))
		want = append(want, fmt.Sprintf("%d|%s|%d", i, key, i*3))
	}
	writeFile(t, dir, "a.tsv", lines)
	sort.Strings(want)

	for _, size := range []int64{1, 2, 3, 7, 16, 64, 100, 1000, 1 << 20} {
		s, err := NewSource(SourceConfig{InputGlob: filepath.Join(dir, "*.tsv"), SplitSize: size})
		if err != nil {
			t.Fatal(err)
		}
		splits, err := s.ListSplits(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		got := readAll(t, s, splits)
		sort.Strings(got)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("split size %d: lines mismatch (-want +got):\n%s", size, diff)
		}
	}
}

func TestListSplitsSizes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.tsv", []string{"0123456789"}) // 11 bytes
	writeFile(t, dir, "b.tsv", nil)
	s, err := NewSource(SourceConfig{InputGlob: filepath.Join(dir, "*.tsv"), SplitSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	splits, err := s.ListSplits(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var sizes []int64
	for _, sp := range splits {
		n, _ := sp.Size()
		sizes = append(sizes, n)
	}
	if diff := cmp.Diff([]int64{4, 4, 3}, sizes); diff != "" {
		t.Errorf("sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestLastLineWithoutNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.tsv")
	if err := os.WriteFile(path, []byte("a\tb\nc\td"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewSource(SourceConfig{InputGlob: path, SplitSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	splits, _ := s.ListSplits(context.Background())
	got := readAll(t, s, splits)
	if diff := cmp.Diff([]string{"a|b", "c|d"}, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec(t *testing.T) {
	s := &Source{}
	in := FileRange{Path: "/data/a.tsv", From: 1 << 40, To: 1<<40 + 9}
	m, err := s.EncodeSplit(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.DecodeSplit(m)
	if err != nil {
		t.Fatal(err)
	}
	if out != split.Split(in) {
		t.Errorf("got %v, want %v", out, in)
	}
}

func TestSink(t *testing.T) {
	dir := t.TempDir()
	f := NewSinkFactory(SinkConfig{OutputDir: filepath.Join(dir, "out"), Replace: true})
	ctx := context.Background()
	if err := f.Prepare(ctx); err != nil {
		t.Fatal(err)
	}
	s, err := f.Open(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range []split.Record{{"a", "1"}, {"b", "2"}} {
		if err := s.Write(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "out", "part-00003.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), "a\t1\nb\t2\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	files, _ := filepath.Glob(f.OutputGlob())
	if len(files) != 1 {
		t.Errorf("got %d output files, want 1", len(files))
	}
}

func TestSinkPrepareReportsFailedCleanup(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory matching the output glob cannot be removed.
	stuck := filepath.Join(dir, "part-00001.txt")
	if err := os.MkdirAll(filepath.Join(stuck, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}
	f := NewSinkFactory(SinkConfig{OutputDir: dir, Replace: true})
	err := f.Prepare(context.Background())
	if err == nil || !strings.Contains(err.Error(), "remove old output") {
		t.Fatalf("got %v, want a cleanup error", err)
	}
}
