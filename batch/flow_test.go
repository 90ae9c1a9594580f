package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	dbmove "github.com/emptyOVO/dbmove-go"
	"github.com/emptyOVO/dbmove-go/split"
	"github.com/emptyOVO/dbmove-go/task"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
)

// writeInputs writes files of growing length and returns every line.
func writeInputs(t *testing.T, dir string, files int) []string {
	t.Helper()
	var all []string
	for f := 0; f < files; f++ {
		var b strings.Builder
		for i := 0; i < (f+1)*20; i++ {
			line := fmt.Sprintf("f%d-%03d\t%d", f, i, i*f)
			all = append(all, line)
			b.WriteString(line + "\n")
		}
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("in-%d.tsv", f)), []byte(b.String()), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	sort.Strings(all)
	return all
}

func readOutputs(t *testing.T, glob string) []string {
	t.Helper()
	files, err := filepath.Glob(glob)
	if err != nil {
		t.Fatal(err)
	}
	var all []string
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatal(err)
		}
		for _, line := range strings.Split(strings.TrimSuffix(string(b), "\n"), "\n") {
			if line != "" {
				all = append(all, line)
			}
		}
	}
	sort.Strings(all)
	return all
}

func fileFlow(in, out string) FlowConfig {
	return FlowConfig{
		Version: FlowVersionV1,
		Source: FlowSourceConfig{
			Type:       "file",
			FileConfig: FileSourceConfig{InputGlob: filepath.Join(in, "*.tsv"), SplitSize: 97},
		},
		Plan: FlowPlanConfig{Workers: 3},
		Sink: FlowSinkConfig{
			Type:       "file",
			FileConfig: FileSinkConfig{OutputDir: out, Replace: true},
		},
	}
}

func TestRunFlowFileToFile(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	want := writeInputs(t, in, 4)
	if err := os.WriteFile(filepath.Join(out, "part-00099.txt"), []byte("stale\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	bench, err := RunFlowBenchmark(context.Background(), fileFlow(in, out))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := bench.Groups, 3; got != want {
		t.Errorf("got %v groups, want %v", got, want)
	}
	if got, want := bench.Records, int64(len(want)); got != want {
		t.Errorf("got %v records, want %v", got, want)
	}
	if diff := cmp.Diff(want, readOutputs(t, filepath.Join(out, "part-*.txt"))); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanReport(t *testing.T) {
	in := t.TempDir()
	writeInputs(t, in, 4)
	cfg := fileFlow(in, t.TempDir())
	rep, err := Plan(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(rep.Groups), 3; got != want {
		t.Fatalf("got %v groups, want %v", got, want)
	}
	if rep.Spread > rep.RoundRobinSpread {
		t.Errorf("snake spread %d worse than round-robin %d", rep.Spread, rep.RoundRobinSpread)
	}
}

func TestValidateFlowConfig(t *testing.T) {
	ok := fileFlow("in", "out")
	if err := ValidateFlowConfig(ok); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for name, mutate := range map[string]func(*FlowConfig){
		"version":         func(c *FlowConfig) { c.Version = "v2" },
		"negative worker": func(c *FlowConfig) { c.Plan.Workers = -1 },
		"runner":          func(c *FlowConfig) { c.Plan.Runner = "yarn" },
		"source type":     func(c *FlowConfig) { c.Source.Type = "redis" },
		"sink type":       func(c *FlowConfig) { c.Sink.Type = "kafka" },
		"no glob":         func(c *FlowConfig) { c.Source.FileConfig.InputGlob = "" },
		"mysql source": func(c *FlowConfig) {
			c.Source.Type = "mysql"
			c.Source.DB = DBConfig{User: "root", Database: "db"}
		},
		"mysql sink": func(c *FlowConfig) {
			c.Sink.Type = "mysql"
			c.Sink.DB = DBConfig{User: "root", Database: "db"}
			c.Sink.Config.TargetTable = "t"
		},
		"redis fields": func(c *FlowConfig) { c.Sink.Type = "redis" },
	} {
		cfg := ok
		mutate(&cfg)
		if err := ValidateFlowConfig(cfg); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestDSN(t *testing.T) {
	cfg := DBConfig{User: "u", Password: "p", Database: "d", Params: map[string]string{"timeout": "5s"}}
	if got, want := cfg.dsn(), "u:p@tcp(127.0.0.1:3306)/d?charset=utf8mb4&parseTime=true&timeout=5s"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func memSource() *split.MemSource {
	src := &split.MemSource{}
	for i := 0; i < 9; i++ {
		s := &split.MemSplit{Name: fmt.Sprintf("m%d", i)}
		for j := 0; j < 3*i+1; j++ {
			s.Records = append(s.Records, split.Record{s.Name, fmt.Sprint(j)})
		}
		src.Splits = append(src.Splits, s)
	}
	return src
}

func TestRunners(t *testing.T) {
	for name, r := range map[string]Runner{
		"local":   LocalRunner{},
		"cluster": ClusterRunner{Addr: "127.0.0.1:0"},
	} {
		t.Run(name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			src := memSource()
			sinks := &task.MemSinkFactory{}
			res, err := r.Run(context.Background(), dbmove.Job{Source: src, Codec: src, Sinks: sinks, Groups: 4, Workers: 2, Log: logger})
			if err != nil {
				t.Fatal(err)
			}
			if got, want := res.Records, int64(117); got != want {
				t.Errorf("got %v, want %v", got, want)
			}
			if got, want := sinks.Total(), 117; got != want {
				t.Errorf("got %v, want %v", got, want)
			}
			if got, want := len(sinks.Tasks()), 4; got != want {
				t.Errorf("got %v tasks, want %v", got, want)
			}
		})
	}
}

// failingSource breaks every reader it opens.
type failingSource struct{ *split.MemSource }

func (failingSource) OpenReader(ctx context.Context, s split.Split) (split.RecordReader, error) {
	return nil, fmt.Errorf("cannot open %s", s)
}

func TestLocalRunnerFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	src := memSource()
	_, err := LocalRunner{}.Run(context.Background(), dbmove.Job{
		Source: failingSource{src}, Codec: src, Sinks: &task.MemSinkFactory{}, Groups: 3, Workers: 2, Log: logger,
	})
	if err == nil || !strings.Contains(err.Error(), "cannot open") {
		t.Fatalf("got %v, want an open error", err)
	}
}

func TestSyntheticIDs(t *testing.T) {
	const rows = 1000
	prev := int64(0)
	for i := int64(0); i < rows; i++ {
		id := syntheticID(i, rows, 3)
		if id <= prev {
			t.Fatalf("id %d at row %d not above %d", id, i, prev)
		}
		prev = id
	}
	// The first half of the rows sits in well under half of the id space.
	if mid := syntheticID(rows/2, rows, 3); mid*3 > prev {
		t.Errorf("ids not skewed: mid %d, last %d", mid, prev)
	}
}

func TestValidateSQL(t *testing.T) {
	got, err := validateSQL("src", "metric", "id > 10")
	if err != nil {
		t.Fatal(err)
	}
	if want := "SELECT COUNT(*), COALESCE(SUM(`metric`), 0) FROM `src` WHERE id > 10"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	got, err = validateSQL("src", "", "1=1")
	if err != nil {
		t.Fatal(err)
	}
	if want := "SELECT COUNT(*), 0 FROM `src` WHERE 1=1"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := validateSQL("src; drop", "", "1=1"); err == nil {
		t.Error("expected an error for a bad table name")
	}
}
