package mysql_batch

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/emptyOVO/dbmove-go/split"
	"golang.org/x/sync/errgroup"
)

// PKRange is the split [Start, End) of a table's primary key. Rows is the
// counted row number, or -1 when rows were not counted and the key span
// stands in for the size.
type PKRange struct {
	Start int64
	End   int64
	Rows  int64
}

func (r PKRange) Size() (int64, error) {
	if r.Rows >= 0 {
		return r.Rows, nil
	}
	return r.End - r.Start, nil
}

func (r PKRange) String() string {
	return fmt.Sprintf("pk[%d,%d)", r.Start, r.End)
}

// Source lists primary key range splits of one table and reads them.
type Source struct {
	db        *sql.DB
	cfg       SourceConfig
	boundsSQL string
	countSQL  string
	querySQL  string
}

// NewSource validates cfg and prepares the statements used against db.
func NewSource(db *sql.DB, cfg SourceConfig) (*Source, error) {
	cfg.WithDefaults()
	if cfg.Table == "" {
		return nil, fmt.Errorf("source table is required")
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("source columns are required")
	}
	table, err := quoteIdentifier(cfg.Table)
	if err != nil {
		return nil, err
	}
	pk, err := quoteIdentifier(cfg.PKColumn)
	if err != nil {
		return nil, err
	}
	cols, err := quoteColumns(cfg.Columns)
	if err != nil {
		return nil, err
	}
	return &Source{
		db:        db,
		cfg:       cfg,
		boundsSQL: fmt.Sprintf("SELECT COALESCE(MIN(%s),0), COALESCE(MAX(%s),0), COUNT(*) FROM %s WHERE %s", pk, pk, table, cfg.Where),
		countSQL:  fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s >= ? AND %s < ? AND %s", table, pk, pk, cfg.Where),
		querySQL:  fmt.Sprintf("SELECT %s FROM %s WHERE %s >= ? AND %s < ? AND %s ORDER BY %s", cols, table, pk, pk, cfg.Where, pk),
	}, nil
}

// ListSplits cuts [MIN(pk), MAX(pk)] into cfg.Shards ranges of equal key
// span. With CountRows set, each range's rows are counted using
// cfg.Parallel concurrent queries, so sparse key ranges get small sizes.
func (s *Source) ListSplits(ctx context.Context) ([]split.Split, error) {
	var minID, maxID, rowCount int64
	if err := s.db.QueryRowContext(ctx, s.boundsSQL).Scan(&minID, &maxID, &rowCount); err != nil {
		return nil, err
	}
	if rowCount == 0 {
		return []split.Split{}, nil
	}

	ranges := pkRanges(minID, maxID, s.cfg.Shards)
	if s.cfg.CountRows {
		if err := s.countRanges(ctx, ranges); err != nil {
			return nil, err
		}
	}
	out := make([]split.Split, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r)
	}
	return out, nil
}

func pkRanges(minID, maxID int64, shards int) []PKRange {
	if shards < 1 {
		shards = 1
	}
	span := maxID - minID + 1
	step := (span + int64(shards) - 1) / int64(shards)
	if step < 1 {
		step = 1
	}
	ranges := make([]PKRange, 0, shards)
	for i := 0; i < shards; i++ {
		start := minID + int64(i)*step
		if start > maxID {
			break
		}
		ranges = append(ranges, PKRange{Start: start, End: start + step, Rows: -1})
	}
	return ranges
}

// countRanges fills Rows of every range, at most cfg.Parallel counts at a
// time. The first failed count cancels the others.
func (s *Source) countRanges(ctx context.Context, ranges []PKRange) error {
	workerN := s.cfg.Parallel
	if workerN > len(ranges) {
		workerN = len(ranges)
	}
	if workerN < 1 {
		workerN = 1
	}

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workerN; i++ {
		g.Go(func() error {
			for idx := range jobs {
				var n int64
				if err := s.db.QueryRowContext(gctx, s.countSQL, ranges[idx].Start, ranges[idx].End).Scan(&n); err != nil {
					return fmt.Errorf("count range %s: %w", ranges[idx], err)
				}
				ranges[idx].Rows = n
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for idx := range ranges {
			select {
			case jobs <- idx:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	return g.Wait()
}

// OpenReader streams the rows of one key range in key order.
func (s *Source) OpenReader(ctx context.Context, sp split.Split) (split.RecordReader, error) {
	r, ok := sp.(PKRange)
	if !ok {
		return nil, fmt.Errorf("unexpected split type %T", sp)
	}
	rows, err := s.db.QueryContext(ctx, s.querySQL, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	size, _ := r.Size()
	return newRowReader(rows, len(s.cfg.Columns), size), nil
}

func (s *Source) EncodeSplit(sp split.Split) (map[string]interface{}, error) {
	r, ok := sp.(PKRange)
	if !ok {
		return nil, fmt.Errorf("unexpected split type %T", sp)
	}
	return map[string]interface{}{
		"start": strconv.FormatInt(r.Start, 10),
		"end":   strconv.FormatInt(r.End, 10),
		"rows":  strconv.FormatInt(r.Rows, 10),
	}, nil
}

func (s *Source) DecodeSplit(m map[string]interface{}) (split.Split, error) {
	var r PKRange
	for key, dst := range map[string]*int64{"start": &r.Start, "end": &r.End, "rows": &r.Rows} {
		v, _ := m[key].(string)
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode pk range %s: %w", key, err)
		}
		*dst = n
	}
	return r, nil
}

type rowReader struct {
	rows *sql.Rows
	vals []interface{}
	ptrs []interface{}
	rec  split.Record
	read int64
	size int64
}

func newRowReader(rows *sql.Rows, ncol int, size int64) *rowReader {
	r := &rowReader{
		rows: rows,
		vals: make([]interface{}, ncol),
		ptrs: make([]interface{}, ncol),
		size: size,
	}
	for i := range r.vals {
		r.ptrs[i] = &r.vals[i]
	}
	return r
}

func (r *rowReader) Next(ctx context.Context) (bool, error) {
	if !r.rows.Next() {
		return false, r.rows.Err()
	}
	if err := r.rows.Scan(r.ptrs...); err != nil {
		return false, err
	}
	rec := make(split.Record, len(r.vals))
	for i, v := range r.vals {
		rec[i] = asString(v)
	}
	r.rec = rec
	r.read++
	return true, nil
}

func (r *rowReader) Record() split.Record { return r.rec }

func (r *rowReader) Progress() float64 {
	if r.size <= 0 {
		return 0
	}
	return float64(r.read) / float64(r.size)
}

func (r *rowReader) Close() error { return r.rows.Close() }
