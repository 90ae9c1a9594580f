// Package split holds the split/group model shared by every source and
// runner: the Rebalancer that turns a source's natural splits into a fixed
// number of size-balanced groups, and the CompositeReader that presents one
// group to one task as a single record stream.
package split

import (
	"context"
	"fmt"
	"strings"
)

// Split is one unit of upstream work, e.g. a primary key range or a byte
// range of a file. Size is an estimate of the work it carries (rows, bytes).
// Size may fail when the estimate has to be fetched from somewhere.
type Split interface {
	Size() (int64, error)
	String() string
}

// Group is the ordered bundle of splits handed to one task.
type Group struct {
	Index  int
	Splits []Split
	// TotalSize sums the sizes that could be queried. Informational only.
	TotalSize int64
}

// NewGroup builds a group and sums its TotalSize.
func NewGroup(index int, splits []Split) Group {
	g := Group{Index: index, Splits: splits}
	for _, s := range splits {
		if n, err := s.Size(); err == nil {
			g.TotalSize += n
		}
	}
	return g
}

func (g Group) String() string {
	names := make([]string, 0, len(g.Splits))
	for _, s := range g.Splits {
		names = append(names, s.String())
	}
	return fmt.Sprintf("group-%d(size=%d)[%s]", g.Index, g.TotalSize, strings.Join(names, ","))
}

// Record is one row of a split, as text columns.
type Record []string

// RecordReader reads the records of a single split, or of a whole group when
// implemented by CompositeReader. Next reports whether Record holds a new
// record. A RecordReader is used by one goroutine only.
type RecordReader interface {
	Next(ctx context.Context) (bool, error)
	Record() Record
	Close() error
}

// Progresser is implemented by readers that can estimate how much of their
// input has been consumed, as a fraction in [0, 1].
type Progresser interface {
	Progress() float64
}

// Opener opens the single-split reader of a split.
type Opener interface {
	OpenReader(ctx context.Context, s Split) (RecordReader, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, s Split) (RecordReader, error)

func (f OpenerFunc) OpenReader(ctx context.Context, s Split) (RecordReader, error) {
	return f(ctx, s)
}

// Provider is the upstream split source of a job.
type Provider interface {
	Opener
	ListSplits(ctx context.Context) ([]Split, error)
}

// Codec converts splits to and from plain maps so they can travel to remote
// workers. Values must be representable by structpb: strings, float64, bool,
// nested maps and slices.
type Codec interface {
	EncodeSplit(s Split) (map[string]interface{}, error)
	DecodeSplit(m map[string]interface{}) (Split, error)
}

// Spread returns the difference between the largest and the smallest group
// TotalSize.
func Spread(groups []Group) int64 {
	if len(groups) == 0 {
		return 0
	}
	min, max := groups[0].TotalSize, groups[0].TotalSize
	for _, g := range groups[1:] {
		if g.TotalSize < min {
			min = g.TotalSize
		}
		if g.TotalSize > max {
			max = g.TotalSize
		}
	}
	return max - min
}
