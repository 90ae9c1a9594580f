package split

import (
	"context"
	"fmt"
)

// MemSplit is a split whose records live in memory.
type MemSplit struct {
	Name    string
	Records []Record
	// Weight overrides the record count as Size when positive.
	Weight int64
}

func (m *MemSplit) Size() (int64, error) {
	if m.Weight > 0 {
		return m.Weight, nil
	}
	return int64(len(m.Records)), nil
}

func (m *MemSplit) String() string { return m.Name }

// MemSource serves MemSplits. Splits are addressed by name on the wire, so
// names must be unique.
type MemSource struct {
	Splits []*MemSplit
}

func (s *MemSource) ListSplits(ctx context.Context) ([]Split, error) {
	out := make([]Split, 0, len(s.Splits))
	for _, m := range s.Splits {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemSource) OpenReader(ctx context.Context, sp Split) (RecordReader, error) {
	m, ok := sp.(*MemSplit)
	if !ok {
		return nil, fmt.Errorf("unexpected split type %T", sp)
	}
	return &memReader{records: m.Records, pos: -1}, nil
}

func (s *MemSource) EncodeSplit(sp Split) (map[string]interface{}, error) {
	m, ok := sp.(*MemSplit)
	if !ok {
		return nil, fmt.Errorf("unexpected split type %T", sp)
	}
	return map[string]interface{}{"name": m.Name}, nil
}

func (s *MemSource) DecodeSplit(v map[string]interface{}) (Split, error) {
	name, _ := v["name"].(string)
	for _, m := range s.Splits {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown split %q", name)
}

type memReader struct {
	records []Record
	pos     int
}

func (r *memReader) Next(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if r.pos+1 >= len(r.records) {
		r.pos = len(r.records)
		return false, nil
	}
	r.pos++
	return true, nil
}

func (r *memReader) Record() Record {
	if r.pos < 0 || r.pos >= len(r.records) {
		return nil
	}
	return r.records[r.pos]
}

func (r *memReader) Progress() float64 {
	if len(r.records) == 0 {
		return 1
	}
	done := r.pos + 1
	if done > len(r.records) {
		done = len(r.records)
	}
	return float64(done) / float64(len(r.records))
}

func (r *memReader) Close() error { return nil }
