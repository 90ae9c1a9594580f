package split

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

// ErrClosed is returned by CompositeReader.Next after Close.
var ErrClosed = errors.New("split: reader closed")

// State is the position of a CompositeReader in its group.
type State int

const (
	NotStarted State = iota
	Reading
	Exhausted
	Closed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Reading:
		return "reading"
	case Exhausted:
		return "exhausted"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// CompositeReader reads the splits of one group back to back through
// single-split readers obtained from an Opener. At most one underlying
// reader is open at any time. Errors from the underlying readers are
// returned as is and stick: every later Next returns the same error.
type CompositeReader struct {
	group Group
	open  Opener
	log   log.FieldLogger

	state State
	idx   int
	cur   RecordReader
	err   error
}

// NewCompositeReader returns a reader over g. A nil logger means the
// standard logrus logger.
func NewCompositeReader(g Group, open Opener, logger log.FieldLogger) *CompositeReader {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &CompositeReader{
		group: g,
		open:  open,
		log:   logger.WithField("group", g.Index),
	}
}

// Next advances to the next record of the group, moving on to the following
// split whenever the current one is exhausted.
func (c *CompositeReader) Next(ctx context.Context) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	switch c.state {
	case Closed:
		return false, ErrClosed
	case Exhausted:
		return false, nil
	}
	for {
		if c.cur == nil {
			if c.idx >= len(c.group.Splits) {
				c.state = Exhausted
				c.log.WithField("index", c.idx).Trace("[CompositeReader] group exhausted")
				return false, nil
			}
			s := c.group.Splits[c.idx]
			r, err := c.open.OpenReader(ctx, s)
			if err != nil {
				c.err = err
				return false, err
			}
			c.log.WithFields(log.Fields{"split": s.String(), "index": c.idx}).Trace("[CompositeReader] open split")
			c.cur = r
			c.state = Reading
		}
		ok, err := c.cur.Next(ctx)
		if err != nil {
			c.release()
			c.err = err
			return false, err
		}
		if ok {
			return true, nil
		}
		if err := c.release(); err != nil {
			c.err = err
			return false, err
		}
		c.idx++
	}
}

// Record returns the record read by the last successful Next.
func (c *CompositeReader) Record() Record {
	if c.cur == nil {
		return nil
	}
	return c.cur.Record()
}

// Close releases the open underlying reader, if any. Close may be called in
// any state and more than once.
func (c *CompositeReader) Close() error {
	if c.state == Closed {
		return nil
	}
	c.state = Closed
	return c.release()
}

// State reports where the reader is in its group.
func (c *CompositeReader) State() State {
	return c.state
}

// Group returns the group being read.
func (c *CompositeReader) Group() Group {
	return c.group
}

// Progress estimates the fraction of the group consumed so far. Every split
// weighs the same; the open split contributes its own progress when its
// reader reports one.
func (c *CompositeReader) Progress() float64 {
	n := len(c.group.Splits)
	if n == 0 || c.state == Exhausted {
		return 1
	}
	done := float64(c.idx)
	if p, ok := c.cur.(Progresser); ok {
		done += clamp(p.Progress())
	}
	return done / float64(n)
}

func (c *CompositeReader) release() error {
	if c.cur == nil {
		return nil
	}
	r := c.cur
	c.cur = nil
	return r.Close()
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
