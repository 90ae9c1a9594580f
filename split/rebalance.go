package split

import (
	"sort"

	log "github.com/sirupsen/logrus"
)

// Rebalancer groups splits for a fixed number of tasks.
type Rebalancer struct {
	Log log.FieldLogger
}

// Rebalance groups splits with a Rebalancer logging to the standard logger.
func Rebalance(splits []Split, targetCount int) []Group {
	return Rebalancer{}.Rebalance(splits, targetCount)
}

func (r Rebalancer) logger() log.FieldLogger {
	if r.Log == nil {
		return log.StandardLogger()
	}
	return r.Log
}

// Rebalance returns at most targetCount groups covering every split exactly
// once. targetCount <= 0 means one group per split.
//
// With more splits than groups, splits are sorted by size descending and
// dealt out in rounds of targetCount, alternating the sweep direction every
// round: round 0 fills groups 0..n-1, round 1 fills n-1..0, and so on. The
// largest splits of one round then land next to the smallest of the next,
// which keeps group totals closer than plain round-robin does.
func (r Rebalancer) Rebalance(splits []Split, targetCount int) []Group {
	l := r.logger()
	if targetCount <= 0 {
		targetCount = len(splits)
	}
	l.WithFields(log.Fields{
		"splits": len(splits),
		"target": targetCount,
	}).Debug("[Rebalance] start")

	if len(splits) <= targetCount {
		if len(splits) < targetCount {
			l.WithFields(log.Fields{
				"splits": len(splits),
				"target": targetCount,
			}).Warn("[Rebalance] fewer splits than requested groups, using one group per split")
		}
		groups := make([]Group, 0, len(splits))
		for i, s := range splits {
			groups = append(groups, NewGroup(i, []Split{s}))
		}
		return groups
	}

	sorted := r.sortBySizeDesc(splits)
	members := make([][]Split, targetCount)
	for i, s := range sorted {
		pos := i % targetCount
		if (i/targetCount)%2 == 1 {
			pos = targetCount - 1 - pos
		}
		members[pos] = append(members[pos], s)
	}

	groups := make([]Group, targetCount)
	for i := range members {
		groups[i] = NewGroup(i, members[i])
	}
	l.WithFields(log.Fields{
		"groups": len(groups),
		"spread": Spread(groups),
	}).Debug("[Rebalance] done")
	return groups
}

// RoundRobin deals the size-sorted splits out in plain round-robin order. It
// exists for comparison with Rebalance and has the same group count rules.
func (r Rebalancer) RoundRobin(splits []Split, targetCount int) []Group {
	if targetCount <= 0 || targetCount > len(splits) {
		targetCount = len(splits)
	}
	members := make([][]Split, targetCount)
	for i, s := range r.sortBySizeDesc(splits) {
		members[i%targetCount] = append(members[i%targetCount], s)
	}
	groups := make([]Group, targetCount)
	for i := range members {
		groups[i] = NewGroup(i, members[i])
	}
	return groups
}

// sortBySizeDesc returns a stably sorted copy of splits. A comparison whose
// size query fails counts as equal; the failure is logged and the sort goes
// on.
func (r Rebalancer) sortBySizeDesc(splits []Split) []Split {
	l := r.logger()
	sorted := make([]Split, len(splits))
	copy(sorted, splits)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, err := sorted[i].Size()
		if err != nil {
			l.WithError(err).WithField("split", sorted[i].String()).Warn("[Rebalance] size query failed while sorting splits")
			return false
		}
		sj, err := sorted[j].Size()
		if err != nil {
			l.WithError(err).WithField("split", sorted[j].String()).Warn("[Rebalance] size query failed while sorting splits")
			return false
		}
		return si > sj
	})
	return sorted
}
