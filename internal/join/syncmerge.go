package join

import (
	"context"
	"strconv"
	"strings"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/engine"
)

// syncMerge places rec in slot source of every open combination that uses
// batch member `member` of that source. Combinations are checked for
// collisions before any slot is written, so a failed call changes nothing.
func (j *Join) syncMerge(ctx context.Context, source, member int, node *engine.Task, rec *audit.Record) error {
	j.mu.Lock()

	keys := j.combinationsWith(source, member)
	for _, key := range keys {
		if slots := j.combos[key]; slots != nil && slots[source] != nil {
			j.mu.Unlock()
			return engine.NewCollisionError(j.targets[0].String(), node.String(), source)
		}
	}

	var ready [][]*audit.Record
	for _, key := range keys {
		slots := j.combos[key]
		if slots == nil {
			slots = make([]*audit.Record, len(j.sources))
			j.combos[key] = slots
		}
		slots[source] = rec
		if full(slots) {
			ready = append(ready, slots)
			delete(j.combos, key)
		}
	}
	j.mu.Unlock()

	for _, slots := range ready {
		if err := j.emit(ctx, j.targets[0], audit.Merge(slots...)); err != nil {
			return err
		}
	}
	return nil
}

// Open returns the number of partially filled combinations.
func (j *Join) Open() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.combos)
}

func full(slots []*audit.Record) bool {
	for _, s := range slots {
		if s == nil {
			return false
		}
	}
	return true
}

// combinationsWith lists, in lexicographic order, the keys of every batch
// member combination whose component for source is member.
func (j *Join) combinationsWith(source, member int) []string {
	idx := make([]int, len(j.sizes))
	idx[source] = member

	var keys []string
	for {
		keys = append(keys, comboKey(idx))

		// Advance the odometer, skipping the fixed source position.
		pos := len(idx) - 1
		for ; pos >= 0; pos-- {
			if pos == source {
				continue
			}
			idx[pos]++
			if idx[pos] < j.sizes[pos] {
				break
			}
			idx[pos] = 0
		}
		if pos < 0 {
			return keys
		}
	}
}

func comboKey(idx []int) string {
	parts := make([]string, len(idx))
	for i, n := range idx {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
