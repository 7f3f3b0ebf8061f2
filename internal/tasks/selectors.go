package tasks

import (
	"math"

	"github.com/roach88/tapflow/internal/audit"
	"github.com/roach88/tapflow/internal/config"
	"github.com/roach88/tapflow/internal/join"
)

func builtinSelectors() []SelectorType {
	return []SelectorType{
		{
			Name:        "value",
			Description: "routes to the target whose index is the record value",
			Build:       func(config.Values) join.Selector { return ByValue },
		},
		{
			Name:        "trail_length",
			Description: "routes to 0 while the trail is shorter than threshold, then to 1",
			Schema: func() *config.Schema {
				return config.NewSchema("trail_length").
					Int("threshold", 3, config.Desc("trail length that switches to target 1"), config.Rules("gte=1"))
			},
			Build: func(cfg config.Values) join.Selector {
				return TrailLength(cfg.Int("threshold"))
			},
		},
	}
}

// ByValue uses an integer record value as the target index. Any other value
// means no route.
func ByValue(rec *audit.Record) (int, bool) {
	switch v := rec.Value().(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	}
	return 0, false
}

// TrailLength routes to target 0 while the record's trail holds fewer than
// threshold records, and to target 1 after that.
func TrailLength(threshold int) join.Selector {
	return func(rec *audit.Record) (int, bool) {
		if len(rec.Lineage()) < threshold {
			return 0, true
		}
		return 1, true
	}
}
