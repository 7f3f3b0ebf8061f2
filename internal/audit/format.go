package audit

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format writes the trail of rec, one record per line, root first:
//
//	[0] input = ""
//	[1] a = "a" <- 0
//	[2] b = "ab" <- 1
//
// Keyed records show their key after the source. Parents are listed by their
// position in the trail.
func Format(w io.Writer, rec *Record) error {
	index := make(map[*Record]int)
	i := 0
	for r := range rec.Trail() {
		index[r] = i

		var line strings.Builder
		fmt.Fprintf(&line, "[%d] %s", i, r.Source())
		if key, ok := r.Key(); ok {
			fmt.Fprintf(&line, "[%v]", key)
		}
		line.WriteString(" = ")
		line.WriteString(formatValue(r.Value()))

		if len(r.parents) > 0 {
			refs := make([]string, len(r.parents))
			for j, p := range r.parents {
				refs[j] = strconv.Itoa(index[p])
			}
			line.WriteString(" <- ")
			line.WriteString(strings.Join(refs, ", "))
		}
		line.WriteByte('\n')

		if _, err := io.WriteString(w, line.String()); err != nil {
			return fmt.Errorf("format record %s: %w", r.ID(), err)
		}
		i++
	}
	return nil
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", v)
}
