package session

import (
	"sort"

	"ig-streamer/src/models"
)

// -----------------------------------------------------------------------------

// Merge applies one raw update to a snapshot and returns the new snapshot with
// the names of the fields written, in field order. prev is never modified;
// when nothing is written prev itself is returned. Unchanged values are
// skipped, nulls are stored blank, keys are never removed.
func Merge(prev models.MFieldSnapshot, upd models.MRawUpdate) (models.MFieldSnapshot, []string) {
	order := upd.Order
	if len(order) == 0 {
		order = make([]string, 0, len(upd.Fields))
		for name := range upd.Fields {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	var next models.MFieldSnapshot
	var changed []string
	for _, name := range order {
		v, ok := upd.Fields[name]
		if !ok || v.State == models.RawUnchanged {
			continue
		}
		if next == nil {
			next = make(models.MFieldSnapshot, len(prev)+1)
			for k, old := range prev {
				next[k] = old
			}
		}
		if v.State == models.RawNull {
			next[name] = ""
		} else {
			next[name] = v.Value
		}
		changed = append(changed, name)
	}

	if next == nil {
		if prev == nil {
			return models.MFieldSnapshot{}, nil
		}
		return prev, nil
	}
	return next, changed
}
