package model

// FilterConflicts drops candidates whose span overlaps the span of any existing
// pending or in-progress instance. Spans are closed intervals, so touching
// endpoints conflict. Dropped candidates are not reported.
func FilterConflicts(candidates, existing []TaskInstance) []TaskInstance {
	active := make([]TaskInstance, 0, len(existing))
	for _, e := range existing {
		if e.Status.IsActive() {
			active = append(active, e)
		}
	}

	out := make([]TaskInstance, 0, len(candidates))
	for _, c := range candidates {
		if !overlapsAny(c, active) {
			out = append(out, c)
		}
	}
	return out
}

func overlapsAny(c TaskInstance, others []TaskInstance) bool {
	cStart, cEnd := c.Span()
	for _, o := range others {
		if o.ID == c.ID {
			continue
		}
		oStart, oEnd := o.Span()
		if !cStart.After(oEnd) && !oStart.After(cEnd) {
			return true
		}
	}
	return false
}
