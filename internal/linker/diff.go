package linker

// Diff returns the ids of after missing from before (added) and of before
// missing from after (removed). Both keep their input order.
func Diff(before, after []string) (added, removed []string) {
	inBefore := make(map[string]bool, len(before))
	for _, id := range before {
		inBefore[id] = true
	}
	inAfter := make(map[string]bool, len(after))
	for _, id := range after {
		inAfter[id] = true
	}

	added = []string{}
	for _, id := range after {
		if !inBefore[id] {
			added = append(added, id)
		}
	}
	removed = []string{}
	for _, id := range before {
		if !inAfter[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// SameSet reports whether a and b hold the same ids, ignoring order and
// repeats.
func SameSet(a, b []string) bool {
	added, removed := Diff(a, b)
	return len(added) == 0 && len(removed) == 0
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
