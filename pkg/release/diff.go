package release

// Diff compares two snapshots using full-record equality.
//
// A record whose image URL or date text changed between scrapes shows up once
// in Removed (old version) and once in Added (new version). Both slices keep
// the order of first appearance in their input and contain no duplicates.
func Diff(previous, current Snapshot) Changes {
	return Changes{
		Added:   missingFrom(current, previous),
		Removed: missingFrom(previous, current),
	}
}

// missingFrom returns the records of src that do not appear in other.
func missingFrom(src, other Snapshot) Snapshot {
	seen := make(map[Record]struct{}, len(other)+len(src))
	for _, r := range other {
		seen[r] = struct{}{}
	}

	var out Snapshot
	for _, r := range src {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Equal reports whether two snapshots hold the same records in the same order.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}
