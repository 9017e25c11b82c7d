package snapshot

// Delta classifies the records that changed between two snapshots. Each slice
// is in lexicographic path order and any of them may be empty.
type Delta struct {
	Added    []FileRecord `json:"added,omitempty"`
	Removed  []FileRecord `json:"removed,omitempty"`
	Modified []FileRecord `json:"modified,omitempty"`
}

// Empty reports whether the delta carries no changes at all.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Diff compares two snapshots by path identity. A path present only in next
// is added, a path present only in prev is removed, and a path present in
// both whose ModTime differs is modified, reported with next's record. Equal
// ModTime means unchanged; such paths appear in no category. Both inputs are
// ordered, so this is a single merge pass.
func Diff(prev, next Snapshot) Delta {
	var d Delta
	i, j := 0, 0
	for i < len(prev.records) && j < len(next.records) {
		p, n := prev.records[i], next.records[j]
		switch {
		case p.Path < n.Path:
			d.Removed = append(d.Removed, p)
			i++
		case p.Path > n.Path:
			d.Added = append(d.Added, n)
			j++
		default:
			if !p.ModTime.Equal(n.ModTime) {
				d.Modified = append(d.Modified, n)
			}
			i++
			j++
		}
	}
	d.Removed = append(d.Removed, prev.records[i:]...)
	d.Added = append(d.Added, next.records[j:]...)
	return d
}
