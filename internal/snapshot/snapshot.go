package snapshot

import "sort"

// Snapshot is a point-in-time view of a directory tree: a path-unique record
// list held in lexicographic path order. Snapshots are immutable once built;
// a new capture always produces a new value rather than mutating a prior one.
type Snapshot struct {
	records []FileRecord
}

// New builds a Snapshot from records in any order. Records with duplicate
// paths collapse to the last one seen.
func New(records []FileRecord) Snapshot {
	byPath := make(map[string]FileRecord, len(records))
	for _, r := range records {
		byPath[r.Path] = r
	}
	out := make([]FileRecord, 0, len(byPath))
	for _, r := range byPath {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return Snapshot{records: out}
}

// Len returns the number of records in the snapshot.
func (s Snapshot) Len() int { return len(s.records) }

// Records returns the records in lexicographic path order. The returned slice
// is a copy, so callers may keep or modify it freely.
func (s Snapshot) Records() []FileRecord {
	out := make([]FileRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Lookup returns the record for path, if present.
func (s Snapshot) Lookup(path string) (FileRecord, bool) {
	i := sort.Search(len(s.records), func(i int) bool { return s.records[i].Path >= path })
	if i < len(s.records) && s.records[i].Path == path {
		return s.records[i], true
	}
	return FileRecord{}, false
}
