package snapshot

import (
	"fmt"
	"time"
)

// FileRecord describes one file observed during a directory capture. Path is
// the record's identity: two records refer to the same file iff their paths
// are equal. ModTime is metadata and never participates in identity.
type FileRecord struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"modTime"`
}

func (r FileRecord) String() string {
	return fmt.Sprintf("%s (%s)", r.Path, r.ModTime.Format(time.RFC3339))
}
