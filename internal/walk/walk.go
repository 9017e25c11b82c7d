package walk

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/dirsync/server/internal/snapshot"
)

// Walk captures a snapshot of the tree rooted at root. Only regular files
// produce records; directories are structure, not state. Unreadable entries
// below the root are skipped, not fatal. Record paths are absolute.
func Walk(root string, ignore *Matcher) (snapshot.Snapshot, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("resolving root: %w", err)
	}

	var records []snapshot.FileRecord
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return err
			}
			return nil
		}
		if ignore.Match(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// File vanished between listing and stat.
			return nil
		}
		records = append(records, snapshot.FileRecord{Path: path, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("walking %s: %w", abs, err)
	}
	return snapshot.New(records), nil
}
