package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rosiefs/rosie/internal/canon"
	"github.com/rosiefs/rosie/internal/event"
)

// FSScanner walks a real directory tree and fingerprints regular files.
// Hidden entries are recorded but flagged; symlinks and other non-regular
// entries are skipped.
type FSScanner struct {
	// SkipDirs names directory base names never descended into.
	SkipDirs []string
	// MaxFingerprintBytes skips content hashing for larger files, leaving
	// the fingerprint empty. Zero means no limit.
	MaxFingerprintBytes int64
}

func NewFSScanner() *FSScanner {
	return &FSScanner{SkipDirs: []string{".git", ".rosie", "node_modules"}}
}

func (sc *FSScanner) Scan(ctx context.Context, root string) ([]event.FileRecord, error) {
	var records []event.FileRecord
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && sc.skip(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rec := event.FileRecord{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
			Hidden:  strings.HasPrefix(d.Name(), "."),
		}
		if sc.MaxFingerprintBytes == 0 || info.Size() <= sc.MaxFingerprintBytes {
			fp, err := canon.FingerprintFile(path)
			if err != nil {
				return err
			}
			rec.Fingerprint = fp
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (sc *FSScanner) skip(name string) bool {
	for _, s := range sc.SkipDirs {
		if name == s {
			return true
		}
	}
	return false
}
