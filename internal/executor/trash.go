package executor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rosiefs/rosie/internal/fault"
)

// Trash moves a file aside reversibly instead of unlinking it. Restore
// must succeed for any handle Put returned, until a later compaction.
type Trash interface {
	// Put removes path from its location and returns a handle that
	// Restore accepts.
	Put(path string) (handle string, err error)
	// Restore puts the file for handle back at its original path.
	Restore(handle string) error
}

// SidecarTrash keeps trashed files under a directory inside the state
// dir, one uniquely named entry per deletion. It works on any volume
// where rename or copy works, unlike OS trash integration.
type SidecarTrash struct {
	Dir string
}

func NewSidecarTrash(dir string) *SidecarTrash {
	return &SidecarTrash{Dir: dir}
}

// Put moves path into the sidecar dir and returns "<id>|<original path>".
func (t *SidecarTrash) Put(path string) (string, error) {
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return "", fault.Wrap(fault.CodeVolumeIO, "create trash dir", err)
	}
	id := uuid.NewString()
	entry := filepath.Join(t.Dir, id+"-"+filepath.Base(path))
	if _, err := moveFile(path, entry); err != nil {
		return "", err
	}
	return entry + "|" + path, nil
}

// Restore moves a trashed entry back to its recorded original path. A
// handle whose entry is already gone restores as a no-op only when the
// original path exists again; otherwise it is an error.
func (t *SidecarTrash) Restore(handle string) error {
	entry, orig, ok := splitHandle(handle)
	if !ok {
		return fault.New(fault.CodeVolumeIO, "malformed trash handle "+handle)
	}
	if _, err := os.Lstat(entry); os.IsNotExist(err) {
		if _, err := os.Lstat(orig); err == nil {
			return nil
		}
		return fault.New(fault.CodeVolumeIO,
			fmt.Sprintf("trash entry %s missing and %s not restored", entry, orig))
	}
	if _, err := os.Lstat(orig); err == nil {
		// Already back in place; drop the duplicate trash entry.
		return os.Remove(entry)
	}
	_, err := moveFile(entry, orig)
	return err
}

func splitHandle(handle string) (entry, orig string, ok bool) {
	for i := 0; i < len(handle); i++ {
		if handle[i] == '|' {
			return handle[:i], handle[i+1:], true
		}
	}
	return "", "", false
}
