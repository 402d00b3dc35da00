package projection

import (
	"encoding/json"
	"sort"

	"github.com/rosiefs/rosie/internal/event"
)

// FileIndex is the scan-derived view of the filesystem: path -> FileRecord.
// Upserted by FilesScanned events; a full rescan that omits a previously
// indexed path marks it removed.
type FileIndex struct {
	lastSeq int64
	entries map[string]event.FileRecord
}

// NewFileIndex returns an empty index.
func NewFileIndex() *FileIndex {
	return &FileIndex{entries: make(map[string]event.FileRecord)}
}

func (fi *FileIndex) Name() string   { return "file_index" }
func (fi *FileIndex) LastSeq() int64 { return fi.lastSeq }

// Apply folds one event. Only FilesScanned touches the index; every other
// kind advances the cursor unchanged.
func (fi *FileIndex) Apply(ev event.Event) error {
	defer func() { fi.lastSeq = ev.Seq }()

	scanned, ok := ev.Payload.(event.FilesScanned)
	if !ok {
		return nil
	}

	if scanned.FullRescan {
		next := make(map[string]event.FileRecord, len(scanned.Records))
		for _, rec := range scanned.Records {
			next[rec.Path] = rec
		}
		fi.entries = next
		return nil
	}

	for _, rec := range scanned.Records {
		fi.entries[rec.Path] = rec
	}
	return nil
}

// Get returns the record for a path.
func (fi *FileIndex) Get(path string) (event.FileRecord, bool) {
	rec, ok := fi.entries[path]
	return rec, ok
}

// Len returns the number of indexed paths.
func (fi *FileIndex) Len() int { return len(fi.entries) }

// Paths returns all indexed paths in sorted order.
func (fi *FileIndex) Paths() []string {
	paths := make([]string, 0, len(fi.entries))
	for p := range fi.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Records returns all records ordered by path.
func (fi *FileIndex) Records() []event.FileRecord {
	recs := make([]event.FileRecord, 0, len(fi.entries))
	for _, p := range fi.Paths() {
		recs = append(recs, fi.entries[p])
	}
	return recs
}

type fileIndexSnapshot struct {
	Entries map[string]event.FileRecord `json:"entries"`
}

func (fi *FileIndex) Snapshot() ([]byte, error) {
	return json.Marshal(fileIndexSnapshot{Entries: fi.entries})
}

func (fi *FileIndex) Restore(lastSeq int64, data []byte) error {
	var snap fileIndexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if snap.Entries == nil {
		snap.Entries = make(map[string]event.FileRecord)
	}
	fi.entries = snap.Entries
	fi.lastSeq = lastSeq
	return nil
}
