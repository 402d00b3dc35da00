package projection

import (
	"encoding/json"

	"github.com/rosiefs/rosie/internal/event"
)

// EmbedCache holds embedding vectors keyed by content fingerprint - never by
// path. Identical content across different paths or across runs never
// recomputes its embedding.
type EmbedCache struct {
	lastSeq int64
	vectors map[string][]int64
}

// NewEmbedCache returns an empty cache.
func NewEmbedCache() *EmbedCache {
	return &EmbedCache{vectors: make(map[string][]int64)}
}

func (ec *EmbedCache) Name() string   { return "embed_cache" }
func (ec *EmbedCache) LastSeq() int64 { return ec.lastSeq }

func (ec *EmbedCache) Apply(ev event.Event) error {
	defer func() { ec.lastSeq = ev.Seq }()

	computed, ok := ev.Payload.(event.EmbeddingsComputed)
	if !ok {
		return nil
	}
	for _, entry := range computed.Entries {
		ec.vectors[entry.Fingerprint] = entry.Vector
	}
	return nil
}

// Get returns the cached vector for a fingerprint.
func (ec *EmbedCache) Get(fingerprint string) ([]int64, bool) {
	v, ok := ec.vectors[fingerprint]
	return v, ok
}

// Has reports whether a fingerprint already has an embedding, letting the
// pipeline skip recomputation for known content.
func (ec *EmbedCache) Has(fingerprint string) bool {
	_, ok := ec.vectors[fingerprint]
	return ok
}

// Missing filters fingerprints down to those without cached vectors,
// preserving input order.
func (ec *EmbedCache) Missing(fingerprints []string) []string {
	var out []string
	for _, fp := range fingerprints {
		if !ec.Has(fp) {
			out = append(out, fp)
		}
	}
	return out
}

// Len returns the number of cached vectors.
func (ec *EmbedCache) Len() int { return len(ec.vectors) }

type embedCacheSnapshot struct {
	Vectors map[string][]int64 `json:"vectors"`
}

func (ec *EmbedCache) Snapshot() ([]byte, error) {
	return json.Marshal(embedCacheSnapshot{Vectors: ec.vectors})
}

func (ec *EmbedCache) Restore(lastSeq int64, data []byte) error {
	var snap embedCacheSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if snap.Vectors == nil {
		snap.Vectors = make(map[string][]int64)
	}
	ec.vectors = snap.Vectors
	ec.lastSeq = lastSeq
	return nil
}
