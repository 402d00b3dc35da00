// Package pipeline orchestrates one organizing session: it ingests
// capability output as events, folds projections, and drives shaping and
// conflict resolution to propose plans. All session state is rebuilt from
// the event log at start; nothing survives a restart outside the log.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/fault"
)

// Scanner walks a root and yields file records. Implementations live
// outside the core (OS walkers, test fakes).
type Scanner interface {
	Scan(ctx context.Context, root string) ([]event.FileRecord, error)
}

// RuleMatcher evaluates configured rules against scanned records and
// returns action proposals.
type RuleMatcher interface {
	Match(ctx context.Context, records []event.FileRecord) ([]event.RuleMatched, error)
}

// Embedder computes content-fingerprint-keyed vectors for records that
// the embedding cache does not already cover.
type Embedder interface {
	Embed(ctx context.Context, records []event.FileRecord) ([]event.EmbeddingEntry, error)
}

// Clusterer groups indexed files. Available reports whether the backing
// capability can serve this session; it is probed once and cached.
type Clusterer interface {
	Name() string
	Available(ctx context.Context) bool
	Cluster(ctx context.Context, records []event.FileRecord, vectors map[string][]int64) ([]event.Cluster, error)
}

// selectClusterer probes candidates in order and returns the first
// available one, falling back to extension grouping when none answers.
// The fallback degrades quality, never availability.
func selectClusterer(ctx context.Context, candidates []Clusterer) (Clusterer, error) {
	for _, c := range candidates {
		if c.Available(ctx) {
			return c, nil
		}
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name()
	}
	return fallbackClusterer{}, fault.New(fault.CodeClusteringUnavailable,
		fmt.Sprintf("no clustering capability available (probed: %s)", strings.Join(names, ", ")))
}

// fallbackClusterer groups by extension and coarse size bucket. It needs
// no external capability and keeps the pipeline functional offline.
type fallbackClusterer struct{}

func (fallbackClusterer) Name() string                   { return "fallback" }
func (fallbackClusterer) Available(context.Context) bool { return true }

func (fallbackClusterer) Cluster(_ context.Context, records []event.FileRecord, _ map[string][]int64) ([]event.Cluster, error) {
	groups := make(map[string][]string)
	for _, r := range records {
		groups[fallbackLabel(r)] = append(groups[fallbackLabel(r)], r.Path)
	}
	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	clusters := make([]event.Cluster, 0, len(labels))
	for _, label := range labels {
		members := groups[label]
		sort.Strings(members)
		clusters = append(clusters, event.Cluster{
			ID:      "fallback-" + label,
			Label:   label,
			Members: members,
			Outlier: len(members) == 1,
		})
	}
	return clusters, nil
}

// fallbackLabel buckets a record by extension and order-of-magnitude size.
func fallbackLabel(r event.FileRecord) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(r.Path)), ".")
	if ext == "" {
		ext = "other"
	}
	return ext + "-" + sizeBucket(r.Size)
}

func sizeBucket(size int64) string {
	switch {
	case size < 1<<20:
		return "small"
	case size < 100<<20:
		return "medium"
	default:
		return "large"
	}
}
