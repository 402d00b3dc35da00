package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/fault"
	"github.com/rosiefs/rosie/internal/invalidate"
	"github.com/rosiefs/rosie/internal/plan"
	"github.com/rosiefs/rosie/internal/projection"
	"github.com/rosiefs/rosie/internal/resolver"
	"github.com/rosiefs/rosie/internal/shaper"
	"github.com/rosiefs/rosie/internal/store"
)

// Capabilities bundles the external collaborators a session consumes.
// Clusterers is an ordered preference list probed once per session.
type Capabilities struct {
	Scanner    Scanner
	Rules      RuleMatcher
	Embedder   Embedder
	Clusterers []Clusterer
	Probes     resolver.Probes
}

// Session is one organizing run over an event log. Everything it knows is
// folded from the log, so a session opened on an existing log resumes
// exactly where the previous process stopped.
type Session struct {
	store   *store.Store
	caps    Capabilities
	shaping plan.Shaping
	logger  *slog.Logger

	index  *projection.FileIndex
	embeds *projection.EmbedCache
	view   *projection.PlanView
	ckLog  *projection.CheckpointLog

	clusterer     Clusterer
	clustererOnce sync.Once

	// current is the latest resolved plan, used to scope corrections and
	// to address item-targeted corrections by id.
	current *plan.Plan
	lastSeq int64

	// corrected caches each candidate's post-correction form, keyed by the
	// candidate it was derived from, so a scoped recompute re-derives only
	// the affected partition.
	corrected map[string]correctedEntry

	// pending accumulates the invalidation scope of events folded since
	// the last recompute, consumed by RunOnce.
	pending invalidate.Scope
}

// correctedEntry is one candidate's derivation under the current correction
// set. dropped marks candidates an exclude correction removed.
type correctedEntry struct {
	item    plan.Item
	dropped bool
}

// candidateKey identifies a candidate before resolution, when it has no id.
func candidateKey(it plan.Item) string {
	return it.Source + "\x00" + string(it.Action)
}

// NewSession opens a session over s, restoring projections from their
// snapshots plus the log tail.
func NewSession(ctx context.Context, s *store.Store, caps Capabilities, shaping plan.Shaping, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sess := &Session{
		store:   s,
		caps:    caps,
		shaping: shaping,
		logger:  logger,
		index:   projection.NewFileIndex(),
		embeds:  projection.NewEmbedCache(),
		view:    projection.NewPlanView(),
		ckLog:   projection.NewCheckpointLog(),
	}
	for _, p := range sess.projections() {
		if err := projection.Resume(ctx, s, p); err != nil {
			return nil, fmt.Errorf("resume %s: %w", p.Name(), err)
		}
	}
	sess.lastSeq = sess.view.LastSeq()
	sess.rebuildCurrent()
	return sess, nil
}

func (s *Session) projections() []projection.Projection {
	return []projection.Projection{s.index, s.embeds, s.view, s.ckLog}
}

// rebuildCurrent recomputes the latest resolved plan from folded state, so
// corrections appended by an earlier process still address real item ids.
func (s *Session) rebuildCurrent() {
	if s.view.ProposedPlanID() == "" {
		return
	}
	p, err := s.compute()
	if err != nil {
		s.logger.Warn("could not rebuild current plan", slog.String("error", err.Error()))
		return
	}
	s.current = p
}

// View exposes the plan projection (read-only use).
func (s *Session) View() *projection.PlanView { return s.view }

// Index exposes the file index projection.
func (s *Session) Index() *projection.FileIndex { return s.index }

// CheckpointLog exposes the execution-history projection.
func (s *Session) CheckpointLog() *projection.CheckpointLog { return s.ckLog }

// CurrentPlan returns the latest resolved plan, or nil before any proposal.
func (s *Session) CurrentPlan() *plan.Plan { return s.current }

// Append records one fact and folds it into the session's projections so
// callers observe their own writes immediately.
func (s *Session) Append(ctx context.Context, p event.Payload) error {
	if _, err := s.store.Append(ctx, p); err != nil {
		return err
	}
	return s.foldNew(ctx)
}

// foldNew reads and folds events past lastSeq, accumulating each event's
// invalidation scope into the pending scope.
func (s *Session) foldNew(ctx context.Context) error {
	events, err := s.store.Read(ctx, s.lastSeq)
	if err != nil {
		return err
	}
	for _, ev := range events {
		for _, p := range s.projections() {
			if err := p.Apply(ev); err != nil {
				return fmt.Errorf("fold %s at seq %d: %w", p.Name(), ev.Seq, err)
			}
		}
		s.pending = s.pending.Merge(invalidate.ForEvent(ev, s.current))
		s.lastSeq = ev.Seq
	}
	return nil
}

// RunOnce folds any new events, determines the invalidation scope, and
// recomputes the plan. A scoped change re-derives only the affected
// candidates; a structural change recomputes everything. A changed plan id
// is announced with a PlanProposed event; an unchanged one is not
// re-proposed.
// Returns the newly proposed plan, or nil when nothing changed.
func (s *Session) RunOnce(ctx context.Context) (*plan.Plan, error) {
	if err := s.foldNew(ctx); err != nil {
		return nil, err
	}
	if !s.view.Ready() {
		return nil, nil
	}
	scope := s.pending
	var (
		resolved *plan.Plan
		err      error
	)
	if !scope.Full && s.current != nil && s.corrected != nil {
		resolved, err = s.computeScoped(scope)
	} else {
		resolved, err = s.compute()
	}
	if err != nil {
		return nil, err
	}
	s.pending = invalidate.EmptyScope()
	if resolved.PlanID == s.view.ProposedPlanID() {
		s.current = resolved
		return nil, nil
	}

	itemIDs := make([]string, len(resolved.Items))
	for i, it := range resolved.Items {
		itemIDs[i] = it.ID
	}
	if _, err := s.store.Append(ctx, event.PlanProposed{PlanID: resolved.PlanID, ItemIDs: itemIDs}); err != nil {
		return nil, err
	}
	if err := s.foldNew(ctx); err != nil {
		return nil, err
	}
	s.pending = invalidate.EmptyScope()
	s.current = resolved
	s.logger.Info("plan proposed",
		slog.String("plan", resolved.PlanID),
		slog.Int("items", len(resolved.Items)))
	return resolved, nil
}

// compute re-derives corrections for every candidate, rebuilds the
// derivation cache, and resolves the result. Determinism of the stages
// keeps untouched items at their previous targets and ids.
func (s *Session) compute() (*plan.Plan, error) {
	candidates := s.view.CandidateItems()
	corrections := s.view.Corrections()
	cache := make(map[string]correctedEntry, len(candidates))
	merged := make([]plan.Item, 0, len(candidates))
	for _, c := range candidates {
		entry := correctItem(c, corrections, s.current)
		cache[candidateKey(c)] = entry
		if !entry.dropped {
			merged = append(merged, entry.item)
		}
	}
	s.corrected = cache
	return s.resolve(merged)
}

// computeScoped re-derives corrections only for the candidates the scope
// touches, taking every other candidate's derivation from the cache, then
// resolves the merged set. Candidates with no cached derivation are new
// since the last compute and count as affected.
func (s *Session) computeScoped(scope invalidate.Scope) (*plan.Plan, error) {
	candidates := s.view.CandidateItems()
	corrections := s.view.Corrections()
	affected, unaffected := invalidate.Partition(candidates, scope)
	cache := make(map[string]correctedEntry, len(candidates))
	merged := make([]plan.Item, 0, len(candidates))
	for _, c := range unaffected {
		entry, ok := s.corrected[candidateKey(c)]
		if !ok {
			affected = append(affected, c)
			continue
		}
		cache[candidateKey(c)] = entry
		if !entry.dropped {
			merged = append(merged, entry.item)
		}
	}
	for _, c := range affected {
		entry := correctItem(c, corrections, s.current)
		cache[candidateKey(c)] = entry
		if !entry.dropped {
			merged = append(merged, entry.item)
		}
	}
	s.corrected = cache
	s.logger.Debug("scoped recompute",
		slog.Int("affected", len(affected)),
		slog.Int("unaffected", len(candidates)-len(affected)))
	return s.resolve(merged)
}

// correctItem applies the correction chain to a single candidate. Every
// correction rewrites or drops candidates one at a time, so per-candidate
// application is equivalent to applying the chain over the whole set.
func correctItem(c plan.Item, corrections []event.Correction, ref *plan.Plan) correctedEntry {
	out := applyCorrections([]plan.Item{c}, corrections, ref)
	if len(out) == 0 {
		return correctedEntry{dropped: true}
	}
	return correctedEntry{item: out[0]}
}

// resolve shapes and conflict-resolves a corrected candidate set. Shaping
// and resolution always see the merged set, so fan-out caps and collision
// suffixes stay consistent with a from-scratch replay.
func (s *Session) resolve(corrected []plan.Item) (*plan.Plan, error) {
	shaped := shaper.Shape(corrected, s.view.Root(), s.shaping)
	return resolver.Resolve(shaped, s.caps.Probes, s.shaping)
}

// Refresh runs the capability fan-out for root: scan, then rules and
// embeddings in parallel, then clustering, appending events for each stage.
// Clustering degradation is reported but never fails the refresh.
func (s *Session) Refresh(ctx context.Context, root string, fullRescan bool) error {
	records, err := s.Scan(ctx, root, fullRescan)
	if err != nil {
		return err
	}

	var (
		wg       sync.WaitGroup
		matches  []event.RuleMatched
		entries  []event.EmbeddingEntry
		ruleErr  error
		embedErr error
	)
	if s.caps.Rules != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			matches, ruleErr = s.caps.Rules.Match(ctx, records)
		}()
	}
	if s.caps.Embedder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries, embedErr = s.embedMissing(ctx, records)
		}()
	}
	wg.Wait()
	if ruleErr != nil {
		return fault.Wrap(fault.CodeRule, "rule matching", ruleErr)
	}
	if embedErr != nil {
		return fmt.Errorf("embedding: %w", embedErr)
	}

	for _, m := range matches {
		if err := s.Append(ctx, m); err != nil {
			return err
		}
	}
	if len(entries) > 0 {
		if err := s.Append(ctx, event.EmbeddingsComputed{Entries: entries}); err != nil {
			return err
		}
	}
	return s.ClusterNow(ctx)
}

// Scan invokes the scanner capability and records the result.
func (s *Session) Scan(ctx context.Context, root string, fullRescan bool) ([]event.FileRecord, error) {
	if s.caps.Scanner == nil {
		return nil, fault.New(fault.CodeScan, "no scanner capability configured")
	}
	records, err := s.caps.Scanner.Scan(ctx, root)
	if err != nil {
		return nil, fault.Wrap(fault.CodeScan, "scan "+root, err)
	}
	ev := event.FilesScanned{Root: root, FullRescan: fullRescan, Records: records}
	if err := s.Append(ctx, ev); err != nil {
		return nil, err
	}
	s.logger.Info("scan recorded",
		slog.String("root", root),
		slog.Bool("full", fullRescan),
		slog.Int("records", len(records)))
	return records, nil
}

// embedMissing computes vectors only for fingerprints the cache lacks.
func (s *Session) embedMissing(ctx context.Context, records []event.FileRecord) ([]event.EmbeddingEntry, error) {
	missing := make([]event.FileRecord, 0, len(records))
	for _, r := range records {
		if r.Fingerprint != "" && !s.embeds.Has(r.Fingerprint) {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	return s.caps.Embedder.Embed(ctx, missing)
}

// ClusterNow runs the selected clusterer over the full index and records
// the clusters. The clusterer is probed on first use and cached for the
// session; unavailability degrades to fallback grouping with a warning.
func (s *Session) ClusterNow(ctx context.Context) error {
	s.clustererOnce.Do(func() {
		c, err := selectClusterer(ctx, s.caps.Clusterers)
		if err != nil {
			s.logger.Warn("clustering degraded", slog.String("error", err.Error()))
		}
		s.clusterer = c
	})

	vectors := make(map[string][]int64)
	records := s.index.Records()
	for _, r := range records {
		if v, ok := s.embeds.Get(r.Fingerprint); ok {
			vectors[r.Fingerprint] = v
		}
	}
	clusters, err := s.clusterer.Cluster(ctx, records, vectors)
	if err != nil {
		return fault.Wrap(fault.CodeClusteringUnavailable, "cluster", err)
	}
	if len(clusters) == 0 {
		return nil
	}
	return s.Append(ctx, event.ClustersFormed{Clusters: clusters})
}

// SaveSnapshots persists every projection snapshot for fast resume.
func (s *Session) SaveSnapshots(ctx context.Context) error {
	for _, p := range s.projections() {
		if err := projection.Checkpoint(ctx, s.store, p); err != nil {
			return fmt.Errorf("snapshot %s: %w", p.Name(), err)
		}
	}
	return nil
}
