package pipeline

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/plan"
	"github.com/rosiefs/rosie/internal/store"
)

type fakeScanner struct {
	records []event.FileRecord
}

func (f *fakeScanner) Scan(context.Context, string) ([]event.FileRecord, error) {
	return f.records, nil
}

type fakeRules struct {
	matches []event.RuleMatched
}

func (f *fakeRules) Match(context.Context, []event.FileRecord) ([]event.RuleMatched, error) {
	return f.matches, nil
}

type fakeClusterer struct {
	name      string
	available bool
	clusters  []event.Cluster
}

func (f *fakeClusterer) Name() string                   { return f.name }
func (f *fakeClusterer) Available(context.Context) bool { return f.available }

func (f *fakeClusterer) Cluster(context.Context, []event.FileRecord, map[string][]int64) ([]event.Cluster, error) {
	return f.clusters, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(path string, size int64, fp string) event.FileRecord {
	return event.FileRecord{Path: path, Size: size, ModTime: time.Unix(1, 0).UTC(), Fingerprint: fp}
}

func testCaps() Capabilities {
	return Capabilities{
		Scanner: &fakeScanner{records: []event.FileRecord{
			record("/w/a.txt", 10, "fa"),
			record("/w/b.txt", 20, "fb"),
			record("/w/img.png", 30, "fi"),
		}},
		Rules: &fakeRules{matches: []event.RuleMatched{
			{Path: "/w/a.txt", RuleID: "r1", Action: "move", Target: "/w/docs/a.txt", Reason: "rule:r1", Confidence: 8500},
			{Path: "/w/b.txt", RuleID: "r1", Action: "move", Target: "/w/docs/b.txt", Reason: "rule:r1", Confidence: 8500},
			{Path: "/w/img.png", RuleID: "r2", Action: "move", Target: "/w/pics/img.png", Reason: "rule:r2", Confidence: 9000},
		}},
		Clusterers: []Clusterer{&fakeClusterer{name: "off", available: false}},
	}
}

func newTestSession(t *testing.T, s *store.Store, caps Capabilities) *Session {
	t.Helper()
	sess, err := NewSession(context.Background(), s, caps, plan.Shaping{MaxDepth: 4, MaxChildren: 50}, quietLogger())
	require.NoError(t, err)
	return sess
}

func TestRefreshAndRunOnceProposesPlan(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := newTestSession(t, s, testCaps())

	require.NoError(t, sess.Refresh(ctx, "/w", true))
	p, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotEmpty(t, p.PlanID)
	assert.Equal(t, p.PlanID, sess.View().ProposedPlanID())

	// Nothing changed, so a second pass proposes nothing.
	again, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestSessionRebuildsFromLogAcrossRestart(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := newTestSession(t, s, testCaps())
	require.NoError(t, sess.Refresh(ctx, "/w", true))
	first, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	// A fresh session over the same log sees the same plan.
	sess2 := newTestSession(t, s, testCaps())
	require.NotNil(t, sess2.CurrentPlan())
	assert.Equal(t, first.PlanID, sess2.CurrentPlan().PlanID)
	none, err := sess2.RunOnce(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestScopedCorrectionKeepsUnrelatedItemIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := newTestSession(t, s, testCaps())
	require.NoError(t, sess.Refresh(ctx, "/w", true))
	first, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	var docsID, picsID string
	for _, it := range first.Items {
		switch it.Source {
		case "/w/a.txt":
			docsID = it.ID
		case "/w/img.png":
			picsID = it.ID
		}
	}
	require.NotEmpty(t, docsID)
	require.NotEmpty(t, picsID)

	require.NoError(t, sess.Append(ctx, event.CorrectionAdded{
		PlanID:     first.PlanID,
		Correction: event.Correction{Type: event.CorrectionReject, ItemID: docsID},
	}))
	second, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.PlanID, second.PlanID)

	// The rejected item became a no_op; the pics item is untouched.
	var foundPics bool
	for _, it := range second.Items {
		if it.Source == "/w/img.png" {
			foundPics = true
			assert.Equal(t, picsID, it.ID)
			assert.Equal(t, "/w/pics/img.png", it.Target)
		}
		if it.Source == "/w/a.txt" {
			assert.Equal(t, plan.ActionNoOp, it.Action)
		}
	}
	assert.True(t, foundPics)
}

func TestScopedCorrectionRecomputesOnlyAffectedCandidates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := newTestSession(t, s, testCaps())
	require.NoError(t, sess.Refresh(ctx, "/w", true))
	first, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	var docsID string
	for _, it := range first.Items {
		if it.Source == "/w/a.txt" {
			docsID = it.ID
		}
	}
	require.NotEmpty(t, docsID)

	// Mark the pics candidate's cached derivation. A correction scoped to
	// the docs item must not re-derive it, so the mark survives into the
	// next plan; re-deriving would restore the rule target.
	key := candidateKey(plan.Item{Source: "/w/img.png", Action: plan.ActionMove})
	entry, ok := sess.corrected[key]
	require.True(t, ok)
	entry.item.Target = "/w/kept/img.png"
	sess.corrected[key] = entry

	require.NoError(t, sess.Append(ctx, event.CorrectionAdded{
		PlanID:     first.PlanID,
		Correction: event.Correction{Type: event.CorrectionReject, ItemID: docsID},
	}))
	second, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)

	var picsTarget string
	for _, it := range second.Items {
		if it.Source == "/w/img.png" {
			picsTarget = it.Target
		}
	}
	assert.Equal(t, "/w/kept/img.png", picsTarget)
}

func TestStructuralRescanDiscardsDerivationCache(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := newTestSession(t, s, testCaps())
	require.NoError(t, sess.Refresh(ctx, "/w", true))
	first, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	key := candidateKey(plan.Item{Source: "/w/img.png", Action: plan.ActionMove})
	entry, ok := sess.corrected[key]
	require.True(t, ok)
	entry.item.Target = "/w/stale/img.png"
	sess.corrected[key] = entry

	// A structural rescan recomputes every candidate from scratch.
	require.NoError(t, sess.Refresh(ctx, "/w", true))
	_, err = sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentPlan())

	var picsTarget string
	for _, it := range sess.CurrentPlan().Items {
		if it.Source == "/w/img.png" {
			picsTarget = it.Target
		}
	}
	assert.Equal(t, "/w/pics/img.png", picsTarget)
}

func TestStructuralRescanRecomputesEverything(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	caps := testCaps()
	sess := newTestSession(t, s, caps)
	require.NoError(t, sess.Refresh(ctx, "/w", true))
	first, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Structural rescan with a different tree drops the old candidates.
	caps.Scanner.(*fakeScanner).records = []event.FileRecord{record("/w/new.txt", 5, "fn")}
	caps.Rules.(*fakeRules).matches = []event.RuleMatched{
		{Path: "/w/new.txt", RuleID: "r1", Action: "move", Target: "/w/docs/new.txt", Reason: "rule:r1", Confidence: 8500},
	}
	require.NoError(t, sess.Refresh(ctx, "/w", true))
	second, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)

	for _, it := range second.Items {
		assert.NotEqual(t, "/w/a.txt", it.Source, "pre-rescan candidate survived a structural rescan")
	}
}

func TestExcludeCorrectionDropsMatches(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := newTestSession(t, s, testCaps())
	require.NoError(t, sess.Refresh(ctx, "/w", true))
	first, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, sess.Append(ctx, event.CorrectionAdded{
		PlanID:     first.PlanID,
		Correction: event.Correction{Type: event.CorrectionExclude, PathPattern: "/w/*.png"},
	}))
	second, err := sess.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	for _, it := range second.Items {
		assert.NotEqual(t, "/w/img.png", it.Source)
	}
}

func TestLaterCorrectionWins(t *testing.T) {
	ref := &plan.Plan{Items: []plan.Item{
		{Action: plan.ActionMove, Source: "/w/a.txt", Target: "/w/docs/a.txt", Confidence: 8000},
	}}
	require.NoError(t, ref.Seal())
	id := ref.Items[0].ID

	candidates := []plan.Item{
		{Action: plan.ActionMove, Source: "/w/a.txt", Target: "/w/docs/a.txt", Confidence: 8000},
	}
	out := applyCorrections(candidates, []event.Correction{
		{Type: event.CorrectionRelabel, ItemID: id, Label: "notes"},
		{Type: event.CorrectionReject, ItemID: id},
	}, ref)
	require.Len(t, out, 1)
	assert.Equal(t, plan.ActionNoOp, out[0].Action)
}

func TestRelabelCorrectionRedirectsTarget(t *testing.T) {
	ref := &plan.Plan{Items: []plan.Item{
		{Action: plan.ActionMove, Source: "/w/a.txt", Target: "/w/docs/a.txt", Confidence: 8000},
	}}
	require.NoError(t, ref.Seal())

	out := applyCorrections(
		[]plan.Item{{Action: plan.ActionMove, Source: "/w/a.txt", Target: "/w/docs/a.txt", Confidence: 8000}},
		[]event.Correction{{Type: event.CorrectionRelabel, ItemID: ref.Items[0].ID, Label: "notes"}},
		ref,
	)
	require.Len(t, out, 1)
	assert.Equal(t, "/w/notes/a.txt", out[0].Target)
}

func TestClustererFallbackWhenNoneAvailable(t *testing.T) {
	ctx := context.Background()
	c, err := selectClusterer(ctx, []Clusterer{
		&fakeClusterer{name: "remote", available: false},
	})
	require.Error(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "fallback", c.Name())

	clusters, err := c.Cluster(ctx, []event.FileRecord{
		record("/w/a.txt", 10, "fa"),
		record("/w/b.txt", 20, "fb"),
		record("/w/big.iso", 200<<20, "fc"),
	}, nil)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "iso-large", clusters[0].Label)
	assert.True(t, clusters[0].Outlier)
	assert.Equal(t, "txt-small", clusters[1].Label)
	assert.Equal(t, []string{"/w/a.txt", "/w/b.txt"}, clusters[1].Members)
}

func TestClustererPreferenceOrder(t *testing.T) {
	ctx := context.Background()
	c, err := selectClusterer(ctx, []Clusterer{
		&fakeClusterer{name: "first", available: false},
		&fakeClusterer{name: "second", available: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "second", c.Name())
}
