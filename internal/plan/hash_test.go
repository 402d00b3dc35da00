package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemID_IgnoresAnnotations(t *testing.T) {
	a, err := ItemID(ActionMove, "/data/a.txt", "/data/Archive/a.txt")
	require.NoError(t, err)
	b, err := ItemID(ActionMove, "/data/a.txt", "/data/Archive/a.txt")
	require.NoError(t, err)
	assert.Equal(t, a, b, "same resolved content must give same id")

	c, err := ItemID(ActionMove, "/data/a.txt", "/data/Archive/a-2.txt")
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different resolved target must change the id")
}

func TestComputePlanID_OrderIndependent(t *testing.T) {
	items := []Item{
		{ID: "x", Action: ActionMove, Source: "/d/b.txt", Target: "/d/Archive/b.txt", Confidence: 9000},
		{ID: "y", Action: ActionMove, Source: "/d/a.txt", Target: "/d/Archive/a.txt", Confidence: 8000},
	}
	shaping := Shaping{MaxDepth: 3, MaxChildren: 20}

	forward, err := ComputePlanID(items, shaping)
	require.NoError(t, err)

	reversed := []Item{items[1], items[0]}
	backward, err := ComputePlanID(reversed, shaping)
	require.NoError(t, err)

	assert.Equal(t, forward, backward, "plan id must not depend on iteration order")
}

func TestComputePlanID_ShapingParamsChangeID(t *testing.T) {
	items := []Item{
		{ID: "x", Action: ActionMove, Source: "/d/a.txt", Target: "/d/Archive/a.txt", Confidence: 9000},
	}
	a, err := ComputePlanID(items, Shaping{MaxDepth: 3, MaxChildren: 20})
	require.NoError(t, err)
	b, err := ComputePlanID(items, Shaping{MaxDepth: 4, MaxChildren: 20})
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "shaping parameters are part of the plan identity")
}

func TestSeal_RewritesIDsFromResolvedContent(t *testing.T) {
	p := &Plan{
		Status: StatusProposed,
		Items: []Item{
			{ID: "stale", Action: ActionMove, Source: "/d/b.txt", Target: "/d/Archive/b.txt", Confidence: 9000},
			{ID: "", Action: ActionDelete, Source: "/d/junk.tmp", Confidence: 7000},
		},
	}
	require.NoError(t, p.Seal())

	require.Len(t, p.Items, 2)
	// Sorted by source: /d/b.txt after /d/junk.tmp? No: "/d/b.txt" < "/d/junk.tmp".
	assert.Equal(t, "/d/b.txt", p.Items[0].Source)
	for _, it := range p.Items {
		want, err := ItemID(it.Action, it.Source, it.Target)
		require.NoError(t, err)
		assert.Equal(t, want, it.ID)
	}
	assert.NotEmpty(t, p.PlanID)

	// Sealing again is a fixpoint.
	before := p.PlanID
	require.NoError(t, p.Seal())
	assert.Equal(t, before, p.PlanID)
}

func TestValidate(t *testing.T) {
	p := &Plan{Items: []Item{
		{ID: "a", Action: ActionMove, Source: "/s", Target: "/t", Confidence: 5000},
	}}
	assert.NoError(t, p.Validate())

	bad := &Plan{Items: []Item{
		{ID: "a", Action: ActionMove, Source: "/s", Confidence: 5000}, // move without target
	}}
	assert.Error(t, bad.Validate())

	dup := &Plan{Items: []Item{
		{ID: "a", Action: ActionDelete, Source: "/s", Confidence: 5000},
		{ID: "a", Action: ActionDelete, Source: "/u", Confidence: 5000},
	}}
	assert.Error(t, dup.Validate())

	hot := &Plan{Items: []Item{
		{ID: "a", Action: ActionDelete, Source: "/s", Confidence: 10001},
	}}
	assert.Error(t, hot.Validate())
}
