package diff

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/models"
)

var (
	t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(26 * time.Hour)
)

func snap(kind models.Kind, at time.Time, ids ...string) *models.Snapshot {
	return &models.Snapshot{
		Subject:     "alice",
		Kind:        kind,
		Status:      models.StatusComplete,
		CompletedAt: at,
		Total:       len(ids),
		Identifiers: ids,
	}
}

func TestChangesPartition(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	universe := make([]string, 40)
	for i := range universe {
		universe[i] = fmt.Sprintf("user%d", i)
	}
	pick := func() *models.IdentifierSet {
		s := models.NewIdentifierSet()
		for _, id := range universe {
			if rng.IntN(2) == 0 {
				s.Add(id)
			}
		}
		return s
	}

	for i := 0; i < 50; i++ {
		prev, cur := pick(), pick()
		ch := Changes(prev, cur)

		added := models.NewIdentifierSet(ch.Added...)
		removed := models.NewIdentifierSet(ch.Removed...)

		assert.Equal(t, cur.Difference(prev).Sorted(), ch.Added)
		assert.Equal(t, prev.Difference(cur).Sorted(), ch.Removed)
		assert.Zero(t, added.Intersection(removed).Len())
		assert.Equal(t, cur.Len()-prev.Len(), ch.Net)
		assert.Equal(t, len(ch.Added)-len(ch.Removed), ch.Net)
	}
}

func TestComputeFirstCollection(t *testing.T) {
	rep := Compute("alice", "run-1", map[models.Kind]Pair{
		models.KindFollowers: {Current: snap(models.KindFollowers, t0, "bob", "carol")},
		models.KindFollowees: {Current: snap(models.KindFollowees, t0, "dave")},
	}, t0)

	assert.True(t, rep.FirstCollection)
	assert.False(t, rep.HasChanges())
	require.NotNil(t, rep.Followers)
	assert.True(t, rep.Followers.Baseline)
	assert.Equal(t, 2, rep.Followers.CurrentCount)
	assert.Empty(t, rep.Followers.Added)
	assert.Nil(t, rep.PreviousAt)
	require.NotNil(t, rep.CurrentAt)
	assert.Equal(t, "First collection", Summary(rep))
}

func TestComputeSecondCollection(t *testing.T) {
	rep := Compute("alice", "run-2", map[models.Kind]Pair{
		models.KindFollowers: {
			Previous: snap(models.KindFollowers, t0, "bob", "carol"),
			Current:  snap(models.KindFollowers, t1, "carol", "erin"),
		},
		models.KindFollowees: {
			Previous: snap(models.KindFollowees, t0, "dave"),
			Current:  snap(models.KindFollowees, t1, "dave"),
		},
	}, t1)

	assert.False(t, rep.FirstCollection)
	assert.Equal(t, []string{"erin"}, rep.Followers.Added)
	assert.Equal(t, []string{"bob"}, rep.Followers.Removed)
	assert.Equal(t, 0, rep.Followers.Net)
	assert.False(t, rep.Followees.HasChanges())
	assert.True(t, rep.PreviousAt.Equal(t0))
	assert.True(t, rep.CurrentAt.Equal(t1))
	assert.Equal(t, "run-2", rep.RunToken)
	assert.Equal(t, "+1 followers, -1 followers", Summary(rep))
}

func TestComputeIncompleteKindHasNoSection(t *testing.T) {
	rep := Compute("alice", "run-3", map[models.Kind]Pair{
		models.KindFollowers: {
			Previous: snap(models.KindFollowers, t0, "bob"),
			Current:  snap(models.KindFollowers, t1, "bob"),
		},
		models.KindFollowees: {Previous: snap(models.KindFollowees, t0, "dave")},
	}, t1)

	assert.NotNil(t, rep.Followers)
	assert.Nil(t, rep.Followees)
	assert.False(t, rep.FirstCollection)
	assert.Equal(t, "No changes", Summary(rep))
}

func TestComputeIsDeterministic(t *testing.T) {
	pairs := map[models.Kind]Pair{
		models.KindFollowers: {
			Previous: snap(models.KindFollowers, t0, "a", "b", "c"),
			Current:  snap(models.KindFollowers, t1, "c", "d", "b"),
		},
	}
	assert.Equal(t, Compute("alice", "x", pairs, t1), Compute("alice", "x", pairs, t1))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "No report", Summary(nil))

	rep := &models.DiffReport{
		Followers: &models.KindChanges{Added: []string{"a", "b"}},
		Followees: &models.KindChanges{Removed: []string{"c"}},
	}
	assert.Equal(t, "+2 followers, -1 followees", Summary(rep))
}

func TestAnalyze(t *testing.T) {
	followers := models.NewIdentifierSet("bob", "carol", "dave", "erin")
	followees := models.NewIdentifierSet("carol", "erin", "zoe")

	c := Analyze("alice", followers, followees)
	assert.Equal(t, []string{"carol", "erin"}, c.Mutual)
	assert.Equal(t, []string{"zoe"}, c.NotFollowingBack)
	assert.Equal(t, []string{"bob", "dave"}, c.Fans)
	assert.InDelta(t, 50.0, c.Reciprocity, 0.001)

	empty := Analyze("alice", models.NewIdentifierSet(), followees)
	assert.Zero(t, empty.Reciprocity)
	assert.Empty(t, empty.Mutual)
}

func TestMutual(t *testing.T) {
	a := models.NewIdentifierSet("x", "y", "z")
	b := models.NewIdentifierSet("Y", "@z", "w")
	assert.Equal(t, []string{"y", "z"}, Mutual(a, b))
}
