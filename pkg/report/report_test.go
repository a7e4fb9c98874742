package report

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)
	return NewStore(layout, logger.NewNopLogger())
}

func TestStoreSaveLoadPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	latest, err := store.LoadLatest(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i := 0; i < 4; i++ {
		rep := &models.DiffReport{
			Subject:   "alice",
			RunToken:  fmt.Sprintf("run-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.Save(ctx, rep))
		assert.NotEmpty(t, rep.ID)
	}

	latest, err = store.LoadLatest(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-3", latest.RunToken)

	list, err := store.List(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-2", list[1].RunToken)

	removed, err := store.Prune(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	list, err = store.List(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	other, err := store.LoadLatest(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestStoreRejectsInvalidSubject(t *testing.T) {
	store := newTestStore(t)
	err := store.Save(context.Background(), &models.DiffReport{Subject: "../x"})
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), nil))
}

func TestRenderChanges(t *testing.T) {
	prev := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := prev.Add(51 * time.Hour)

	added := make([]string, 12)
	for i := range added {
		added[i] = fmt.Sprintf("user%02d", i)
	}
	rep := &models.DiffReport{
		Subject:    "alice",
		CreatedAt:  cur,
		PreviousAt: &prev,
		CurrentAt:  &cur,
		Followers: &models.KindChanges{
			Added:         added,
			Removed:       []string{"bob"},
			PreviousCount: 10,
			CurrentCount:  21,
			Net:           11,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep, Options{}))
	out := buf.String()

	assert.Contains(t, out, "Report for @alice")
	assert.Contains(t, out, "Time since previous snapshot: 2 days, 3 hours")
	assert.Contains(t, out, "Followers: 10 -> 21 (+11)")
	assert.Contains(t, out, "New (12):")
	assert.Contains(t, out, "+ @user09")
	assert.NotContains(t, out, "@user10")
	assert.Contains(t, out, "... and 2 more")
	assert.Contains(t, out, "- @bob")
	assert.Contains(t, out, "Followees: not collected in this run")
}

func TestRenderFirstCollection(t *testing.T) {
	rep := &models.DiffReport{
		Subject:         "alice",
		FirstCollection: true,
		Followers:       &models.KindChanges{CurrentCount: 3, Baseline: true},
		Followees:       &models.KindChanges{CurrentCount: 2, Baseline: true},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep, Options{MaxNames: 5}))
	out := buf.String()
	assert.Contains(t, out, "First collection")
	assert.Contains(t, out, "Followers: 3 (baseline)")
	assert.Contains(t, out, "Followees: 2 (baseline)")
}

func TestRenderNoChanges(t *testing.T) {
	rep := &models.DiffReport{
		Subject:   "alice",
		Followees: &models.KindChanges{PreviousCount: 4, CurrentCount: 4},
	}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep, Options{}))
	assert.Contains(t, buf.String(), "Followees: 4 -> 4 (+0)")
	assert.Contains(t, buf.String(), "no changes")

	buf.Reset()
	require.NoError(t, Render(&buf, nil, Options{}))
	assert.Equal(t, "No report available\n", buf.String())
}

func TestRenderColored(t *testing.T) {
	rep := &models.DiffReport{
		Subject:   "alice",
		Followers: &models.KindChanges{Added: []string{"dave"}, Removed: []string{"bob"}, PreviousCount: 1, CurrentCount: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep, Options{Color: true}))
	out := buf.String()
	assert.Contains(t, out, "Report for @alice")
	assert.Contains(t, out, "@dave")
	assert.Contains(t, out, "@bob")

	p := newPalette(true)
	assert.Contains(t, p.title("heading"), "heading")
	assert.Contains(t, p.dim("footnote"), "footnote")
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{51 * time.Hour, "2 days, 3 hours"},
		{25 * time.Hour, "1 day, 1 hour"},
		{4*time.Hour + 5*time.Minute, "4 hours, 5 minutes"},
		{7 * time.Minute, "7 minutes"},
		{30 * time.Second, "0 minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatElapsed(tt.d))
		})
	}
}

func TestTruncate(t *testing.T) {
	shown, rest := Truncate([]string{"a", "b", "c"}, 2)
	assert.Equal(t, []string{"a", "b"}, shown)
	assert.Equal(t, 1, rest)

	shown, rest = Truncate([]string{"a"}, 10)
	assert.Equal(t, []string{"a"}, shown)
	assert.Zero(t, rest)
}
