package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/storage"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	layout, err := storage.NewLayout(root)
	require.NoError(t, err)
	return NewStore(layout, logger.NewNopLogger()), root
}

func TestCheckpointStore(t *testing.T) {
	ctx := context.Background()

	t.Run("load without checkpoint", func(t *testing.T) {
		store, _ := newTestStore(t)
		cp, err := store.LoadLatest(ctx, "alice", models.KindFollowers)
		require.NoError(t, err)
		assert.Nil(t, cp)
	})

	t.Run("save and load", func(t *testing.T) {
		store, _ := newTestStore(t)
		set := models.NewIdentifierSet("carol", "bob")

		require.NoError(t, store.Save(ctx, "alice", models.KindFollowers, set, "run-1"))

		cp, err := store.LoadLatest(ctx, "alice", models.KindFollowers)
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.Equal(t, "alice", cp.Subject)
		assert.Equal(t, models.KindFollowers, cp.Kind)
		assert.Equal(t, models.StatusPartial, cp.Status)
		assert.Equal(t, "run-1", cp.RunToken)
		assert.Equal(t, 2, cp.Total)
		assert.Equal(t, []string{"bob", "carol"}, cp.Identifiers)

		other, err := store.LoadLatest(ctx, "alice", models.KindFollowees)
		require.NoError(t, err)
		assert.Nil(t, other, "kinds are independent")
	})

	t.Run("save overwrites", func(t *testing.T) {
		store, root := newTestStore(t)
		require.NoError(t, store.Save(ctx, "alice", models.KindFollowers, models.NewIdentifierSet("bob"), "run-1"))
		require.NoError(t, store.Save(ctx, "alice", models.KindFollowers, models.NewIdentifierSet("bob", "carol"), "run-1"))

		files, err := os.ReadDir(filepath.Join(root, "alice", "checkpoints"))
		require.NoError(t, err)
		assert.Len(t, files, 1)

		cp, err := store.LoadLatest(ctx, "alice", models.KindFollowers)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "carol"}, cp.Identifiers)
	})

	t.Run("most recently modified wins", func(t *testing.T) {
		store, root := newTestStore(t)
		require.NoError(t, store.Save(ctx, "alice", models.KindFollowers, models.NewIdentifierSet("old"), "run-a"))
		require.NoError(t, store.Save(ctx, "alice", models.KindFollowers, models.NewIdentifierSet("new"), "run-b"))

		past := time.Now().Add(-time.Hour)
		require.NoError(t, os.Chtimes(filepath.Join(root, "alice", "checkpoints", "followers_partial_run-b.json"), past, past))

		cp, err := store.LoadLatest(ctx, "alice", models.KindFollowers)
		require.NoError(t, err)
		assert.Equal(t, "run-a", cp.RunToken)
	})

	t.Run("corrupt files are skipped", func(t *testing.T) {
		store, root := newTestStore(t)
		require.NoError(t, store.Save(ctx, "alice", models.KindFollowers, models.NewIdentifierSet("bob"), "run-1"))
		bad := filepath.Join(root, "alice", "checkpoints", "followers_partial_broken.json")
		require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))

		cp, err := store.LoadLatest(ctx, "alice", models.KindFollowers)
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.Equal(t, "run-1", cp.RunToken)
	})

	t.Run("delete", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Save(ctx, "alice", models.KindFollowees, models.NewIdentifierSet("dave"), "run-1"))
		require.NoError(t, store.Delete(ctx, "alice", models.KindFollowees, "run-1"))

		cp, err := store.LoadLatest(ctx, "alice", models.KindFollowees)
		require.NoError(t, err)
		assert.Nil(t, cp)

		assert.NoError(t, store.Delete(ctx, "alice", models.KindFollowees, "run-1"), "deleting twice is fine")
	})

	t.Run("validation", func(t *testing.T) {
		store, _ := newTestStore(t)
		err := store.Save(ctx, "../etc", models.KindFollowers, models.NewIdentifierSet("x"), "run-1")
		assert.True(t, errs.Is(err, errs.KindValidation))

		err = store.Save(ctx, "alice", models.KindFollowers, models.NewIdentifierSet("x"), "../escape")
		assert.True(t, errs.Is(err, errs.KindValidation))

		err = store.Save(ctx, "alice", models.Kind("likes"), models.NewIdentifierSet("x"), "run-1")
		assert.True(t, errs.Is(err, errs.KindValidation))
	})
}
