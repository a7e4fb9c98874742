package filestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
)

func TestBackendPurge(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	defer b.Close()

	now := time.Now()
	for _, subject := range []string{"alice", "bob"} {
		_, err := b.Snapshots().Save(ctx, subject, models.KindFollowers, models.NewIdentifierSet("x"), now, "")
		require.NoError(t, err)
		require.NoError(t, b.Checkpoints().Save(ctx, subject, models.KindFollowees, models.NewIdentifierSet("y"), "run"))
		require.NoError(t, b.Reports().Save(ctx, &models.DiffReport{Subject: subject}))
	}

	subjects, err := b.Snapshots().Subjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, subjects)

	require.NoError(t, b.Purge(ctx, "alice"))
	subjects, err = b.Snapshots().Subjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, subjects)

	cp, err := b.Checkpoints().LoadLatest(ctx, "alice", models.KindFollowees)
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, b.Purge(ctx, ""))
	subjects, err = b.Snapshots().Subjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, subjects)
}
