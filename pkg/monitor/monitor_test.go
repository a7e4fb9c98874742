package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/internal/lock"
	"igmonitor/pkg/collector"
	"igmonitor/pkg/collector/collectortest"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/monitor"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/storage/filestore"
)

type recordingNotifier struct {
	mu       sync.Mutex
	changes  []string
	failures []error
}

func (n *recordingNotifier) Changes(subject, summary string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, subject+": "+summary)
}

func (n *recordingNotifier) Failure(subject string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
}

type env struct {
	src      *collectortest.Source
	prompter *collectortest.Prompter
	backend  *filestore.Backend
	notifier *recordingNotifier
	mon      *monitor.Monitor
}

func newEnv(t *testing.T, retention int) *env {
	t.Helper()
	dir := t.TempDir()
	nop := logger.NewNopLogger()

	backend, err := filestore.New(dir, nop)
	require.NoError(t, err)
	locks, err := lock.New(dir, nop)
	require.NoError(t, err)

	e := &env{
		src:      collectortest.NewSource(),
		prompter: collectortest.NewPrompter(),
		backend:  backend,
		notifier: &recordingNotifier{},
	}

	clock := ratelimit.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	col, err := collector.New(collector.Deps{
		Source:      e.src,
		Governor:    ratelimit.NewGovernor(ratelimit.DefaultOptions(), clock, nop),
		Checkpoints: backend.Checkpoints(),
		Snapshots:   backend.Snapshots(),
		Prompter:    e.prompter,
		Locker:      locks,
		Logger:      nop,
	}, collector.Options{})
	require.NoError(t, err)

	e.mon, err = monitor.New(monitor.Deps{
		Backend:   backend,
		Collector: col,
		Notifier:  e.notifier,
		Logger:    nop,
	}, retention)
	require.NoError(t, err)
	return e
}

func (e *env) snapshotCount(t *testing.T, subject string, kind models.Kind) int {
	t.Helper()
	list, err := e.backend.Snapshots().List(context.Background(), subject, kind, 0)
	require.NoError(t, err)
	return len(list)
}

func TestFirstCollection(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	e.src.Set("alice", models.KindFollowers, "bob", "carol").
		Set("alice", models.KindFollowees, "dave")

	out, err := e.mon.Run(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, models.StatusComplete, out.Status)
	assert.Equal(t, 2, out.Collected(models.KindFollowers))
	assert.Equal(t, 1, out.Collected(models.KindFollowees))
	require.NotNil(t, out.Report)
	assert.True(t, out.Report.FirstCollection)
	assert.False(t, out.Report.HasChanges())

	assert.Equal(t, 1, e.snapshotCount(t, "alice", models.KindFollowers))
	assert.Equal(t, 1, e.snapshotCount(t, "alice", models.KindFollowees))
	assert.Empty(t, e.notifier.changes)

	latest, err := e.mon.GetLatestDiff(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.FirstCollection)
}

func TestSecondCollectionReportsChanges(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	e.src.Set("alice", models.KindFollowers, "bob", "carol").
		Set("alice", models.KindFollowees, "dave")
	_, err := e.mon.Run(ctx, "alice")
	require.NoError(t, err)

	e.src.Set("alice", models.KindFollowers, "carol", "erin")
	out, err := e.mon.Run(ctx, "alice")
	require.NoError(t, err)

	rep := out.Report
	require.NotNil(t, rep)
	assert.False(t, rep.FirstCollection)
	assert.Equal(t, []string{"erin"}, rep.Followers.Added)
	assert.Equal(t, []string{"bob"}, rep.Followers.Removed)
	assert.Equal(t, 0, rep.Followers.Net)
	assert.False(t, rep.Followees.HasChanges())
	assert.Equal(t, out.Results[models.KindFollowers].RunToken, rep.RunToken)

	latest, err := e.mon.GetLatestDiff(ctx, "@Alice")
	require.NoError(t, err)
	assert.Equal(t, rep.ID, latest.ID)

	assert.Equal(t, []string{"alice: +1 followers, -1 followers"}, e.notifier.changes)

	// recomputing from stored snapshots yields the same sections
	again, err := e.mon.Compare(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, rep.Followers, again.Followers)
	assert.Equal(t, rep.Followees, again.Followees)
}

func TestThrottledKindGetsNoSnapshot(t *testing.T) {
	e := newEnv(t, 0)
	e.src.Set("alice", models.KindFollowers, "bob", "carol").
		Set("alice", models.KindFollowees, "dave").
		FailAt("alice", models.KindFollowers, 1, errors.New("429 Too Many Requests"))

	out, err := e.mon.Run(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, models.StatusThrottled, out.Status)
	assert.Equal(t, models.StatusThrottled, out.Results[models.KindFollowers].Status)
	assert.Equal(t, models.StatusComplete, out.Results[models.KindFollowees].Status)

	require.NotNil(t, out.Report)
	assert.Nil(t, out.Report.Followers)
	require.NotNil(t, out.Report.Followees)

	assert.Zero(t, e.snapshotCount(t, "alice", models.KindFollowers))
	cp, err := e.backend.Checkpoints().LoadLatest(context.Background(), "alice", models.KindFollowers)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, []string{"bob"}, cp.Identifiers)
	assert.NotEmpty(t, e.notifier.failures)
}

func TestCancelledRunStops(t *testing.T) {
	e := newEnv(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.src.Set("alice", models.KindFollowers, "bob", "carol").
		Set("alice", models.KindFollowees, "dave")
	e.src.AfterYield = func(subject string, kind models.Kind, pos int) { cancel() }

	out, err := e.mon.Run(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, out.Status)
	assert.NotContains(t, out.Results, models.KindFollowees)
	assert.Nil(t, out.Report)

	subjects, err := e.mon.ListSubjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subjects)
}

func TestRunSurfacesAccessErrors(t *testing.T) {
	e := newEnv(t, 0)
	_, err := e.mon.Run(context.Background(), "ghost")
	assert.True(t, errs.Is(err, errs.KindAccess))
	assert.Len(t, e.notifier.failures, 1)

	_, err = e.mon.Run(context.Background(), "bad handle")
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestStartCollectionAndListSubjects(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	e.src.Set("zoe", models.KindFollowees, "a", "b").
		Set("bob", models.KindFollowers, "c")

	res, err := e.mon.StartCollection(ctx, "zoe", models.KindFollowees)
	require.NoError(t, err)
	assert.True(t, res.Complete())

	_, err = e.mon.StartCollection(ctx, "bob", models.KindFollowers)
	require.NoError(t, err)

	subjects, err := e.mon.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "zoe"}, subjects)

	rep, err := e.mon.GetLatestDiff(ctx, "zoe")
	require.NoError(t, err)
	assert.Nil(t, rep, "single collections do not write reports")
}

func TestRetention(t *testing.T) {
	e := newEnv(t, 1)
	e.src.Set("alice", models.KindFollowers, "bob").
		Set("alice", models.KindFollowees, "dave")

	for i := 0; i < 3; i++ {
		_, err := e.mon.Run(context.Background(), "alice")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.snapshotCount(t, "alice", models.KindFollowers))
	assert.Equal(t, 1, e.snapshotCount(t, "alice", models.KindFollowees))

	tree, err := e.mon.Tree(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, tree.Reports, 1)
}

func TestMutualWithRefresh(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	e.src.Set("bob", models.KindFollowers, "x", "y", "z").
		Set("carol", models.KindFollowers, "y", "z", "w")

	_, err := e.mon.Mutual(ctx, "bob", "carol", false)
	assert.True(t, errs.Is(err, errs.KindValidation), "nothing stored yet")

	res, err := e.mon.Mutual(ctx, "bob", "carol", true)
	require.NoError(t, err)
	assert.True(t, res.Refreshed)
	assert.Equal(t, []string{"y", "z"}, res.Mutual)

	_, err = e.mon.Mutual(ctx, "bob", "@BOB", false)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestConnectionsAndTree(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	e.src.Set("alice", models.KindFollowers, "carol", "erin").
		Set("alice", models.KindFollowees, "dave", "erin")

	_, err := e.mon.Run(ctx, "alice")
	require.NoError(t, err)
	_, err = e.mon.Run(ctx, "alice")
	require.NoError(t, err)

	conn, err := e.mon.Connections(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"erin"}, conn.Mutual)
	assert.Equal(t, []string{"dave"}, conn.NotFollowingBack)
	assert.InDelta(t, 50.0, conn.Reciprocity, 0.001)

	tree, err := e.mon.Tree(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tree.Kinds, 2)
	assert.Equal(t, models.KindFollowers, tree.Kinds[0].Kind)
	assert.Len(t, tree.Kinds[0].Snapshots, 2)
	assert.Nil(t, tree.Kinds[0].Checkpoint)
	assert.Len(t, tree.Reports, 2)
}

func TestClean(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	e.src.Set("alice", models.KindFollowers, "bob").
		Set("alice", models.KindFollowees, "dave").
		Set("zoe", models.KindFollowers, "bob").
		Set("zoe", models.KindFollowees, "dave")

	for _, s := range []string{"alice", "zoe"} {
		_, err := e.mon.Run(ctx, s)
		require.NoError(t, err)
	}

	require.NoError(t, e.mon.Clean(ctx, "alice"))
	subjects, err := e.mon.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"zoe"}, subjects)

	require.NoError(t, e.mon.Clean(ctx, ""))
	subjects, err = e.mon.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, subjects)
}

func TestCompareWithoutSnapshots(t *testing.T) {
	e := newEnv(t, 0)
	rep, err := e.mon.Compare(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, rep)
}
