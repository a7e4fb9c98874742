package monitor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/internal/lock"
	"igmonitor/pkg/collector"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/instagram"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/monitor"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/storage/sqlite"
)

// mockInstagram serves the profile and friendships endpoints from in-memory
// account lists, paging by offset
type mockInstagram struct {
	server   *httptest.Server
	requests int32

	mu        sync.RWMutex
	users     map[string]string
	relations map[string]map[string][]string
}

func newMockInstagram(t *testing.T) *mockInstagram {
	t.Helper()
	m := &mockInstagram{
		users:     make(map[string]string),
		relations: make(map[string]map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(instagram.ProfileEndpoint, m.handleProfile)
	mux.HandleFunc(instagram.FriendshipsEndpoint, m.handleFriendships)
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockInstagram) setAccount(username, id string, followers, following []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = id
	m.relations[id] = map[string][]string{"followers": followers, "following": following}
}

func (m *mockInstagram) handleProfile(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requests, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.users[r.URL.Query().Get("username")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rel := m.relations[id]
	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"id":               id,
				"username":         r.URL.Query().Get("username"),
				"edge_followed_by": map[string]int{"count": len(rel["followers"])},
				"edge_follow":      map[string]int{"count": len(rel["following"])},
			},
		},
	})
}

// handleFriendships serves /api/v1/friendships/<id>/<relation>/
func (m *mockInstagram) handleFriendships(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requests, 1)
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, instagram.FriendshipsEndpoint), "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	m.mu.RLock()
	rel, ok := m.relations[parts[0]]
	m.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	names := rel[parts[1]]

	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if count <= 0 {
		count = len(names)
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("max_id"))
	end := offset + count
	if end > len(names) {
		end = len(names)
	}

	users := make([]map[string]interface{}, 0, end-offset)
	for i, name := range names[offset:end] {
		users = append(users, map[string]interface{}{"pk": offset + i + 1, "username": name})
	}
	body := map[string]interface{}{"status": "ok", "users": users, "next_max_id": nil}
	if end < len(names) {
		body["next_max_id"] = strconv.Itoa(end)
	}
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newLiveMonitor(t *testing.T, ig *mockInstagram) *monitor.Monitor {
	t.Helper()
	dir := t.TempDir()
	nop := logger.NewNopLogger()

	backend, err := sqlite.NewStore(dir, nop)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	locks, err := lock.New(dir, nop)
	require.NoError(t, err)

	client := instagram.NewClient(instagram.Options{
		BaseURL:       ig.server.URL,
		Timeout:       5 * time.Second,
		MaxAttempts:   2,
		PageSize:      2,
		RetryInterval: time.Millisecond,
	}, nop)

	clock := ratelimit.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	col, err := collector.New(collector.Deps{
		Source:      client,
		Governor:    ratelimit.NewGovernor(ratelimit.DefaultOptions(), clock, nop),
		Checkpoints: backend.Checkpoints(),
		Snapshots:   backend.Snapshots(),
		Prompter:    collector.AutoPrompter{},
		Locker:      locks,
		Logger:      nop,
	}, collector.Options{})
	require.NoError(t, err)

	mon, err := monitor.New(monitor.Deps{Backend: backend, Collector: col, Logger: nop}, 10)
	require.NoError(t, err)
	return mon
}

func TestEndToEndDetectsChanges(t *testing.T) {
	ig := newMockInstagram(t)
	ig.setAccount("alice", "42",
		[]string{"bob", "carol", "dave", "erin", "frank"},
		[]string{"bob", "zoe"})
	mon := newLiveMonitor(t, ig)
	ctx := context.Background()

	first, err := mon.Run(ctx, "@Alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, first.Status)
	require.NotNil(t, first.Report)
	assert.True(t, first.Report.FirstCollection)
	assert.Equal(t, 5, first.Collected(models.KindFollowers))
	assert.Equal(t, 2, first.Collected(models.KindFollowees))

	ig.setAccount("alice", "42",
		[]string{"bob", "dave", "erin", "frank", "gina", "hank"},
		[]string{"bob", "zoe"})

	second, err := mon.Run(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, second.Report)
	assert.False(t, second.Report.FirstCollection)

	followers := second.Report.Followers
	require.NotNil(t, followers)
	assert.Equal(t, []string{"gina", "hank"}, followers.Added)
	assert.Equal(t, []string{"carol"}, followers.Removed)
	assert.Equal(t, 5, followers.PreviousCount)
	assert.Equal(t, 6, followers.CurrentCount)
	assert.False(t, second.Report.Followees.HasChanges())

	latest, err := mon.GetLatestDiff(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, second.Report.ID, latest.ID)

	conn, err := mon.Connections(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, conn.Mutual)
	assert.Equal(t, []string{"zoe"}, conn.NotFollowingBack)

	subjects, err := mon.ListSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, subjects)
	assert.Greater(t, atomic.LoadInt32(&ig.requests), int32(4))
}

func TestEndToEndUnknownAccount(t *testing.T) {
	ig := newMockInstagram(t)
	mon := newLiveMonitor(t, ig)

	_, err := mon.Run(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, errs.KindAccess, errs.Classify(err))

	subjects, err := mon.ListSubjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subjects)
}
