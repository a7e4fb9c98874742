package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/models"
)

func TestLayoutDirectories(t *testing.T) {
	root := t.TempDir()
	l, err := NewLayout(root)
	require.NoError(t, err)

	dir, err := l.KindDir("alice", models.KindFollowers)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alice", "followers"), dir)

	dir, err = l.CheckpointDir("alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alice", "checkpoints"), dir)

	dir, err = l.ReportDir("alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alice", "reports"), dir)
}

func TestLayoutRejectsUnsafeSubjects(t *testing.T) {
	l, err := NewLayout(t.TempDir())
	require.NoError(t, err)

	for _, subject := range []string{"..", ".", ".hidden", "Alice", "a/b", ""} {
		_, err := l.SubjectDir(subject)
		assert.True(t, errs.Is(err, errs.KindValidation), "subject %q", subject)
	}

	_, err = l.KindDir("alice", models.Kind("likes"))
	assert.Error(t, err)
}

func TestLayoutSubjectsAndPurge(t *testing.T) {
	root := t.TempDir()
	l, err := NewLayout(root)
	require.NoError(t, err)

	require.NoError(t, WriteJSON(filepath.Join(root, "bob", "followers", "snapshot_1.json"), map[string]string{"a": "b"}))
	require.NoError(t, WriteJSON(filepath.Join(root, "alice", "followees", "snapshot_1.json"), map[string]string{"a": "b"}))
	// only a checkpoint, no snapshot
	require.NoError(t, WriteJSON(filepath.Join(root, "carol", "checkpoints", "followers_partial_x.json"), map[string]string{}))

	subjects, err := l.Subjects("snapshot_")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, subjects)

	require.NoError(t, l.Purge("bob"))
	subjects, err = l.Subjects("snapshot_")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, subjects)

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".locks"), 0755))
	require.NoError(t, l.Purge(""))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".locks", entries[0].Name())
}

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "record.json")

	require.NoError(t, WriteJSON(path, map[string]int{"total": 1}))
	require.NoError(t, WriteJSON(path, map[string]int{"total": 2}))

	var got map[string]int
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, 2, got["total"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files left behind")
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".tmp-"))
}

func TestReadJSONCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	var v map[string]interface{}
	assert.Error(t, ReadJSON(path, &v))
}

func TestListRecords(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteJSON(filepath.Join(dir, "snapshot_a.json"), 1))
	require.NoError(t, WriteJSON(filepath.Join(dir, "snapshot_b.json"), 2))
	require.NoError(t, WriteJSON(filepath.Join(dir, "report_c.json"), 3))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot_d.txt"), nil, 0644))

	records, err := ListRecords(dir, "snapshot_")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = ListRecords(filepath.Join(dir, "missing"), "snapshot_")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNewTokenIsOrdered(t *testing.T) {
	a := NewToken()
	b := NewToken()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}
