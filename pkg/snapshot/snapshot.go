package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/models"
	"igmonitor/pkg/storage"
)

const filePrefix = "snapshot_"

// Repository stores completed collections as immutable JSON files under
// <data_dir>/<subject>/<kind>/.
type Repository struct {
	layout *storage.Layout
	logger logger.Logger
}

var _ storage.SnapshotStore = (*Repository)(nil)

// NewRepository creates a snapshot repository rooted at layout
func NewRepository(layout *storage.Layout, log logger.Logger) *Repository {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Repository{layout: layout, logger: log}
}

type entry struct {
	snap    *models.Snapshot
	path    string
	modTime time.Time
}

// newer orders by completion time, then file modification time, then record id
func newer(a, b entry) bool {
	if !a.snap.CompletedAt.Equal(b.snap.CompletedAt) {
		return a.snap.CompletedAt.After(b.snap.CompletedAt)
	}
	if !a.modTime.Equal(b.modTime) {
		return a.modTime.After(b.modTime)
	}
	return a.snap.ID > b.snap.ID
}

// Save writes a new snapshot record. It never overwrites an existing one.
func (r *Repository) Save(ctx context.Context, subject string, kind models.Kind, set *models.IdentifierSet, completedAt time.Time, runToken string) (string, error) {
	start := time.Now()
	defer metrics.ObserveStorage("snapshot", "save", start)

	dir, err := r.layout.KindDir(subject, kind)
	if err != nil {
		return "", err
	}
	if runToken == "" {
		runToken = storage.NewToken()
	}

	ids := set.Sorted()
	snap := &models.Snapshot{
		ID:          storage.NewToken(),
		Subject:     subject,
		Kind:        kind,
		Status:      models.StatusComplete,
		RunToken:    runToken,
		CompletedAt: completedAt.UTC(),
		Total:       len(ids),
		Identifiers: ids,
	}

	name := fmt.Sprintf("%s%s_%s.json", filePrefix, snap.CompletedAt.Format(storage.StampFormat), snap.ID)
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return "", errs.Storage("save snapshot", fmt.Errorf("record %s already exists", name))
	}

	if err := storage.WriteJSON(path, snap); err != nil {
		return "", errs.Storage("save snapshot", err)
	}

	r.logger.InfoWithFields("snapshot saved", map[string]interface{}{
		"subject":   subject,
		"kind":      string(kind),
		"run_token": runToken,
		"total":     snap.Total,
	})
	return runToken, nil
}

func (r *Repository) load(subject string, kind models.Kind) ([]entry, error) {
	dir, err := r.layout.KindDir(subject, kind)
	if err != nil {
		return nil, err
	}

	files, err := storage.ListRecords(dir, filePrefix)
	if err != nil {
		return nil, errs.Storage("list snapshots", err)
	}

	entries := make([]entry, 0, len(files))
	for _, f := range files {
		var snap models.Snapshot
		if err := storage.ReadJSON(f.Path, &snap); err != nil {
			r.logger.WarnWithFields("skipping unreadable snapshot", map[string]interface{}{
				"path":  f.Path,
				"error": err.Error(),
			})
			continue
		}
		if snap.Subject != subject || snap.Kind != kind || snap.Status != models.StatusComplete {
			continue
		}
		entries = append(entries, entry{snap: &snap, path: f.Path, modTime: f.ModTime})
	}

	sort.SliceStable(entries, func(i, j int) bool { return newer(entries[i], entries[j]) })
	return entries, nil
}

// LoadLatest returns the snapshot with the latest completion time, or nil
func (r *Repository) LoadLatest(ctx context.Context, subject string, kind models.Kind) (*models.Snapshot, error) {
	start := time.Now()
	defer metrics.ObserveStorage("snapshot", "load", start)

	entries, err := r.load(subject, kind)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0].snap, nil
}

// List returns up to limit snapshots, newest first
func (r *Repository) List(ctx context.Context, subject string, kind models.Kind, limit int) ([]*models.Snapshot, error) {
	entries, err := r.load(subject, kind)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]*models.Snapshot, len(entries))
	for i, e := range entries {
		out[i] = e.snap
	}
	return out, nil
}

// Prune deletes all but the newest keep snapshots. keep <= 0 disables pruning.
func (r *Repository) Prune(ctx context.Context, subject string, kind models.Kind, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := r.load(subject, kind)
	if err != nil {
		return 0, err
	}
	if len(entries) <= keep {
		return 0, nil
	}

	removed := 0
	for _, e := range entries[keep:] {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return removed, errs.Storage("prune snapshots", err)
		}
		removed++
	}

	r.logger.DebugWithFields("old snapshots pruned", map[string]interface{}{
		"subject": subject,
		"kind":    string(kind),
		"removed": removed,
	})
	return removed, nil
}

// Subjects lists every subject with at least one stored snapshot
func (r *Repository) Subjects(ctx context.Context) ([]string, error) {
	return r.layout.Subjects(filePrefix)
}
