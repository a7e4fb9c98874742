package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/models"
	"igmonitor/pkg/storage"
)

const partialMarker = "_partial_"

// Store keeps one JSON checkpoint file per (subject, kind, run token) under
// the subject's checkpoints directory.
type Store struct {
	layout *storage.Layout
	logger logger.Logger
	now    func() time.Time
}

var _ storage.CheckpointStore = (*Store)(nil)

// NewStore creates a checkpoint store rooted at layout
func NewStore(layout *storage.Layout, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		layout: layout,
		logger: log,
		now:    time.Now,
	}
}

func (s *Store) path(subject string, kind models.Kind, runToken string) (string, error) {
	if !kind.Valid() {
		return "", errs.Validation("checkpoint", fmt.Errorf("unknown kind %q", kind))
	}
	if runToken == "" || strings.ContainsAny(runToken, `/\`) {
		return "", errs.Validation("checkpoint", fmt.Errorf("invalid run token %q", runToken))
	}
	dir, err := s.layout.CheckpointDir(subject)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, string(kind)+partialMarker+runToken+".json"), nil
}

// Save overwrites the checkpoint of runToken with the full accumulated set
func (s *Store) Save(ctx context.Context, subject string, kind models.Kind, set *models.IdentifierSet, runToken string) error {
	start := time.Now()
	defer metrics.ObserveStorage("checkpoint", "save", start)

	path, err := s.path(subject, kind, runToken)
	if err != nil {
		return err
	}

	ids := set.Sorted()
	cp := &models.Checkpoint{
		Subject:     subject,
		Kind:        kind,
		Status:      models.StatusPartial,
		RunToken:    runToken,
		SavedAt:     s.now().UTC(),
		Total:       len(ids),
		Identifiers: ids,
	}

	if err := storage.WriteJSON(path, cp); err != nil {
		return errs.Storage("save checkpoint", err)
	}

	s.logger.DebugWithFields("checkpoint saved", map[string]interface{}{
		"subject":   subject,
		"kind":      string(kind),
		"run_token": runToken,
		"total":     cp.Total,
	})
	return nil
}

// LoadLatest returns the most recently modified checkpoint for (subject, kind)
// or nil if there is none. Unreadable files are skipped with a warning.
func (s *Store) LoadLatest(ctx context.Context, subject string, kind models.Kind) (*models.Checkpoint, error) {
	start := time.Now()
	defer metrics.ObserveStorage("checkpoint", "load", start)

	if !kind.Valid() {
		return nil, errs.Validation("checkpoint", fmt.Errorf("unknown kind %q", kind))
	}
	dir, err := s.layout.CheckpointDir(subject)
	if err != nil {
		return nil, err
	}

	files, err := storage.ListRecords(dir, string(kind)+partialMarker)
	if err != nil {
		return nil, errs.Storage("list checkpoints", err)
	}

	var (
		latest     *models.Checkpoint
		latestTime time.Time
	)
	for _, f := range files {
		var cp models.Checkpoint
		if err := storage.ReadJSON(f.Path, &cp); err != nil {
			s.logger.WarnWithFields("skipping unreadable checkpoint", map[string]interface{}{
				"path":  f.Path,
				"error": err.Error(),
			})
			continue
		}
		if cp.Subject != subject || cp.Kind != kind {
			continue
		}
		if latest == nil || f.ModTime.After(latestTime) ||
			(f.ModTime.Equal(latestTime) && cp.SavedAt.After(latest.SavedAt)) {
			c := cp
			latest = &c
			latestTime = f.ModTime
		}
	}

	if latest != nil {
		s.logger.DebugWithFields("checkpoint loaded", map[string]interface{}{
			"subject":   subject,
			"kind":      string(kind),
			"run_token": latest.RunToken,
			"total":     latest.Total,
		})
	}
	return latest, nil
}

// Delete removes the checkpoint of runToken. A missing file is not an error.
func (s *Store) Delete(ctx context.Context, subject string, kind models.Kind, runToken string) error {
	path, err := s.path(subject, kind, runToken)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Storage("delete checkpoint", err)
	}

	s.logger.DebugWithFields("checkpoint deleted", map[string]interface{}{
		"subject":   subject,
		"kind":      string(kind),
		"run_token": runToken,
	})
	return nil
}
