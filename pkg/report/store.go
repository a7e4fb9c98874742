package report

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

const filePrefix = "report_"

// Store keeps diff reports as JSON files under <data_dir>/<subject>/reports/
type Store struct {
	layout *storage.Layout
	logger logger.Logger
}

var _ storage.ReportStore = (*Store)(nil)

// NewStore creates a report store rooted at layout
func NewStore(layout *storage.Layout, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{layout: layout, logger: log}
}

type entry struct {
	rep     *models.DiffReport
	path    string
	modTime time.Time
}

// Save writes rep as a new record, filling in its id and creation time when unset
func (s *Store) Save(ctx context.Context, rep *models.DiffReport) error {
	start := time.Now()
	defer metrics.ObserveStorage("report", "save", start)

	if rep == nil {
		return errs.Validation("save report", fmt.Errorf("report is nil"))
	}
	dir, err := s.layout.ReportDir(rep.Subject)
	if err != nil {
		return err
	}
	if rep.ID == "" {
		rep.ID = storage.NewToken()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}

	name := fmt.Sprintf("%s%s_%s.json", filePrefix, rep.CreatedAt.UTC().Format(storage.StampFormat), rep.ID)
	if err := storage.WriteJSON(filepath.Join(dir, name), rep); err != nil {
		return errs.Storage("save report", err)
	}

	s.logger.DebugWithFields("report saved", map[string]interface{}{
		"subject":   rep.Subject,
		"run_token": rep.RunToken,
		"first":     rep.FirstCollection,
	})
	return nil
}

func (s *Store) load(subject string) ([]entry, error) {
	dir, err := s.layout.ReportDir(subject)
	if err != nil {
		return nil, err
	}
	files, err := storage.ListRecords(dir, filePrefix)
	if err != nil {
		return nil, errs.Storage("list reports", err)
	}

	entries := make([]entry, 0, len(files))
	for _, f := range files {
		var rep models.DiffReport
		if err := storage.ReadJSON(f.Path, &rep); err != nil {
			s.logger.WarnWithFields("skipping unreadable report", map[string]interface{}{
				"path":  f.Path,
				"error": err.Error(),
			})
			continue
		}
		if rep.Subject != subject {
			continue
		}
		entries = append(entries, entry{rep: &rep, path: f.Path, modTime: f.ModTime})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.rep.CreatedAt.Equal(b.rep.CreatedAt) {
			return a.rep.CreatedAt.After(b.rep.CreatedAt)
		}
		if !a.modTime.Equal(b.modTime) {
			return a.modTime.After(b.modTime)
		}
		return a.rep.ID > b.rep.ID
	})
	return entries, nil
}

// LoadLatest returns the newest report of subject, or nil
func (s *Store) LoadLatest(ctx context.Context, subject string) (*models.DiffReport, error) {
	start := time.Now()
	defer metrics.ObserveStorage("report", "load", start)

	entries, err := s.load(subject)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0].rep, nil
}

// List returns up to limit reports, newest first
func (s *Store) List(ctx context.Context, subject string, limit int) ([]*models.DiffReport, error) {
	entries, err := s.load(subject)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*models.DiffReport, len(entries))
	for i, e := range entries {
		out[i] = e.rep
	}
	return out, nil
}

// Prune deletes all but the newest keep reports
func (s *Store) Prune(ctx context.Context, subject string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := s.load(subject)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := keep; i < len(entries); i++ {
		if err := os.Remove(entries[i].path); err != nil && !os.IsNotExist(err) {
			return removed, errs.Storage("prune reports", err)
		}
		removed++
	}
	return removed, nil
}
