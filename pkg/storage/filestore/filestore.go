// Package filestore bundles the JSON file stores into a storage.Backend.
package filestore

import (
	"context"

	"igmonitor/pkg/checkpoint"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/report"
	"igmonitor/pkg/snapshot"
	"igmonitor/pkg/storage"
)

// Backend keeps every record as a JSON file under one data directory
type Backend struct {
	layout      *storage.Layout
	checkpoints *checkpoint.Store
	snapshots   *snapshot.Repository
	reports     *report.Store
}

var _ storage.Backend = (*Backend)(nil)

// New creates a file backend rooted at dataDir
func New(dataDir string, log logger.Logger) (*Backend, error) {
	layout, err := storage.NewLayout(dataDir)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("backend", "file")
	return &Backend{
		layout:      layout,
		checkpoints: checkpoint.NewStore(layout, log),
		snapshots:   snapshot.NewRepository(layout, log),
		reports:     report.NewStore(layout, log),
	}, nil
}

func (b *Backend) Checkpoints() storage.CheckpointStore { return b.checkpoints }
func (b *Backend) Snapshots() storage.SnapshotStore     { return b.snapshots }
func (b *Backend) Reports() storage.ReportStore         { return b.reports }

// Purge removes the directory of subject, or every subject when it is empty
func (b *Backend) Purge(ctx context.Context, subject string) error {
	return b.layout.Purge(subject)
}

// Close is a no-op; files are closed after each write
func (b *Backend) Close() error { return nil }

// Root returns the data directory
func (b *Backend) Root() string { return b.layout.Root() }
