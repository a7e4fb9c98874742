package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"igmonitor/pkg/models"
)

// CheckpointStore persists in-progress collection sets. The collector always
// hands over the full accumulated set, so Save simply replaces what is stored.
type CheckpointStore interface {
	Save(ctx context.Context, subject string, kind models.Kind, set *models.IdentifierSet, runToken string) error
	// LoadLatest returns nil, nil when no checkpoint exists
	LoadLatest(ctx context.Context, subject string, kind models.Kind) (*models.Checkpoint, error)
	Delete(ctx context.Context, subject string, kind models.Kind, runToken string) error
}

// SnapshotStore persists completed collections as immutable records
type SnapshotStore interface {
	// Save writes a new record and returns its run token. An empty runToken
	// gets a freshly generated one.
	Save(ctx context.Context, subject string, kind models.Kind, set *models.IdentifierSet, completedAt time.Time, runToken string) (string, error)
	// LoadLatest returns nil, nil when no snapshot exists
	LoadLatest(ctx context.Context, subject string, kind models.Kind) (*models.Snapshot, error)
	// List returns up to limit snapshots, newest first. limit <= 0 means all.
	List(ctx context.Context, subject string, kind models.Kind, limit int) ([]*models.Snapshot, error)
	// Prune keeps the newest keep snapshots and reports how many were removed
	Prune(ctx context.Context, subject string, kind models.Kind, keep int) (int, error)
	// Subjects lists every subject with at least one snapshot
	Subjects(ctx context.Context) ([]string, error)
}

// ReportStore persists diff reports
type ReportStore interface {
	Save(ctx context.Context, report *models.DiffReport) error
	// LoadLatest returns nil, nil when no report exists
	LoadLatest(ctx context.Context, subject string) (*models.DiffReport, error)
	List(ctx context.Context, subject string, limit int) ([]*models.DiffReport, error)
	Prune(ctx context.Context, subject string, keep int) (int, error)
}

// Backend bundles the three stores of one storage implementation
type Backend interface {
	Checkpoints() CheckpointStore
	Snapshots() SnapshotStore
	Reports() ReportStore
	// Purge removes every record of subject, or of all subjects when subject is empty
	Purge(ctx context.Context, subject string) error
	Close() error
}

// NewToken returns a time-ordered unique id used for run tokens and record ids
func NewToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
