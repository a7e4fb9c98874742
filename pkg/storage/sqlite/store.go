package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/models"
	"igmonitor/pkg/storage"
	"igmonitor/pkg/storage/sqlite/migrations"
)

// DatabaseFile is the name of the database inside the data directory
const DatabaseFile = "igmonitor.db"

// Store is a storage.Backend keeping every record in one SQLite database
type Store struct {
	db     *sql.DB
	path   string
	logger logger.Logger
	now    func() time.Time
}

var _ storage.Backend = (*Store)(nil)

// NewStore opens (or creates) the database in dataDir and applies migrations
func NewStore(dataDir string, log logger.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if log == nil {
		log = logger.GetLogger()
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// WAL lets readers proceed while a collection is checkpointing
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:     db,
		path:   dbPath,
		logger: log.WithField("backend", "sqlite"),
		now:    time.Now,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Checkpoints() storage.CheckpointStore { return &checkpointStore{store: s} }
func (s *Store) Snapshots() storage.SnapshotStore     { return &snapshotStore{store: s} }
func (s *Store) Reports() storage.ReportStore         { return &reportStore{store: s} }

// Purge deletes every row of subject, or of all subjects when subject is empty
func (s *Store) Purge(ctx context.Context, subject string) error {
	where, args := "", []interface{}{}
	if subject != "" {
		if err := checkSubject(subject); err != nil {
			return err
		}
		where, args = " WHERE subject = ?", []interface{}{subject}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("purge", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"checkpoints", "snapshots", "reports"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+where, args...); err != nil {
			return errs.Storage("purge", fmt.Errorf("deleting from %s: %w", table, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Storage("purge", err)
	}
	return nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		s.logger.DebugWithFields("migration applied", map[string]interface{}{
			"version": version,
			"file":    name,
		})
	}

	return nil
}

func checkSubject(subject string) error {
	if err := models.ValidateIdentifier(subject); err != nil {
		return errs.Validation("sqlite", err)
	}
	if strings.ToLower(subject) != subject {
		return errs.Validation("sqlite", fmt.Errorf("subject %q is not normalized", subject))
	}
	return nil
}

func checkKey(subject string, kind models.Kind) error {
	if !kind.Valid() {
		return errs.Validation("sqlite", fmt.Errorf("unknown kind %q", kind))
	}
	return checkSubject(subject)
}

func encodeSet(set *models.IdentifierSet) (string, int, error) {
	ids := set.Sorted()
	data, err := json.Marshal(ids)
	if err != nil {
		return "", 0, err
	}
	return string(data), len(ids), nil
}

func decodeIDs(data string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("decoding identifiers: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// ==================== Checkpoint Store ====================

type checkpointStore struct {
	store *Store
}

var _ storage.CheckpointStore = (*checkpointStore)(nil)

// Save replaces the checkpoint row of runToken.
func (c *checkpointStore) Save(ctx context.Context, subject string, kind models.Kind, set *models.IdentifierSet, runToken string) error {
	start := time.Now()
	defer metrics.ObserveStorage("checkpoint", "save", start)

	if err := checkKey(subject, kind); err != nil {
		return err
	}
	if runToken == "" {
		return errs.Validation("save checkpoint", errors.New("run token is required"))
	}
	ids, total, err := encodeSet(set)
	if err != nil {
		return errs.Storage("save checkpoint", err)
	}

	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO checkpoints (subject, kind, run_token, saved_at, total, identifiers)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject, kind, run_token) DO UPDATE SET
			saved_at = excluded.saved_at,
			total = excluded.total,
			identifiers = excluded.identifiers
	`, subject, string(kind), runToken, c.store.now().UnixNano(), total, ids)
	if err != nil {
		return errs.Storage("save checkpoint", err)
	}
	return nil
}

// LoadLatest returns the most recently saved checkpoint, or nil.
func (c *checkpointStore) LoadLatest(ctx context.Context, subject string, kind models.Kind) (*models.Checkpoint, error) {
	start := time.Now()
	defer metrics.ObserveStorage("checkpoint", "load", start)

	if err := checkKey(subject, kind); err != nil {
		return nil, err
	}

	row := c.store.db.QueryRowContext(ctx, `
		SELECT run_token, saved_at, total, identifiers
		FROM checkpoints WHERE subject = ? AND kind = ?
		ORDER BY saved_at DESC, rowid DESC LIMIT 1
	`, subject, string(kind))

	var (
		cp      = models.Checkpoint{Subject: subject, Kind: kind, Status: models.StatusPartial}
		savedAt int64
		ids     string
	)
	if err := row.Scan(&cp.RunToken, &savedAt, &cp.Total, &ids); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Storage("load checkpoint", err)
	}

	decoded, err := decodeIDs(ids)
	if err != nil {
		return nil, errs.Storage("load checkpoint", err)
	}
	cp.SavedAt = fromNanos(savedAt)
	cp.Identifiers = decoded
	return &cp, nil
}

// Delete removes the checkpoint of runToken.
func (c *checkpointStore) Delete(ctx context.Context, subject string, kind models.Kind, runToken string) error {
	if err := checkKey(subject, kind); err != nil {
		return err
	}
	_, err := c.store.db.ExecContext(ctx,
		"DELETE FROM checkpoints WHERE subject = ? AND kind = ? AND run_token = ?",
		subject, string(kind), runToken)
	if err != nil {
		return errs.Storage("delete checkpoint", err)
	}
	return nil
}

// ==================== Snapshot Store ====================

type snapshotStore struct {
	store *Store
}

var _ storage.SnapshotStore = (*snapshotStore)(nil)

// Save inserts a new snapshot row. Rows are never updated.
func (s *snapshotStore) Save(ctx context.Context, subject string, kind models.Kind, set *models.IdentifierSet, completedAt time.Time, runToken string) (string, error) {
	start := time.Now()
	defer metrics.ObserveStorage("snapshot", "save", start)

	if err := checkKey(subject, kind); err != nil {
		return "", err
	}
	if runToken == "" {
		runToken = storage.NewToken()
	}
	ids, total, err := encodeSet(set)
	if err != nil {
		return "", errs.Storage("save snapshot", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, subject, kind, run_token, completed_at, total, identifiers)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, storage.NewToken(), subject, string(kind), runToken, completedAt.UnixNano(), total, ids)
	if err != nil {
		return "", errs.Storage("save snapshot", err)
	}
	return runToken, nil
}

// LoadLatest returns the snapshot with the latest completion time, or nil.
func (s *snapshotStore) LoadLatest(ctx context.Context, subject string, kind models.Kind) (*models.Snapshot, error) {
	start := time.Now()
	defer metrics.ObserveStorage("snapshot", "load", start)

	list, err := s.List(ctx, subject, kind, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// List returns up to limit snapshots, newest first.
func (s *snapshotStore) List(ctx context.Context, subject string, kind models.Kind, limit int) ([]*models.Snapshot, error) {
	if err := checkKey(subject, kind); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, run_token, completed_at, total, identifiers
		FROM snapshots WHERE subject = ? AND kind = ?
		ORDER BY completed_at DESC, seq DESC LIMIT ?
	`, subject, string(kind), limit)
	if err != nil {
		return nil, errs.Storage("list snapshots", err)
	}
	defer rows.Close()

	var out []*models.Snapshot
	for rows.Next() {
		snap := &models.Snapshot{Subject: subject, Kind: kind, Status: models.StatusComplete}
		var (
			completedAt int64
			ids         string
		)
		if err := rows.Scan(&snap.ID, &snap.RunToken, &completedAt, &snap.Total, &ids); err != nil {
			return nil, errs.Storage("list snapshots", err)
		}
		if snap.Identifiers, err = decodeIDs(ids); err != nil {
			return nil, errs.Storage("list snapshots", err)
		}
		snap.CompletedAt = fromNanos(completedAt)
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("list snapshots", err)
	}
	return out, nil
}

// Prune keeps the newest keep snapshots of (subject, kind).
func (s *snapshotStore) Prune(ctx context.Context, subject string, kind models.Kind, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	if err := checkKey(subject, kind); err != nil {
		return 0, err
	}

	res, err := s.store.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE subject = ? AND kind = ? AND seq NOT IN (
			SELECT seq FROM snapshots WHERE subject = ? AND kind = ?
			ORDER BY completed_at DESC, seq DESC LIMIT ?
		)
	`, subject, string(kind), subject, string(kind), keep)
	if err != nil {
		return 0, errs.Storage("prune snapshots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Storage("prune snapshots", err)
	}
	return int(n), nil
}

// Subjects lists every subject with at least one snapshot.
func (s *snapshotStore) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT DISTINCT subject FROM snapshots ORDER BY subject")
	if err != nil {
		return nil, errs.Storage("list subjects", err)
	}
	defer rows.Close()

	subjects := []string{}
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, errs.Storage("list subjects", err)
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("list subjects", err)
	}
	return subjects, nil
}

// ==================== Report Store ====================

type reportStore struct {
	store *Store
}

var _ storage.ReportStore = (*reportStore)(nil)

// Save inserts rep, filling in its id and creation time when unset.
func (r *reportStore) Save(ctx context.Context, rep *models.DiffReport) error {
	start := time.Now()
	defer metrics.ObserveStorage("report", "save", start)

	if rep == nil {
		return errs.Validation("save report", errors.New("report is nil"))
	}
	if err := checkSubject(rep.Subject); err != nil {
		return err
	}
	if rep.ID == "" {
		rep.ID = storage.NewToken()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = r.store.now().UTC()
	}

	body, err := json.Marshal(rep)
	if err != nil {
		return errs.Storage("save report", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO reports (id, subject, run_token, created_at, body)
		VALUES (?, ?, ?, ?, ?)
	`, rep.ID, rep.Subject, rep.RunToken, rep.CreatedAt.UnixNano(), string(body))
	if err != nil {
		return errs.Storage("save report", err)
	}
	return nil
}

// LoadLatest returns the newest report of subject, or nil.
func (r *reportStore) LoadLatest(ctx context.Context, subject string) (*models.DiffReport, error) {
	list, err := r.List(ctx, subject, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// List returns up to limit reports, newest first.
func (r *reportStore) List(ctx context.Context, subject string, limit int) ([]*models.DiffReport, error) {
	if err := checkSubject(subject); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT body FROM reports WHERE subject = ?
		ORDER BY created_at DESC, seq DESC LIMIT ?
	`, subject, limit)
	if err != nil {
		return nil, errs.Storage("list reports", err)
	}
	defer rows.Close()

	var out []*models.DiffReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errs.Storage("list reports", err)
		}
		var rep models.DiffReport
		if err := json.Unmarshal([]byte(body), &rep); err != nil {
			return nil, errs.Storage("list reports", fmt.Errorf("decoding report: %w", err))
		}
		out = append(out, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("list reports", err)
	}
	return out, nil
}

// Prune keeps the newest keep reports of subject.
func (r *reportStore) Prune(ctx context.Context, subject string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	if err := checkSubject(subject); err != nil {
		return 0, err
	}
	res, err := r.store.db.ExecContext(ctx, `
		DELETE FROM reports
		WHERE subject = ? AND seq NOT IN (
			SELECT seq FROM reports WHERE subject = ?
			ORDER BY created_at DESC, seq DESC LIMIT ?
		)
	`, subject, subject, keep)
	if err != nil {
		return 0, errs.Storage("prune reports", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Storage("prune reports", err)
	}
	return int(n), nil
}
