package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/models"
)

// StampFormat is the sortable timestamp embedded in record file names. Names
// are for humans; ordering always comes from the timestamps inside records.
const StampFormat = "2006-01-02_15-04-05"

const (
	checkpointsDir = "checkpoints"
	reportsDir     = "reports"
)

// Layout maps subjects and kinds to directories under a data root:
//
//	<root>/<subject>/followers/
//	<root>/<subject>/followees/
//	<root>/<subject>/checkpoints/
//	<root>/<subject>/reports/
type Layout struct {
	root string
}

// NewLayout creates the root directory if needed
func NewLayout(root string) (*Layout, error) {
	if root == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Layout{root: root}, nil
}

// Root returns the data root
func (l *Layout) Root() string {
	return l.root
}

// SubjectDir returns the namespace directory of subject
func (l *Layout) SubjectDir(subject string) (string, error) {
	if err := checkSubject(subject); err != nil {
		return "", err
	}
	return filepath.Join(l.root, subject), nil
}

// KindDir returns the snapshot directory for (subject, kind)
func (l *Layout) KindDir(subject string, kind models.Kind) (string, error) {
	if !kind.Valid() {
		return "", errs.Validation("layout", fmt.Errorf("unknown kind %q", kind))
	}
	dir, err := l.SubjectDir(subject)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, string(kind)), nil
}

// CheckpointDir returns the checkpoint directory of subject
func (l *Layout) CheckpointDir(subject string) (string, error) {
	dir, err := l.SubjectDir(subject)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, checkpointsDir), nil
}

// ReportDir returns the report directory of subject
func (l *Layout) ReportDir(subject string) (string, error) {
	dir, err := l.SubjectDir(subject)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, reportsDir), nil
}

// Subjects lists subject directories that hold at least one file matching
// prefix under one of the kind directories.
func (l *Layout) Subjects(prefix string) ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errs.Storage("list subjects", err)
	}

	subjects := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || checkSubject(entry.Name()) != nil {
			continue
		}
		for _, kind := range models.Kinds {
			files, _ := filepath.Glob(filepath.Join(l.root, entry.Name(), string(kind), prefix+"*.json"))
			if len(files) > 0 {
				subjects = append(subjects, entry.Name())
				break
			}
		}
	}
	sort.Strings(subjects)
	return subjects, nil
}

// Purge removes one subject's namespace, or every subject namespace when subject is empty
func (l *Layout) Purge(subject string) error {
	if subject == "" {
		entries, err := os.ReadDir(l.root)
		if err != nil {
			return errs.Storage("purge", err)
		}
		for _, entry := range entries {
			// lock files and other backends share the root
			if !entry.IsDir() || checkSubject(entry.Name()) != nil {
				continue
			}
			if err := os.RemoveAll(filepath.Join(l.root, entry.Name())); err != nil {
				return errs.Storage("purge", err)
			}
		}
		return nil
	}

	dir, err := l.SubjectDir(subject)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return errs.Storage("purge", err)
	}
	return nil
}

func checkSubject(subject string) error {
	if subject == "." || subject == ".." || strings.HasPrefix(subject, ".") {
		return errs.Validation("layout", fmt.Errorf("subject %q cannot be used as a directory name", subject))
	}
	if err := models.ValidateIdentifier(subject); err != nil {
		return errs.Validation("layout", err)
	}
	if strings.ToLower(subject) != subject {
		return errs.Validation("layout", fmt.Errorf("subject %q is not normalized", subject))
	}
	return nil
}

// RecordFile is a stored JSON record and its modification time
type RecordFile struct {
	Path    string
	ModTime time.Time
}

// ListRecords returns the *.json files in dir whose names start with prefix.
// A missing directory yields an empty list.
func ListRecords(dir, prefix string) ([]RecordFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []RecordFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || filepath.Ext(name) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, RecordFile{Path: filepath.Join(dir, name), ModTime: info.ModTime()})
	}
	return out, nil
}

// WriteJSON atomically writes v as indented JSON to path: the data goes to a
// temporary file in the same directory which is synced and then renamed.
func WriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync record: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close record: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename record: %w", err)
	}

	return nil
}

// ReadJSON decodes the record at path into v
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
