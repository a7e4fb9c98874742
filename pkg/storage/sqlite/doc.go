// Package sqlite is a single-file storage backend built on modernc.org/sqlite.
//
// It implements the same checkpoint, snapshot and report contracts as the
// JSON file backend. Timestamps are stored as Unix nanoseconds and identifier
// sets as JSON arrays; the autoincrement sequence of each row stands in for
// the file modification time when two records share a timestamp.
package sqlite
