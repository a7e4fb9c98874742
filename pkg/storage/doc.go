// Package storage defines the record store contracts shared by the file and
// SQLite backends, plus the on-disk layout and atomic JSON writer used by the
// file backend.
//
// Every record (checkpoint, snapshot, diff report) is a self-describing JSON
// document carrying its subject, kind, status, run token and timestamps.
// Lookups of "the latest record" read those fields and never parse file names.
package storage
