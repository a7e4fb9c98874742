// Package snapshot is the file-backed snapshot repository.
//
// Every completed collection becomes a new immutable JSON record under
// <data_dir>/<subject>/<kind>/. Records are never overwritten; the latest one
// is chosen by the completion time stored inside it, with the file
// modification time breaking ties.
package snapshot
