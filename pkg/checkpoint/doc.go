// Package checkpoint is the file-backed checkpoint store.
//
// A checkpoint holds the full set accumulated so far by an unfinished
// collection run. Files live under <data_dir>/<subject>/checkpoints/ and are
// written atomically, so a crash mid-write leaves the previous checkpoint
// intact. When several checkpoints exist for the same (subject, kind), the
// most recently modified one wins.
package checkpoint
