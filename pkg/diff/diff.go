// Package diff compares snapshots of a subject and derives change reports.
//
// Everything here is a pure function of its inputs: a report computed from
// two stored snapshots is identical to the one produced right after the
// collection that wrote the newer snapshot.
package diff

import (
	"fmt"
	"strings"
	"time"

	"igmonitor/pkg/models"
)

// Changes partitions the difference between two sets of one kind
func Changes(previous, current *models.IdentifierSet) *models.KindChanges {
	added := current.Difference(previous).Sorted()
	removed := previous.Difference(current).Sorted()
	return &models.KindChanges{
		Added:         added,
		Removed:       removed,
		PreviousCount: previous.Len(),
		CurrentCount:  current.Len(),
		Net:           current.Len() - previous.Len(),
	}
}

// Pair is the previous and current snapshot of one kind. Current is nil when
// the kind did not complete in this run; Previous is nil when nothing was
// stored before.
type Pair struct {
	Previous *models.Snapshot
	Current  *models.Snapshot
}

// Compute builds the report for subject from per-kind snapshot pairs. Kinds
// without a current snapshot get no section. The report is flagged as a
// first collection when no completed kind had a previous snapshot.
func Compute(subject, runToken string, pairs map[models.Kind]Pair, createdAt time.Time) *models.DiffReport {
	rep := &models.DiffReport{
		Subject:   subject,
		RunToken:  runToken,
		CreatedAt: createdAt.UTC(),
	}

	completed, compared := 0, 0
	for _, kind := range models.Kinds {
		pair, ok := pairs[kind]
		if !ok || pair.Current == nil {
			continue
		}
		completed++

		var section *models.KindChanges
		if pair.Previous == nil {
			section = &models.KindChanges{CurrentCount: pair.Current.Set().Len(), Baseline: true}
		} else {
			compared++
			section = Changes(pair.Previous.Set(), pair.Current.Set())
			rep.PreviousAt = later(rep.PreviousAt, pair.Previous.CompletedAt)
		}
		rep.CurrentAt = later(rep.CurrentAt, pair.Current.CompletedAt)

		switch kind {
		case models.KindFollowers:
			rep.Followers = section
		case models.KindFollowees:
			rep.Followees = section
		}
	}

	rep.FirstCollection = completed > 0 && compared == 0
	return rep
}

func later(cur *time.Time, t time.Time) *time.Time {
	t = t.UTC()
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}

// Summary renders a one-line description of rep, for example
// "+2 followers, -1 followees".
func Summary(rep *models.DiffReport) string {
	if rep == nil {
		return "No report"
	}
	if rep.FirstCollection {
		return "First collection"
	}

	var parts []string
	for _, kind := range models.Kinds {
		ch := rep.Changes(kind)
		if ch == nil || ch.Baseline {
			continue
		}
		if n := len(ch.Added); n > 0 {
			parts = append(parts, fmt.Sprintf("+%d %s", n, kind))
		}
		if n := len(ch.Removed); n > 0 {
			parts = append(parts, fmt.Sprintf("-%d %s", n, kind))
		}
	}
	if len(parts) == 0 {
		return "No changes"
	}
	return strings.Join(parts, ", ")
}
