package monitor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"igmonitor/pkg/diff"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/models"
)

// TreeDepth is how many snapshots per kind and reports Tree lists
const TreeDepth = 3

// MutualResult holds the followers two subjects have in common
type MutualResult struct {
	A, B   string
	Mutual []string
	// Refreshed is set when both subjects were collected first
	Refreshed bool
}

// Mutual intersects the latest followers snapshots of a and b. With refresh
// both subjects are collected first, concurrently; the shared governor still
// serializes their requests.
func (m *Monitor) Mutual(ctx context.Context, a, b string, refresh bool) (*MutualResult, error) {
	a, err := normalize("mutual", a)
	if err != nil {
		return nil, err
	}
	if b, err = normalize("mutual", b); err != nil {
		return nil, err
	}
	if a == b {
		return nil, errs.New(errs.KindValidation, "mutual", "subjects must differ", nil)
	}

	if refresh {
		if err := m.requireCollector("mutual"); err != nil {
			return nil, err
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, subject := range []string{a, b} {
			g.Go(func() error {
				res, err := m.StartCollection(gctx, subject, models.KindFollowers)
				if err != nil {
					return err
				}
				if !res.Complete() {
					m.logger.WarnWithFields("refresh incomplete, using stored snapshot", map[string]interface{}{
						"subject": subject,
						"status":  string(res.Status),
					})
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	sa, err := m.latest(ctx, a, models.KindFollowers)
	if err != nil {
		return nil, err
	}
	sb, err := m.latest(ctx, b, models.KindFollowers)
	if err != nil {
		return nil, err
	}

	return &MutualResult{
		A:         a,
		B:         b,
		Mutual:    diff.Mutual(sa.Set(), sb.Set()),
		Refreshed: refresh,
	}, nil
}

// Connections analyses the overlap of a subject's latest followers and followees
func (m *Monitor) Connections(ctx context.Context, subject string) (*diff.Connections, error) {
	subject, err := normalize("connections", subject)
	if err != nil {
		return nil, err
	}
	followers, err := m.latest(ctx, subject, models.KindFollowers)
	if err != nil {
		return nil, err
	}
	followees, err := m.latest(ctx, subject, models.KindFollowees)
	if err != nil {
		return nil, err
	}
	return diff.Analyze(subject, followers.Set(), followees.Set()), nil
}

func (m *Monitor) latest(ctx context.Context, subject string, kind models.Kind) (*models.Snapshot, error) {
	snap, err := m.backend.Snapshots().LoadLatest(ctx, subject, kind)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errs.New(errs.KindValidation, "load snapshot",
			fmt.Sprintf("no %s snapshot for %s yet", kind, subject), nil)
	}
	return snap, nil
}

// KindTree lists the stored state of one kind
type KindTree struct {
	Kind       models.Kind
	Snapshots  []*models.Snapshot
	Checkpoint *models.Checkpoint
}

// Tree summarises what is stored for a subject
type Tree struct {
	Subject string
	Kinds   []KindTree
	Reports []*models.DiffReport
}

// Tree lists the newest snapshots and live checkpoint per kind plus the
// newest reports of subject
func (m *Monitor) Tree(ctx context.Context, subject string) (*Tree, error) {
	subject, err := normalize("tree", subject)
	if err != nil {
		return nil, err
	}

	tree := &Tree{Subject: subject}
	for _, kind := range models.Kinds {
		snaps, err := m.backend.Snapshots().List(ctx, subject, kind, TreeDepth)
		if err != nil {
			return nil, err
		}
		cp, err := m.backend.Checkpoints().LoadLatest(ctx, subject, kind)
		if err != nil {
			return nil, err
		}
		tree.Kinds = append(tree.Kinds, KindTree{Kind: kind, Snapshots: snaps, Checkpoint: cp})
	}

	reports, err := m.backend.Reports().List(ctx, subject, TreeDepth)
	if err != nil {
		return nil, err
	}
	tree.Reports = reports
	return tree, nil
}
