package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"igmonitor/pkg/collector"
	"igmonitor/pkg/diff"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/storage"
)

// Notifier is told about finished runs
type Notifier interface {
	Changes(subject, summary string)
	Failure(subject string, err error)
}

// Deps are the collaborators of a Monitor
type Deps struct {
	Backend   storage.Backend
	Collector *collector.Collector
	// Notifier is optional
	Notifier Notifier
	Logger   logger.Logger
}

// Monitor sequences collections per subject and exposes the stored results
type Monitor struct {
	backend   storage.Backend
	collector *collector.Collector
	notifier  Notifier
	retention int
	logger    logger.Logger
	now       func() time.Time
}

// New creates a monitor. retention caps the snapshots kept per kind and the
// reports kept per subject; zero keeps everything.
func New(deps Deps, retention int) (*Monitor, error) {
	if deps.Backend == nil {
		return nil, errors.New("monitor: storage backend is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}
	return &Monitor{
		backend:   deps.Backend,
		collector: deps.Collector,
		notifier:  deps.Notifier,
		retention: retention,
		logger:    deps.Logger.WithField("component", "monitor"),
		now:       time.Now,
	}, nil
}

// Outcome is the result of a full run over both kinds
type Outcome struct {
	Subject string
	Results map[models.Kind]*collector.Result
	// Report is nil when no kind completed
	Report  *models.DiffReport
	Status  models.Status
	Elapsed time.Duration
}

// Collected returns how many identifiers kind holds after the run
func (o *Outcome) Collected(kind models.Kind) int {
	if o == nil {
		return 0
	}
	return o.Results[kind].Total()
}

func normalize(op, subject string) (string, error) {
	s, err := models.NormalizeIdentifier(subject)
	if err != nil {
		return "", errs.Validation(op, err)
	}
	return s, nil
}

func (m *Monitor) requireCollector(op string) error {
	if m.collector == nil {
		return errs.New(errs.KindValidation, op, "no source configured", nil)
	}
	return nil
}

// Run collects followers then followees for subject and stores a diff
// report covering every kind that completed. A cancelled followers run
// stops the whole run. Incomplete kinds keep their checkpoint and get no
// snapshot and no report section.
func (m *Monitor) Run(ctx context.Context, subject string) (*Outcome, error) {
	if err := m.requireCollector("run"); err != nil {
		return nil, err
	}
	subject, err := normalize("run", subject)
	if err != nil {
		return nil, err
	}

	start := m.now()
	out := &Outcome{Subject: subject, Results: make(map[models.Kind]*collector.Result)}

	previous := make(map[models.Kind]*models.Snapshot, len(models.Kinds))
	for _, kind := range models.Kinds {
		snap, err := m.backend.Snapshots().LoadLatest(ctx, subject, kind)
		if err != nil {
			return nil, err
		}
		previous[kind] = snap
	}

	for _, kind := range models.Kinds {
		res, err := m.collector.Collect(ctx, subject, kind)
		if err != nil {
			m.notifyFailure(subject, err)
			return nil, err
		}
		out.Results[kind] = res
		if res.Status == models.StatusCancelled {
			break
		}
	}

	pairs := make(map[models.Kind]diff.Pair)
	token := ""
	for _, kind := range models.Kinds {
		res := out.Results[kind]
		if !res.Complete() {
			continue
		}
		pairs[kind] = diff.Pair{Previous: previous[kind], Current: res.Snapshot}
		if token == "" {
			token = res.RunToken
		}
	}

	out.Status = m.overall(out)
	out.Elapsed = m.now().Sub(start)

	if len(pairs) == 0 {
		m.logger.WarnWithFields("no kind completed, no report written", map[string]interface{}{
			"subject": subject,
			"status":  string(out.Status),
		})
		m.notifyIncomplete(out)
		return out, nil
	}

	rep := diff.Compute(subject, token, pairs, m.now())
	if err := m.backend.Reports().Save(context.WithoutCancel(ctx), rep); err != nil {
		m.notifyFailure(subject, err)
		return nil, err
	}
	out.Report = rep
	m.prune(ctx, subject, pairs)

	m.logger.InfoWithFields("monitoring run finished", map[string]interface{}{
		"subject": subject,
		"status":  string(out.Status),
		"summary": diff.Summary(rep),
		"elapsed": out.Elapsed.String(),
	})

	if m.notifier != nil && rep.HasChanges() {
		m.notifier.Changes(subject, diff.Summary(rep))
	}
	m.notifyIncomplete(out)
	return out, nil
}

// overall is complete only when every kind completed, otherwise the status
// of the first kind that did not
func (m *Monitor) overall(out *Outcome) models.Status {
	for _, kind := range models.Kinds {
		res, ok := out.Results[kind]
		if !ok {
			return models.StatusCancelled
		}
		if !res.Complete() {
			return res.Status
		}
	}
	return models.StatusComplete
}

func (m *Monitor) notifyIncomplete(out *Outcome) {
	if m.notifier == nil || out.Status == models.StatusComplete {
		return
	}
	for _, kind := range models.Kinds {
		if res, ok := out.Results[kind]; ok && !res.Complete() {
			kindOf := errs.KindUnknown
			switch res.Status {
			case models.StatusThrottled:
				kindOf = errs.KindThrottled
			case models.StatusCancelled:
				kindOf = errs.KindCancelled
			}
			m.notifier.Failure(out.Subject, errs.New(kindOf, "collect",
				fmt.Sprintf("%s collection ended %s with %d identifiers", kind, res.Status, res.Total()), nil))
			return
		}
	}
}

func (m *Monitor) notifyFailure(subject string, err error) {
	if m.notifier != nil {
		m.notifier.Failure(subject, err)
	}
}

func (m *Monitor) prune(ctx context.Context, subject string, pairs map[models.Kind]diff.Pair) {
	if m.retention <= 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for kind := range pairs {
		if _, err := m.backend.Snapshots().Prune(ctx, subject, kind, m.retention); err != nil {
			m.logger.WithError(err).Warn("snapshot retention failed")
		}
	}
	if _, err := m.backend.Reports().Prune(ctx, subject, m.retention); err != nil {
		m.logger.WithError(err).Warn("report retention failed")
	}
}

// StartCollection runs a single collection of kind for subject
func (m *Monitor) StartCollection(ctx context.Context, subject string, kind models.Kind) (*collector.Result, error) {
	if err := m.requireCollector("start collection"); err != nil {
		return nil, err
	}
	res, err := m.collector.Collect(ctx, subject, kind)
	if err != nil {
		return nil, err
	}
	if res.Complete() && m.retention > 0 {
		if _, err := m.backend.Snapshots().Prune(context.WithoutCancel(ctx), res.Subject, kind, m.retention); err != nil {
			m.logger.WithError(err).Warn("snapshot retention failed")
		}
	}
	return res, nil
}

// GetLatestDiff returns the newest stored report of subject, or nil
func (m *Monitor) GetLatestDiff(ctx context.Context, subject string) (*models.DiffReport, error) {
	subject, err := normalize("latest diff", subject)
	if err != nil {
		return nil, err
	}
	return m.backend.Reports().LoadLatest(ctx, subject)
}

// ListSubjects returns every subject with at least one snapshot
func (m *Monitor) ListSubjects(ctx context.Context) ([]string, error) {
	return m.backend.Snapshots().Subjects(ctx)
}

// Compare recomputes a report from the two newest stored snapshots of each
// kind without collecting anything. It returns nil when subject has no
// snapshots at all. The report is not persisted.
func (m *Monitor) Compare(ctx context.Context, subject string) (*models.DiffReport, error) {
	subject, err := normalize("compare", subject)
	if err != nil {
		return nil, err
	}

	pairs := make(map[models.Kind]diff.Pair)
	token := ""
	for _, kind := range models.Kinds {
		snaps, err := m.backend.Snapshots().List(ctx, subject, kind, 2)
		if err != nil {
			return nil, err
		}
		switch len(snaps) {
		case 0:
			continue
		case 1:
			pairs[kind] = diff.Pair{Current: snaps[0]}
		default:
			pairs[kind] = diff.Pair{Previous: snaps[1], Current: snaps[0]}
		}
		if token == "" {
			token = snaps[0].RunToken
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	return diff.Compute(subject, token, pairs, m.now()), nil
}

// Clean removes every record of subject, or of all subjects when subject is empty
func (m *Monitor) Clean(ctx context.Context, subject string) error {
	if subject != "" {
		var err error
		if subject, err = normalize("clean", subject); err != nil {
			return err
		}
	}
	if err := m.backend.Purge(ctx, subject); err != nil {
		return err
	}
	m.logger.InfoWithFields("records removed", map[string]interface{}{"subject": subject})
	return nil
}
