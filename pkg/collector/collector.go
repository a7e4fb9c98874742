package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"igmonitor/pkg/config"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/models"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/storage"
)

// Options holds the collector cadences, counted in new identifiers
type Options struct {
	PaceEvery       int
	CheckpointEvery int
	PromptEvery     int
	LargeFollowers  int
	LargeFollowees  int
}

// DefaultOptions returns the default cadences
func DefaultOptions() Options {
	return Options{
		PaceEvery:       10,
		CheckpointEvery: 250,
		PromptEvery:     500,
		LargeFollowers:  10000,
		LargeFollowees:  7500,
	}
}

// OptionsFromConfig maps the collection section of the configuration
func OptionsFromConfig(cfg config.CollectionConfig) Options {
	return Options{
		PaceEvery:       cfg.PaceEvery,
		CheckpointEvery: cfg.CheckpointEvery,
		PromptEvery:     cfg.PromptEvery,
		LargeFollowers:  cfg.LargeFollowers,
		LargeFollowees:  cfg.LargeFollowees,
	}
}

// Deps are the collaborators of a Collector
type Deps struct {
	Source      Source
	Governor    *ratelimit.Governor
	Checkpoints storage.CheckpointStore
	Snapshots   storage.SnapshotStore
	// Prompter defaults to AutoPrompter{}
	Prompter Prompter
	// Progress defaults to a no-op
	Progress Progress
	// Locker is optional; without it runs are not guarded against each other
	Locker Locker
	Logger logger.Logger
}

// Result describes how a run ended. Status is complete only when the
// relation was enumerated to the end and a snapshot was written.
type Result struct {
	Subject   string
	Kind      models.Kind
	RunToken  string
	Status    models.Status
	Set       *models.IdentifierSet
	Snapshot  *models.Snapshot
	Estimate  int
	Collected int
	Resumed   bool
	Elapsed   time.Duration
	// Err is the upstream or cancellation error that ended an incomplete run
	Err error
}

// Complete reports whether the run produced a snapshot
func (r *Result) Complete() bool {
	return r != nil && r.Status == models.StatusComplete
}

// Total is the size of the accumulated set
func (r *Result) Total() int {
	if r == nil {
		return 0
	}
	return r.Set.Len()
}

// Collector drives one source enumeration through the governor while
// checkpointing the accumulated set.
type Collector struct {
	source      Source
	governor    *ratelimit.Governor
	checkpoints storage.CheckpointStore
	snapshots   storage.SnapshotStore
	prompter    Prompter
	progress    Progress
	locker      Locker
	opts        Options
	logger      logger.Logger
	now         func() time.Time
}

// New creates a collector. Zero option values fall back to the defaults.
func New(deps Deps, opts Options) (*Collector, error) {
	if deps.Source == nil {
		return nil, errors.New("collector: source is required")
	}
	if deps.Governor == nil {
		return nil, errors.New("collector: governor is required")
	}
	if deps.Checkpoints == nil || deps.Snapshots == nil {
		return nil, errors.New("collector: checkpoint and snapshot stores are required")
	}

	def := DefaultOptions()
	if opts.PaceEvery <= 0 {
		opts.PaceEvery = def.PaceEvery
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = def.CheckpointEvery
	}
	if opts.PromptEvery <= 0 {
		opts.PromptEvery = def.PromptEvery
	}
	if opts.LargeFollowers <= 0 {
		opts.LargeFollowers = def.LargeFollowers
	}
	if opts.LargeFollowees <= 0 {
		opts.LargeFollowees = def.LargeFollowees
	}

	if deps.Prompter == nil {
		deps.Prompter = AutoPrompter{}
	}
	if deps.Progress == nil {
		deps.Progress = nopProgress{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}

	return &Collector{
		source:      deps.Source,
		governor:    deps.Governor,
		checkpoints: deps.Checkpoints,
		snapshots:   deps.Snapshots,
		prompter:    deps.Prompter,
		progress:    deps.Progress,
		locker:      deps.Locker,
		opts:        opts,
		logger:      deps.Logger.WithField("component", "collector"),
		now:         time.Now,
	}, nil
}

// LockKey is the lock key guarding runs of (subject, kind)
func LockKey(subject string, kind models.Kind) string {
	return subject + "/" + string(kind)
}

// run is the mutable state of one Collect call
type run struct {
	*Result
	started time.Time
	log     logger.Logger
}

// Collect enumerates kind for subject. Transient and throttling failures
// never surface as errors: they end the run with a partial Result and a saved
// checkpoint. The returned error is reserved for invalid input, inaccessible
// subjects, a concurrent run on the same key, and storage failures.
func (c *Collector) Collect(ctx context.Context, subject string, kind models.Kind) (*Result, error) {
	subject, err := models.NormalizeIdentifier(subject)
	if err != nil {
		return nil, errs.Validation("collect", err)
	}
	if !kind.Valid() {
		return nil, errs.Validation("collect", fmt.Errorf("unknown kind %q", kind))
	}

	if c.locker != nil {
		unlock, err := c.locker.TryLock(LockKey(subject, kind))
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	r := &run{
		Result: &Result{
			Subject: subject,
			Kind:    kind,
			Set:     models.NewIdentifierSet(),
			Status:  models.StatusPartial,
		},
		started: c.now(),
	}

	if err := c.seed(ctx, r); err != nil {
		return nil, err
	}
	if r.RunToken == "" {
		r.RunToken = storage.NewToken()
	}
	r.log = c.logger.WithFields(logger.CollectionFields(subject, string(kind), r.RunToken))

	if err := ctx.Err(); err != nil {
		return c.end(r, models.StatusCancelled, err), nil
	}

	estimate, err := c.source.EstimateCount(ctx, subject, kind)
	if err != nil {
		switch errs.Classify(err) {
		case errs.KindAccess, errs.KindValidation:
			r.log.WithError(err).Error("subject cannot be collected")
			return nil, err
		case errs.KindCancelled:
			return c.end(r, models.StatusCancelled, err), nil
		default:
			// enumeration will surface the same problem through the normal paths
			r.log.WithError(err).Warn("could not estimate relation size")
			estimate = -1
		}
	}
	r.Estimate = estimate

	if c.isLarge(kind, estimate) && !c.prompter.ConfirmLarge(ctx, subject, kind, estimate) {
		r.log.InfoWithFields("large collection declined", map[string]interface{}{"estimate": estimate})
		return c.end(r, models.StatusCancelled, nil), nil
	}

	logger.LogCollectionStart(r.log, subject, string(kind), r.RunToken, estimate, r.Set.Len())
	c.progress.Start(subject, kind, estimate, r.Set.Len())

	return c.consume(ctx, r)
}

// seed loads an unfinished checkpoint and asks whether to resume from it.
// A declined checkpoint is removed so it cannot shadow the fresh run.
func (c *Collector) seed(ctx context.Context, r *run) error {
	cp, err := c.checkpoints.LoadLatest(ctx, r.Subject, r.Kind)
	if err != nil {
		return err
	}
	if cp == nil {
		return nil
	}

	if c.prompter.ConfirmResume(ctx, cp) {
		r.Set = cp.Set()
		r.RunToken = cp.RunToken
		r.Resumed = true
		c.logger.InfoWithFields("resuming from checkpoint", map[string]interface{}{
			"subject":   r.Subject,
			"kind":      string(r.Kind),
			"run_token": cp.RunToken,
			"seeded":    r.Set.Len(),
		})
		return nil
	}

	if err := c.checkpoints.Delete(ctx, r.Subject, r.Kind, cp.RunToken); err != nil {
		c.logger.WithError(err).Warn("failed to discard declined checkpoint")
	}
	return nil
}

func (c *Collector) consume(ctx context.Context, r *run) (*Result, error) {
	it := c.source.Iterate(ctx, r.Subject, r.Kind)

	for {
		if err := ctx.Err(); err != nil {
			return c.stop(ctx, r, models.StatusCancelled, err)
		}

		raw, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res, retry, ferr := c.handleSourceError(ctx, r, err)
			if retry {
				continue
			}
			return res, ferr
		}

		id, err := models.NormalizeIdentifier(raw)
		if err != nil {
			r.log.DebugWithFields("skipping invalid identifier", map[string]interface{}{"raw": raw})
			continue
		}
		if !r.Set.Add(id) {
			continue
		}
		r.Collected++
		c.progress.Advance(r.Subject, r.Kind, r.Set.Len())

		if r.Collected%c.opts.PaceEvery == 0 {
			if err := c.governor.Throttle(ctx); err != nil {
				return c.stop(ctx, r, models.StatusCancelled, err)
			}
			logger.LogCollectionProgress(r.log, r.Subject, string(r.Kind), r.Set.Len(), r.Estimate)
		}
		if err := c.governor.AfterItems(ctx, r.Collected); err != nil {
			return c.stop(ctx, r, models.StatusCancelled, err)
		}

		if r.Collected%c.opts.CheckpointEvery == 0 {
			if err := c.checkpoint(ctx, r); err != nil {
				return nil, err
			}
		}

		if r.Collected%c.opts.PromptEvery == 0 &&
			!c.prompter.ConfirmContinue(ctx, r.Subject, r.Kind, r.Set.Len()) {
			r.log.Info("collection stopped at checkpoint prompt")
			return c.stop(ctx, r, models.StatusPartial, nil)
		}
	}

	return c.finalize(ctx, r)
}

// handleSourceError is the single dispatch point for upstream failures.
// Access and validation errors end the run with no new state. Every other
// branch saves the accumulated set before deciding anything.
func (c *Collector) handleSourceError(ctx context.Context, r *run, cause error) (*Result, bool, error) {
	kind := errs.Classify(cause)

	switch kind {
	case errs.KindCancelled:
		res, err := c.stop(ctx, r, models.StatusCancelled, cause)
		return res, false, err
	case errs.KindAccess, errs.KindValidation:
		r.log.WithError(cause).ErrorWithFields("subject cannot be collected", map[string]interface{}{
			"collected": r.Collected,
		})
		c.progress.Finish(r.Subject, r.Kind, models.StatusFailed, r.Set.Len())
		return nil, false, cause
	}

	if r.Set.Len() > 0 {
		if err := c.checkpoint(ctx, r); err != nil {
			return nil, false, err
		}
	}

	if kind != errs.KindThrottled {
		r.log.WithError(cause).WarnWithFields("source failed, keeping partial progress", map[string]interface{}{
			"error_kind": string(kind),
		})
		return c.end(r, models.StatusFailed, cause), false, nil
	}

	logger.LogThrottle(r.log, r.Subject, string(r.Kind), c.governor.Options().Cooldown, cause)
	decision, err := c.governor.ReportThrottled(ctx, cause, c.prompter)
	if err != nil {
		return c.end(r, models.StatusCancelled, err), false, nil
	}
	if decision == ratelimit.DecisionRetry {
		r.log.Info("retrying after cool-down")
		return nil, true, nil
	}
	return c.end(r, models.StatusThrottled, cause), false, nil
}

// stop saves a checkpoint and ends the run without a snapshot
func (c *Collector) stop(ctx context.Context, r *run, status models.Status, cause error) (*Result, error) {
	if r.Set.Len() > 0 {
		if err := c.checkpoint(ctx, r); err != nil {
			return nil, err
		}
	}
	return c.end(r, status, cause), nil
}

// checkpoint persists the full accumulated set. It runs detached from ctx
// cancellation so an interrupt still leaves progress on disk.
func (c *Collector) checkpoint(ctx context.Context, r *run) error {
	err := c.checkpoints.Save(context.WithoutCancel(ctx), r.Subject, r.Kind, r.Set, r.RunToken)
	metrics.IncCheckpoint(err)
	if err != nil {
		logger.LogStorage(r.log, "checkpoint", r.Subject, err)
		return err
	}
	return nil
}

func (c *Collector) finalize(ctx context.Context, r *run) (*Result, error) {
	store := context.WithoutCancel(ctx)
	completedAt := c.now().UTC()

	if _, err := c.snapshots.Save(store, r.Subject, r.Kind, r.Set, completedAt, r.RunToken); err != nil {
		logger.LogStorage(r.log, "snapshot", r.Subject, err)
		// keep the finished set resumable
		if cerr := c.checkpoints.Save(store, r.Subject, r.Kind, r.Set, r.RunToken); cerr != nil {
			r.log.WithError(cerr).Error("fallback checkpoint failed")
		}
		return nil, err
	}

	if err := c.checkpoints.Delete(store, r.Subject, r.Kind, r.RunToken); err != nil {
		r.log.WithError(err).Warn("failed to delete checkpoint of completed run")
	}

	ids := r.Set.Sorted()
	r.Snapshot = &models.Snapshot{
		Subject:     r.Subject,
		Kind:        r.Kind,
		Status:      models.StatusComplete,
		RunToken:    r.RunToken,
		CompletedAt: completedAt,
		Total:       len(ids),
		Identifiers: ids,
	}
	return c.end(r, models.StatusComplete, nil), nil
}

func (c *Collector) end(r *run, status models.Status, cause error) *Result {
	r.Status = status
	r.Err = cause
	r.Elapsed = c.now().Sub(r.started)

	log := r.log
	if log == nil {
		log = c.logger
	}
	logger.LogCollectionEnd(log, r.Subject, string(r.Kind), r.RunToken, string(status), r.Set.Len(), r.Elapsed, cause)
	metrics.ObserveCollection(string(r.Kind), string(status), r.Elapsed)
	metrics.AddIdentifiers(string(r.Kind), r.Collected)
	c.progress.Finish(r.Subject, r.Kind, status, r.Set.Len())
	return r.Result
}

func (c *Collector) isLarge(kind models.Kind, estimate int) bool {
	switch kind {
	case models.KindFollowers:
		return estimate > c.opts.LargeFollowers
	case models.KindFollowees:
		return estimate > c.opts.LargeFollowees
	}
	return false
}
