package collector

import (
	"context"
	"time"

	"igmonitor/pkg/models"
	"igmonitor/pkg/ratelimit"
)

// Source is the upstream that enumerates followers and followees
type Source interface {
	// EstimateCount returns the approximate size of the relation, which may be stale
	EstimateCount(ctx context.Context, subject string, kind models.Kind) (int, error)
	// Iterate starts a lazy enumeration of the relation
	Iterate(ctx context.Context, subject string, kind models.Kind) Iterator
}

// Iterator yields identifiers one at a time. Next returns io.EOF once the
// relation is exhausted. After any other error, calling Next again retries
// the fetch that failed, so consumption resumes from the point of failure.
type Iterator interface {
	Next(ctx context.Context) (string, error)
}

// Prompter answers the decision points of a run
type Prompter interface {
	ratelimit.CooldownPrompter
	// ConfirmResume is asked when an unfinished checkpoint exists
	ConfirmResume(ctx context.Context, cp *models.Checkpoint) bool
	// ConfirmLarge is asked before enumerating a relation above the size threshold
	ConfirmLarge(ctx context.Context, subject string, kind models.Kind, estimate int) bool
	// ConfirmContinue is asked every PromptEvery new identifiers
	ConfirmContinue(ctx context.Context, subject string, kind models.Kind, collected int) bool
}

// AutoPrompter answers yes to every question except, unless AcceptCooldown
// is set, the throttling cool-down.
type AutoPrompter struct {
	AcceptCooldown bool
}

func (p AutoPrompter) ConfirmResume(context.Context, *models.Checkpoint) bool { return true }

func (p AutoPrompter) ConfirmLarge(context.Context, string, models.Kind, int) bool { return true }

func (p AutoPrompter) ConfirmContinue(context.Context, string, models.Kind, int) bool { return true }

func (p AutoPrompter) ConfirmCooldown(context.Context, time.Duration, error) bool {
	return p.AcceptCooldown
}

// Progress receives progress notifications. It is a pure side channel; the
// collected set never depends on it.
type Progress interface {
	Start(subject string, kind models.Kind, estimate, seeded int)
	Advance(subject string, kind models.Kind, total int)
	Finish(subject string, kind models.Kind, status models.Status, total int)
}

type nopProgress struct{}

func (nopProgress) Start(string, models.Kind, int, int)           {}
func (nopProgress) Advance(string, models.Kind, int)              {}
func (nopProgress) Finish(string, models.Kind, models.Status, int) {}

// Locker guards a key for the duration of a run. TryLock fails fast when
// the key is already held.
type Locker interface {
	TryLock(key string) (unlock func(), err error)
}
