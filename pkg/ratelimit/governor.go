package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"igmonitor/pkg/config"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
)

// Decision is the outcome of a throttling escalation
type Decision int

const (
	DecisionAbort Decision = iota
	DecisionRetry
)

func (d Decision) String() string {
	if d == DecisionRetry {
		return "retry"
	}
	return "abort"
}

// CooldownPrompter asks whether to sit out a long cool-down after the
// upstream signalled throttling. Returning false aborts the run.
type CooldownPrompter interface {
	ConfirmCooldown(ctx context.Context, wait time.Duration, cause error) bool
}

// Options configures a Governor. Zero values fall back to DefaultOptions.
type Options struct {
	RequestsPerWindow int
	Window            time.Duration
	JitterMin         time.Duration
	JitterMax         time.Duration
	BatchSize         int
	BatchPauseMin     time.Duration
	BatchPauseMax     time.Duration
	Cooldown          time.Duration
	// CountdownTick is the interval at which OnCountdown is called during a cool-down
	CountdownTick time.Duration
}

// DefaultOptions returns the pacing used against the upstream by default
func DefaultOptions() Options {
	return Options{
		RequestsPerWindow: 15,
		Window:            60 * time.Second,
		JitterMin:         2 * time.Second,
		JitterMax:         5 * time.Second,
		BatchSize:         100,
		BatchPauseMin:     3 * time.Second,
		BatchPauseMax:     7 * time.Second,
		Cooldown:          600 * time.Second,
		CountdownTick:     time.Second,
	}
}

// OptionsFromConfig maps the rate_limit section of the configuration
func OptionsFromConfig(cfg config.RateLimitConfig) Options {
	opts := DefaultOptions()
	opts.RequestsPerWindow = cfg.RequestsPerWindow
	opts.Window = cfg.Window
	opts.JitterMin = cfg.JitterMin
	opts.JitterMax = cfg.JitterMax
	opts.BatchSize = cfg.BatchSize
	opts.BatchPauseMin = cfg.BatchPauseMin
	opts.BatchPauseMax = cfg.BatchPauseMax
	opts.Cooldown = cfg.Cooldown
	return opts
}

// Governor paces calls to the upstream. One instance may be shared by
// several concurrent runs; all state is guarded internally.
type Governor struct {
	opts   Options
	window *FixedWindow
	clock  Clock
	logger logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	// OnCountdown, if set, receives the remaining cool-down time on every tick
	OnCountdown func(remaining time.Duration)
	// OnUsage, if set, receives window usage after every pacing call
	OnUsage func(used, max int, resetAt time.Time)
}

// NewGovernor creates a governor. A nil clock uses the wall clock.
func NewGovernor(opts Options, clock Clock, log logger.Logger) *Governor {
	def := DefaultOptions()
	if opts.RequestsPerWindow <= 0 {
		opts.RequestsPerWindow = def.RequestsPerWindow
	}
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}
	if opts.BatchPauseMax < opts.BatchPauseMin {
		opts.BatchPauseMax = opts.BatchPauseMin
	}
	if opts.CountdownTick <= 0 {
		opts.CountdownTick = def.CountdownTick
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Governor{
		opts:   opts,
		window: NewFixedWindow(opts.RequestsPerWindow, opts.Window, clock),
		clock:  clock,
		logger: log,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

// Options returns the effective configuration
func (g *Governor) Options() Options {
	return g.opts
}

// Throttle blocks long enough to keep the request rate under the window
// ceiling, then adds a random jitter delay.
func (g *Governor) Throttle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wait := g.window.Reserve()
	metrics.IncGovernorRequests()
	if g.OnUsage != nil {
		g.OnUsage(g.window.Usage())
	}

	if wait > 0 {
		g.logger.InfoWithFields("request ceiling reached, waiting for next window", map[string]interface{}{
			"wait":    wait.String(),
			"ceiling": g.opts.RequestsPerWindow,
			"window":  g.opts.Window.String(),
		})
		metrics.ObserveGovernorWait("window", wait)
		if err := g.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	jitter := g.between(g.opts.JitterMin, g.opts.JitterMax)
	metrics.ObserveGovernorWait("jitter", jitter)
	return g.clock.Sleep(ctx, jitter)
}

// AfterItems inserts a longer random pause whenever processed is a positive
// multiple of the batch size.
func (g *Governor) AfterItems(ctx context.Context, processed int) error {
	if g.opts.BatchSize <= 0 || processed <= 0 || processed%g.opts.BatchSize != 0 {
		return ctx.Err()
	}

	pause := g.between(g.opts.BatchPauseMin, g.opts.BatchPauseMax)
	g.logger.DebugWithFields("batch pause", map[string]interface{}{
		"processed": processed,
		"pause":     pause.String(),
	})
	metrics.ObserveGovernorWait("batch", pause)
	return g.clock.Sleep(ctx, pause)
}

// ReportThrottled handles a throttling signal from the upstream. Errors that
// do not classify as throttled are returned as DecisionAbort untouched. For a
// throttled error the prompter decides between sitting out the cool-down
// (DecisionRetry) and giving up (DecisionAbort). A nil prompter aborts.
func (g *Governor) ReportThrottled(ctx context.Context, cause error, prompter CooldownPrompter) (Decision, error) {
	if errs.Classify(cause) != errs.KindThrottled {
		return DecisionAbort, nil
	}

	g.logger.WarnWithFields("upstream is throttling requests", map[string]interface{}{
		"error":    cause.Error(),
		"cooldown": g.opts.Cooldown.String(),
	})

	if prompter == nil || !prompter.ConfirmCooldown(ctx, g.opts.Cooldown, cause) {
		metrics.IncThrottleEvent(DecisionAbort.String())
		return DecisionAbort, nil
	}

	if err := g.Cooldown(ctx); err != nil {
		metrics.IncThrottleEvent(DecisionAbort.String())
		return DecisionAbort, err
	}

	metrics.IncThrottleEvent(DecisionRetry.String())
	return DecisionRetry, nil
}

// Cooldown sleeps for the configured cool-down, reporting the remaining time
// on each tick, and then starts a fresh request window.
func (g *Governor) Cooldown(ctx context.Context) error {
	start := g.clock.Now()
	remaining := g.opts.Cooldown

	for remaining > 0 {
		if g.OnCountdown != nil {
			g.OnCountdown(remaining)
		}
		step := g.opts.CountdownTick
		if step > remaining {
			step = remaining
		}
		if err := g.clock.Sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	if g.OnCountdown != nil {
		g.OnCountdown(0)
	}

	metrics.ObserveGovernorWait("cooldown", g.clock.Now().Sub(start))
	g.window.Reset()
	g.logger.Info("cool-down finished, resuming requests")
	return nil
}

// Usage exposes the current window usage
func (g *Governor) Usage() (used, max int, resetAt time.Time) {
	return g.window.Usage()
}

func (g *Governor) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return min + time.Duration(g.rng.Int64N(int64(max-min)+1))
}
