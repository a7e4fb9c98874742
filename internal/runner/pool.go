package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"igmonitor/pkg/logger"
	"igmonitor/pkg/monitor"
)

// Monitor runs one subject end to end. *monitor.Monitor satisfies it.
type Monitor interface {
	Run(ctx context.Context, subject string) (*monitor.Outcome, error)
}

// Job is one subject queued for a monitoring run
type Job struct {
	Subject string
}

// Result is the outcome of a job
type Result struct {
	Job      Job
	Outcome  *monitor.Outcome
	Error    error
	Duration time.Duration
}

// Success reports whether the run finished without error
func (r Result) Success() bool {
	return r.Error == nil && r.Outcome != nil
}

// Pool runs monitoring jobs on a fixed number of workers. The workers share
// whatever Governor the Monitor was built with, so adding workers overlaps
// storage and diff work but never raises the upstream request rate.
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	group       *errgroup.Group
	ctx         context.Context
	cancel      context.CancelFunc
	monitor     Monitor
	logger      logger.Logger

	stopOnce sync.Once
}

// NewPool creates a pool. Cancelling ctx stops the workers and the runs
// they are executing.
func NewPool(ctx context.Context, numWorkers int, m Monitor, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		monitor:     m,
		logger:      log.WithField("component", "runner"),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.InfoWithFields("Starting monitor pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	p.group = &errgroup.Group{}
	for i := 0; i < p.numWorkers; i++ {
		p.group.Go(func() error {
			p.worker(i)
			return nil
		})
	}
}

// Stop waits for queued jobs to finish and closes Results
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobQueue)
		if p.group != nil {
			_ = p.group.Wait()
		}
		close(p.resultQueue)
		p.cancel()
		p.logger.Info("Monitor pool stopped")
	})
}

// Submit queues a job. It blocks while the queue is full and must not be
// called after Stop.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobQueue <- job:
		p.logger.DebugWithFields("Job queued", map[string]interface{}{"subject": job.Subject})
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("monitor pool is shutting down")
	}
}

// Results delivers one Result per submitted job
func (p *Pool) Results() <-chan Result {
	return p.resultQueue
}

func (p *Pool) worker(id int) {
	p.logger.DebugWithFields("Worker started", map[string]interface{}{"worker_id": id})

	for job := range p.jobQueue {
		result := p.process(job, id)
		// results are always delivered; a cancelled run reports itself
		p.resultQueue <- result
	}
}

func (p *Pool) process(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	if err := p.ctx.Err(); err != nil {
		result.Error = err
		return result
	}

	out, err := p.monitor.Run(p.ctx, job.Subject)
	result.Outcome = out
	result.Error = err
	result.Duration = time.Since(start)

	fields := map[string]interface{}{
		"worker_id": workerID,
		"subject":   job.Subject,
		"duration":  result.Duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		p.logger.ErrorWithFields("Monitoring run failed", fields)
	} else {
		fields["status"] = string(out.Status)
		p.logger.DebugWithFields("Monitoring run finished", fields)
	}
	return result
}

// RunAll monitors every subject on numWorkers workers and returns the
// results in the order of subjects
func RunAll(ctx context.Context, m Monitor, subjects []string, numWorkers int, log logger.Logger) []Result {
	pool := NewPool(ctx, numWorkers, m, log)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, s := range subjects {
			if err := pool.Submit(Job{Subject: s}); err != nil {
				return
			}
		}
	}()

	index := make(map[string][]int, len(subjects))
	for i, s := range subjects {
		index[s] = append(index[s], i)
	}

	results := make([]Result, len(subjects))
	filled := make([]bool, len(subjects))
	for res := range pool.Results() {
		slots := index[res.Job.Subject]
		if len(slots) == 0 {
			continue
		}
		results[slots[0]] = res
		filled[slots[0]] = true
		index[res.Job.Subject] = slots[1:]
	}

	for i, s := range subjects {
		if !filled[i] {
			results[i] = Result{Job: Job{Subject: s}, Error: context.Cause(ctx)}
		}
	}
	return results
}
