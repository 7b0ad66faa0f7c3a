package worker

import (
	"context"
	"sync"
	"time"

	"github.com/medassist/booking-api/pkg/logger"
)

// Job is one unit of periodic work. Run errors are logged and the next tick
// still runs.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// RunOnStart runs the job once before waiting for the first tick.
	RunOnStart bool
}

// Ticker is the part of time.Ticker the runner uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Runner drives a set of jobs, each on its own ticker, until the context ends.
type Runner struct {
	jobs      []Job
	logger    *logger.Logger
	newTicker func(time.Duration) Ticker
}

func NewRunner(log *logger.Logger, jobs ...Job) *Runner {
	return &Runner{
		jobs:   jobs,
		logger: log,
		newTicker: func(d time.Duration) Ticker {
			return realTicker{t: time.NewTicker(d)}
		},
	}
}

// WithTicker replaces the ticker source. Tests drive ticks by hand.
func (r *Runner) WithTicker(fn func(time.Duration) Ticker) *Runner {
	r.newTicker = fn
	return r
}

// Start blocks until ctx is cancelled and every job loop has returned.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range r.jobs {
		if job.Interval <= 0 || job.Run == nil {
			r.logger.Warn("skipping job without interval or run func", "job", job.Name)
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			r.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	ticker := r.newTicker(job.Interval)
	defer ticker.Stop()

	r.logger.Info("starting job", "job", job.Name, "interval", job.Interval.String())
	if job.RunOnStart {
		r.tick(ctx, job)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping job", "job", job.Name)
			return
		case <-ticker.C():
			r.tick(ctx, job)
		}
	}
}

func (r *Runner) tick(ctx context.Context, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("job panicked", "job", job.Name, "panic", rec)
		}
	}()
	if err := job.Run(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error(err, "job tick failed", "job", job.Name)
	}
}
