package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is a function run on a fixed interval.
type Job struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Runner runs each job in its own loop until the context is cancelled.
type Runner struct {
	jobs []Job
	log  *zap.Logger
}

func NewRunner(log *zap.Logger, jobs ...Job) *Runner {
	return &Runner{jobs: jobs, log: log}
}

// Run blocks until ctx is done. A failing run is logged and the loop carries on.
func (r *Runner) Run(ctx context.Context) error {
	for _, job := range r.jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("job %s: interval must be positive", job.Name)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range r.jobs {
		job := job
		g.Go(func() error {
			r.loop(ctx, job)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	r.log.Info("Job scheduled",
		zap.String("job", job.Name),
		zap.Duration("interval", job.Interval))

	if job.RunAtStart {
		r.runOnce(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, job)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, job Job) {
	log := r.log.With(
		zap.String("job", job.Name),
		zap.String("run_id", uuid.NewString()))
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error("Job panicked", zap.Any("panic", p))
		}
	}()

	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("Job failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	log.Debug("Job finished", zap.Duration("took", time.Since(start)))
}

type Flusher interface {
	Flush(ctx context.Context) int64
}

type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// VoiceFlush credits long-running voice sessions every interval.
func VoiceFlush(f Flusher, interval time.Duration) Job {
	return Job{
		Name:     "voice-flush",
		Interval: interval,
		Run: func(ctx context.Context) error {
			f.Flush(ctx)
			return nil
		},
	}
}

// TaskSweep reports and removes expired tasks, once at start and then every interval.
func TaskSweep(s Sweeper, interval time.Duration) Job {
	return Job{
		Name:       "task-sweep",
		Interval:   interval,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			_, err := s.Sweep(ctx)
			return err
		},
	}
}

type Reconciler interface {
	ReconcileVoice(ctx context.Context) error
}

// VoiceReconcile closes sessions whose leave event was missed and opens sessions for
// members the tracker never saw join.
func VoiceReconcile(r Reconciler, interval time.Duration) Job {
	return Job{
		Name:     "voice-reconcile",
		Interval: interval,
		Run:      r.ReconcileVoice,
	}
}
