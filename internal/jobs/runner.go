package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/observability/metrics"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobLocked  = errors.New("job is already running elsewhere")
)

// Runner fires jobs on their schedules. With a locker, each run holds
// scheduler:lock:<job> so only one instance runs a job at a time.
type Runner struct {
	cron    *cron.Cron
	jobs    map[string]Job
	locker  *redislock.Client
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
}

type RunnerOptions struct {
	Location *time.Location
	Locker   *redislock.Client
	LockTTL  time.Duration
	Metrics  *metrics.Metrics
	Logger   logrus.FieldLogger
}

func NewRunner(jobs []Job, opts RunnerOptions) (*Runner, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	r := &Runner{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithChain(cron.Recover(cron.PrintfLogger(opts.Logger))),
		),
		jobs:    make(map[string]Job, len(jobs)),
		locker:  opts.Locker,
		lockTTL: opts.LockTTL,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}

	for _, job := range jobs {
		if _, dup := r.jobs[job.Name]; dup {
			return nil, fmt.Errorf("job %s registered twice", job.Name)
		}
		r.jobs[job.Name] = job
		name := job.Name
		if _, err := r.cron.AddFunc(job.Spec, func() {
			_, _ = r.Run(context.Background(), name)
		}); err != nil {
			return nil, fmt.Errorf("schedule job %s failed: %w", job.Name, err)
		}
	}
	return r, nil
}

func (r *Runner) Start() {
	r.cron.Start()
	r.logger.WithField("jobs", len(r.jobs)).Info("scheduler started")
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.logger.Warn("scheduler stop timed out with jobs still running")
	}
}

// Names lists the registered jobs in name order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Runner) Job(name string) (Job, bool) {
	job, ok := r.jobs[name]
	return job, ok
}

// Run executes one job now, under the job lock when a locker is configured.
func (r *Runner) Run(ctx context.Context, name string) (Result, error) {
	job, ok := r.jobs[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	log := r.logger.WithField("job", name)
	start := time.Now()

	if r.locker != nil {
		lock, err := r.locker.Obtain(ctx, "scheduler:lock:"+name, r.lockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			log.Info("job skipped, lock held by another instance")
			r.metrics.ObserveJob(name, "locked", time.Since(start))
			return Result{Status: StatusSkipped, Reason: "locked"}, ErrJobLocked
		}
		if err != nil {
			logging.LogError(log, "jobs", "Runner.Run", "obtain job lock", nil, err)
			r.metrics.ObserveJob(name, "error", time.Since(start))
			return Result{}, fmt.Errorf("obtain job lock failed: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				log.WithError(err).Warn("release job lock failed")
			}
		}()
	}

	result, err := job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		logging.LogError(log, "jobs", "Runner.Run", "run job", nil, err)
		r.metrics.ObserveJob(name, "error", elapsed)
		return result, err
	}

	r.metrics.ObserveJob(name, result.Status, elapsed)
	log.WithFields(logrus.Fields{
		"status":  result.Status,
		"reason":  result.Reason,
		"counts":  result.Counts,
		"elapsed": elapsed.String(),
	}).Info("job finished")
	return result, nil
}
