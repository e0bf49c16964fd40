/*
Package jobs schedules blog generation runs and tracks their lifecycle.

Submit records a job in processing state and queues it for a fixed pool of
workers, returning the job id without waiting for the run. Every job that
reaches a worker ends in exactly one terminal state, including runs that
panic, time out or are cancelled by shutdown.
*/
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/jobstore"
	"github.com/Nexora-Open-Source/blog-generator-backend/monitoring"
	"github.com/Nexora-Open-Source/blog-generator-backend/pipeline"
	"github.com/Nexora-Open-Source/blog-generator-backend/types"
	"github.com/Nexora-Open-Source/blog-generator-backend/utils"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyKeyword is returned by Submit for a blank keyword.
	ErrEmptyKeyword = errors.New("keyword must not be empty")
	// ErrQueueFull is returned when the job queue stays full past the submit timeout.
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("job coordinator is stopped")

	errShuttingDown = errors.New("service shutting down")
)

// Runner executes one job
type Runner interface {
	Run(ctx context.Context, job pipeline.Job, progress pipeline.ProgressFunc) (pipeline.Result, error)
}

// Config sizes the worker pool and queue
type Config struct {
	Workers       int
	QueueSize     int
	SubmitTimeout time.Duration
	// JobTimeout bounds a single run. Zero disables it.
	JobTimeout time.Duration
}

// Coordinator owns the job queue and its workers
type Coordinator struct {
	jobs   chan pipeline.Job
	quit   chan struct{}
	wg     sync.WaitGroup
	store  jobstore.Store
	runner Runner
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time

	runCtx    context.Context
	cancelRun context.CancelFunc
	stopOnce  sync.Once
	// submitMu is held shared by Submit from its quit check until the job is
	// queued or rejected, and taken exclusively by Stop before it drains.
	submitMu sync.RWMutex

	completed atomic.Int64
	failed    atomic.Int64
}

// NewCoordinator starts cfg.Workers workers pulling from a queue of
// cfg.QueueSize jobs.
func NewCoordinator(cfg Config, store jobstore.Store, runner Runner, logger *logrus.Logger) *Coordinator {
	cfg.Workers = max(cfg.Workers, 1)
	cfg.QueueSize = max(cfg.QueueSize, 1)

	runCtx, cancelRun := context.WithCancel(context.Background())
	c := &Coordinator{
		jobs:      make(chan pipeline.Job, cfg.QueueSize),
		quit:      make(chan struct{}),
		store:     store,
		runner:    runner,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		runCtx:    runCtx,
		cancelRun: cancelRun,
	}

	monitoring.UpdateActiveWorkers(cfg.Workers)

	for i := 0; i < cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	logger.WithFields(logrus.Fields{
		"workers":        cfg.Workers,
		"queue_size":     cfg.QueueSize,
		"submit_timeout": cfg.SubmitTimeout.String(),
		"job_timeout":    cfg.JobTimeout.String(),
	}).Info("Job coordinator started")

	return c
}

// NewJobID derives a job id from the keyword and submission time
func NewJobID(keyword string, at time.Time) string {
	return fmt.Sprintf("%s-%d", utils.Slugify(keyword), at.UnixMilli())
}

// Submit records a new job for keyword and queues it. It returns as soon as
// the job is queued.
func (c *Coordinator) Submit(keyword string) (string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "", ErrEmptyKeyword
	}

	c.submitMu.RLock()
	defer c.submitMu.RUnlock()

	select {
	case <-c.quit:
		return "", ErrStopped
	default:
	}

	now := c.now()
	job := pipeline.Job{ID: NewJobID(keyword, now), Keyword: keyword}

	c.store.Put(types.JobStatus{
		JobID:     job.ID,
		Keyword:   keyword,
		Status:    types.StatusProcessing,
		Progress:  types.ProgressInitializing,
		CreatedAt: now,
		UpdatedAt: now,
	})

	select {
	case c.jobs <- job:
		return c.queued(job), nil
	default:
	}

	timer := time.NewTimer(c.cfg.SubmitTimeout)
	defer timer.Stop()

	select {
	case c.jobs <- job:
		return c.queued(job), nil

	case <-timer.C:
		c.store.Delete(job.ID)
		c.logger.WithFields(logrus.Fields{
			"keyword":        keyword,
			"wait_timeout":   c.cfg.SubmitTimeout.String(),
			"max_queue_size": c.cfg.QueueSize,
		}).Warn("Job submission timed out due to queue pressure")
		return "", ErrQueueFull

	case <-c.quit:
		c.store.Delete(job.ID)
		return "", ErrStopped
	}
}

func (c *Coordinator) queued(job pipeline.Job) string {
	monitoring.UpdateJobQueueSize(len(c.jobs))
	c.logger.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"keyword":    job.Keyword,
		"queue_load": fmt.Sprintf("%.2f", c.QueueLoad()),
	}).Info("Blog generation job submitted")
	return job.ID
}

// Status returns a snapshot of the job
func (c *Coordinator) Status(jobID string) (types.JobStatus, bool) {
	return c.store.Get(jobID)
}

// QueueLoad returns the fraction of the queue currently occupied
func (c *Coordinator) QueueLoad() float64 {
	return float64(len(c.jobs)) / float64(cap(c.jobs))
}

// FailureRate returns the share of finished jobs that failed, or zero until
// minSamples jobs have finished.
func (c *Coordinator) FailureRate(minSamples int64) float64 {
	failed := c.failed.Load()
	total := failed + c.completed.Load()
	if total == 0 || total < minSamples {
		return 0
	}
	return float64(failed) / float64(total)
}

func (c *Coordinator) worker(workerID int) {
	defer c.wg.Done()

	c.logger.WithField("worker_id", workerID).Debug("Job worker started")

	for {
		select {
		case <-c.quit:
			c.logger.WithField("worker_id", workerID).Debug("Job worker stopping")
			return
		case job := <-c.jobs:
			monitoring.UpdateJobQueueSize(len(c.jobs))
			select {
			case <-c.quit:
				c.finish(job, pipeline.Result{}, errShuttingDown, time.Now())
				return
			default:
			}
			c.process(workerID, job)
		}
	}
}

// process runs one job and records its terminal state
func (c *Coordinator) process(workerID int, job pipeline.Job) {
	start := time.Now()
	done := monitoring.JobStarted()
	defer done()

	log := c.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"job_id":    job.ID,
		"keyword":   job.Keyword,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Blog generation job panicked")
			c.finish(job, pipeline.Result{}, fmt.Errorf("internal error: %v", r), start)
		}
	}()

	ctx := c.runCtx
	if c.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.JobTimeout)
		defer cancel()
	}

	log.Info("Processing blog generation job")

	result, err := c.runner.Run(ctx, job, func(label string) {
		c.store.Update(job.ID, func(s *types.JobStatus) {
			s.Progress = label
		})
	})
	if err != nil && errors.Is(err, context.DeadlineExceeded) && c.cfg.JobTimeout > 0 {
		err = fmt.Errorf("job timed out after %s: %w", c.cfg.JobTimeout, err)
	}

	c.finish(job, result, err, start)
}

// finish moves the job to its terminal state
func (c *Coordinator) finish(job pipeline.Job, result pipeline.Result, err error, start time.Time) {
	if err == nil && strings.TrimSpace(result.Article) == "" {
		err = errors.New("generated article is empty")
	}

	now := c.now()
	status := types.StatusCompleted
	if err != nil {
		status = types.StatusFailed
		c.failed.Add(1)
	} else {
		c.completed.Add(1)
	}

	c.store.Update(job.ID, func(s *types.JobStatus) {
		s.Status = status
		s.CompletedAt = &now
		if err != nil {
			s.Progress = types.ProgressFailed
			s.Error = err.Error()
			if s.Error == "" {
				s.Error = "unknown error"
			}
			return
		}
		s.Progress = types.ProgressCompleted
		s.Result = result.Article
		s.ArticlePath = result.ArticlePath
	})

	duration := time.Since(start)
	monitoring.RecordJob(status, duration.Seconds())

	fields := logrus.Fields{
		"job_id":      job.ID,
		"keyword":     job.Keyword,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Warn("Blog generation job failed")
		return
	}
	c.logger.WithFields(fields).Info("Blog generation job completed")
}

// Stop stops accepting jobs and waits for running jobs to finish. When ctx
// expires first, running jobs are cancelled. Jobs still queued are marked
// failed.
func (c *Coordinator) Stop(ctx context.Context) {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping job coordinator")
		close(c.quit)

		// Wait out submissions that passed the quit check so their jobs are
		// queued before the drain below.
		c.submitMu.Lock()
		c.submitMu.Unlock()

		drained := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-ctx.Done():
			c.logger.Warn("Shutdown deadline reached, cancelling running jobs")
			c.cancelRun()
			<-drained
		}
		c.cancelRun()

		for {
			select {
			case job := <-c.jobs:
				c.finish(job, pipeline.Result{}, errShuttingDown, c.now())
			default:
				monitoring.UpdateJobQueueSize(0)
				c.logger.Info("Job coordinator stopped")
				return
			}
		}
	})
}
