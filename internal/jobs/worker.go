package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/pkg/repository"
)

const defaultPollInterval = 500 * time.Millisecond

type WorkerPool struct {
	repo         repository.JobRepo
	handlers     map[string]Handler
	logger       *slog.Logger
	workerCount  int
	pollInterval time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

func NewWorkerPool(repo repository.JobRepo, handlers map[string]Handler, logger *slog.Logger, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		repo:         repo,
		handlers:     handlers,
		logger:       logger,
		workerCount:  workerCount,
		pollInterval: defaultPollInterval,
		stop:         make(chan struct{}),
	}
}

// SetPollInterval changes how long an idle worker waits before polling again.
// It must be called before Start.
func (p *WorkerPool) SetPollInterval(d time.Duration) {
	if d > 0 {
		p.pollInterval = d
	}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "workers", p.workerCount)
}

// Stop signals workers to stop and waits for them. In-flight jobs finish first.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Debug("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Debug("context canceled, worker exiting", "id", id)
			return
		default:
		}

		job, err := p.repo.FetchNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("fetch job", "err", err)
			}
			p.wait(ctx, 2*p.pollInterval)
			continue
		}
		if job == nil {
			// nothing to do
			p.wait(ctx, p.pollInterval)
			continue
		}
		p.run(ctx, job)
	}
}

// wait sleeps for d or until the pool stops.
func (p *WorkerPool) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.stop:
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *WorkerPool) run(ctx context.Context, job *models.BackgroundJob) {
	h, ok := p.handlers[job.Type]
	if !ok {
		job.Status = StatusFailed
		job.LastError = "no handler"
		p.logger.Warn("job without handler", "job_id", job.ID, "type", job.Type)
		if mvErr := p.repo.MoveToDeadLetter(ctx, job); mvErr != nil {
			p.logger.Error("move to dead letter", "job_id", job.ID, "err", mvErr)
		}
		return
	}

	start := time.Now()
	err := h(ctx, job)
	if err == nil {
		job.Status = StatusDone
		if upErr := p.repo.UpdateJob(ctx, job); upErr != nil {
			p.logger.Error("mark job done", "job_id", job.ID, "err", upErr)
		}
		p.logger.Info("job done", "job_id", job.ID, "type", job.Type, "duration", time.Since(start))
		return
	}

	// handler returned error
	job.Attempts++
	job.LastError = err.Error()
	if errors.Is(err, ErrPermanent) || job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		p.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "attempts", job.Attempts, "err", err)
		if mvErr := p.repo.MoveToDeadLetter(ctx, job); mvErr != nil {
			p.logger.Error("move to dead letter", "job_id", job.ID, "err", mvErr)
		}
		return
	}

	// schedule retry with backoff
	t := time.Now().Add(BackoffDuration(job.Attempts))
	job.NextTryAt = &t
	job.Status = StatusRetry
	p.logger.Info("job scheduled for retry", "job_id", job.ID, "type", job.Type, "attempts", job.Attempts, "next_try_at", t, "err", err)
	if upErr := p.repo.UpdateJob(ctx, job); upErr != nil {
		p.logger.Error("update job for retry", "job_id", job.ID, "err", upErr)
	}
}

// Enqueue convenience helper that creates a job and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	return Enqueue(ctx, p.repo, typ, payload, priority, maxAttempts)
}

// Enqueue creates a job on repo. It does not need a running pool.
func Enqueue(ctx context.Context, repo repository.JobRepo, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	j := &models.BackgroundJob{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now()}
	return repo.Enqueue(ctx, j)
}
