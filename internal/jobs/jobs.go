package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/taosdlc/internal/models"
)

// Job statuses as stored in the jobs table.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusRetry   = "retry"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *models.BackgroundJob) error

// ErrPermanent marks a handler failure that retrying cannot fix. Such jobs
// go straight to the dead letter table.
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so the pool does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	// simple exponential: base 2^attempt seconds, capped
	if attempt > 9 {
		return 5 * time.Minute
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}

// small contract description
// inputs: job table rows, handlers map
// outputs: job status updates, dead-letter moves on permanent failure
// error modes: db errors, handler errors
