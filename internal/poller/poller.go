// Package poller implements the generic async polling loop used by any stage
// that waits on a long-running external job (Rekognition segment detection,
// or callers watching overall narration job status).
//
// One poll per job id may run at a time; a second caller fails fast with
// AlreadyPolling instead of doubling the load on the checked resource.
// Cancellation is checked at the inter-poll sleep, which is the only
// suspension point, so Cancel unblocks an in-flight poll immediately.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-narrator/internal/faults"
	"github.com/fpang/video-narrator/internal/resilience"
)

// State is the observed state of the polled resource.
type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Result is one observation of the polled resource.
type Result struct {
	State   State
	Message string
}

// CheckFunc observes the polled resource once. It should be cheap; the
// poller wraps each invocation in its own short timeout and retry budget.
type CheckFunc func(ctx context.Context) (Result, error)

// Options tune one polling run.
type Options struct {
	// Interval is the sleep between checks. Default 2s.
	Interval time.Duration
	// Timeout bounds the whole run. Default 10m.
	Timeout time.Duration
	// CheckTimeout bounds a single check invocation. Default 15s.
	CheckTimeout time.Duration
	// CheckAttempts is the per-check retry budget for transient errors.
	// Default 3.
	CheckAttempts int
	// OnProgress, when set, is invoked after every check with the attempt
	// number and the observed result.
	OnProgress func(attempt int, r Result)
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Minute
	}
	if o.CheckTimeout <= 0 {
		o.CheckTimeout = 15 * time.Second
	}
	if o.CheckAttempts <= 0 {
		o.CheckAttempts = 3
	}
	return o
}

// errCancelled is the cancellation cause installed by Cancel.
var errCancelled = errors.New("poll cancelled by caller")

// Poller tracks in-flight polls by job id.
type Poller struct {
	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
}

// New creates an idle Poller.
func New() *Poller {
	return &Poller{active: make(map[string]context.CancelCauseFunc)}
}

// Cancel aborts the in-flight poll for jobID, if any. The poll fails with
// PollingCancelled. Returns false when nothing was polling the id.
func (p *Poller) Cancel(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.active[jobID]
	p.mu.Unlock()
	if ok {
		log.Debug().Str("jobId", jobID).Msg("Cancelling in-flight poll")
		cancel(errCancelled)
	}
	return ok
}

// Poll repeatedly invokes check until the resource reaches a terminal state,
// the timeout expires (PollingTimeout), or the poll is cancelled
// (PollingCancelled). The terminal Result is returned for both completed and
// failed resources; interpreting a failed resource is the caller's business.
func (p *Poller) Poll(ctx context.Context, jobID string, check CheckFunc, opts Options) (Result, error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// The cancel func is installed under the same lock acquisition that
	// claims the slot, so a Cancel racing the start of a poll either loses
	// cleanly (nothing registered yet) or cancels this run.
	if err := p.acquire(jobID, cancel); err != nil {
		return Result{}, err
	}
	defer p.release(jobID)

	deadline := time.Now().Add(opts.Timeout)
	log.Debug().
		Str("jobId", jobID).
		Dur("interval", opts.Interval).
		Dur("timeout", opts.Timeout).
		Msg("Polling started")

	for attempt := 1; ; attempt++ {
		res, err := p.runCheck(runCtx, check, opts)
		if err != nil {
			if cause := p.terminalCause(runCtx, jobID); cause != nil {
				return Result{}, cause
			}
			return Result{}, err
		}

		if opts.OnProgress != nil {
			opts.OnProgress(attempt, res)
		}

		switch res.State {
		case StateCompleted, StateFailed:
			log.Debug().
				Str("jobId", jobID).
				Str("state", string(res.State)).
				Int("attempts", attempt).
				Msg("Polling reached terminal state")
			return res, nil
		}

		if time.Now().After(deadline) {
			return Result{}, faults.New(faults.CodePollingTimeout,
				"job %s did not reach a terminal state within %s", jobID, opts.Timeout)
		}

		select {
		case <-runCtx.Done():
			if cause := p.terminalCause(runCtx, jobID); cause != nil {
				return Result{}, cause
			}
			return Result{}, faults.Wrap(faults.CodeCancelled, context.Cause(runCtx), "poll for job %s aborted", jobID)
		case <-time.After(opts.Interval):
		}
	}
}

// runCheck invokes check with its own timeout and a small retry budget for
// transient errors.
func (p *Poller) runCheck(ctx context.Context, check CheckFunc, opts Options) (Result, error) {
	var res Result
	err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts: opts.CheckAttempts,
		BaseDelay:   500 * time.Millisecond,
		Name:        "poll-check",
	}, func(ctx context.Context) error {
		checkCtx, cancel := context.WithTimeout(ctx, opts.CheckTimeout)
		defer cancel()
		var err error
		res, err = check(checkCtx)
		return err
	})
	return res, err
}

// terminalCause maps a cancelled run context to the caller-facing fault.
func (p *Poller) terminalCause(ctx context.Context, jobID string) error {
	if ctx.Err() == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), errCancelled) {
		return faults.New(faults.CodePollingCancelled, "poll for job %s was cancelled", jobID)
	}
	return nil
}

func (p *Poller) acquire(jobID string, cancel context.CancelCauseFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.active[jobID]; busy {
		return faults.New(faults.CodeAlreadyPolling, "a poll for job %s is already running", jobID)
	}
	p.active[jobID] = cancel
	return nil
}

func (p *Poller) release(jobID string) {
	p.mu.Lock()
	delete(p.active, jobID)
	p.mu.Unlock()
}
