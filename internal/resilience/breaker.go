package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-narrator/internal/faults"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState int

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a single probe call; its outcome decides
	// whether the breaker closes again or re-opens.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker is a circuit breaker guarding one external dependency. It opens
// after FailureThreshold consecutive failures, rejects calls for Cooldown,
// then admits one probe. All transitions use the injected clock so tests
// never sleep.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// BreakerOption customizes a Breaker.
type BreakerOption func(*Breaker)

// WithClock injects a clock. Tests use this to advance time manually.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker creates a closed breaker for the named dependency.
func NewBreaker(name string, failureThreshold int, cooldown time.Duration, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: failureThreshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	if b.threshold <= 0 {
		b.threshold = 5
	}
	if b.cooldown <= 0 {
		b.cooldown = 30 * time.Second
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state, applying any due open→half-open transition.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Do runs op through the breaker. When the breaker is open (or a half-open
// probe is already in flight) it fails fast with CodeBreakerOpen without
// touching the dependency.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

// admit decides whether a call may proceed, reserving the half-open probe slot.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()
	switch b.state {
	case StateOpen:
		return faults.New(faults.CodeBreakerOpen, "%s circuit is open, failing fast", b.name)
	case StateHalfOpen:
		if b.probing {
			return faults.New(faults.CodeBreakerOpen, "%s circuit is half-open with a probe in flight", b.name)
		}
		b.probing = true
	}
	return nil
}

// record applies a call outcome to the state machine.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if err != nil {
			b.trip()
			return
		}
		log.Info().Str("breaker", b.name).Msg("Probe succeeded, circuit closed")
		b.state = StateClosed
		b.failures = 0
	case StateClosed:
		if err == nil {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}
	}
}

// trip moves to open and stamps the cooldown start. Caller holds the lock.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	log.Warn().
		Str("breaker", b.name).
		Dur("cooldown", b.cooldown).
		Msg("Failure threshold reached, circuit opened")
}

// maybeHalfOpen transitions open→half-open once the cooldown has elapsed.
// Caller holds the lock.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		log.Debug().Str("breaker", b.name).Msg("Cooldown elapsed, circuit half-open")
		b.state = StateHalfOpen
		b.probing = false
	}
}
