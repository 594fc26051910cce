// Package reconnect implements per-connection reconnection scheduling
// and circuit breaking: backoff plans drive the delay before the next
// dial attempt, and a circuit breaker guards against hammering a
// connection that keeps failing.
package reconnect

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
)

// PlanKind selects the reconnection delay formula.
type PlanKind string

const (
	PlanExponential PlanKind = "exponential_backoff"
	PlanFixed       PlanKind = "fixed_interval"
	PlanLinear      PlanKind = "linear_backoff"
)

// Plan parameterizes one of the three delay formulas in spec §4.10.
type Plan struct {
	Kind    PlanKind
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Step    time.Duration
	Jitter  float64
	Delay   time.Duration // used by PlanFixed
}

// delayForAttempt computes delay_n for attempt n (0-indexed).
func (p Plan) delayForAttempt(n int) time.Duration {
	switch p.Kind {
	case PlanFixed:
		return p.Delay
	case PlanLinear:
		d := p.Initial + time.Duration(n)*p.Step
		if p.Max > 0 && d > p.Max {
			d = p.Max
		}
		return d
	default: // PlanExponential
		factor := p.Factor
		if factor <= 0 {
			factor = 2
		}
		d := float64(p.Initial)
		for i := 0; i < n; i++ {
			d *= factor
		}
		if p.Max > 0 && time.Duration(d) > p.Max {
			d = float64(p.Max)
		}
		if p.Jitter > 0 {
			jitter := 1 + (rand.Float64()*2-1)*p.Jitter
			d *= jitter
		}
		return time.Duration(d)
	}
}

// planBackOff adapts Plan into cenkalti/backoff/v5's BackOff interface
// so the reconnect loop can be driven by backoff.Retry rather than a
// hand-rolled timer loop.
type planBackOff struct {
	plan    Plan
	attempt int
}

func (b *planBackOff) NextBackOff() time.Duration {
	d := b.plan.delayForAttempt(b.attempt)
	b.attempt++
	return d
}

func (b *planBackOff) Reset() { b.attempt = 0 }

// State tracks one connection's reconnection bookkeeping.
type State struct {
	mu         sync.Mutex
	plan       Plan
	attempts   int
	breaker    *gobreaker.CircuitBreaker
	newBreaker func() *gobreaker.CircuitBreaker

	openDuration    time.Duration
	maxOpenDuration time.Duration
}

// BreakerConfig tunes the circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenDuration     time.Duration
	MaxOpenDuration  time.Duration
}

// DefaultBreakerConfig mirrors spec §4.10's illustrative defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenDuration: 30 * time.Second, MaxOpenDuration: 5 * time.Minute}
}

// NewState constructs reconnection state for one connection.
func NewState(plan Plan, bc BreakerConfig) *State {
	s := &State{plan: plan, openDuration: bc.OpenDuration, maxOpenDuration: bc.MaxOpenDuration}
	s.newBreaker = func() *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "reconnect",
			MaxRequests: 1,
			Timeout:     s.currentOpenDuration(),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= bc.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if from == gobreaker.StateHalfOpen && to == gobreaker.StateOpen {
					s.doubleOpenDuration()
				}
			},
		})
	}
	s.breaker = s.newBreaker()
	return s
}

func (s *State) currentOpenDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openDuration == 0 {
		return 30 * time.Second
	}
	return s.openDuration
}

// doubleOpenDuration widens open_duration up to max_open_duration and
// swaps in a fresh breaker using the new timeout, per spec §4.10's
// "failure -> back to Open with doubled open_duration."
func (s *State) doubleOpenDuration() {
	s.mu.Lock()
	s.openDuration *= 2
	if s.maxOpenDuration > 0 && s.openDuration > s.maxOpenDuration {
		s.openDuration = s.maxOpenDuration
	}
	nb := s.newBreaker
	s.mu.Unlock()

	fresh := nb()
	s.mu.Lock()
	s.breaker = fresh
	s.mu.Unlock()
}

// NextDelay returns the delay before the next reconnection attempt and
// advances the internal attempt counter, per the configured Plan.
func (s *State) NextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.plan.delayForAttempt(s.attempts)
	s.attempts++
	return d
}

// ResetAttempts zeroes the attempt counter after a successful connect.
func (s *State) ResetAttempts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = 0
}

// BreakerState projects gobreaker's three states onto the spec's
// Closed/Open/HalfOpen vocabulary.
type BreakerState string

const (
	Closed   BreakerState = "closed"
	Open     BreakerState = "open"
	HalfOpen BreakerState = "half_open"
)

func (s *State) BreakerState() BreakerState {
	s.mu.Lock()
	b := s.breaker
	s.mu.Unlock()
	switch b.State() {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

// Allow runs op through the circuit breaker, rejecting with
// CircuitOpen if the breaker is Open.
func (s *State) Allow(op func() error) error {
	s.mu.Lock()
	b := s.breaker
	s.mu.Unlock()

	_, err := b.Execute(func() (any, error) {
		return nil, op()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return olympuserr.Wrap(olympuserr.CircuitOpen, "reconnect.Allow", "breaker open", err)
	}
	return err
}

// ForceCloseCircuit is a privileged reset back to Closed. gobreaker
// exposes no in-place reset, so this swaps in a fresh breaker built
// from the same settings.
func (s *State) ForceCloseCircuit() {
	fresh := s.newBreaker()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaker = fresh
}

// Reconnector drives a reconnect loop for a single connection using
// cenkalti/backoff/v5's generic Retry, parameterized by the connect
// function supplied by the fleet.
type Reconnector struct {
	state *State
}

// NewReconnector wraps a State with a retry-driven connect loop.
func NewReconnector(state *State) *Reconnector {
	return &Reconnector{state: state}
}

// Run attempts connectFn, retrying per the configured Plan until it
// succeeds or ctx is cancelled.
func (r *Reconnector) Run(ctx context.Context, connectFn func(ctx context.Context) error) error {
	bo := &planBackOff{plan: r.state.plan}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := r.state.Allow(func() error { return connectFn(ctx) })
		if err != nil {
			return struct{}{}, err
		}
		r.state.ResetAttempts()
		return struct{}{}, nil
	}, backoff.WithBackOff(bo))
	return err
}
