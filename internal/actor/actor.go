// Package actor implements the per-actor runtime: a single-consumer
// mailbox, lifecycle hooks, health/heartbeat reporting, and the panic
// boundary that converts a crashed handler into a supervision signal.
//
// Each actor runs as one goroutine ("task" in spec terms); handlers
// are invoked serially, never re-entrantly, matching the teacher's
// one-goroutine-per-consumer style (asya-gateway/internal/consumer).
package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
	"github.com/deliveryhero/asya/olympus/pkg/envelope"
)

// Status is the actor's lifecycle state (spec §3 Actor state record).
type Status string

const (
	Starting   Status = "starting"
	Running    Status = "running"
	Degraded   Status = "degraded"
	Recovering Status = "recovering"
	Stopping   Status = "stopping"
	Stopped    Status = "stopped"
	Failed     Status = "failed"
	Dead       Status = "dead"
)

// HealthSnapshot is a pure, non-blocking read of an actor's local
// counters, returned by health_check().
type HealthSnapshot struct {
	Name         string
	Status       Status
	StartTime    time.Time
	LastMessage  time.Time
	MessageCount uint64
	ErrorCount   uint64
	LastError    string
}

// Heartbeat is emitted on a fixed cadence for supervisor surveillance.
type Heartbeat struct {
	Name     string
	Status   Status
	LastSeen time.Time
	Load     int // current mailbox depth
	Uptime   time.Duration
}

// Handler implements the domain logic of one actor. Supervisors and
// the runtime never hold a Handler pointer beyond constructing the
// Runtime around it — all further interaction goes through mailbox
// sends, matching §9's "no trait-object actor" guidance.
type Handler interface {
	// Initialize runs once before the mailbox loop starts accepting
	// envelopes. A returned error is fatal for this instance.
	Initialize(ctx context.Context) error
	// Handle processes exactly one envelope and returns its response
	// envelope (a zero Envelope for Event envelopes, which expect none).
	Handle(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error)
	// Shutdown is invoked once, after the mailbox has been drained or
	// the graceful timeout has elapsed.
	Shutdown(ctx context.Context, reason string) error
}

// SupervisorNotifier is the narrow control channel the runtime uses to
// report failures upward; Runtime never holds the Supervisor itself.
type SupervisorNotifier interface {
	NotifyFailure(name string, err error)
	NotifyHeartbeat(hb Heartbeat)
}

// Config tunes one actor's runtime knobs.
type Config struct {
	MailboxCapacity          int
	HeartbeatInterval        time.Duration
	GracefulShutdownTimeout  time.Duration
	DeadLetterSink           func(envelope.Envelope)
	ResponseTimeoutThreshold int // consecutive handler failures before escalation
}

// DefaultConfig matches the defaults named in spec §4.2.
func DefaultConfig() Config {
	return Config{
		MailboxCapacity:          1024,
		HeartbeatInterval:        500 * time.Millisecond,
		GracefulShutdownTimeout:  5 * time.Second,
		ResponseTimeoutThreshold: 3,
	}
}

// mailboxItem pairs an inbound envelope with the channel its response
// (if any) should be delivered on.
type mailboxItem struct {
	env      envelope.Envelope
	respChan chan envelope.Envelope
}

// Runtime owns a Handler's mailbox and lifecycle. One Runtime maps to
// exactly one running goroutine.
type Runtime struct {
	name     string
	handler  Handler
	cfg      Config
	notifier SupervisorNotifier
	log      *slog.Logger

	mailbox chan mailboxItem
	done    chan struct{}
	cancel  context.CancelFunc

	mu           sync.RWMutex
	status       Status
	startTime    time.Time
	lastMessage  time.Time
	messageCount atomic.Uint64
	errorCount   atomic.Uint64
	lastError    string

	consecutiveFailures int
}

// New constructs a Runtime for handler. Call Start to begin the
// mailbox loop.
func New(name string, handler Handler, cfg Config, notifier SupervisorNotifier, log *slog.Logger) *Runtime {
	if cfg.MailboxCapacity <= 0 {
		cfg.MailboxCapacity = DefaultConfig().MailboxCapacity
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = DefaultConfig().GracefulShutdownTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{
		name:     name,
		handler:  handler,
		cfg:      cfg,
		notifier: notifier,
		log:      log.With("actor", name),
		mailbox:  make(chan mailboxItem, cfg.MailboxCapacity),
		done:     make(chan struct{}),
		status:   Starting,
	}
}

// Start runs Initialize and, on success, launches the mailbox and
// heartbeat loops in a new goroutine. It returns once Initialize has
// completed (success or failure) so the supervisor can observe the
// outcome synchronously, as required by the restart procedure of §4.3.
func (r *Runtime) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if err := r.handler.Initialize(runCtx); err != nil {
		r.setStatus(Failed)
		r.recordError(err)
		cancel()
		return olympuserr.Wrap(olympuserr.Panic, "actor.Start", "initialize failed", err)
	}

	r.mu.Lock()
	r.startTime = time.Now()
	r.lastMessage = r.startTime
	r.mu.Unlock()
	r.setStatus(Running)

	go r.loop(runCtx)
	go r.heartbeatLoop(runCtx)

	return nil
}

func (r *Runtime) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-r.mailbox:
			if !ok {
				return
			}
			r.process(ctx, item)
		}
	}
}

func (r *Runtime) process(ctx context.Context, item mailboxItem) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			r.recordError(err)
			r.log.Error("actor handler panicked", "error", err)
			if item.respChan != nil {
				item.respChan <- envelope.NewUnavailableResponse(item.env, string(olympuserr.Panic))
				close(item.respChan)
			}
			r.notifier.NotifyFailure(r.name, olympuserr.Wrap(olympuserr.Panic, "actor.process", "handler panic", err))
		}
	}()

	if item.env.Expired(time.Now()) {
		if item.respChan != nil {
			item.respChan <- envelope.NewUnavailableResponse(item.env, string(olympuserr.Timeout))
			close(item.respChan)
		}
		return
	}

	r.mu.Lock()
	r.lastMessage = time.Now()
	r.mu.Unlock()
	r.messageCount.Add(1)

	resp, err := r.handler.Handle(ctx, item.env)
	if err != nil {
		r.recordError(err)
		r.mu.Lock()
		r.consecutiveFailures++
		failures := r.consecutiveFailures
		r.mu.Unlock()

		kind, _ := olympuserr.KindOf(err)
		if item.respChan != nil {
			item.respChan <- envelope.NewResponse(item.env, nil, string(kind))
			close(item.respChan)
		}

		// Ordinary business errors do not restart actors (spec §7);
		// only repeated failures beyond the threshold do.
		if failures >= r.cfg.ResponseTimeoutThreshold {
			r.setStatus(Degraded)
			r.notifier.NotifyFailure(r.name, err)
		}
		return
	}

	r.mu.Lock()
	r.consecutiveFailures = 0
	r.mu.Unlock()
	if r.Status() == Degraded {
		r.setStatus(Running)
	}

	if item.respChan != nil {
		item.respChan <- resp
		close(item.respChan)
	}
}

func (r *Runtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.notifier.NotifyHeartbeat(r.Heartbeat())
		}
	}
}

// Deliver enqueues env on the mailbox. If the envelope expects a
// response, the returned channel receives exactly one Response
// envelope and is then closed. Deliver itself never blocks on a full
// mailbox beyond ctx's deadline.
func (r *Runtime) Deliver(ctx context.Context, env envelope.Envelope) (<-chan envelope.Envelope, error) {
	var respChan chan envelope.Envelope
	if env.ExpectsResponse() {
		respChan = make(chan envelope.Envelope, 1)
	}
	item := mailboxItem{env: env, respChan: respChan}

	select {
	case r.mailbox <- item:
		return respChan, nil
	case <-ctx.Done():
		return nil, olympuserr.Wrap(olympuserr.Timeout, "actor.Deliver", "mailbox full", ctx.Err())
	}
}

// HealthCheck is a pure, non-blocking read of local counters.
func (r *Runtime) HealthCheck() HealthSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return HealthSnapshot{
		Name:         r.name,
		Status:       r.status,
		StartTime:    r.startTime,
		LastMessage:  r.lastMessage,
		MessageCount: r.messageCount.Load(),
		ErrorCount:   r.errorCount.Load(),
		LastError:    r.lastError,
	}
}

// Heartbeat builds the current Heartbeat snapshot.
func (r *Runtime) Heartbeat() Heartbeat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uptime := time.Duration(0)
	if !r.startTime.IsZero() {
		uptime = time.Since(r.startTime)
	}
	return Heartbeat{
		Name:     r.name,
		Status:   r.status,
		LastSeen: time.Now(),
		Load:     len(r.mailbox),
		Uptime:   uptime,
	}
}

// Status returns the current lifecycle status.
func (r *Runtime) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetStatus allows the supervisor to force a status transition, e.g.
// Failed -> Recovering, without re-deriving it from the actor itself.
func (r *Runtime) SetStatus(s Status) { r.setStatus(s) }

func (r *Runtime) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func (r *Runtime) recordError(err error) {
	r.errorCount.Add(1)
	r.mu.Lock()
	r.lastError = err.Error()
	r.mu.Unlock()
}

// Shutdown drains the mailbox up to cfg.GracefulShutdownTimeout; any
// remaining items are sent to DeadLetterSink and the actor transitions
// to Stopped.
func (r *Runtime) Shutdown(ctx context.Context, reason string) error {
	r.setStatus(Stopping)

	shutdownCtx, cancel := context.WithTimeout(ctx, r.cfg.GracefulShutdownTimeout)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case item, ok := <-r.mailbox:
				if !ok {
					return
				}
				r.process(shutdownCtx, item)
			default:
				return
			}
		}
	}()

	select {
	case <-drained:
	case <-shutdownCtx.Done():
	}

	if r.cancel != nil {
		r.cancel()
	}
	<-r.done

	// Drain anything left with no further processing, to the
	// dead-letter sink.
	for {
		select {
		case item := <-r.mailbox:
			if r.cfg.DeadLetterSink != nil {
				r.cfg.DeadLetterSink(item.env)
			}
			if item.respChan != nil {
				close(item.respChan)
			}
		default:
			goto drainedDone
		}
	}
drainedDone:

	err := r.handler.Shutdown(ctx, reason)
	r.setStatus(Stopped)
	return err
}
