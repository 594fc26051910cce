// Package flowcontrol implements admission control for send paths: a
// token bucket composed with buffer-pressure-aware extra delay.
package flowcontrol

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
)

// PressureSource reports the current congestion level of an upstream
// queue (the write buffer or a connection's outbound queue), in
// [0,1].
type PressureSource func() float64

// Config tunes the flow controller.
type Config struct {
	RPS       float64
	Burst     int
	BaseDelay time.Duration
}

// DefaultConfig mirrors spec §4.11's illustrative defaults.
func DefaultConfig() Config {
	return Config{RPS: 100, Burst: 50, BaseDelay: 50 * time.Millisecond}
}

// BackpressureEvent is emitted to subscribers once pressure reaches
// the activation threshold.
type BackpressureEvent struct {
	Level float64
	At    time.Time
}

// Subscriber receives BackpressureActivated events.
type Subscriber func(BackpressureEvent)

// FlowPermit is returned on a successful Acquire; Release records
// bytes used for metrics.
type FlowPermit struct {
	fc    *Controller
	bytes int
}

// Release records the permit's byte usage.
func (p *FlowPermit) Release(bytes int) {
	p.fc.recordUsage(bytes)
}

// Controller composes a token bucket with buffer-pressure delay.
type Controller struct {
	limiter  *rate.Limiter
	cfg      Config
	pressure PressureSource

	mu          sync.Mutex
	subscribers []Subscriber
	bytesUsed   uint64
}

// New constructs a Controller. pressure may be nil, in which case no
// extra delay is ever applied.
func New(cfg Config, pressure PressureSource) *Controller {
	if pressure == nil {
		pressure = func() float64 { return 0 }
	}
	return &Controller{
		limiter:  rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cfg:      cfg,
		pressure: pressure,
	}
}

// Subscribe registers a BackpressureActivated subscriber.
func (c *Controller) Subscribe(sub Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, sub)
}

// AcquirePermit blocks until one token is available (bounded by ctx),
// applying proportional extra delay once pressure exceeds 0.8, and
// notifying subscribers once it exceeds 0.95.
func (c *Controller) AcquirePermit(ctx context.Context) (*FlowPermit, error) {
	level := c.pressure()
	if level >= 0.8 {
		extra := time.Duration(float64(c.cfg.BaseDelay) * (level - 0.8) / 0.2)
		select {
		case <-time.After(extra):
		case <-ctx.Done():
			return nil, olympuserr.Wrap(olympuserr.Timeout, "flowcontrol.AcquirePermit", "cancelled during pressure delay", ctx.Err())
		}
	}
	if level >= 0.95 {
		c.notify(BackpressureEvent{Level: level, At: time.Now()})
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, olympuserr.Wrap(olympuserr.Timeout, "flowcontrol.AcquirePermit", "token bucket wait failed", err)
	}
	return &FlowPermit{fc: c}, nil
}

func (c *Controller) notify(ev BackpressureEvent) {
	c.mu.Lock()
	subs := append([]Subscriber(nil), c.subscribers...)
	c.mu.Unlock()
	for _, sub := range subs {
		sub(ev)
	}
}

func (c *Controller) recordUsage(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesUsed += uint64(bytes)
}

// BytesUsed returns the cumulative bytes recorded via FlowPermit.Release.
func (c *Controller) BytesUsed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesUsed
}

// ClearBuffer re-applies the configured burst and rate to the token
// bucket. The controller keeps no queue of its own: tokens already in
// the bucket are kept, and callers already blocked waiting for a token
// are neither released nor cancelled.
func (c *Controller) ClearBuffer() {
	c.limiter.SetBurst(c.cfg.Burst)
	c.limiter.SetLimit(rate.Limit(c.cfg.RPS))
}
