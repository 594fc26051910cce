// Package metrics implements system-wide and per-actor counters,
// a retention-bounded history of snapshots, threshold-driven alerts,
// and Prometheus text exposition (spec §4.12).
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Severity classifies an alert.
type Severity string

const (
	Info     Severity = "info"
	Warning  Severity = "warning"
	Error    Severity = "error"
	Critical Severity = "critical"
)

// AlertStatus tracks an alert's acknowledgement lifecycle.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert is one threshold crossing.
type Alert struct {
	ID        string
	Name      string
	Severity  Severity
	Status    AlertStatus
	Value     float64
	Threshold float64
	RaisedAt  time.Time
}

// ActorMetrics is the per-actor read model.
type ActorMetrics struct {
	Name            string
	Messages        uint64
	Errors          uint64
	Restarts        uint64
	LastMessageTime time.Time
	AvgProcessingMs float64
	MemoryMB        float64
	CPUPercent      float64
	Status          string
}

// Snapshot is one point-in-time capture for the historical ring.
type Snapshot struct {
	At          time.Time
	Messages    uint64
	Errors      uint64
	Restarts    uint64
	Recoveries  uint64
	Panics      uint64
	DeadLetters uint64
}

// Threshold names a derived value and the bound that raises an alert
// at Severity when crossed.
type Threshold struct {
	Name     string
	Severity Severity
	Value    float64
}

// Config tunes retention and alert thresholds.
type Config struct {
	RetentionHours int
	TickInterval   time.Duration
	Thresholds     []Threshold
}

// DefaultConfig mirrors spec §6's illustrative defaults.
func DefaultConfig() Config {
	return Config{
		RetentionHours: 24,
		TickInterval:   60 * time.Second,
		Thresholds: []Threshold{
			{Name: "error_rate", Severity: Warning, Value: 0.05},
			{Name: "error_rate", Severity: Critical, Value: 0.2},
			{Name: "dead_letters_per_minute", Severity: Warning, Value: 5},
			{Name: "dead_letters_per_minute", Severity: Critical, Value: 20},
		},
	}
}

// Registry aggregates system and per-actor metrics.
type Registry struct {
	cfg Config

	messages, errorsCnt, restarts, recoveries, panics, deadLetters atomic.Uint64

	mu       sync.Mutex
	actors   map[string]*ActorMetrics
	history  []Snapshot
	alerts   map[string]*Alert
	started  time.Time
	alertSeq uint64

	promMessages  prometheus.Counter
	promErrors    prometheus.Counter
	promRestarts  prometheus.Counter
	promRecov     prometheus.Counter
	promErrorRate prometheus.Gauge
	promDeadLetterRate prometheus.Gauge
	promUptime    prometheus.Gauge
	promActiveAl  prometheus.Gauge
	promActorMsg  *prometheus.GaugeVec
	promActorErr  *prometheus.GaugeVec
	promActorMem  *prometheus.GaugeVec
	promSysMem    prometheus.Gauge
	promSysCPU    prometheus.Gauge
}

// NewRegistry constructs a Registry and registers its series with reg.
// Passing prometheus.NewRegistry() keeps test instances isolated from
// the global default registry.
func NewRegistry(cfg Config, reg prometheus.Registerer) *Registry {
	r := &Registry{
		cfg:     cfg,
		actors:  make(map[string]*ActorMetrics),
		alerts:  make(map[string]*Alert),
		started: time.Now(),

		promMessages:  prometheus.NewCounter(prometheus.CounterOpts{Name: "olympus_messages_total"}),
		promErrors:    prometheus.NewCounter(prometheus.CounterOpts{Name: "olympus_errors_total"}),
		promRestarts:  prometheus.NewCounter(prometheus.CounterOpts{Name: "olympus_restarts_total"}),
		promRecov:     prometheus.NewCounter(prometheus.CounterOpts{Name: "olympus_recoveries_total"}),
		promErrorRate: prometheus.NewGauge(prometheus.GaugeOpts{Name: "olympus_error_rate"}),
		promDeadLetterRate: prometheus.NewGauge(prometheus.GaugeOpts{Name: "olympus_dead_letters_per_minute"}),
		promUptime:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "olympus_uptime_seconds"}),
		promActiveAl:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "olympus_active_alerts"}),
		promActorMsg:  prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "olympus_actor_messages"}, []string{"actor"}),
		promActorErr:  prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "olympus_actor_errors"}, []string{"actor"}),
		promActorMem:  prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "olympus_actor_memory_mb"}, []string{"actor"}),
		promSysMem:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "olympus_system_memory_mb"}),
		promSysCPU:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "olympus_system_cpu_percent"}),
	}

	if reg != nil {
		reg.MustRegister(r.promMessages, r.promErrors, r.promRestarts, r.promRecov,
			r.promErrorRate, r.promDeadLetterRate, r.promUptime, r.promActiveAl, r.promActorMsg, r.promActorErr,
			r.promActorMem, r.promSysMem, r.promSysCPU)
	}
	return r
}

func (r *Registry) actor(name string) *ActorMetrics {
	a, ok := r.actors[name]
	if !ok {
		a = &ActorMetrics{Name: name}
		r.actors[name] = a
	}
	return a
}

// RecordMessage increments the message counters for actor.
func (r *Registry) RecordMessage(actorName string, processingTime time.Duration) {
	r.messages.Add(1)
	r.promMessages.Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.actor(actorName)
	a.Messages++
	a.LastMessageTime = time.Now()
	n := float64(a.Messages)
	a.AvgProcessingMs = a.AvgProcessingMs + (float64(processingTime.Milliseconds())-a.AvgProcessingMs)/n
	r.promActorMsg.WithLabelValues(actorName).Set(float64(a.Messages))
}

// RecordError increments the error counters for actor.
func (r *Registry) RecordError(actorName string) {
	r.errorsCnt.Add(1)
	r.promErrors.Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.actor(actorName)
	a.Errors++
	r.promActorErr.WithLabelValues(actorName).Set(float64(a.Errors))
}

// RecordRestart increments the restart counters for actor.
func (r *Registry) RecordRestart(actorName string) {
	r.restarts.Add(1)
	r.promRestarts.Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.actor(actorName)
	a.Restarts++
}

// RecordRecovery increments the recovery counter.
func (r *Registry) RecordRecovery() {
	r.recoveries.Add(1)
	r.promRecov.Inc()
}

// RecordPanic increments the panic counter.
func (r *Registry) RecordPanic() {
	r.panics.Add(1)
}

// RecordDeadLetter increments the dead letter counter.
func (r *Registry) RecordDeadLetter() {
	r.deadLetters.Add(1)
}

// SetActorResourceUsage records estimated memory/cpu for actor, used
// both by the read model and the Prometheus gauges.
func (r *Registry) SetActorResourceUsage(actorName string, memMB, cpuPercent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.actor(actorName)
	a.MemoryMB = memMB
	a.CPUPercent = cpuPercent
	r.promActorMem.WithLabelValues(actorName).Set(memMB)
}

// SetActorStatus records actor's current lifecycle status string.
func (r *Registry) SetActorStatus(actorName, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actor(actorName).Status = status
}

// SetSystemResourceUsage records process-wide memory/cpu estimates.
func (r *Registry) SetSystemResourceUsage(memMB, cpuPercent float64) {
	r.promSysMem.Set(memMB)
	r.promSysCPU.Set(cpuPercent)
}

// ActorSnapshot returns a copy of actorName's current metrics.
func (r *Registry) ActorSnapshot(actorName string) (ActorMetrics, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[actorName]
	if !ok {
		return ActorMetrics{}, false
	}
	return *a, true
}

// Tick computes derived values, appends a Snapshot to the retention
// ring, and evaluates configured thresholds, raising/clearing alerts
// idempotently. Intended to be driven by an external ticker at
// cfg.TickInterval.
func (r *Registry) Tick() []Alert {
	messages := r.messages.Load()
	errs := r.errorsCnt.Load()

	snap := Snapshot{
		At: time.Now(), Messages: messages, Errors: errs,
		Restarts: r.restarts.Load(), Recoveries: r.recoveries.Load(),
		Panics: r.panics.Load(), DeadLetters: r.deadLetters.Load(),
	}

	var errorRate float64
	if messages > 0 {
		errorRate = float64(errs) / float64(messages)
	}
	r.promErrorRate.Set(errorRate)

	var deadLettersPerMinute float64
	if uptimeMinutes := time.Since(r.started).Minutes(); uptimeMinutes > 0 {
		deadLettersPerMinute = float64(snap.DeadLetters) / uptimeMinutes
	}
	r.promDeadLetterRate.Set(deadLettersPerMinute)

	r.promUptime.Set(time.Since(r.started).Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, snap)
	cutoff := time.Now().Add(-time.Duration(r.cfg.RetentionHours) * time.Hour)
	i := 0
	for i < len(r.history) && r.history[i].At.Before(cutoff) {
		i++
	}
	r.history = r.history[i:]

	var raised []Alert
	for _, th := range r.cfg.Thresholds {
		var value float64
		switch th.Name {
		case "error_rate":
			value = errorRate
		case "dead_letters_per_minute":
			value = deadLettersPerMinute
		default:
			continue
		}
		key := fmt.Sprintf("%s:%s", th.Name, th.Severity)
		if value >= th.Value {
			if _, exists := r.alerts[key]; !exists {
				r.alertSeq++
				a := Alert{
					ID: fmt.Sprintf("alert-%d", r.alertSeq), Name: th.Name, Severity: th.Severity,
					Status: AlertActive, Value: value, Threshold: th.Value, RaisedAt: time.Now(),
				}
				r.alerts[key] = &a
				raised = append(raised, a)
			}
		} else if existing, exists := r.alerts[key]; exists {
			existing.Status = AlertResolved
			delete(r.alerts, key)
		}
	}

	active := 0
	for _, a := range r.alerts {
		if a.Status == AlertActive {
			active++
		}
	}
	r.promActiveAl.Set(float64(active))

	return raised
}

// AcknowledgeAlert marks an active alert acknowledged.
func (r *Registry) AcknowledgeAlert(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.ID == id {
			a.Status = AlertAcknowledged
			return true
		}
	}
	return false
}

// ActiveAlerts returns a snapshot of currently active/acknowledged alerts.
func (r *Registry) ActiveAlerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, *a)
	}
	return out
}

// History returns a copy of the retained snapshot ring.
func (r *Registry) History() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.history...)
}
