package gods

import (
	"context"
	"log/slog"
	"time"

	"github.com/deliveryhero/asya/olympus/internal/metrics"
	"github.com/deliveryhero/asya/olympus/pkg/envelope"
)

// Themis is the rule/audit actor. It is wired into the supervision
// tree as a live Trinity member (spec's Olympic health check expects
// all three gods present) but its rule engine and audit log are
// outside this system's hard core; it currently only records every
// envelope it receives and acknowledges commands/queries with "ok".
type Themis struct {
	metrics *metrics.Registry
	log     *slog.Logger
}

// NewThemis constructs the themis actor.
func NewThemis(reg *metrics.Registry, log *slog.Logger) *Themis {
	if log == nil {
		log = slog.Default()
	}
	return &Themis{metrics: reg, log: log.With("god", "themis")}
}

func (t *Themis) Initialize(ctx context.Context) error { return nil }

func (t *Themis) Shutdown(ctx context.Context, reason string) error { return nil }

func (t *Themis) Handle(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
	start := time.Now()
	t.log.Debug("audit", "from", env.From, "kind", env.Payload.Kind)

	var resp envelope.Envelope
	switch env.Payload.Kind {
	case envelope.KindCommand, envelope.KindQuery:
		resp = envelope.NewResponse(env, "ok", "")
	default:
		resp = envelope.Envelope{}
	}

	if t.metrics != nil {
		t.metrics.RecordMessage("themis", time.Since(start))
	}
	return resp, nil
}
