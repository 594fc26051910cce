package gods

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deliveryhero/asya/olympus/internal/fleet"
	"github.com/deliveryhero/asya/olympus/internal/flowcontrol"
	"github.com/deliveryhero/asya/olympus/internal/metrics"
	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
	"github.com/deliveryhero/asya/olympus/internal/reconnect"
	"github.com/deliveryhero/asya/olympus/pkg/envelope"
)

// HermesCommand is the Command payload understood by the hermes
// actor.
type HermesCommand struct {
	Op           string // "connect", "disconnect", "send", "broadcast"
	ConnectionID string
	Domain       string
	URL          string
	Text         string
	Binary       []byte
}

// HermesQuery is the Query payload understood by the hermes actor.
type HermesQuery struct {
	Op           string // "snapshot", "all"
	ConnectionID string
}

// Hermes combines the connection fleet, reconnection state machine,
// and flow controller into one addressable transport actor.
type Hermes struct {
	fleet   *fleet.Fleet
	flow    *flowcontrol.Controller
	recon   map[string]*reconnect.State
	metrics *metrics.Registry
	log     *slog.Logger
}

// NewHermes constructs the hermes actor around already-built component
// instances.
func NewHermes(f *fleet.Fleet, flow *flowcontrol.Controller, reg *metrics.Registry, log *slog.Logger) *Hermes {
	if log == nil {
		log = slog.Default()
	}
	return &Hermes{fleet: f, flow: flow, recon: make(map[string]*reconnect.State), metrics: reg, log: log.With("god", "hermes")}
}

func (h *Hermes) Initialize(ctx context.Context) error { return nil }

func (h *Hermes) Shutdown(ctx context.Context, reason string) error { return nil }

func (h *Hermes) Handle(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
	start := time.Now()
	var resp envelope.Envelope
	var err error

	switch env.Payload.Kind {
	case envelope.KindCommand:
		resp, err = h.handleCommand(ctx, env)
	case envelope.KindQuery:
		resp, err = h.handleQuery(ctx, env)
	case envelope.KindEvent:
		resp, err = envelope.Envelope{}, nil
	default:
		resp, err = envelope.Envelope{}, olympuserr.New(olympuserr.InvalidCommand, "hermes.Handle", "unsupported payload kind")
	}

	if h.metrics != nil {
		h.metrics.RecordMessage("hermes", time.Since(start))
		if err != nil {
			h.metrics.RecordError("hermes")
		}
	}
	return resp, err
}

func (h *Hermes) handleCommand(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
	cmd, ok := env.Payload.Command.(HermesCommand)
	if !ok {
		return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidCommand, "hermes.handleCommand", "payload is not a HermesCommand")
	}

	switch cmd.Op {
	case "connect":
		if _, err := h.flow.AcquirePermit(ctx); err != nil {
			return envelope.Envelope{}, err
		}
		id, err := h.fleet.Connect(ctx, cmd.URL, cmd.Domain)
		if err != nil {
			return envelope.Envelope{}, err
		}
		h.recon[id] = reconnect.NewState(
			reconnect.Plan{Kind: reconnect.PlanExponential, Initial: 200 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: 0.2},
			reconnect.DefaultBreakerConfig(),
		)
		return envelope.NewResponse(env, id, ""), nil

	case "disconnect":
		if err := h.fleet.Disconnect(cmd.ConnectionID); err != nil {
			return envelope.Envelope{}, err
		}
		delete(h.recon, cmd.ConnectionID)
		return envelope.NewResponse(env, "ok", ""), nil

	case "send":
		permit, err := h.flow.AcquirePermit(ctx)
		if err != nil {
			return envelope.Envelope{}, err
		}
		if cmd.Binary != nil {
			err = h.fleet.SendBinary(cmd.ConnectionID, cmd.Binary)
		} else {
			err = h.fleet.SendText(cmd.ConnectionID, cmd.Text)
		}
		permit.Release(len(cmd.Binary) + len(cmd.Text))
		if err != nil {
			return envelope.Envelope{}, err
		}
		return envelope.NewResponse(env, "ok", ""), nil

	case "broadcast":
		results := h.fleet.BroadcastToDomain(cmd.Domain, fleet.Frame{Data: []byte(cmd.Text)})
		return envelope.NewResponse(env, results, ""), nil

	default:
		return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidCommand, "hermes.handleCommand", fmt.Sprintf("unknown op %q", cmd.Op))
	}
}

func (h *Hermes) handleQuery(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
	q, ok := env.Payload.Query.(HermesQuery)
	if !ok {
		return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidQuery, "hermes.handleQuery", "payload is not a HermesQuery")
	}

	switch q.Op {
	case "snapshot":
		conn, ok := h.fleet.GetConnection(q.ConnectionID)
		if !ok {
			return envelope.Envelope{}, olympuserr.New(olympuserr.NotFound, "hermes.handleQuery", "connection not found")
		}
		return envelope.NewResponse(env, conn, ""), nil

	case "all":
		return envelope.NewResponse(env, h.fleet.GetAllConnections(), ""), nil

	default:
		return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidQuery, "hermes.handleQuery", fmt.Sprintf("unknown op %q", q.Op))
	}
}
