// Package gods wires the concrete named actors ("gods") onto the
// supervision tree: hestia (tiered persistence), hermes (WebSocket
// transport), and themis (rule/audit). Each god is an actor.Handler
// whose Handle method dispatches envelope commands/queries onto the
// persistence or transport components built in their sibling
// packages.
package gods

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/deliveryhero/asya/olympus/internal/cache"
	"github.com/deliveryhero/asya/olympus/internal/durable"
	"github.com/deliveryhero/asya/olympus/internal/kvstore"
	"github.com/deliveryhero/asya/olympus/internal/metrics"
	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
	"github.com/deliveryhero/asya/olympus/internal/syncer"
	"github.com/deliveryhero/asya/olympus/internal/writebuffer"
	"github.com/deliveryhero/asya/olympus/pkg/envelope"
)

// HestiaCommand is the Command payload understood by the hestia
// actor. Exactly one of the operation fields is meaningful, selected
// by Op.
type HestiaCommand struct {
	Op    string // "set", "delete", "sync"
	Table string
	Key   string
	Value json.RawMessage
	Tags  []string
}

// HestiaQuery is the Query payload understood by the hestia actor.
type HestiaQuery struct {
	Op    string // "get", "backup"
	Table string
	Key   string
}

// Hestia combines the L1 cache, L2/L3 adapters, async write buffer,
// and bidirectional synchronizer into one addressable actor.
type Hestia struct {
	l1      *cache.Cache
	l2      kvstore.Store
	l3      durable.Store
	buffer  *writebuffer.Buffer
	sync    *syncer.Synchronizer
	metrics *metrics.Registry
	log     *slog.Logger
}

// NewHestia constructs the hestia actor around already-built
// component instances; callers own their lifecycles (buffer.Start,
// for instance, is not called here).
func NewHestia(l1 *cache.Cache, l2 kvstore.Store, l3 durable.Store, buf *writebuffer.Buffer, sy *syncer.Synchronizer, reg *metrics.Registry, log *slog.Logger) *Hestia {
	if log == nil {
		log = slog.Default()
	}
	return &Hestia{l1: l1, l2: l2, l3: l3, buffer: buf, sync: sy, metrics: reg, log: log.With("god", "hestia")}
}

// Initialize satisfies actor.Handler; hestia has no startup work
// beyond what its component constructors already performed.
func (h *Hestia) Initialize(ctx context.Context) error { return nil }

// Shutdown flushes the write buffer before reporting Stopped.
func (h *Hestia) Shutdown(ctx context.Context, reason string) error {
	if h.buffer != nil {
		h.buffer.Flush()
	}
	return nil
}

// Handle dispatches env's Command/Query payload to the persistence
// components, returning a Response envelope.
func (h *Hestia) Handle(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
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
		resp, err = envelope.Envelope{}, olympuserr.New(olympuserr.InvalidCommand, "hestia.Handle", "unsupported payload kind")
	}

	if h.metrics != nil {
		h.metrics.RecordMessage("hestia", time.Since(start))
		if err != nil {
			h.metrics.RecordError("hestia")
		}
	}
	return resp, err
}

func (h *Hestia) handleCommand(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
	cmd, ok := env.Payload.Command.(HestiaCommand)
	if !ok {
		return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidCommand, "hestia.handleCommand", "payload is not a HestiaCommand")
	}

	switch cmd.Op {
	case "set":
		h.l1.Set(cmd.Key, cmd.Value, nil, cmd.Tags)
		if h.buffer != nil {
			if err := h.buffer.Push(ctx, writebuffer.BufferedOperation{
				Table: cmd.Table, Key: cmd.Key, Kind: writebuffer.OpUpdate, Value: cmd.Value,
				Priority: int(env.Priority),
			}); err != nil {
				return envelope.Envelope{}, err
			}
		}
		if h.sync != nil {
			if err := h.sync.SyncToL3(ctx, cmd.Table, cmd.Key, cmd.Value); err != nil {
				h.log.Warn("sync enqueue failed", "error", err)
			}
		}
		return envelope.NewResponse(env, "ok", ""), nil

	case "delete":
		h.l1.Invalidate(cmd.Key)
		if h.buffer != nil {
			if err := h.buffer.Push(ctx, writebuffer.BufferedOperation{
				Table: cmd.Table, Key: cmd.Key, Kind: writebuffer.OpDelete,
				Priority: int(env.Priority),
			}); err != nil {
				return envelope.Envelope{}, err
			}
		}
		return envelope.NewResponse(env, "ok", ""), nil

	case "sync":
		if h.sync == nil {
			return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidCommand, "hestia.handleCommand", "synchronizer not configured")
		}
		result := h.sync.SyncAll(ctx)
		return envelope.NewResponse(env, result, ""), nil

	default:
		return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidCommand, "hestia.handleCommand", fmt.Sprintf("unknown op %q", cmd.Op))
	}
}

func (h *Hestia) handleQuery(ctx context.Context, env envelope.Envelope) (envelope.Envelope, error) {
	q, ok := env.Payload.Query.(HestiaQuery)
	if !ok {
		return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidQuery, "hestia.handleQuery", "payload is not a HestiaQuery")
	}

	switch q.Op {
	case "get":
		if val, ok := h.l1.Get(q.Key); ok {
			return envelope.NewResponse(env, val, ""), nil
		}
		val, ok, err := h.l2.Get(ctx, q.Key)
		if err != nil {
			return envelope.Envelope{}, err
		}
		if ok {
			h.l1.Set(q.Key, val, nil, nil)
			return envelope.NewResponse(env, val, ""), nil
		}
		row, err := h.l3.Select(ctx, q.Table, q.Key)
		if err != nil {
			return envelope.Envelope{}, err
		}
		if row == nil {
			return envelope.Envelope{}, olympuserr.New(olympuserr.NotFound, "hestia.handleQuery", "key not found in any tier")
		}
		h.l1.Set(q.Key, row.Value, nil, nil)
		return envelope.NewResponse(env, row.Value, ""), nil

	case "backup":
		if h.sync == nil {
			return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidQuery, "hestia.handleQuery", "synchronizer not configured")
		}
		meta, err := h.sync.BackupTable(ctx, q.Table)
		if err != nil {
			return envelope.Envelope{}, err
		}
		return envelope.NewResponse(env, meta, ""), nil

	default:
		return envelope.Envelope{}, olympuserr.New(olympuserr.InvalidQuery, "hestia.handleQuery", fmt.Sprintf("unknown op %q", q.Op))
	}
}
