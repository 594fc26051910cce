// Package envelope defines the typed message contract that addresses,
// correlates, and prioritizes every request flowing between actors.
//
// It plays the same role the teacher's asya-gateway/pkg/types.Envelope
// plays for the gateway: a single immutable-after-construction record
// carried end to end through queues, mailboxes, and responses.
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Priority is a total order over envelopes, observed by the write
// buffer's scheduling and optionally by actor mailboxes.
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Critical
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Kind identifies the payload variant carried by an Envelope.
type Kind string

const (
	KindCommand  Kind = "command"
	KindQuery    Kind = "query"
	KindEvent    Kind = "event"
	KindResponse Kind = "response"
)

// Payload is the tagged union of the four wire-level payload shapes.
// Exactly one of Command/Query/Event/Response is meaningful, selected
// by Kind; the others are nil.
type Payload struct {
	Kind     Kind `json:"kind"`
	Command  any  `json:"command,omitempty"`
	Query    any  `json:"query,omitempty"`
	Event    any  `json:"event,omitempty"`
	Response any  `json:"response,omitempty"`
	// Error, when set on a Response payload, carries a stable error
	// kind string (see internal/olympuserr.Kind) instead of the raw
	// Go error, since envelopes must remain serializable.
	Error string `json:"error,omitempty"`
}

// Envelope is immutable after construction: once built via New* it is
// only ever read, never mutated, by any component that receives it.
type Envelope struct {
	ID            string    `json:"id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Payload       Payload   `json:"payload"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Priority      Priority  `json:"priority"`
	TTL           *time.Duration `json:"ttl,omitempty"`
	// ParentID is set on fan-out child envelopes produced when a
	// handler's Query legitimately yields more than one downstream
	// Event; it is encoded as parent_id only when set.
	ParentID string `json:"parent_id,omitempty"`
}

// Option configures optional Envelope fields at construction time.
type Option func(*Envelope)

// WithPriority sets the envelope's priority; Normal is the default.
func WithPriority(p Priority) Option {
	return func(e *Envelope) { e.Priority = p }
}

// WithTTL sets a time-to-live after which a receiver may drop the
// envelope and synthesize a Timeout response instead of processing it.
func WithTTL(ttl time.Duration) Option {
	return func(e *Envelope) { e.TTL = &ttl }
}

// WithParentID tags this envelope as a fan-out child of parentID.
func WithParentID(parentID string) Option {
	return func(e *Envelope) { e.ParentID = parentID }
}

func newEnvelope(from, to string, payload Payload, opts ...Option) Envelope {
	e := Envelope{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Payload:   payload,
		Timestamp: time.Now(),
		Priority:  Normal,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// NewCommand builds a Command envelope from from to to.
func NewCommand(from, to string, command any, opts ...Option) Envelope {
	return newEnvelope(from, to, Payload{Kind: KindCommand, Command: command}, opts...)
}

// NewQuery builds a Query envelope from from to to.
func NewQuery(from, to string, query any, opts ...Option) Envelope {
	return newEnvelope(from, to, Payload{Kind: KindQuery, Query: query}, opts...)
}

// NewEvent builds an Event envelope. Events have no response.
func NewEvent(from, to string, event any, opts ...Option) Envelope {
	return newEnvelope(from, to, Payload{Kind: KindEvent, Event: event}, opts...)
}

// NewResponse builds a Response to request, carrying request's ID as
// the CorrelationID as required by the envelope contract.
func NewResponse(request Envelope, response any, errKind string) Envelope {
	e := newEnvelope(request.To, request.From, Payload{
		Kind:     KindResponse,
		Response: response,
		Error:    errKind,
	})
	e.CorrelationID = request.ID
	e.Priority = request.Priority
	return e
}

// NewUnavailableResponse synthesizes the supervisor-generated "actor
// unavailable" response used when delivery to `to` fails outright.
func NewUnavailableResponse(request Envelope, reason string) Envelope {
	e := newEnvelope(request.To, request.From, Payload{
		Kind:  KindResponse,
		Error: reason,
	})
	e.CorrelationID = request.ID
	e.Priority = request.Priority
	return e
}

// Expired reports whether the envelope's TTL, if any, has elapsed as
// of now.
func (e Envelope) Expired(now time.Time) bool {
	if e.TTL == nil {
		return false
	}
	return now.Sub(e.Timestamp) > *e.TTL
}

// ExpectsResponse reports whether e's payload kind requires exactly
// one Response with a matching CorrelationID.
func (e Envelope) ExpectsResponse() bool {
	return e.Payload.Kind == KindCommand || e.Payload.Kind == KindQuery
}

// IsResponseTo reports whether e is the Response to request per the
// envelope correlation invariant.
func (e Envelope) IsResponseTo(request Envelope) bool {
	return e.Payload.Kind == KindResponse && e.CorrelationID == request.ID
}
