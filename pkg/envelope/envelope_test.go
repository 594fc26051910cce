package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand_DefaultsToNormalPriority(t *testing.T) {
	e := NewCommand("zeus", "hestia", map[string]string{"op": "set"})

	assert.Equal(t, KindCommand, e.Payload.Kind)
	assert.Equal(t, Normal, e.Priority)
	assert.NotEmpty(t, e.ID)
	assert.Empty(t, e.CorrelationID)
	assert.True(t, e.ExpectsResponse())
}

func TestNewEvent_DoesNotExpectResponse(t *testing.T) {
	e := NewEvent("hermes", "themis", "connection_opened")
	assert.False(t, e.ExpectsResponse())
}

func TestNewResponse_CarriesRequestCorrelationID(t *testing.T) {
	req := NewQuery("zeus", "hestia", "get:k1", WithPriority(Critical))
	resp := NewResponse(req, "v1", "")

	require.Equal(t, req.ID, resp.CorrelationID)
	assert.True(t, resp.IsResponseTo(req))
	assert.Equal(t, Critical, resp.Priority)
	assert.Equal(t, req.To, resp.From)
	assert.Equal(t, req.From, resp.To)
}

func TestNewUnavailableResponse_SetsErrorKind(t *testing.T) {
	req := NewCommand("zeus", "missing-actor", "noop")
	resp := NewUnavailableResponse(req, "actor_unavailable")

	assert.Equal(t, "actor_unavailable", resp.Payload.Error)
	assert.True(t, resp.IsResponseTo(req))
}

func TestEnvelope_Expired(t *testing.T) {
	e := NewCommand("a", "b", nil, WithTTL(10*time.Millisecond))
	assert.False(t, e.Expired(e.Timestamp))
	assert.True(t, e.Expired(e.Timestamp.Add(50*time.Millisecond)))
}

func TestEnvelope_NoTTLNeverExpires(t *testing.T) {
	e := NewCommand("a", "b", nil)
	assert.False(t, e.Expired(e.Timestamp.Add(24*time.Hour)))
}

func TestWithParentID_FanoutChild(t *testing.T) {
	e := NewEvent("sidecar", "gateway", "fanout-item", WithParentID("abc-123"))
	assert.Equal(t, "abc-123", e.ParentID)
}
