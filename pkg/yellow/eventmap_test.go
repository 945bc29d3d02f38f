package yellow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapExecutionStatusKnownEvents(t *testing.T) {
	cases := []struct {
		event      string
		status     ExecutionStatus
		isTerminal bool
	}{
		{"solver_quoted", StatusQuoted, false},
		{"quote_accepted", StatusQuoted, false},
		{"execution_started", StatusExecuting, false},
		{"routing_started", StatusExecuting, false},
		{"settlement_submitted", StatusSettling, false},
		{"settled", StatusSettled, true},
		{"settlement_finalized", StatusSettled, true},
		{"failed", StatusAborted, true},
		{"canceled", StatusAborted, true},
		{"expired", StatusExpired, true},
	}

	for _, c := range cases {
		status, isTerminal := MapExecutionStatus(c.event)
		assert.Equalf(t, c.status, status, "event %q", c.event)
		assert.Equalf(t, c.isTerminal, isTerminal, "event %q", c.event)
	}
}

func TestMapExecutionStatusChannelLifecycleEventsAreNonTerminal(t *testing.T) {
	for _, event := range []string{"created", "joined", "opened", "challenged", "checkpointed", "resized", "closed"} {
		status, isTerminal := MapExecutionStatus(event)
		assert.Falsef(t, isTerminal, "event %q must be non-terminal", event)
		assert.NotEqual(t, StatusUnknown, status)
	}
}

func TestMapExecutionStatusUnknownEventIsConservative(t *testing.T) {
	status, isTerminal := MapExecutionStatus("some_event_nobody_documented")
	assert.Equal(t, StatusUnknown, status)
	assert.False(t, isTerminal)
}

func TestMapChannelStatus(t *testing.T) {
	assert.Equal(t, ChannelVoid, MapChannelStatus("void"))
	assert.Equal(t, ChannelInitial, MapChannelStatus("initial"))
	assert.Equal(t, ChannelActive, MapChannelStatus("active"))
	assert.Equal(t, ChannelDispute, MapChannelStatus("dispute"))
	assert.Equal(t, ChannelFinal, MapChannelStatus("final"))
	assert.Equal(t, ChannelUnknown, MapChannelStatus("bogus"))
}

func TestMapStateIntent(t *testing.T) {
	assert.Equal(t, StateInitialize, MapStateIntent("initialize"))
	assert.Equal(t, StateOperate, MapStateIntent("operate"))
	assert.Equal(t, StateResize, MapStateIntent("resize"))
	assert.Equal(t, StateFinalize, MapStateIntent("finalize"))
	assert.Equal(t, StateOperate, MapStateIntent("bogus"))
}
