package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateAwaitingData

	next, err := Transition(s, EventChunkReceived)
	require.NoError(t, err)
	require.Equal(t, StateDrainingBuffer, next)

	next, err = Transition(next, EventDrained)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingData, next)

	next, err = Transition(next, EventPeerClosed)
	require.NoError(t, err)
	require.Equal(t, StateClosedByPeer, next)
	require.True(t, Terminal(next))
}

func TestTransitionTerminalStates(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event Event
		want  State
	}{
		{name: "timeout while idle", from: StateAwaitingData, event: EventTimedOut, want: StateClosedOnTimeout},
		{name: "shutdown while idle", from: StateAwaitingData, event: EventShutdown, want: StateClosedOnShutdown},
		{name: "send failure while draining", from: StateDrainingBuffer, event: EventSendFailed, want: StateClosedOnSendErr},
		{name: "overflow while draining", from: StateDrainingBuffer, event: EventOverflow, want: StateClosedOnOverflow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.from, tc.event)
			require.NoError(t, err)
			require.Equal(t, tc.want, next)
			require.True(t, Terminal(next))
		})
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{name: "idle drained invalid", state: StateAwaitingData, event: EventDrained},
		{name: "idle send failed invalid", state: StateAwaitingData, event: EventSendFailed},
		{name: "draining chunk invalid", state: StateDrainingBuffer, event: EventChunkReceived},
		{name: "draining timeout invalid", state: StateDrainingBuffer, event: EventTimedOut},
		{name: "closed by peer chunk invalid", state: StateClosedByPeer, event: EventChunkReceived},
		{name: "closed on timeout drained invalid", state: StateClosedOnTimeout, event: EventDrained},
		{name: "closed on send error shutdown invalid", state: StateClosedOnSendErr, event: EventShutdown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.state, next)
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid transition")
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventChunkReceived)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
	require.False(t, Terminal(next))
}
