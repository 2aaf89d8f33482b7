// Package fsm models the lifecycle of one client connection.
package fsm

import "fmt"

type State string

type Event string

const (
	StateAwaitingData     State = "awaiting_data"
	StateDrainingBuffer   State = "draining_buffer"
	StateClosedByPeer     State = "closed_by_peer"
	StateClosedOnTimeout  State = "closed_on_timeout"
	StateClosedOnSendErr  State = "closed_on_send_error"
	StateClosedOnShutdown State = "closed_on_shutdown"
	StateClosedOnOverflow State = "closed_on_overflow"
)

const (
	EventChunkReceived Event = "chunk_received"
	EventDrained       Event = "drained"
	EventPeerClosed    Event = "peer_closed"
	EventTimedOut      Event = "timed_out"
	EventSendFailed    Event = "send_failed"
	EventShutdown      Event = "shutdown"
	EventOverflow      Event = "overflow"
)

// Transition returns the state reached from current on event.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateAwaitingData:
		switch event {
		case EventChunkReceived:
			return StateDrainingBuffer, nil
		case EventPeerClosed:
			return StateClosedByPeer, nil
		case EventTimedOut:
			return StateClosedOnTimeout, nil
		case EventShutdown:
			return StateClosedOnShutdown, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDrainingBuffer:
		switch event {
		case EventDrained:
			return StateAwaitingData, nil
		case EventSendFailed:
			return StateClosedOnSendErr, nil
		case EventOverflow:
			return StateClosedOnOverflow, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateClosedByPeer, StateClosedOnTimeout, StateClosedOnSendErr, StateClosedOnShutdown, StateClosedOnOverflow:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Terminal reports whether no further events are accepted in state.
func Terminal(state State) bool {
	switch state {
	case StateClosedByPeer, StateClosedOnTimeout, StateClosedOnSendErr, StateClosedOnShutdown, StateClosedOnOverflow:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
