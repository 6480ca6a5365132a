package qpsim

// This file implements the Asic routing finite-state machine as a pure
// function over a transition table, the same shape as a BFD session FSM:
// no side effects, no Asic dependency, trivially testable in isolation.
// The guard conditions that decide WHICH event fires (is the local FIFO
// empty? has the remote drain burst exhausted the FIFO? has the dwell
// timer expired?) are evaluated by Asic — this table only encodes the
// resulting state graph edges.

// State is a routing FSM state. There is no terminal state; Idle is
// re-entered after every drain cycle.
type State uint8

const (
	StateIdle State = iota
	StateTransmitLocal
	StateTransmitRemote
	StateTransmitRemoteFull
	StateFinish
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateTransmitLocal:
		return "TransmitLocal"
	case StateTransmitRemote:
		return "TransmitRemote"
	case StateTransmitRemoteFull:
		return "TransmitRemoteFull"
	case StateFinish:
		return "Finish"
	default:
		return "Undefined"
	}
}

// Event is an FSM input, raised by Asic once it has evaluated the guard
// conditions relevant to the current state.
type Event uint8

const (
	// EventCommandDrain fires on a matching REGREQ interrogation/calibrate
	// command when the local FIFO is non-empty, the command is
	// HardInterrogate, or a Calibrate response byte was just queued.
	EventCommandDrain Event = iota

	// EventCommandSoftRemote fires on a soft Interrogate with an empty
	// local FIFO: there is nothing local to send, only remote forwarding.
	EventCommandSoftRemote

	// EventPushHits fires in push mode once ReadHits wrote at least one
	// byte into the local FIFO outside of an interrogation cycle.
	EventPushHits

	// EventLocalDrained fires once the local FIFO has been fully read.
	EventLocalDrained

	// EventFinishSent fires after the single EVTEND byte has been queued.
	EventFinishSent

	// EventRemoteBurstStart fires when the remote FIFO has at least one
	// byte to drain.
	EventRemoteBurstStart

	// EventRemoteBurstPaused fires when a drain burst returns control to
	// TransmitRemote, whether the burst emptied the remote FIFO or stopped
	// on the dwell timer.
	EventRemoteBurstPaused

	// EventRemoteTimeout fires once the TransmitRemote dwell timer (or the
	// SendRemote early-exit) has expired.
	EventRemoteTimeout
)

// stateEvent is the transition table key.
type stateEvent struct {
	state State
	event Event
}

// fsmTable is the complete routing FSM transition table.
//
//nolint:gochecknoglobals // transition table is intentionally package-level.
var fsmTable = map[stateEvent]State{
	{StateIdle, EventCommandDrain}:      StateTransmitLocal,
	{StateIdle, EventCommandSoftRemote}: StateTransmitRemote,
	{StateIdle, EventPushHits}:          StateTransmitLocal,

	{StateTransmitLocal, EventLocalDrained}: StateFinish,

	{StateFinish, EventFinishSent}: StateTransmitRemote,

	{StateTransmitRemote, EventRemoteBurstStart}: StateTransmitRemoteFull,
	{StateTransmitRemote, EventRemoteTimeout}:    StateIdle,

	{StateTransmitRemoteFull, EventRemoteBurstPaused}: StateTransmitRemote,
}

// ApplyEvent applies event to currentState and returns the resulting state.
// Unlisted (state, event) pairs return currentState unchanged with ok=false
// rather than panicking; changeState logs such a disagreement and keeps the
// transition Asic chose.
func ApplyEvent(currentState State, event Event) (State, bool) {
	next, ok := fsmTable[stateEvent{currentState, event}]
	if !ok {
		return currentState, false
	}
	return next, true
}
