package hfp

import "fmt"

// State describes a state of the per-device connection state machine.
type State int

// The states of the connection state machine.
const (
	StateDisconnected State = iota
	StateConnecting
	StateDisconnecting
	StateConnected
	StateAudioConnecting
	StateAudioOn
	StateAudioDisconnecting
)

var stateNames = map[State]string{
	StateDisconnected:       "Disconnected",
	StateConnecting:         "Connecting",
	StateDisconnecting:      "Disconnecting",
	StateConnected:          "Connected",
	StateAudioConnecting:    "AudioConnecting",
	StateAudioOn:            "AudioOn",
	StateAudioDisconnecting: "AudioDisconnecting",
}

// String returns the name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// ConnectionState describes the externally visible connection state of
// a device, collapsing the audio sub-states into Connected.
type ConnectionState int

// The externally visible connection states.
const (
	ConnectionDisconnected ConnectionState = iota
	ConnectionConnecting
	ConnectionDisconnecting
	ConnectionConnected
)

// String returns the name of the connection state.
func (c ConnectionState) String() string {
	switch c {
	case ConnectionConnecting:
		return "connecting"
	case ConnectionDisconnecting:
		return "disconnecting"
	case ConnectionConnected:
		return "connected"
	}

	return "disconnected"
}

// AudioState describes the externally visible SCO audio state of a device.
type AudioState int

// The externally visible audio states.
const (
	AudioDisconnected AudioState = iota
	AudioConnecting
	AudioConnected
)

// String returns the name of the audio state.
func (a AudioState) String() string {
	switch a {
	case AudioConnecting:
		return "audio-connecting"
	case AudioConnected:
		return "audio-connected"
	}

	return "audio-disconnected"
}

// connectionState collapses a machine state into its externally
// visible connection state.
func (s State) connectionState() ConnectionState {
	switch s {
	case StateConnecting:
		return ConnectionConnecting
	case StateDisconnecting:
		return ConnectionDisconnecting
	case StateConnected, StateAudioConnecting, StateAudioOn, StateAudioDisconnecting:
		return ConnectionConnected
	}

	return ConnectionDisconnected
}

// audioState collapses a machine state into its externally visible
// audio state. AudioDisconnecting still reports audio as connected
// until the teardown completes.
func (s State) audioState() AudioState {
	switch s {
	case StateAudioConnecting:
		return AudioConnecting
	case StateAudioOn, StateAudioDisconnecting:
		return AudioConnected
	}

	return AudioDisconnected
}

// validPredecessors is the transition table: the set of states that may
// legally precede each state. Entering a state from a state outside its
// set indicates the native layer produced an impossible event ordering,
// and the machine panics rather than carry corrupted connection state.
//
// A few legacy edges remain until the native stack always routes
// transitions through a pending state (for example AudioOn directly to
// Disconnected on a hard link loss).
var validPredecessors = map[State][]State{
	StateDisconnected: {
		StateConnecting, StateDisconnecting,
		StateConnected, StateAudioOn, StateAudioConnecting, StateAudioDisconnecting,
	},
	StateConnecting: {StateDisconnected},
	StateDisconnecting: {
		StateConnected,
		StateAudioConnecting, StateAudioOn, StateAudioDisconnecting,
	},
	StateConnected: {
		StateConnecting, StateAudioDisconnecting, StateDisconnecting, StateAudioConnecting,
		StateAudioOn, StateDisconnected,
	},
	StateAudioConnecting:    {StateConnected},
	StateAudioDisconnecting: {StateAudioOn},
	StateAudioOn: {
		StateAudioConnecting, StateAudioDisconnecting,
		StateConnected,
	},
}

// assertValidTransition panics if prev is not an allowed predecessor of next.
func assertValidTransition(prev, next State, device string) {
	for _, allowed := range validPredecessors[next] {
		if prev == allowed {
			return
		}
	}

	panic(fmt.Sprintf("hfp: invalid state transition from %s to %s for device %s", prev, next, device))
}
