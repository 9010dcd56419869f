package avrcp

import "fmt"

// State describes a state of the per-device AVRCP controller state
// machine. GetFolderList and SetAddressedPlayer are sub-states of
// Connected: while in either, only the messages relevant to the
// in-flight browse or play action are handled and everything else is
// deferred or delegated to the Connected behavior.
type State int

// The states of the controller state machine.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateGetFolderList
	StateSetAddressedPlayer
	StateDisconnecting
)

var stateNames = map[State]string{
	StateDisconnected:       "Disconnected",
	StateConnecting:         "Connecting",
	StateConnected:          "Connected",
	StateGetFolderList:      "GetFolderList",
	StateSetAddressedPlayer: "SetAddressedPlayer",
	StateDisconnecting:      "Disconnecting",
}

// String returns the name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// ConnectionState describes the externally visible connection state,
// collapsing the Connected sub-states.
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

// connectionState collapses a machine state into its externally
// visible connection state.
func (s State) connectionState() ConnectionState {
	switch s {
	case StateConnecting:
		return ConnectionConnecting
	case StateConnected, StateGetFolderList, StateSetAddressedPlayer:
		return ConnectionConnected
	case StateDisconnecting:
		return ConnectionDisconnecting
	}

	return ConnectionDisconnected
}

// connectedFamily reports whether the state is Connected or one of its
// sub-states.
func (s State) connectedFamily() bool {
	return s == StateConnected || s == StateGetFolderList || s == StateSetAddressedPlayer
}

// validPredecessors is the transition table: the set of states that may
// legally precede each state. Violations are fatal; they indicate the
// link layer produced an impossible event ordering.
var validPredecessors = map[State][]State{
	StateDisconnected: {
		StateConnecting, StateConnected, StateGetFolderList,
		StateSetAddressedPlayer, StateDisconnecting,
	},
	StateConnecting: {StateDisconnected},
	StateConnected: {
		StateConnecting, StateGetFolderList, StateSetAddressedPlayer,
	},
	StateGetFolderList:      {StateConnected},
	StateSetAddressedPlayer: {StateConnected},
	StateDisconnecting: {
		StateConnected, StateGetFolderList, StateSetAddressedPlayer,
	},
}

// assertValidTransition panics if prev is not an allowed predecessor of next.
func assertValidTransition(prev, next State, device string) {
	for _, allowed := range validPredecessors[next] {
		if prev == allowed {
			return
		}
	}

	panic(fmt.Sprintf("avrcp: invalid state transition from %s to %s for device %s", prev, next, device))
}
