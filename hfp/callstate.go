package hfp

// CallSetupState describes the telephony call setup progress as reported
// by the telephony collaborator and relayed to the peer.
type CallSetupState int

// The call setup states.
const (
	CallActive CallSetupState = iota
	CallHeld
	CallDialing
	CallAlerting
	CallIncoming
	CallWaiting
	CallIdle
)

var callSetupNames = map[CallSetupState]string{
	CallActive:   "active",
	CallHeld:     "held",
	CallDialing:  "dialing",
	CallAlerting: "alerting",
	CallIncoming: "incoming",
	CallWaiting:  "waiting",
	CallIdle:     "idle",
}

// String returns the name of the call setup state.
func (c CallSetupState) String() string {
	if name, ok := callSetupNames[c]; ok {
		return name
	}

	return "unknown"
}

// CallState is a snapshot of the telephony call activity: the number of
// active and held calls, setup progress and the dialing number.
type CallState struct {
	NumActive int
	NumHeld   int
	Setup     CallSetupState
	Number    string
	Type      int
}

// inCall reports whether a call is active, held or being set up.
// An incoming (ringing) call does not count as in-call.
func (c CallState) inCall() bool {
	return c.NumActive > 0 || c.NumHeld > 0 ||
		(c.Setup != CallIdle && c.Setup != CallIncoming)
}

// ringing reports whether an incoming call is being set up.
func (c CallState) ringing() bool {
	return c.Setup == CallIncoming
}

// ClccEntry is one entry of a list-current-calls (+CLCC) response.
// An entry with Index 0 terminates the list.
type ClccEntry struct {
	Index      int
	Direction  int
	Status     int
	Mode       int
	Multiparty bool
	Number     string
	Type       int
}
