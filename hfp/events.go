package hfp

import (
	"fmt"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
)

// StackEventKind discriminates the asynchronous events delivered by the
// native link layer.
type StackEventKind int

// The stack event kinds.
const (
	StackEventNone StackEventKind = iota
	StackEventConnectionStateChanged
	StackEventAudioStateChanged
	StackEventVrStateChanged
	StackEventAnswerCall
	StackEventHangupCall
	StackEventVolumeChanged
	StackEventDialCall
	StackEventSendDtmf
	StackEventNoiseReduction
	StackEventAtChld
	StackEventSubscriberNumberRequest
	StackEventAtCind
	StackEventAtCops
	StackEventAtClcc
	StackEventUnknownAt
	StackEventKeyPressed
	StackEventAtBind
	StackEventAtBiev
	StackEventWbs
)

var stackEventNames = map[StackEventKind]string{
	StackEventNone:                    "NONE",
	StackEventConnectionStateChanged:  "CONNECTION_STATE_CHANGED",
	StackEventAudioStateChanged:       "AUDIO_STATE_CHANGED",
	StackEventVrStateChanged:          "VR_STATE_CHANGED",
	StackEventAnswerCall:              "ANSWER_CALL",
	StackEventHangupCall:              "HANGUP_CALL",
	StackEventVolumeChanged:           "VOLUME_CHANGED",
	StackEventDialCall:                "DIAL_CALL",
	StackEventSendDtmf:                "SEND_DTMF",
	StackEventNoiseReduction:          "NOISE_REDUCTION",
	StackEventAtChld:                  "AT_CHLD",
	StackEventSubscriberNumberRequest: "SUBSCRIBER_NUMBER_REQUEST",
	StackEventAtCind:                  "AT_CIND",
	StackEventAtCops:                  "AT_COPS",
	StackEventAtClcc:                  "AT_CLCC",
	StackEventUnknownAt:               "UNKNOWN_AT",
	StackEventKeyPressed:              "KEY_PRESSED",
	StackEventAtBind:                  "AT_BIND",
	StackEventAtBiev:                  "AT_BIEV",
	StackEventWbs:                     "WBS",
}

// String returns the name of the stack event kind.
func (k StackEventKind) String() string {
	if name, ok := stackEventNames[k]; ok {
		return name
	}

	return fmt.Sprintf("UNKNOWN(%d)", int(k))
}

// Peer connection state values carried by CONNECTION_STATE_CHANGED events.
const (
	PeerDisconnected = iota
	PeerConnecting
	PeerConnected
	PeerSlcConnected
	PeerDisconnecting
)

// Peer audio state values carried by AUDIO_STATE_CHANGED events.
const (
	PeerAudioDisconnected = iota
	PeerAudioConnecting
	PeerAudioConnected
	PeerAudioDisconnecting
)

// Voice recognition state values carried by VR_STATE_CHANGED events.
const (
	VrStopped = iota
	VrStarted
)

// Volume types carried by VOLUME_CHANGED events.
const (
	VolumeTypeSpeaker = iota
	VolumeTypeMic
)

// Wideband speech configuration values carried by WBS events.
const (
	WbsNone = iota
	WbsNo
	WbsYes
)

// StackEvent is a discriminated event from the native link layer:
// an event kind, up to two integer payloads, an optional string payload
// and the originating device address.
type StackEvent struct {
	Kind   StackEventKind
	Int1   int
	Int2   int
	Str    string
	Device bluetooth.MacAddress
}

// String returns a loggable description of the event.
func (e StackEvent) String() string {
	return fmt.Sprintf("%s[%d, %d, %q, %s]", e.Kind, e.Int1, e.Int2, e.Str, e.Device.String())
}

// message is the tagged union of everything that can enter a state
// machine's mailbox. All per-device state mutation happens while
// handling one of these.
type message interface {
	isMessage()
}

type (
	// stackEventMsg wraps an inbound native stack event.
	stackEventMsg struct{ event StackEvent }

	// connectMsg requests an SLC connection to the machine's device.
	connectMsg struct{}

	// disconnectMsg requests an SLC disconnection.
	disconnectMsg struct{}

	// connectAudioMsg requests an SCO audio connection.
	connectAudioMsg struct{}

	// disconnectAudioMsg requests an SCO audio disconnection.
	disconnectAudioMsg struct{}

	// voiceRecognitionMsg starts or stops voice recognition locally.
	voiceRecognitionMsg struct{ start bool }

	// virtualCallMsg starts or stops a virtual voice call.
	virtualCallMsg struct{ start bool }

	// callStateMsg carries a telephony call state update.
	callStateMsg struct {
		state   CallState
		virtual bool
	}

	// deviceStateMsg carries updated telephony indicators to be
	// reported to the peer.
	deviceStateMsg struct{ indicators Indicators }

	// clccResponseMsg carries one entry of a list-current-calls response.
	clccResponseMsg struct{ entry ClccEntry }

	// vendorResultCodeMsg carries an unsolicited vendor-specific result
	// code to be sent to the peer.
	vendorResultCodeMsg struct{ command, arg string }

	// timeoutMsg is a fired timer handle.
	timeoutMsg struct{ kind timeoutKind }
)

func (stackEventMsg) isMessage()       {}
func (connectMsg) isMessage()          {}
func (disconnectMsg) isMessage()       {}
func (connectAudioMsg) isMessage()     {}
func (disconnectAudioMsg) isMessage()  {}
func (voiceRecognitionMsg) isMessage() {}
func (virtualCallMsg) isMessage()      {}
func (callStateMsg) isMessage()        {}
func (deviceStateMsg) isMessage()      {}
func (clccResponseMsg) isMessage()     {}
func (vendorResultCodeMsg) isMessage() {}
func (timeoutMsg) isMessage()          {}

// timeoutKind discriminates the machine's timer handles.
type timeoutKind int

const (
	timeoutConnect timeoutKind = iota
	timeoutDialOut
	timeoutVrStart
	timeoutClcc
)

func (k timeoutKind) String() string {
	switch k {
	case timeoutDialOut:
		return "dial-out"
	case timeoutVrStart:
		return "vr-start"
	case timeoutClcc:
		return "clcc"
	}

	return "connect"
}
