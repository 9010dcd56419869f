package hfp

import "github.com/bluetuith-org/btprofiles/api/bluetooth"

// AT response codes sent back to the peer for commands without a
// dedicated response format.
const (
	AtResponseError = 0
	AtResponseOK    = 1
)

// NativeInterface is the command side of the native link layer. Every
// method issues the command and returns immediately; the command's
// effect arrives later as a stack event. Implementations must not block
// on a remote round-trip.
type NativeInterface interface {
	// ConnectHfp initiates an SLC connection to the device.
	ConnectHfp(device bluetooth.MacAddress) error

	// DisconnectHfp tears down the SLC connection to the device.
	DisconnectHfp(device bluetooth.MacAddress) error

	// ConnectAudio initiates an SCO audio connection.
	ConnectAudio(device bluetooth.MacAddress) error

	// DisconnectAudio tears down the SCO audio connection.
	DisconnectAudio(device bluetooth.MacAddress) error

	// StartVoiceRecognition asks the peer to start voice recognition.
	StartVoiceRecognition(device bluetooth.MacAddress) error

	// StopVoiceRecognition asks the peer to stop voice recognition.
	StopVoiceRecognition(device bluetooth.MacAddress) error

	// SetVolume sets the speaker or microphone gain on the peer.
	SetVolume(device bluetooth.MacAddress, volumeType, volume int) error

	// AtResponseCode sends an OK/ERROR result code, with an optional
	// extended error cause.
	AtResponseCode(device bluetooth.MacAddress, code, cmeError int) error

	// AtResponseString sends an arbitrary unsolicited result code string.
	AtResponseString(device bluetooth.MacAddress, response string) error

	// CindResponse answers an AT+CIND? query.
	CindResponse(device bluetooth.MacAddress, service, numActive, numHeld, callState, signal, roam, battery int) error

	// CopsResponse answers an AT+COPS? query with the operator name.
	CopsResponse(device bluetooth.MacAddress, operator string) error

	// ClccResponse sends one entry of an AT+CLCC response; an entry
	// with index 0 terminates the list.
	ClccResponse(device bluetooth.MacAddress, index, direction, status, mode int, multiparty bool, number string, numberType int) error

	// PhoneStateChange notifies the peer of a telephony call state change.
	PhoneStateChange(device bluetooth.MacAddress, state CallState) error

	// NotifyDeviceStatus sends the CIND indicator values to the peer.
	NotifyDeviceStatus(device bluetooth.MacAddress, ind Indicators) error

	// SetActiveDevice selects the device whose SCO link carries audio.
	SetActiveDevice(device bluetooth.MacAddress) error

	// SendBsir toggles in-band ringtone reporting on the peer.
	SendBsir(device bluetooth.MacAddress, enabled bool) error
}

// Telephony is the local telephony collaborator: call control requests
// originating from the peer are forwarded to it.
type Telephony interface {
	// AnswerCall answers the ringing call.
	AnswerCall(device bluetooth.MacAddress)

	// HangupCall hangs up the current call. virtualCall indicates the
	// request targets a virtual (voice-assistant) call.
	HangupCall(device bluetooth.MacAddress, virtualCall bool)

	// DialCall places an outgoing call; an empty number redials the
	// last dialled number. It returns false if no call can be placed.
	DialCall(device bluetooth.MacAddress, number string) bool

	// SendDtmf forwards a DTMF tone to the active call.
	SendDtmf(device bluetooth.MacAddress, tone int)

	// VoiceCommand launches the local voice assistant on behalf of the
	// peer. It returns false if no assistant is available.
	VoiceCommand(device bluetooth.MacAddress) bool

	// ProcessChld applies a call hold action (AT+CHLD). It returns
	// false if the action is not supported or fails.
	ProcessChld(chld int) bool

	// ListCurrentCalls asks the telephony layer to enumerate current
	// calls; entries arrive later through Service.SendClccResponse.
	// It returns false if the enumeration cannot start.
	ListCurrentCalls() bool

	// SubscriberNumber returns the local subscriber number, if known.
	SubscriberNumber() (string, bool)

	// NetworkOperator returns the current network operator name.
	NetworkOperator() string

	// QueryPhoneState asks for a fresh call state snapshot, delivered
	// through Service.CallStateChanged.
	QueryPhoneState()
}
