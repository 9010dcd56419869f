package hfp

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
	"github.com/bluetuith-org/btprofiles/internal/timers"
	"go.uber.org/atomic"
)

// Default timeouts for the machine's multi-step exchanges.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultDialOutTimeout = 10 * time.Second
	DefaultVrStartTimeout = 5 * time.Second
	DefaultClccTimeout    = 5 * time.Second
)

// Config holds the tunable policy knobs of the HFP core.
type Config struct {
	// MaxConnections is the maximum number of simultaneously
	// connected or connecting devices.
	MaxConnections int

	// InbandRinging enables in-band ringtone reporting to peers.
	InbandRinging bool

	// AudioRouteAllowed permits SCO audio routing to peers.
	AudioRouteAllowed bool

	// ForceSco accepts SCO connections regardless of call activity.
	ForceSco bool

	ConnectTimeout time.Duration
	DialOutTimeout time.Duration
	VrStartTimeout time.Duration
	ClccTimeout    time.Duration
}

// withDefaults fills unset fields with their defaults.
func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 1
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.DialOutTimeout <= 0 {
		c.DialOutTimeout = DefaultDialOutTimeout
	}
	if c.VrStartTimeout <= 0 {
		c.VrStartTimeout = DefaultVrStartTimeout
	}
	if c.ClccTimeout <= 0 {
		c.ClccTimeout = DefaultClccTimeout
	}

	return c
}

// machineHost is what a state machine needs from its owning registry:
// state change notifications, admission policy and collaborator fan-out.
type machineHost interface {
	// ConnectionStateChanged is invoked once per connection state
	// broadcast, including same-to-same broadcasts for failed
	// operations.
	ConnectionStateChanged(device bluetooth.MacAddress, prev, next ConnectionState)

	// AudioStateChanged is invoked once per audio state broadcast.
	AudioStateChanged(device bluetooth.MacAddress, prev, next AudioState)

	// OkToAcceptConnection decides whether an inbound connection from
	// the device is permitted.
	OkToAcceptConnection(device bluetooth.MacAddress) bool

	// IsInbandRingingEnabled reports whether in-band ringing is
	// currently enabled (it is disabled while more than one device
	// is connected).
	IsInbandRingingEnabled() bool

	// VolumeChanged reports a speaker or microphone gain change
	// requested by the peer.
	VolumeChanged(device bluetooth.MacAddress, volumeType, volume int)

	// VendorCommand reports an accepted vendor-specific AT command.
	VendorCommand(device bluetooth.MacAddress, command string, companyID int, args []any)

	// HfIndicator reports an HF indicator registration (value -1) or
	// value change from the peer.
	HfIndicator(device bluetooth.MacAddress, indicator, value int)

	// MachineDisconnected reports that the machine rests in the
	// Disconnected state with no deferred messages left to replay;
	// the registry may reap it at this point.
	MachineDisconnected(device bluetooth.MacAddress)
}

// StateMachine is the per-device HFP connection state machine. All of
// its mutable fields are owned by the single goroutine draining the
// mailbox; external callers interact with it only through posted
// messages and the atomically published state.
type StateMachine struct {
	device    bluetooth.MacAddress
	native    NativeInterface
	telephony Telephony
	phone     *PhoneState
	host      machineHost
	cfg       Config
	log       *slog.Logger

	mailbox chan message
	quit    chan struct{}

	published         *atomic.Int32
	audioRouteAllowed *atomic.Bool
	forceSco          *atomic.Bool

	// Owned by the run goroutine.
	state       State
	prevState   State
	deferred    []message
	replayDepth int

	dialingOut                 bool
	voiceRecognitionStarted    bool
	waitingForVoiceRecognition bool
	virtualCallStarted         bool
	pendingClcc                bool
	nrecEnabled                bool
	widebandSpeech             bool
	speakerVolume              int
	micVolume                  int

	connTimer timers.Handle
	dialTimer timers.Handle
	vrTimer   timers.Handle
	clccTimer timers.Handle
}

// newStateMachine creates a state machine for the device. The machine
// processes no messages until start is called.
func newStateMachine(device bluetooth.MacAddress, native NativeInterface,
	telephony Telephony, phone *PhoneState, host machineHost,
	cfg Config, log *slog.Logger) *StateMachine {

	sm := &StateMachine{
		device:            device,
		native:            native,
		telephony:         telephony,
		phone:             phone,
		host:              host,
		cfg:               cfg.withDefaults(),
		log:               log.With("profile", "hfp", "device", device.String()),
		mailbox:           make(chan message, 64),
		quit:              make(chan struct{}),
		published:         atomic.NewInt32(int32(StateDisconnected)),
		audioRouteAllowed: atomic.NewBool(cfg.AudioRouteAllowed),
		forceSco:          atomic.NewBool(cfg.ForceSco),
		state:             StateDisconnected,
		prevState:         StateDisconnected,
	}

	return sm
}

// start launches the mailbox goroutine.
func (sm *StateMachine) start() {
	go sm.run()
}

// Device returns the remote address this machine tracks.
func (sm *StateMachine) Device() bluetooth.MacAddress {
	return sm.device
}

// ConnectionState returns the externally visible connection state.
func (sm *StateMachine) ConnectionState() ConnectionState {
	return State(sm.published.Load()).connectionState()
}

// AudioState returns the externally visible audio state.
func (sm *StateMachine) AudioState() AudioState {
	return State(sm.published.Load()).audioState()
}

// SetAudioRouteAllowed toggles whether SCO audio may be routed to peers.
func (sm *StateMachine) SetAudioRouteAllowed(allowed bool) {
	sm.audioRouteAllowed.Store(allowed)
}

// SetForceScoAudio forces acceptance of SCO connections.
func (sm *StateMachine) SetForceScoAudio(forced bool) {
	sm.forceSco.Store(forced)
}

// post delivers a message to the mailbox, giving up if the machine
// has been stopped.
func (sm *StateMachine) post(msg message) {
	select {
	case sm.mailbox <- msg:
	case <-sm.quit:
	}
}

// stop terminates the run goroutine. Pending mailbox messages are dropped.
func (sm *StateMachine) stop() {
	close(sm.quit)
	sm.connTimer.Stop()
	sm.dialTimer.Stop()
	sm.vrTimer.Stop()
	sm.clccTimer.Stop()
}

func (sm *StateMachine) run() {
	for {
		select {
		case msg := <-sm.mailbox:
			sm.handle(msg)
		case <-sm.quit:
			return
		}
	}
}

// Connect requests an SLC connection.
func (sm *StateMachine) Connect() { sm.post(connectMsg{}) }

// Disconnect requests an SLC disconnection.
func (sm *StateMachine) Disconnect() { sm.post(disconnectMsg{}) }

// ConnectAudio requests an SCO audio connection.
func (sm *StateMachine) ConnectAudio() { sm.post(connectAudioMsg{}) }

// DisconnectAudio requests an SCO audio disconnection.
func (sm *StateMachine) DisconnectAudio() { sm.post(disconnectAudioMsg{}) }

// SetVoiceRecognition starts or stops voice recognition locally.
func (sm *StateMachine) SetVoiceRecognition(start bool) {
	sm.post(voiceRecognitionMsg{start: start})
}

// SetVirtualCall starts or stops a virtual voice call.
func (sm *StateMachine) SetVirtualCall(start bool) {
	sm.post(virtualCallMsg{start: start})
}

// CallStateChanged delivers a telephony call state update.
func (sm *StateMachine) CallStateChanged(state CallState, virtual bool) {
	sm.post(callStateMsg{state: state, virtual: virtual})
}

// DeviceStateChanged delivers updated telephony indicators.
func (sm *StateMachine) DeviceStateChanged(ind Indicators) {
	sm.post(deviceStateMsg{indicators: ind})
}

// SendClccResponse delivers one entry of a list-current-calls response.
func (sm *StateMachine) SendClccResponse(entry ClccEntry) {
	sm.post(clccResponseMsg{entry: entry})
}

// SendVendorSpecificResultCode sends an unsolicited vendor result code.
func (sm *StateMachine) SendVendorSpecificResultCode(command, arg string) {
	sm.post(vendorResultCodeMsg{command: command, arg: arg})
}

// StackEvent delivers a native stack event for this device.
func (sm *StateMachine) StackEvent(event StackEvent) {
	sm.post(stackEventMsg{event: event})
}

// handle dispatches one mailbox message in the current state.
func (sm *StateMachine) handle(msg message) {
	if ev, ok := msg.(stackEventMsg); ok && ev.event.Device != sm.device {
		// The registry routes events by address; a mismatch here means
		// the bookkeeping is corrupted.
		panic("hfp: stack event for device " + ev.event.Device.String() +
			" delivered to machine for " + sm.device.String())
	}

	switch sm.state {
	case StateDisconnected:
		sm.disconnectedHandle(msg)
	case StateConnecting:
		sm.connectingHandle(msg)
	case StateDisconnecting:
		sm.disconnectingHandle(msg)
	case StateConnected:
		sm.connectedHandle(msg)
	case StateAudioConnecting:
		sm.audioConnectingHandle(msg)
	case StateAudioOn:
		sm.audioOnHandle(msg)
	case StateAudioDisconnecting:
		sm.audioDisconnectingHandle(msg)
	}
}

// transitionTo moves the machine to next, validating the edge against
// the transition table, broadcasting the resulting deltas exactly once
// and replaying deferred messages.
func (sm *StateMachine) transitionTo(next State) {
	sm.exitState()

	sm.prevState = sm.state
	sm.state = next
	sm.published.Store(int32(next))

	assertValidTransition(sm.prevState, next, sm.device.String())
	sm.enterState()

	// Deferred messages are replayed in arrival order once the new
	// state has been entered; a message may be deferred again if the
	// machine lands in another transitional state.
	pending := sm.deferred
	sm.deferred = nil
	sm.replayDepth++
	for _, msg := range pending {
		sm.handle(msg)
	}
	sm.replayDepth--

	sm.notifyIfSettled()
}

// notifyIfSettled tells the registry the machine rests in Disconnected
// once no deferred replay is in progress. A replayed connect may have
// already moved the machine back out of Disconnected, in which case it
// must stay tracked so the connection's stack events reach it.
func (sm *StateMachine) notifyIfSettled() {
	if sm.replayDepth == 0 && sm.state == StateDisconnected {
		sm.host.MachineDisconnected(sm.device)
	}
}

func (sm *StateMachine) exitState() {
	switch sm.state {
	case StateConnecting, StateDisconnecting, StateAudioConnecting, StateAudioDisconnecting:
		sm.connTimer.Stop()
	}
}

func (sm *StateMachine) enterState() {
	switch sm.state {
	case StateDisconnected:
		sm.voiceRecognitionStarted = false
		sm.waitingForVoiceRecognition = false
		sm.nrecEnabled = false
		sm.widebandSpeech = false
		sm.broadcastStateTransitions()

	case StateConnecting, StateDisconnecting:
		sm.armConnectTimer()
		sm.broadcastStateTransitions()

	case StateConnected:
		if sm.prevState == StateConnecting {
			// Drop connection attempts deferred during setup so a
			// successful connection is not immediately torn down by
			// a stale retry.
			sm.purgeDeferred(func(m message) bool {
				_, isConnect := m.(connectMsg)
				return isConnect
			})
		}
		sm.broadcastStateTransitions()

	case StateAudioConnecting, StateAudioDisconnecting:
		sm.armConnectTimer()
		sm.broadcastStateTransitions()

	case StateAudioOn:
		sm.purgeDeferred(func(m message) bool {
			_, isConnectAudio := m.(connectAudioMsg)
			return isConnectAudio
		})
		sm.broadcastStateTransitions()
	}
}

func (sm *StateMachine) armConnectTimer() {
	sm.connTimer.Arm(sm.cfg.ConnectTimeout, func() {
		sm.post(timeoutMsg{kind: timeoutConnect})
	})
}

func (sm *StateMachine) deferMessage(msg message) {
	sm.deferred = append(sm.deferred, msg)
}

func (sm *StateMachine) purgeDeferred(match func(message) bool) {
	kept := sm.deferred[:0]
	for _, msg := range sm.deferred {
		if !match(msg) {
			kept = append(kept, msg)
		}
	}

	sm.deferred = kept
}

// broadcastStateTransitions emits the audio and connection deltas of
// the transition just performed. AudioDisconnecting reports audio as
// still connected, so the AudioDisconnecting to AudioOn recovery is
// forced out explicitly to tell observers the teardown failed.
func (sm *StateMachine) broadcastStateTransitions() {
	prevAudio, nextAudio := sm.prevState.audioState(), sm.state.audioState()
	if prevAudio != nextAudio || (sm.prevState == StateAudioDisconnecting && sm.state == StateAudioOn) {
		sm.broadcastAudioState(prevAudio, nextAudio)
	}

	prevConn, nextConn := sm.prevState.connectionState(), sm.state.connectionState()
	if prevConn != nextConn {
		sm.broadcastConnectionState(prevConn, nextConn)
	}
}

func (sm *StateMachine) broadcastConnectionState(from, to ConnectionState) {
	if from == ConnectionConnected {
		// The device is going away; a virtual call can no longer
		// route audio anywhere.
		sm.terminateVirtualCall()
	}

	sm.host.ConnectionStateChanged(sm.device, from, to)
}

func (sm *StateMachine) broadcastAudioState(from, to AudioState) {
	if from == AudioConnected {
		sm.terminateVirtualCall()
	}

	sm.host.AudioStateChanged(sm.device, from, to)
}

// isScoAcceptable decides whether an SCO connection may be set up:
// forced SCO always passes; otherwise audio routing must be allowed and
// there must be call activity, voice recognition, or in-band ringing
// for an incoming call.
func (sm *StateMachine) isScoAcceptable() bool {
	if sm.forceSco.Load() {
		return true
	}
	if !sm.audioRouteAllowed.Load() {
		return false
	}

	call := sm.phone.CallState()
	if call.inCall() || sm.voiceRecognitionStarted {
		return true
	}

	return call.ringing() && sm.host.IsInbandRingingEnabled()
}

// ---- Disconnected ----

func (sm *StateMachine) disconnectedHandle(msg message) {
	switch m := msg.(type) {
	case connectMsg:
		sm.log.Debug("connecting")
		if err := sm.native.ConnectHfp(sm.device); err != nil {
			sm.log.Error("connect failed", "error", err)
			// No state transition is involved, fire the broadcast
			// immediately.
			sm.broadcastConnectionState(ConnectionDisconnected, ConnectionDisconnected)
			sm.notifyIfSettled()
			return
		}
		sm.transitionTo(StateConnecting)

	case disconnectMsg:
		// Already disconnected; no broadcast.

	case callStateMsg:
		sm.processCallState(m.state, m.virtual)

	case deviceStateMsg:
		// No peer to report to.

	case stackEventMsg:
		if m.event.Kind != StackEventConnectionStateChanged {
			sm.log.Warn("unexpected stack event while disconnected", "event", m.event.String())
			return
		}
		sm.disconnectedConnectionEvent(m.event.Int1)

	case timeoutMsg:
		// Stale timer; nothing pending while disconnected.
	}
}

func (sm *StateMachine) disconnectedConnectionEvent(state int) {
	switch state {
	case PeerDisconnected, PeerDisconnecting:
		// Ignored.

	case PeerConnected, PeerConnecting:
		// Both land in Connecting; SLC establishment is still required.
		if sm.host.OkToAcceptConnection(sm.device) {
			sm.log.Info("incoming connection accepted")
			sm.transitionTo(StateConnecting)
			return
		}

		sm.log.Info("incoming connection rejected")
		if err := sm.native.DisconnectHfp(sm.device); err != nil {
			sm.log.Error("reject disconnect failed", "error", err)
		}
		// Indicate the rejection to observers without a transition.
		sm.broadcastConnectionState(ConnectionDisconnected, ConnectionDisconnected)
		sm.notifyIfSettled()

	default:
		sm.log.Warn("bad connection state while disconnected", "state", state)
	}
}

// ---- Connecting ----

func (sm *StateMachine) connectingHandle(msg message) {
	switch m := msg.(type) {
	case connectMsg, disconnectMsg, connectAudioMsg:
		sm.deferMessage(msg)

	case timeoutMsg:
		if m.kind != timeoutConnect {
			sm.sharedTimeout(m.kind)
			return
		}
		sm.log.Warn("connection timeout")
		sm.transitionTo(StateDisconnected)

	case callStateMsg:
		sm.processCallState(m.state, m.virtual)

	case deviceStateMsg:
		// Ignored until the SLC is up.

	case stackEventMsg:
		sm.connectingStackEvent(m.event)
	}
}

func (sm *StateMachine) connectingStackEvent(event StackEvent) {
	switch event.Kind {
	case StackEventConnectionStateChanged:
		switch event.Int1 {
		case PeerDisconnected:
			sm.transitionTo(StateDisconnected)
		case PeerSlcConnected:
			sm.processSlcConnected()
		case PeerConnected, PeerConnecting, PeerDisconnecting:
			// RFCOMM progress; wait for the SLC.
		default:
			sm.log.Warn("bad connection state while connecting", "state", event.Int1)
		}

	// Per HFP the pending state must already answer the SLC
	// establishment commands (AT+CIND, AT+CHLD=?, AT+BIND).
	case StackEventAtChld:
		sm.processAtChld(event.Int1)
	case StackEventAtCind:
		sm.processAtCind()
	case StackEventWbs:
		sm.processWbsEvent(event.Int1)
	case StackEventAtBind:
		sm.processAtBind(event.Str)

	default:
		sm.log.Warn("early AT traffic during SLC setup", "event", event.String())
		sm.sharedStackEvent(event)
	}
}

// processSlcConnected finishes SLC establishment: audio parameters are
// reset to their defaults and a fresh call state snapshot is requested
// before entering Connected.
func (sm *StateMachine) processSlcConnected() {
	sm.configAudioParameters()
	sm.telephony.QueryPhoneState()
	sm.transitionTo(StateConnected)
}

// configAudioParameters resets per-connection audio parameters; the
// peer overrides them later with AT+NREC and codec negotiation.
func (sm *StateMachine) configAudioParameters() {
	sm.nrecEnabled = true
	sm.widebandSpeech = false
}

// ---- Disconnecting ----

func (sm *StateMachine) disconnectingHandle(msg message) {
	switch m := msg.(type) {
	case connectMsg, disconnectMsg, connectAudioMsg:
		sm.deferMessage(msg)

	case timeoutMsg:
		if m.kind != timeoutConnect {
			sm.sharedTimeout(m.kind)
			return
		}
		sm.log.Error("disconnect timeout")
		sm.transitionTo(StateDisconnected)

	case stackEventMsg:
		if m.event.Kind != StackEventConnectionStateChanged {
			sm.log.Warn("unexpected stack event while disconnecting", "event", m.event.String())
			return
		}
		switch m.event.Int1 {
		case PeerDisconnected:
			sm.transitionTo(StateDisconnected)
		case PeerSlcConnected:
			// Disconnection raced with SLC establishment.
			sm.transitionTo(StateConnected)
		default:
			sm.log.Warn("bad connection state while disconnecting", "state", m.event.Int1)
		}
	}
}

// ---- Connected family ----

// sharedHandle processes the messages common to all connected-family
// states. It returns false if the message was not recognized.
func (sm *StateMachine) sharedHandle(msg message) bool {
	switch m := msg.(type) {
	case voiceRecognitionMsg:
		sm.processLocalVrEvent(m.start)

	case callStateMsg:
		sm.processCallState(m.state, m.virtual)

	case deviceStateMsg:
		if err := sm.native.NotifyDeviceStatus(sm.device, m.indicators); err != nil {
			sm.log.Error("device status notification failed", "error", err)
		}

	case clccResponseMsg:
		sm.processSendClccResponse(m.entry)

	case vendorResultCodeMsg:
		out := m.command + ": " + m.arg
		if err := sm.native.AtResponseString(sm.device, out); err != nil {
			sm.log.Error("vendor result code failed", "error", err)
		}

	case virtualCallMsg:
		if m.start {
			sm.initiateVirtualCall()
		} else {
			sm.terminateVirtualCall()
		}

	case timeoutMsg:
		sm.sharedTimeout(m.kind)

	case stackEventMsg:
		sm.sharedStackEvent(m.event)

	default:
		return false
	}

	return true
}

// sharedTimeout handles the machine-wide (state-independent) timers.
func (sm *StateMachine) sharedTimeout(kind timeoutKind) {
	switch kind {
	case timeoutDialOut:
		if sm.dialingOut {
			sm.dialingOut = false
			sm.atError()
		}

	case timeoutVrStart:
		if sm.waitingForVoiceRecognition {
			sm.waitingForVoiceRecognition = false
			sm.log.Error("timed out waiting for voice recognition to start")
			sm.atError()
		}

	case timeoutClcc:
		if sm.pendingClcc {
			sm.pendingClcc = false
			// Close the list so the peer is not left waiting.
			sm.clccTerminator()
		}

	default:
		sm.log.Warn("stale timer", "kind", kind.String())
	}
}

// sharedStackEvent handles the stack events common to all
// connected-family states.
func (sm *StateMachine) sharedStackEvent(event StackEvent) {
	switch event.Kind {
	case StackEventConnectionStateChanged:
		sm.sharedConnectionEvent(event.Int1)

	case StackEventVrStateChanged:
		sm.processRemoteVrEvent(event.Int1)

	case StackEventAnswerCall:
		sm.telephony.AnswerCall(sm.device)

	case StackEventHangupCall:
		sm.telephony.HangupCall(sm.device, sm.virtualCallStarted)

	case StackEventVolumeChanged:
		sm.processVolumeEvent(event.Int1, event.Int2)

	case StackEventDialCall:
		sm.processDialCall(event.Str)

	case StackEventSendDtmf:
		sm.telephony.SendDtmf(sm.device, event.Int1)

	case StackEventNoiseReduction:
		sm.nrecEnabled = event.Int1 == 1

	case StackEventWbs:
		sm.processWbsEvent(event.Int1)

	case StackEventAtChld:
		sm.processAtChld(event.Int1)

	case StackEventSubscriberNumberRequest:
		sm.processSubscriberNumberRequest()

	case StackEventAtCind:
		sm.processAtCind()

	case StackEventAtCops:
		sm.processAtCops()

	case StackEventAtClcc:
		sm.processAtClcc()

	case StackEventUnknownAt:
		sm.processUnknownAt(event.Str)

	case StackEventKeyPressed:
		sm.processKeyPressed()

	case StackEventAtBind:
		sm.processAtBind(event.Str)

	case StackEventAtBiev:
		sm.host.HfIndicator(sm.device, event.Int1, event.Int2)

	default:
		sm.log.Warn("unknown stack event", "event", event.String())
	}
}

// sharedConnectionEvent handles SLC state changes common to all
// connected-family states.
func (sm *StateMachine) sharedConnectionEvent(state int) {
	switch state {
	case PeerConnected, PeerSlcConnected:
		sm.log.Warn("duplicate connection event while connected", "state", state)

	case PeerDisconnecting:
		sm.transitionTo(StateDisconnecting)

	case PeerDisconnected:
		sm.transitionTo(StateDisconnected)

	default:
		sm.log.Warn("bad connection state while connected", "state", state)
	}
}

// ---- Connected ----

func (sm *StateMachine) connectedHandle(msg message) {
	switch msg.(type) {
	case connectMsg:
		// Already connected; no broadcast.
		sm.log.Warn("connect requested while connected")

	case disconnectMsg:
		if err := sm.native.DisconnectHfp(sm.device); err != nil {
			sm.log.Error("disconnect failed", "error", err)
			// No state transition; tell observers nothing changed.
			sm.broadcastConnectionState(ConnectionConnected, ConnectionConnected)
			return
		}
		sm.transitionTo(StateDisconnecting)

	case connectAudioMsg:
		if !sm.isScoAcceptable() {
			sm.log.Warn("no call activity or in-band ringing, not allowing SCO")
			sm.broadcastAudioState(AudioDisconnected, AudioDisconnected)
			return
		}
		if err := sm.native.ConnectAudio(sm.device); err != nil {
			sm.log.Error("SCO connect failed", "error", err)
			sm.broadcastAudioState(AudioDisconnected, AudioDisconnected)
			return
		}
		sm.transitionTo(StateAudioConnecting)

	case disconnectAudioMsg:
		// No audio to disconnect.

	default:
		if ev, ok := msg.(stackEventMsg); ok && ev.event.Kind == StackEventAudioStateChanged {
			sm.connectedAudioEvent(ev.event.Int1)
			return
		}
		if !sm.sharedHandle(msg) {
			sm.log.Warn("unexpected message while connected")
		}
	}
}

func (sm *StateMachine) connectedAudioEvent(state int) {
	switch state {
	case PeerAudioConnected, PeerAudioConnecting:
		if !sm.isScoAcceptable() {
			sm.log.Warn("rejecting incoming SCO")
			if err := sm.native.DisconnectAudio(sm.device); err != nil {
				sm.log.Error("SCO reject failed", "error", err)
			}
			sm.broadcastAudioState(AudioDisconnected, AudioDisconnected)
			return
		}
		if state == PeerAudioConnected {
			sm.transitionTo(StateAudioOn)
		} else {
			sm.transitionTo(StateAudioConnecting)
		}

	case PeerAudioDisconnected, PeerAudioDisconnecting:
		// Ignored.

	default:
		sm.log.Warn("bad audio state while connected", "state", state)
	}
}

// ---- AudioConnecting ----

func (sm *StateMachine) audioConnectingHandle(msg message) {
	switch m := msg.(type) {
	case connectMsg, disconnectMsg, connectAudioMsg, disconnectAudioMsg:
		sm.deferMessage(msg)

	case timeoutMsg:
		if m.kind != timeoutConnect {
			sm.sharedTimeout(m.kind)
			return
		}
		sm.log.Warn("SCO setup timeout")
		sm.transitionTo(StateConnected)

	case stackEventMsg:
		if m.event.Kind == StackEventAudioStateChanged {
			switch m.event.Int1 {
			case PeerAudioDisconnected:
				sm.log.Warn("SCO setup failed")
				sm.transitionTo(StateConnected)
			case PeerAudioConnected:
				sm.transitionTo(StateAudioOn)
			case PeerAudioConnecting, PeerAudioDisconnecting:
				// In progress.
			default:
				sm.log.Warn("bad audio state while audio connecting", "state", m.event.Int1)
			}
			return
		}
		sm.sharedStackEvent(m.event)

	default:
		sm.sharedHandle(msg)
	}
}

// ---- AudioOn ----

func (sm *StateMachine) audioOnHandle(msg message) {
	switch msg.(type) {
	case connectMsg:
		sm.log.Warn("connect requested while audio connected")

	case disconnectMsg:
		// SCO is torn down before the SLC.
		if err := sm.native.DisconnectAudio(sm.device); err != nil {
			sm.log.Warn("SCO disconnect failed, forcing SLC teardown", "error", err)
		}
		sm.deferMessage(disconnectMsg{})
		sm.transitionTo(StateConnected)

	case connectAudioMsg:
		// Audio is already connected; no broadcast.
		sm.log.Warn("audio connect requested while audio connected")

	case disconnectAudioMsg:
		if err := sm.native.DisconnectAudio(sm.device); err != nil {
			sm.log.Warn("SCO disconnect failed", "error", err)
			return
		}
		sm.transitionTo(StateAudioDisconnecting)

	default:
		if ev, ok := msg.(stackEventMsg); ok && ev.event.Kind == StackEventAudioStateChanged {
			switch ev.event.Int1 {
			case PeerAudioDisconnected:
				// Remote dropped SCO; skip straight to Connected.
				sm.transitionTo(StateConnected)
			case PeerAudioDisconnecting:
				sm.transitionTo(StateAudioDisconnecting)
			default:
				sm.log.Warn("bad audio state while audio on", "state", ev.event.Int1)
			}
			return
		}
		if !sm.sharedHandle(msg) {
			sm.log.Warn("unexpected message while audio on")
		}
	}
}

// ---- AudioDisconnecting ----

func (sm *StateMachine) audioDisconnectingHandle(msg message) {
	switch m := msg.(type) {
	case connectMsg, disconnectMsg, connectAudioMsg, disconnectAudioMsg:
		sm.deferMessage(msg)

	case timeoutMsg:
		if m.kind != timeoutConnect {
			sm.sharedTimeout(m.kind)
			return
		}
		sm.log.Warn("SCO teardown timeout")
		sm.transitionTo(StateConnected)

	case stackEventMsg:
		if m.event.Kind == StackEventAudioStateChanged {
			switch m.event.Int1 {
			case PeerAudioDisconnected:
				sm.transitionTo(StateConnected)
			case PeerAudioConnected:
				sm.log.Warn("SCO teardown failed")
				sm.transitionTo(StateAudioOn)
			case PeerAudioConnecting, PeerAudioDisconnecting:
				// In progress.
			default:
				sm.log.Warn("bad audio state while audio disconnecting", "state", m.event.Int1)
			}
			return
		}
		sm.sharedStackEvent(m.event)

	default:
		sm.sharedHandle(msg)
	}
}

// ---- Shared processing ----

func (sm *StateMachine) atOK() {
	if err := sm.native.AtResponseCode(sm.device, AtResponseOK, 0); err != nil {
		sm.log.Error("OK response failed", "error", err)
	}
}

func (sm *StateMachine) atError() {
	if err := sm.native.AtResponseCode(sm.device, AtResponseError, 0); err != nil {
		sm.log.Error("ERROR response failed", "error", err)
	}
}

func (sm *StateMachine) clccTerminator() {
	if err := sm.native.ClccResponse(sm.device, 0, 0, 0, 0, false, "", 0); err != nil {
		sm.log.Error("CLCC terminator failed", "error", err)
	}
}

// processCallState applies a telephony call state update and forwards
// it to the peer. A real (circuit-switched) call terminates any ongoing
// virtual call first; the two are mutually exclusive.
func (sm *StateMachine) processCallState(state CallState, virtual bool) {
	sm.phone.SetCallState(state)

	if sm.dialingOut {
		switch state.Setup {
		case CallDialing:
			sm.atOK()
			sm.dialTimer.Stop()
		case CallActive, CallIdle:
			sm.dialingOut = false
		}
	}

	if virtual {
		if sm.state != StateDisconnected {
			if err := sm.native.PhoneStateChange(sm.device, state); err != nil {
				sm.log.Error("phone state change failed", "error", err)
			}
		}
		return
	}

	if state.NumActive > 0 || state.NumHeld > 0 || state.Setup != CallIdle {
		sm.terminateVirtualCall()
		// terminateVirtualCall resets the snapshot to idle; restore
		// the real call state so AT+CIND? reads the right values.
		sm.phone.SetCallState(state)
	}

	if !sm.virtualCallStarted && sm.state != StateDisconnected {
		if err := sm.native.PhoneStateChange(sm.device, state); err != nil {
			sm.log.Error("phone state change failed", "error", err)
		}
	}
}

// initiateVirtualCall synthesizes the dial/alert/active sequence that
// routes SCO audio without a real telephony call.
func (sm *StateMachine) initiateVirtualCall() bool {
	call := sm.phone.CallState()
	if call.inCall() || sm.voiceRecognitionStarted {
		sm.log.Error("cannot start virtual call during a call")
		return false
	}

	sm.processCallState(CallState{Setup: CallDialing}, true)
	sm.processCallState(CallState{Setup: CallAlerting}, true)
	sm.processCallState(CallState{NumActive: 1, Setup: CallIdle}, true)
	sm.virtualCallStarted = true

	return true
}

func (sm *StateMachine) terminateVirtualCall() bool {
	if !sm.virtualCallStarted {
		return false
	}

	sm.processCallState(CallState{Setup: CallIdle}, true)
	sm.virtualCallStarted = false

	return true
}

// processRemoteVrEvent handles a BVRA command from the peer.
func (sm *StateMachine) processRemoteVrEvent(state int) {
	switch state {
	case VrStarted:
		call := sm.phone.CallState()
		if sm.virtualCallStarted || call.inCall() {
			sm.atError()
			return
		}
		if !sm.telephony.VoiceCommand(sm.device) {
			sm.atError()
			return
		}
		// The local assistant confirms the start asynchronously; fail
		// the command if it never does.
		sm.waitingForVoiceRecognition = true
		sm.vrTimer.Arm(sm.cfg.VrStartTimeout, func() {
			sm.post(timeoutMsg{kind: timeoutVrStart})
		})

	case VrStopped:
		if sm.voiceRecognitionStarted || sm.waitingForVoiceRecognition {
			sm.atOK()
			sm.voiceRecognitionStarted = false
			sm.waitingForVoiceRecognition = false
			if !sm.phone.CallState().inCall() && sm.state.audioState() != AudioDisconnected {
				if err := sm.native.DisconnectAudio(sm.device); err != nil {
					sm.log.Error("SCO disconnect after VR stop failed", "error", err)
				}
			}
			return
		}
		sm.atError()

	default:
		sm.log.Error("bad voice recognition state", "state", state)
	}
}

// processLocalVrEvent handles a locally initiated voice recognition
// start or stop.
func (sm *StateMachine) processLocalVrEvent(start bool) {
	if start {
		if sm.voiceRecognitionStarted || sm.phone.CallState().inCall() {
			sm.log.Error("voice recognition start rejected during a call")
			return
		}
		sm.voiceRecognitionStarted = true

		needAudio := true
		if sm.waitingForVoiceRecognition {
			// The remote asked first; confirm it.
			sm.waitingForVoiceRecognition = false
			sm.vrTimer.Stop()
			sm.atOK()
		} else {
			if err := sm.native.StartVoiceRecognition(sm.device); err != nil {
				sm.log.Error("voice recognition start failed", "error", err)
				needAudio = false
			}
		}

		if needAudio && sm.state.audioState() == AudioDisconnected {
			if err := sm.native.ConnectAudio(sm.device); err != nil {
				sm.log.Error("SCO connect for voice recognition failed", "error", err)
			}
		}
		return
	}

	if sm.voiceRecognitionStarted || sm.waitingForVoiceRecognition {
		sm.voiceRecognitionStarted = false
		sm.waitingForVoiceRecognition = false
		sm.vrTimer.Stop()

		err := sm.native.StopVoiceRecognition(sm.device)
		if err == nil && !sm.phone.CallState().inCall() &&
			sm.state.audioState() != AudioDisconnected {
			if err := sm.native.DisconnectAudio(sm.device); err != nil {
				sm.log.Error("SCO disconnect after VR stop failed", "error", err)
			}
		}
	}
}

// processDialCall handles an ATD/BLDN dial request from the peer.
func (sm *StateMachine) processDialCall(number string) {
	if sm.dialingOut {
		sm.atError()
		return
	}

	if strings.HasPrefix(number, ">") {
		// Memory dialing: redial the last number. The PTS pseudo-slot
		// is rejected outright.
		if strings.HasPrefix(number, ">9999") {
			sm.atError()
			return
		}
		number = ""
	}

	number = strings.TrimSuffix(number, ";")

	// A real call is starting; any virtual call must end first.
	sm.terminateVirtualCall()

	if !sm.telephony.DialCall(sm.device, number) {
		sm.atError()
		return
	}

	// The OK is sent once the telephony layer reports dialing progress.
	sm.dialingOut = true
	sm.dialTimer.Arm(sm.cfg.DialOutTimeout, func() {
		sm.post(timeoutMsg{kind: timeoutDialOut})
	})
}

func (sm *StateMachine) processVolumeEvent(volumeType, volume int) {
	switch volumeType {
	case VolumeTypeSpeaker:
		sm.speakerVolume = volume
	case VolumeTypeMic:
		sm.micVolume = volume
	default:
		sm.log.Error("bad volume type", "type", volumeType)
		return
	}

	sm.host.VolumeChanged(sm.device, volumeType, volume)
}

func (sm *StateMachine) processWbsEvent(config int) {
	switch config {
	case WbsYes:
		sm.widebandSpeech = true
	case WbsNo, WbsNone:
		sm.widebandSpeech = false
	default:
		sm.log.Error("unknown wideband speech config", "config", config)
	}
}

func (sm *StateMachine) processAtChld(chld int) {
	if sm.telephony.ProcessChld(chld) {
		sm.atOK()
		return
	}

	sm.atError()
}

// processAtCind answers AT+CIND?. During a virtual call the call
// indicator is forced so carkits that poll CIND see a consistent view.
func (sm *StateMachine) processAtCind() {
	call := sm.phone.CallState()
	ind := sm.phone.Indicators()

	numActive, numHeld := call.NumActive, call.NumHeld
	if sm.virtualCallStarted {
		numActive, numHeld = 1, 0
	}

	err := sm.native.CindResponse(sm.device, ind.Service, numActive, numHeld,
		int(call.Setup), ind.Signal, ind.Roam, ind.Battery)
	if err != nil {
		sm.log.Error("CIND response failed", "error", err)
	}
}

func (sm *StateMachine) processAtCops() {
	operator := sm.telephony.NetworkOperator()
	if len(operator) > 16 {
		operator = operator[:16]
	}

	if err := sm.native.CopsResponse(sm.device, operator); err != nil {
		sm.log.Error("COPS response failed", "error", err)
	}
}

// processAtClcc answers AT+CLCC. A virtual call is answered locally
// with a single synthetic entry; real calls are enumerated by the
// telephony collaborator with a response deadline.
func (sm *StateMachine) processAtClcc() {
	if sm.virtualCallStarted {
		number, _ := sm.telephony.SubscriberNumber()
		if err := sm.native.ClccResponse(sm.device, 1, 0, 0, 0, false, number, toaFromNumber(number)); err != nil {
			sm.log.Error("CLCC response failed", "error", err)
		}
		sm.clccTerminator()
		return
	}

	if !sm.telephony.ListCurrentCalls() {
		sm.log.Error("failed to list current calls")
		sm.clccTerminator()
		return
	}

	sm.pendingClcc = true
	sm.clccTimer.Arm(sm.cfg.ClccTimeout, func() {
		sm.post(timeoutMsg{kind: timeoutClcc})
	})
}

func (sm *StateMachine) processSendClccResponse(entry ClccEntry) {
	if !sm.pendingClcc {
		return
	}
	if entry.Index == 0 {
		sm.pendingClcc = false
		sm.clccTimer.Stop()
	}

	err := sm.native.ClccResponse(sm.device, entry.Index, entry.Direction,
		entry.Status, entry.Mode, entry.Multiparty, entry.Number, entry.Type)
	if err != nil {
		sm.log.Error("CLCC response failed", "error", err)
	}
}

func (sm *StateMachine) processSubscriberNumberRequest() {
	number, ok := sm.telephony.SubscriberNumber()
	if !ok {
		sm.atError()
		return
	}

	rsp := "+CNUM: ,\"" + number + "\"," + strconv.Itoa(toaFromNumber(number)) + ",,4"
	if err := sm.native.AtResponseString(sm.device, rsp); err != nil {
		sm.log.Error("CNUM response failed", "error", err)
	}
	sm.atOK()
}

// processUnknownAt handles AT commands the native layer could not
// classify. Phonebook access commands are not served; everything else
// is treated as a vendor-specific command.
func (sm *StateMachine) processUnknownAt(atString string) {
	atCommand := normalizeUnknownAt(atString)

	switch {
	case strings.HasPrefix(atCommand, "+CSCS"),
		strings.HasPrefix(atCommand, "+CPBS"),
		strings.HasPrefix(atCommand, "+CPBR"):
		sm.atError()

	default:
		sm.processVendorSpecificAt(atCommand)
	}
}

// processVendorSpecificAt accepts known vendor AT commands (SET type
// only), reports them to the host and acknowledges them.
func (sm *StateMachine) processVendorSpecificAt(atString string) {
	idx := strings.Index(atString, "=")
	if idx == -1 {
		sm.atError()
		return
	}

	command := atString[:idx]
	companyID, ok := vendorCommandCompanyIDs[command]
	if !ok {
		sm.log.Error("unsupported vendor command", "command", atString)
		sm.atError()
		return
	}

	arg := atString[idx+1:]
	if strings.HasPrefix(arg, "?") {
		sm.atError()
		return
	}

	args := generateArgs(arg)
	if command == "+XAPL" {
		sm.processAtXapl(args)
	}

	sm.host.VendorCommand(sm.device, command, companyID, args)
	sm.atOK()
}

// processAtXapl answers the Apple accessory handshake, advertising
// battery level reporting support only.
func (sm *StateMachine) processAtXapl(args []any) {
	if len(args) != 2 {
		sm.log.Warn("XAPL argument count mismatch", "count", len(args))
		return
	}
	if _, ok := args[0].(string); !ok {
		return
	}
	if _, ok := args[1].(int); !ok {
		return
	}

	if err := sm.native.AtResponseString(sm.device, "+XAPL=iPhone,2"); err != nil {
		sm.log.Error("XAPL response failed", "error", err)
	}
}

// processKeyPressed handles the legacy headset button: answer a ringing
// call, hang up or re-route an active one, or redial.
func (sm *StateMachine) processKeyPressed() {
	call := sm.phone.CallState()

	switch {
	case call.ringing():
		sm.telephony.AnswerCall(sm.device)

	case call.NumActive > 0:
		if sm.state.audioState() == AudioDisconnected {
			if err := sm.native.ConnectAudio(sm.device); err != nil {
				sm.log.Error("SCO connect on key press failed", "error", err)
			}
		} else {
			sm.telephony.HangupCall(sm.device, false)
		}

	default:
		if !sm.telephony.DialCall(sm.device, "") {
			sm.log.Debug("no last dialled number for key press")
		}
	}
}

func (sm *StateMachine) processAtBind(atString string) {
	for _, id := range parseBindIndicators(atString) {
		switch id {
		case IndicatorEnhancedDriverSafety, IndicatorBatteryLevel:
			sm.host.HfIndicator(sm.device, id, -1)
		default:
			sm.log.Debug("unsupported HF indicator", "indicator", id)
		}
	}
}

// toaFromNumber returns the type-of-address octet for a number:
// international (145) when it carries a '+' prefix, unknown (129)
// otherwise.
func toaFromNumber(number string) int {
	if strings.HasPrefix(number, "+") {
		return 145
	}

	return 129
}
