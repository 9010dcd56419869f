package hfp

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
)

var testDevice = mustMAC("11:22:33:AA:BB:CC")

func mustMAC(s string) bluetooth.MacAddress {
	mac, err := bluetooth.ParseMAC(s)
	if err != nil {
		panic(err)
	}

	return mac
}

type nativeCall struct {
	name string
	args []any
}

type fakeNative struct {
	calls []nativeCall
	fail  map[string]error
}

func (f *fakeNative) record(name string, args ...any) error {
	f.calls = append(f.calls, nativeCall{name: name, args: args})
	if f.fail != nil {
		return f.fail[name]
	}

	return nil
}

func (f *fakeNative) names() []string {
	var names []string
	for _, c := range f.calls {
		names = append(names, c.name)
	}

	return names
}

func (f *fakeNative) reset() { f.calls = nil }

func (f *fakeNative) ConnectHfp(d bluetooth.MacAddress) error { return f.record("ConnectHfp") }
func (f *fakeNative) DisconnectHfp(d bluetooth.MacAddress) error {
	return f.record("DisconnectHfp")
}
func (f *fakeNative) ConnectAudio(d bluetooth.MacAddress) error { return f.record("ConnectAudio") }
func (f *fakeNative) DisconnectAudio(d bluetooth.MacAddress) error {
	return f.record("DisconnectAudio")
}
func (f *fakeNative) StartVoiceRecognition(d bluetooth.MacAddress) error {
	return f.record("StartVoiceRecognition")
}
func (f *fakeNative) StopVoiceRecognition(d bluetooth.MacAddress) error {
	return f.record("StopVoiceRecognition")
}
func (f *fakeNative) SetVolume(d bluetooth.MacAddress, volumeType, volume int) error {
	return f.record("SetVolume", volumeType, volume)
}
func (f *fakeNative) AtResponseCode(d bluetooth.MacAddress, code, cmeError int) error {
	return f.record("AtResponseCode", code)
}
func (f *fakeNative) AtResponseString(d bluetooth.MacAddress, response string) error {
	return f.record("AtResponseString", response)
}
func (f *fakeNative) CindResponse(d bluetooth.MacAddress, service, numActive, numHeld, callState, signal, roam, battery int) error {
	return f.record("CindResponse", service, numActive, numHeld, callState, signal, roam, battery)
}
func (f *fakeNative) CopsResponse(d bluetooth.MacAddress, operator string) error {
	return f.record("CopsResponse", operator)
}
func (f *fakeNative) ClccResponse(d bluetooth.MacAddress, index, direction, status, mode int, multiparty bool, number string, numberType int) error {
	return f.record("ClccResponse", index, direction, status, mode, multiparty, number, numberType)
}
func (f *fakeNative) PhoneStateChange(d bluetooth.MacAddress, state CallState) error {
	return f.record("PhoneStateChange", state)
}
func (f *fakeNative) NotifyDeviceStatus(d bluetooth.MacAddress, ind Indicators) error {
	return f.record("NotifyDeviceStatus", ind)
}
func (f *fakeNative) SetActiveDevice(d bluetooth.MacAddress) error {
	return f.record("SetActiveDevice", d)
}
func (f *fakeNative) SendBsir(d bluetooth.MacAddress, enabled bool) error {
	return f.record("SendBsir", enabled)
}

type fakeTelephony struct {
	answered  int
	hangups   int
	dialed    []string
	dialOK    bool
	chldOK    bool
	listOK    bool
	voiceOK   bool
	number    string
	numberOK  bool
	operator  string
	queried   int
	dtmfTones []int
}

func (f *fakeTelephony) AnswerCall(d bluetooth.MacAddress) { f.answered++ }
func (f *fakeTelephony) HangupCall(d bluetooth.MacAddress, virtualCall bool) {
	f.hangups++
}
func (f *fakeTelephony) DialCall(d bluetooth.MacAddress, number string) bool {
	f.dialed = append(f.dialed, number)
	return f.dialOK
}
func (f *fakeTelephony) SendDtmf(d bluetooth.MacAddress, tone int) {
	f.dtmfTones = append(f.dtmfTones, tone)
}
func (f *fakeTelephony) VoiceCommand(d bluetooth.MacAddress) bool { return f.voiceOK }
func (f *fakeTelephony) ProcessChld(chld int) bool                { return f.chldOK }
func (f *fakeTelephony) ListCurrentCalls() bool                   { return f.listOK }
func (f *fakeTelephony) SubscriberNumber() (string, bool)         { return f.number, f.numberOK }
func (f *fakeTelephony) NetworkOperator() string                  { return f.operator }
func (f *fakeTelephony) QueryPhoneState()                         { f.queried++ }

type broadcast struct {
	kind string
	prev string
	next string
}

type fakeHost struct {
	broadcasts []broadcast
	acceptOK   bool
	inband     bool

	volumes    []int
	vendorCmds []string
	indicators map[int]int
	reaped     []bluetooth.MacAddress
}

func (f *fakeHost) ConnectionStateChanged(d bluetooth.MacAddress, prev, next ConnectionState) {
	f.broadcasts = append(f.broadcasts, broadcast{"conn", prev.String(), next.String()})
}
func (f *fakeHost) AudioStateChanged(d bluetooth.MacAddress, prev, next AudioState) {
	f.broadcasts = append(f.broadcasts, broadcast{"audio", prev.String(), next.String()})
}
func (f *fakeHost) OkToAcceptConnection(d bluetooth.MacAddress) bool { return f.acceptOK }
func (f *fakeHost) IsInbandRingingEnabled() bool                     { return f.inband }
func (f *fakeHost) VolumeChanged(d bluetooth.MacAddress, volumeType, volume int) {
	f.volumes = append(f.volumes, volume)
}
func (f *fakeHost) VendorCommand(d bluetooth.MacAddress, command string, companyID int, args []any) {
	f.vendorCmds = append(f.vendorCmds, command)
}
func (f *fakeHost) HfIndicator(d bluetooth.MacAddress, indicator, value int) {
	if f.indicators == nil {
		f.indicators = make(map[int]int)
	}
	f.indicators[indicator] = value
}
func (f *fakeHost) MachineDisconnected(d bluetooth.MacAddress) {
	f.reaped = append(f.reaped, d)
}

func (f *fakeHost) reset() { f.broadcasts = nil }

type machineFixture struct {
	sm        *StateMachine
	native    *fakeNative
	telephony *fakeTelephony
	host      *fakeHost
}

// newFixture builds a machine whose mailbox goroutine is not running;
// tests drive it synchronously through handle.
func newFixture(t *testing.T) *machineFixture {
	t.Helper()

	native := &fakeNative{}
	telephony := &fakeTelephony{dialOK: true, chldOK: true, listOK: true, voiceOK: true}
	host := &fakeHost{acceptOK: true, inband: true}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := Config{AudioRouteAllowed: true}
	sm := newStateMachine(testDevice, native, telephony, NewPhoneState(), host, cfg, log)

	return &machineFixture{sm: sm, native: native, telephony: telephony, host: host}
}

func connEvent(state int) stackEventMsg {
	return stackEventMsg{event: StackEvent{
		Kind: StackEventConnectionStateChanged, Int1: state, Device: testDevice,
	}}
}

func audioEvent(state int) stackEventMsg {
	return stackEventMsg{event: StackEvent{
		Kind: StackEventAudioStateChanged, Int1: state, Device: testDevice,
	}}
}

// connect drives the machine from Disconnected to Connected.
func (fx *machineFixture) connect(t *testing.T) {
	t.Helper()

	fx.sm.handle(connectMsg{})
	fx.sm.handle(connEvent(PeerSlcConnected))
	if fx.sm.state != StateConnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateConnected)
	}

	fx.native.reset()
	fx.host.reset()
}

// audioUp drives a connected machine to AudioOn with an active call.
func (fx *machineFixture) audioUp(t *testing.T) {
	t.Helper()

	fx.sm.phone.SetCallState(CallState{NumActive: 1})
	fx.sm.handle(connectAudioMsg{})
	fx.sm.handle(audioEvent(PeerAudioConnected))
	if fx.sm.state != StateAudioOn {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateAudioOn)
	}

	fx.native.reset()
	fx.host.reset()
}

func TestTransitionTable(t *testing.T) {
	all := []State{
		StateDisconnected, StateConnecting, StateDisconnecting,
		StateConnected, StateAudioConnecting, StateAudioOn,
		StateAudioDisconnecting,
	}

	for _, prev := range all {
		for _, next := range all {
			if prev == next {
				continue
			}

			allowed := false
			for _, p := range validPredecessors[next] {
				if p == prev {
					allowed = true
					break
				}
			}

			t.Run(fmt.Sprintf("%v_to_%v", prev, next), func(t *testing.T) {
				defer func() {
					r := recover()
					if allowed && r != nil {
						t.Fatalf("allowed edge panicked: %v", r)
					}
					if !allowed && r == nil {
						t.Fatal("invalid edge did not panic")
					}
				}()

				assertValidTransition(prev, next, testDevice.String())
			})
		}
	}
}

func TestConnectLifecycle(t *testing.T) {
	fx := newFixture(t)

	fx.sm.handle(connectMsg{})
	if fx.sm.state != StateConnecting {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateConnecting)
	}
	if got := fx.native.names(); len(got) != 1 || got[0] != "ConnectHfp" {
		t.Fatalf("native calls = %v", got)
	}

	fx.sm.handle(connEvent(PeerConnected))
	if fx.sm.state != StateConnecting {
		t.Fatalf("RFCOMM connect should not complete the SLC, state = %v", fx.sm.state)
	}

	fx.sm.handle(connEvent(PeerSlcConnected))
	if fx.sm.state != StateConnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateConnected)
	}
	if fx.telephony.queried != 1 {
		t.Fatalf("phone state queries = %d, want 1", fx.telephony.queried)
	}

	want := []broadcast{
		{"conn", "disconnected", "connecting"},
		{"conn", "connecting", "connected"},
	}
	assertBroadcasts(t, fx.host.broadcasts, want)
}

func assertBroadcasts(t *testing.T, got, want []broadcast) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("broadcasts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("broadcast[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConnectFailureBroadcastsWithoutTransition(t *testing.T) {
	fx := newFixture(t)
	fx.native.fail = map[string]error{"ConnectHfp": fmt.Errorf("no link")}

	fx.sm.handle(connectMsg{})
	if fx.sm.state != StateDisconnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateDisconnected)
	}

	assertBroadcasts(t, fx.host.broadcasts, []broadcast{
		{"conn", "disconnected", "disconnected"},
	})
}

func TestIncomingConnectionRejected(t *testing.T) {
	fx := newFixture(t)
	fx.host.acceptOK = false

	fx.sm.handle(connEvent(PeerConnecting))
	if fx.sm.state != StateDisconnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateDisconnected)
	}
	if got := fx.native.names(); len(got) != 1 || got[0] != "DisconnectHfp" {
		t.Fatalf("native calls = %v", got)
	}

	assertBroadcasts(t, fx.host.broadcasts, []broadcast{
		{"conn", "disconnected", "disconnected"},
	})
}

func TestConnectTimeout(t *testing.T) {
	fx := newFixture(t)

	fx.sm.handle(connectMsg{})
	fx.sm.handle(timeoutMsg{kind: timeoutConnect})
	if fx.sm.state != StateDisconnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateDisconnected)
	}
}

func TestDeferredReplayOrder(t *testing.T) {
	fx := newFixture(t)

	fx.sm.handle(connectMsg{})
	fx.native.reset()

	// Both are deferred while connecting and must replay in order once
	// the SLC is up: the audio connect runs first (and is refused with
	// no call activity), then the disconnect.
	fx.sm.handle(connectAudioMsg{})
	fx.sm.handle(disconnectMsg{})
	if len(fx.sm.deferred) != 2 {
		t.Fatalf("deferred = %d messages, want 2", len(fx.sm.deferred))
	}

	fx.sm.handle(connEvent(PeerSlcConnected))
	if fx.sm.state != StateDisconnecting {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateDisconnecting)
	}

	want := []broadcast{
		{"conn", "disconnected", "connecting"},
		{"conn", "connecting", "connected"},
		{"audio", "audio-disconnected", "audio-disconnected"},
		{"conn", "connected", "disconnecting"},
	}
	assertBroadcasts(t, fx.host.broadcasts, want)
}

func TestDeferredConnectReplaysBeforeReap(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(disconnectMsg{})
	if fx.sm.state != StateDisconnecting {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateDisconnecting)
	}

	// A reconnect requested mid-teardown is deferred; once the
	// disconnect completes it must replay on this machine, which
	// therefore cannot be reaped while passing through Disconnected.
	fx.sm.handle(connectMsg{})
	fx.sm.handle(connEvent(PeerDisconnected))

	if fx.sm.state != StateConnecting {
		t.Fatalf("state = %v, want %v after replay", fx.sm.state, StateConnecting)
	}
	if len(fx.host.reaped) != 0 {
		t.Fatalf("machine reaped with a replayed connection in flight: %v", fx.host.reaped)
	}

	want := []broadcast{
		{"conn", "connected", "disconnecting"},
		{"conn", "disconnecting", "disconnected"},
		{"conn", "disconnected", "connecting"},
	}
	assertBroadcasts(t, fx.host.broadcasts, want)
}

func TestReapSignaledOnceSettledDisconnected(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(disconnectMsg{})
	fx.sm.handle(connEvent(PeerDisconnected))

	if fx.sm.state != StateDisconnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateDisconnected)
	}
	if got := fx.host.reaped; len(got) != 1 || got[0] != testDevice {
		t.Fatalf("reaped = %v, want exactly the disconnected device", got)
	}
}

func TestConnectedPurgesDeferredConnect(t *testing.T) {
	fx := newFixture(t)

	fx.sm.handle(connectMsg{})
	fx.native.reset()

	// A retry deferred during setup must not fire once connected.
	fx.sm.handle(connectMsg{})
	fx.sm.handle(connEvent(PeerSlcConnected))

	if fx.sm.state != StateConnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateConnected)
	}
	if len(fx.sm.deferred) != 0 {
		t.Fatalf("deferred = %d messages, want 0", len(fx.sm.deferred))
	}
	for _, name := range fx.native.names() {
		if name == "ConnectHfp" {
			t.Fatal("deferred connect replayed after connection completed")
		}
	}
}

func TestIsScoAcceptable(t *testing.T) {
	cases := []struct {
		name     string
		force    bool
		route    bool
		call     CallState
		vr       bool
		inband   bool
		expected bool
	}{
		{name: "idle", route: true, call: CallState{Setup: CallIdle}, expected: false},
		{name: "force overrides everything", force: true, call: CallState{Setup: CallIdle}, expected: true},
		{name: "route disallowed", call: CallState{NumActive: 1, Setup: CallIdle}, expected: false},
		{name: "active call", route: true, call: CallState{NumActive: 1, Setup: CallIdle}, expected: true},
		{name: "held call", route: true, call: CallState{NumHeld: 1, Setup: CallIdle}, expected: true},
		{name: "outgoing setup", route: true, call: CallState{Setup: CallDialing}, expected: true},
		{name: "voice recognition", route: true, vr: true, call: CallState{Setup: CallIdle}, expected: true},
		{name: "ringing with inband", route: true, call: CallState{Setup: CallIncoming}, inband: true, expected: true},
		{name: "ringing without inband", route: true, call: CallState{Setup: CallIncoming}, expected: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.connect(t)

			fx.sm.forceSco.Store(tc.force)
			fx.sm.audioRouteAllowed.Store(tc.route)
			fx.sm.phone.SetCallState(tc.call)
			fx.sm.voiceRecognitionStarted = tc.vr
			fx.host.inband = tc.inband

			if got := fx.sm.isScoAcceptable(); got != tc.expected {
				t.Fatalf("isScoAcceptable() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestUnacceptableConnectAudioBroadcastsSameState(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(connectAudioMsg{})
	if fx.sm.state != StateConnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateConnected)
	}
	if got := fx.native.names(); len(got) != 0 {
		t.Fatalf("native calls = %v, want none", got)
	}

	assertBroadcasts(t, fx.host.broadcasts, []broadcast{
		{"audio", "audio-disconnected", "audio-disconnected"},
	})
}

func TestIncomingScoRejected(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)
	fx.host.inband = false

	fx.sm.handle(audioEvent(PeerAudioConnected))
	if fx.sm.state != StateConnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateConnected)
	}
	if got := fx.native.names(); len(got) != 1 || got[0] != "DisconnectAudio" {
		t.Fatalf("native calls = %v", got)
	}

	assertBroadcasts(t, fx.host.broadcasts, []broadcast{
		{"audio", "audio-disconnected", "audio-disconnected"},
	})
}

func TestAudioLifecycle(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.phone.SetCallState(CallState{NumActive: 1})
	fx.sm.handle(connectAudioMsg{})
	if fx.sm.state != StateAudioConnecting {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateAudioConnecting)
	}

	fx.sm.handle(audioEvent(PeerAudioConnected))
	if fx.sm.state != StateAudioOn {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateAudioOn)
	}

	fx.sm.handle(disconnectAudioMsg{})
	if fx.sm.state != StateAudioDisconnecting {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateAudioDisconnecting)
	}

	fx.sm.handle(audioEvent(PeerAudioDisconnected))
	if fx.sm.state != StateConnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateConnected)
	}

	want := []broadcast{
		{"audio", "audio-disconnected", "audio-connecting"},
		{"audio", "audio-connecting", "audio-connected"},
		{"audio", "audio-connected", "audio-disconnected"},
	}
	assertBroadcasts(t, fx.host.broadcasts, want)
}

func TestAudioTeardownFailureBroadcastsRecovery(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)
	fx.audioUp(t)

	fx.sm.handle(disconnectAudioMsg{})
	if len(fx.host.broadcasts) != 0 {
		t.Fatalf("teardown start should not broadcast, got %v", fx.host.broadcasts)
	}

	// The peer kept the SCO link; observers must learn the teardown
	// failed even though the reported audio state never changed.
	fx.sm.handle(audioEvent(PeerAudioConnected))
	if fx.sm.state != StateAudioOn {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateAudioOn)
	}

	assertBroadcasts(t, fx.host.broadcasts, []broadcast{
		{"audio", "audio-connected", "audio-connected"},
	})
}

func TestRemoteAudioDropSkipsToConnected(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)
	fx.audioUp(t)

	fx.sm.handle(audioEvent(PeerAudioDisconnected))
	if fx.sm.state != StateConnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateConnected)
	}

	assertBroadcasts(t, fx.host.broadcasts, []broadcast{
		{"audio", "audio-connected", "audio-disconnected"},
	})
}

func TestDisconnectWhileAudioOnDefersSlcTeardown(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)
	fx.audioUp(t)

	fx.sm.handle(disconnectMsg{})
	if fx.sm.state != StateDisconnecting {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateDisconnecting)
	}

	got := fx.native.names()
	if len(got) != 2 || got[0] != "DisconnectAudio" || got[1] != "DisconnectHfp" {
		t.Fatalf("native calls = %v, want [DisconnectAudio DisconnectHfp]", got)
	}
}

func TestDialCall(t *testing.T) {
	t.Run("memory slot rejected", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)

		fx.sm.handle(stackEventMsg{event: StackEvent{
			Kind: StackEventDialCall, Str: ">9999", Device: testDevice,
		}})
		assertAtResponse(t, fx.native, AtResponseError)
		if len(fx.telephony.dialed) != 0 {
			t.Fatalf("dialed = %v, want none", fx.telephony.dialed)
		}
	})

	t.Run("dial with trailing semicolon stripped", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)

		fx.sm.handle(stackEventMsg{event: StackEvent{
			Kind: StackEventDialCall, Str: "555123;", Device: testDevice,
		}})
		if len(fx.telephony.dialed) != 1 || fx.telephony.dialed[0] != "555123" {
			t.Fatalf("dialed = %v, want [555123]", fx.telephony.dialed)
		}
		if !fx.sm.dialingOut {
			t.Fatal("machine should be waiting for dialing progress")
		}

		// The OK only goes out once the call leaves idle.
		if len(fx.native.calls) != 0 {
			t.Fatalf("native calls = %v, want none before progress", fx.native.names())
		}

		fx.sm.handle(callStateMsg{state: CallState{Setup: CallDialing}})
		assertAtResponse(t, fx.native, AtResponseOK)
	})

	t.Run("second dial while pending", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)

		fx.sm.handle(stackEventMsg{event: StackEvent{
			Kind: StackEventDialCall, Str: "555123", Device: testDevice,
		}})
		fx.native.reset()

		fx.sm.handle(stackEventMsg{event: StackEvent{
			Kind: StackEventDialCall, Str: "555124", Device: testDevice,
		}})
		assertAtResponse(t, fx.native, AtResponseError)
	})

	t.Run("timeout", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)

		fx.sm.handle(stackEventMsg{event: StackEvent{
			Kind: StackEventDialCall, Str: "555123", Device: testDevice,
		}})
		fx.sm.handle(timeoutMsg{kind: timeoutDialOut})
		assertAtResponse(t, fx.native, AtResponseError)
		if fx.sm.dialingOut {
			t.Fatal("dial-out flag should clear on timeout")
		}
	})
}

func assertAtResponse(t *testing.T, native *fakeNative, code int) {
	t.Helper()

	for _, c := range native.calls {
		if c.name == "AtResponseCode" {
			if c.args[0] != code {
				t.Fatalf("AT response code = %v, want %v", c.args[0], code)
			}
			return
		}
	}

	t.Fatalf("no AT response sent, calls = %v", native.names())
}

func TestVirtualCall(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(virtualCallMsg{start: true})
	if !fx.sm.virtualCallStarted {
		t.Fatal("virtual call should be active")
	}

	var phases []CallSetupState
	for _, c := range fx.native.calls {
		if c.name == "PhoneStateChange" {
			phases = append(phases, c.args[0].(CallState).Setup)
		}
	}
	want := []CallSetupState{CallDialing, CallAlerting, CallIdle}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phase[%d] = %v, want %v", i, phases[i], want[i])
		}
	}

	// CIND during a virtual call reports a synthetic active call.
	fx.native.reset()
	fx.sm.handle(stackEventMsg{event: StackEvent{Kind: StackEventAtCind, Device: testDevice}})
	c := fx.native.calls[0]
	if c.name != "CindResponse" {
		t.Fatalf("call = %v, want CindResponse", c.name)
	}
	if numActive := c.args[1]; numActive != 1 {
		t.Fatalf("CIND numActive = %v, want 1", numActive)
	}

	// A real call displaces the virtual call.
	fx.sm.handle(callStateMsg{state: CallState{Setup: CallIncoming, Number: "555"}})
	if fx.sm.virtualCallStarted {
		t.Fatal("virtual call should end when a real call starts")
	}
	if got := fx.sm.phone.CallState().Setup; got != CallIncoming {
		t.Fatalf("call setup = %v, want %v", got, CallIncoming)
	}
}

func TestVirtualCallRejectedDuringCall(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.phone.SetCallState(CallState{NumActive: 1})
	fx.sm.handle(virtualCallMsg{start: true})
	if fx.sm.virtualCallStarted {
		t.Fatal("virtual call must not start during a real call")
	}
}

func TestClccVirtualCall(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)
	fx.telephony.number, fx.telephony.numberOK = "+4455", true

	fx.sm.handle(virtualCallMsg{start: true})
	fx.native.reset()

	fx.sm.handle(stackEventMsg{event: StackEvent{Kind: StackEventAtClcc, Device: testDevice}})

	if len(fx.native.calls) != 2 {
		t.Fatalf("calls = %v, want entry plus terminator", fx.native.names())
	}
	entry := fx.native.calls[0]
	if entry.args[0] != 1 || entry.args[5] != "+4455" || entry.args[6] != 145 {
		t.Fatalf("CLCC entry = %v", entry.args)
	}
	term := fx.native.calls[1]
	if term.args[0] != 0 {
		t.Fatalf("terminator index = %v, want 0", term.args[0])
	}
}

func TestClccRealCalls(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(stackEventMsg{event: StackEvent{Kind: StackEventAtClcc, Device: testDevice}})
	if !fx.sm.pendingClcc {
		t.Fatal("machine should be waiting for CLCC entries")
	}

	fx.sm.handle(clccResponseMsg{entry: ClccEntry{Index: 1, Status: 0, Number: "555", Type: 129}})
	fx.sm.handle(clccResponseMsg{entry: ClccEntry{}})
	if fx.sm.pendingClcc {
		t.Fatal("terminator should clear the pending flag")
	}
	if len(fx.native.calls) != 2 || fx.native.calls[1].args[0] != 0 {
		t.Fatalf("calls = %v", fx.native.names())
	}
}

func TestClccTimeoutSendsTerminator(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(stackEventMsg{event: StackEvent{Kind: StackEventAtClcc, Device: testDevice}})
	fx.sm.handle(timeoutMsg{kind: timeoutClcc})

	if fx.sm.pendingClcc {
		t.Fatal("timeout should clear the pending flag")
	}
	last := fx.native.calls[len(fx.native.calls)-1]
	if last.name != "ClccResponse" || last.args[0] != 0 {
		t.Fatalf("last call = %v %v, want CLCC terminator", last.name, last.args)
	}
}

func TestRemoteVoiceRecognition(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(stackEventMsg{event: StackEvent{
		Kind: StackEventVrStateChanged, Int1: VrStarted, Device: testDevice,
	}})
	if !fx.sm.waitingForVoiceRecognition {
		t.Fatal("machine should be waiting for local confirmation")
	}

	// The local assistant confirms; the peer gets OK and SCO comes up.
	fx.sm.handle(voiceRecognitionMsg{start: true})
	assertAtResponse(t, fx.native, AtResponseOK)
	if !fx.sm.voiceRecognitionStarted {
		t.Fatal("voice recognition should be active")
	}

	found := false
	for _, name := range fx.native.names() {
		if name == "ConnectAudio" {
			found = true
		}
	}
	if !found {
		t.Fatal("voice recognition should bring up SCO audio")
	}
}

func TestRemoteVoiceRecognitionTimeout(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(stackEventMsg{event: StackEvent{
		Kind: StackEventVrStateChanged, Int1: VrStarted, Device: testDevice,
	}})
	fx.sm.handle(timeoutMsg{kind: timeoutVrStart})

	if fx.sm.waitingForVoiceRecognition {
		t.Fatal("waiting flag should clear on timeout")
	}
	assertAtResponse(t, fx.native, AtResponseError)
}

func TestKeyPressed(t *testing.T) {
	t.Run("ringing answers", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)
		fx.sm.phone.SetCallState(CallState{Setup: CallIncoming})

		fx.sm.handle(stackEventMsg{event: StackEvent{Kind: StackEventKeyPressed, Device: testDevice}})
		if fx.telephony.answered != 1 {
			t.Fatalf("answered = %d, want 1", fx.telephony.answered)
		}
	})

	t.Run("active call without audio routes SCO", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)
		fx.sm.phone.SetCallState(CallState{NumActive: 1})

		fx.sm.handle(stackEventMsg{event: StackEvent{Kind: StackEventKeyPressed, Device: testDevice}})
		if got := fx.native.names(); len(got) != 1 || got[0] != "ConnectAudio" {
			t.Fatalf("native calls = %v", got)
		}
	})

	t.Run("active call with audio hangs up", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)
		fx.audioUp(t)

		fx.sm.handle(stackEventMsg{event: StackEvent{Kind: StackEventKeyPressed, Device: testDevice}})
		if fx.telephony.hangups != 1 {
			t.Fatalf("hangups = %d, want 1", fx.telephony.hangups)
		}
	})

	t.Run("idle redials", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)

		fx.sm.handle(stackEventMsg{event: StackEvent{Kind: StackEventKeyPressed, Device: testDevice}})
		if len(fx.telephony.dialed) != 1 || fx.telephony.dialed[0] != "" {
			t.Fatalf("dialed = %v, want one redial", fx.telephony.dialed)
		}
	})
}

func TestUnknownAt(t *testing.T) {
	t.Run("phonebook commands rejected", func(t *testing.T) {
		for _, cmd := range []string{"+CSCS=?", "+CPBS=\"ME\"", "+CPBR=1,10"} {
			fx := newFixture(t)
			fx.connect(t)

			fx.sm.handle(stackEventMsg{event: StackEvent{
				Kind: StackEventUnknownAt, Str: cmd, Device: testDevice,
			}})
			assertAtResponse(t, fx.native, AtResponseError)
		}
	})

	t.Run("apple accessory handshake", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)

		fx.sm.handle(stackEventMsg{event: StackEvent{
			Kind: StackEventUnknownAt, Str: "+XAPL=0123-4567-89AB,7", Device: testDevice,
		}})

		foundRsp := false
		for _, c := range fx.native.calls {
			if c.name == "AtResponseString" && c.args[0] == "+XAPL=iPhone,2" {
				foundRsp = true
			}
		}
		if !foundRsp {
			t.Fatalf("missing XAPL response, calls = %v", fx.native.names())
		}
		assertAtResponse(t, fx.native, AtResponseOK)
		if len(fx.host.vendorCmds) != 1 || fx.host.vendorCmds[0] != "+XAPL" {
			t.Fatalf("vendor commands = %v", fx.host.vendorCmds)
		}
	})

	t.Run("unsupported vendor command rejected", func(t *testing.T) {
		fx := newFixture(t)
		fx.connect(t)

		fx.sm.handle(stackEventMsg{event: StackEvent{
			Kind: StackEventUnknownAt, Str: "+FOO=1", Device: testDevice,
		}})
		assertAtResponse(t, fx.native, AtResponseError)
	})
}

func TestAtBind(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(stackEventMsg{event: StackEvent{
		Kind: StackEventAtBind, Str: "1,2,17", Device: testDevice,
	}})

	if v, ok := fx.host.indicators[IndicatorEnhancedDriverSafety]; !ok || v != -1 {
		t.Fatalf("driver safety registration = %v,%v", v, ok)
	}
	if v, ok := fx.host.indicators[IndicatorBatteryLevel]; !ok || v != -1 {
		t.Fatalf("battery registration = %v,%v", v, ok)
	}
	if _, ok := fx.host.indicators[17]; ok {
		t.Fatal("unsupported indicator should not be registered")
	}
}

func TestMismatchedDevicePanics(t *testing.T) {
	fx := newFixture(t)

	defer func() {
		if recover() == nil {
			t.Fatal("mismatched device event should panic")
		}
	}()

	other := mustMAC("22:33:44:55:66:77")
	fx.sm.handle(stackEventMsg{event: StackEvent{
		Kind: StackEventConnectionStateChanged, Int1: PeerConnecting, Device: other,
	}})
}

func TestDisconnectedResetsSessionFlags(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.voiceRecognitionStarted = true
	fx.sm.nrecEnabled = true
	fx.sm.widebandSpeech = true

	fx.sm.handle(connEvent(PeerDisconnected))
	if fx.sm.state != StateDisconnected {
		t.Fatalf("state = %v, want %v", fx.sm.state, StateDisconnected)
	}
	if fx.sm.voiceRecognitionStarted || fx.sm.nrecEnabled || fx.sm.widebandSpeech {
		t.Fatal("session flags should reset on disconnect")
	}
}

func TestDisconnectTerminatesVirtualCall(t *testing.T) {
	fx := newFixture(t)
	fx.connect(t)

	fx.sm.handle(virtualCallMsg{start: true})
	fx.sm.handle(connEvent(PeerDisconnected))

	if fx.sm.virtualCallStarted {
		t.Fatal("virtual call should end when the device disconnects")
	}
}
