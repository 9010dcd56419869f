package hfp

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
	"github.com/bluetuith-org/btprofiles/api/errorkinds"
	"github.com/puzpuzpuz/xsync/v3"
)

// ConnectionPriority governs whether a device may establish the profile.
type ConnectionPriority int

const (
	PriorityUndefined ConnectionPriority = iota - 1
	PriorityOff
	PriorityOn
	PriorityAutoConnect
)

// Service is the HFP device registry. It owns one state machine per
// remote device, enforces the connection policy (maximum connections,
// per-device priority, in-band ringing) and fans telephony updates out
// to all connected peers.
type Service struct {
	cfg       Config
	native    NativeInterface
	telephony Telephony
	phone     *PhoneState
	log       *slog.Logger

	machines   *xsync.MapOf[bluetooth.MacAddress, *StateMachine]
	priorities *xsync.MapOf[bluetooth.MacAddress, ConnectionPriority]

	mu           sync.Mutex
	activeDevice bluetooth.MacAddress
	inbandNotify bool

	connEvents      bluetooth.EventGroup[bluetooth.ConnectionEventData, bluetooth.ConnectionEventData]
	audioEvents     bluetooth.EventGroup[bluetooth.AudioEventData, bluetooth.AudioEventData]
	callEvents      bluetooth.EventGroup[bluetooth.CallEventData, bluetooth.CallEventData]
	indicatorEvents bluetooth.EventGroup[bluetooth.IndicatorEventData, bluetooth.IndicatorEventData]
	volumeEvents    bluetooth.EventGroup[bluetooth.VolumeEventData, bluetooth.VolumeEventData]
}

// NewService creates an HFP service backed by the given native
// interface and telephony collaborator.
func NewService(native NativeInterface, telephony Telephony, cfg Config, log *slog.Logger) *Service {
	s := &Service{
		cfg:             cfg.withDefaults(),
		native:          native,
		telephony:       telephony,
		phone:           NewPhoneState(),
		log:             log.With("profile", "hfp"),
		machines:        xsync.NewMapOf[bluetooth.MacAddress, *StateMachine](),
		priorities:      xsync.NewMapOf[bluetooth.MacAddress, ConnectionPriority](),
		inbandNotify:    cfg.InbandRinging,
		connEvents:      bluetooth.HfpConnectionEvents(),
		audioEvents:     bluetooth.HfpAudioEvents(),
		callEvents:      bluetooth.CallEvents(),
		indicatorEvents: bluetooth.IndicatorEvents(),
		volumeEvents:    bluetooth.VolumeEvents(),
	}

	s.phone.OnChange(s.indicatorsChanged)

	return s
}

// Phone exposes the shared telephony indicator state. Collaborators
// update it directly; changes fan out to all connected peers.
func (s *Service) Phone() *PhoneState {
	return s.phone
}

// Stop halts every state machine. In-flight mailbox messages are dropped.
func (s *Service) Stop() {
	s.machines.Range(func(_ bluetooth.MacAddress, sm *StateMachine) bool {
		sm.stop()
		return true
	})
	s.machines.Clear()
}

// machineFor returns an existing machine for the device, or creates one
// if admission allows it.
func (s *Service) machineFor(device bluetooth.MacAddress) (*StateMachine, error) {
	if device.IsNil() {
		return nil, errorkinds.ErrInvalidAddress
	}
	if sm, ok := s.machines.Load(device); ok {
		return sm, nil
	}

	if s.Priority(device) == PriorityOff {
		return nil, errorkinds.ErrDeviceNotFound
	}
	if s.connectedOrPendingCount() >= s.cfg.MaxConnections {
		return nil, errorkinds.ErrTooManyConnections
	}

	sm, loaded := s.machines.LoadOrCompute(device, func() *StateMachine {
		return newStateMachine(device, s.native, s.telephony, s.phone, s, s.cfg, s.log)
	})
	if !loaded {
		sm.start()
	}

	return sm, nil
}

func (s *Service) connectedOrPendingCount() int {
	// Machines are reaped once fully disconnected, so the map size is
	// the number of devices connected or in transit.
	return s.machines.Size()
}

// Connect initiates an SLC connection to the device. In single-device
// operation a connect to a new address displaces the current device:
// it is torn down first and the new connection proceeds on its slot.
func (s *Service) Connect(device bluetooth.MacAddress) error {
	sm, err := s.machineFor(device)
	if errors.Is(err, errorkinds.ErrTooManyConnections) && s.cfg.MaxConnections == 1 {
		sm, err = s.switchToDevice(device)
	}
	if err != nil {
		return err
	}

	sm.Connect()

	return nil
}

// switchToDevice disconnects the single tracked device and admits the
// requested one in its place. The displaced machine stays tracked
// until its teardown completes and it is reaped.
func (s *Service) switchToDevice(device bluetooth.MacAddress) (*StateMachine, error) {
	s.machines.Range(func(addr bluetooth.MacAddress, current *StateMachine) bool {
		s.log.Info("displacing connected device",
			"device", addr.String(), "for", device.String())
		current.Disconnect()
		return true
	})

	sm, loaded := s.machines.LoadOrCompute(device, func() *StateMachine {
		return newStateMachine(device, s.native, s.telephony, s.phone, s, s.cfg, s.log)
	})
	if !loaded {
		sm.start()
	}

	return sm, nil
}

// Disconnect tears down the SLC connection to the device.
func (s *Service) Disconnect(device bluetooth.MacAddress) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.Disconnect()

	return nil
}

// ConnectAudio initiates an SCO audio connection to the device.
func (s *Service) ConnectAudio(device bluetooth.MacAddress) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.ConnectAudio()

	return nil
}

// DisconnectAudio tears down the SCO audio connection to the device.
func (s *Service) DisconnectAudio(device bluetooth.MacAddress) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.DisconnectAudio()

	return nil
}

// StartVoiceRecognition starts voice recognition on the device.
func (s *Service) StartVoiceRecognition(device bluetooth.MacAddress) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.SetVoiceRecognition(true)

	return nil
}

// StopVoiceRecognition stops voice recognition on the device.
func (s *Service) StopVoiceRecognition(device bluetooth.MacAddress) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.SetVoiceRecognition(false)

	return nil
}

// SetVirtualCall starts or stops a virtual voice call on the device.
func (s *Service) SetVirtualCall(device bluetooth.MacAddress, start bool) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.SetVirtualCall(start)

	return nil
}

// CallStateChanged fans a telephony call state update out to every
// tracked device and publishes a call event.
func (s *Service) CallStateChanged(state CallState) {
	published := false
	s.machines.Range(func(_ bluetooth.MacAddress, sm *StateMachine) bool {
		sm.CallStateChanged(state, false)
		published = true
		return true
	})
	if !published {
		// No machines to carry the snapshot; record it directly so a
		// later connection reads the live call state.
		s.phone.SetCallState(state)
	}

	s.callEvents.PublishUpdated(bluetooth.CallEventData{
		Address:    s.ActiveDevice(),
		NumActive:  state.NumActive,
		NumHeld:    state.NumHeld,
		SetupState: state.Setup.String(),
		Number:     state.Number,
	})
}

// SendClccResponse forwards one list-current-calls entry to the device.
func (s *Service) SendClccResponse(device bluetooth.MacAddress, entry ClccEntry) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.SendClccResponse(entry)

	return nil
}

// SendVendorSpecificResultCode sends an unsolicited vendor result code
// to the device.
func (s *Service) SendVendorSpecificResultCode(device bluetooth.MacAddress, command, arg string) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.SendVendorSpecificResultCode(command, arg)

	return nil
}

// GetConnectionState returns the connection state of the device.
func (s *Service) GetConnectionState(device bluetooth.MacAddress) ConnectionState {
	sm, ok := s.machines.Load(device)
	if !ok {
		return ConnectionDisconnected
	}

	return sm.ConnectionState()
}

// GetAudioState returns the audio state of the device.
func (s *Service) GetAudioState(device bluetooth.MacAddress) AudioState {
	sm, ok := s.machines.Load(device)
	if !ok {
		return AudioDisconnected
	}

	return sm.AudioState()
}

// ConnectedDevices lists devices with a fully established SLC.
func (s *Service) ConnectedDevices() []bluetooth.MacAddress {
	var devices []bluetooth.MacAddress

	s.machines.Range(func(device bluetooth.MacAddress, sm *StateMachine) bool {
		if sm.ConnectionState() == ConnectionConnected {
			devices = append(devices, device)
		}
		return true
	})

	return devices
}

// SetPriority records the connection priority for the device.
func (s *Service) SetPriority(device bluetooth.MacAddress, priority ConnectionPriority) {
	s.priorities.Store(device, priority)
}

// Priority returns the recorded connection priority for the device.
func (s *Service) Priority(device bluetooth.MacAddress) ConnectionPriority {
	priority, ok := s.priorities.Load(device)
	if !ok {
		return PriorityUndefined
	}

	return priority
}

// SetActiveDevice marks the device whose audio is routed by default.
// A nil address clears the selection.
func (s *Service) SetActiveDevice(device bluetooth.MacAddress) error {
	if !device.IsNil() {
		sm, ok := s.machines.Load(device)
		if !ok || sm.ConnectionState() != ConnectionConnected {
			return errorkinds.ErrProfileNotConnected
		}
	}

	if err := s.native.SetActiveDevice(device); err != nil {
		return err
	}

	s.mu.Lock()
	s.activeDevice = device
	s.mu.Unlock()

	return nil
}

// ActiveDevice returns the currently selected active device, which is
// nil when none is selected.
func (s *Service) ActiveDevice() bluetooth.MacAddress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.activeDevice
}

// SetAudioRouteAllowed toggles SCO audio routing on every machine.
func (s *Service) SetAudioRouteAllowed(allowed bool) {
	s.cfg.AudioRouteAllowed = allowed
	s.machines.Range(func(_ bluetooth.MacAddress, sm *StateMachine) bool {
		sm.SetAudioRouteAllowed(allowed)
		return true
	})
}

// SetForceScoAudio forces SCO acceptance on every machine.
func (s *Service) SetForceScoAudio(forced bool) {
	s.cfg.ForceSco = forced
	s.machines.Range(func(_ bluetooth.MacAddress, sm *StateMachine) bool {
		sm.SetForceScoAudio(forced)
		return true
	})
}

// StackEvent routes a native stack event to the machine of its device.
// An event for an untracked device spins up a machine only when it
// announces an inbound connection that passes admission; anything else
// for an unknown peer is rejected outright.
func (s *Service) StackEvent(event StackEvent) {
	if sm, ok := s.machines.Load(event.Device); ok {
		sm.StackEvent(event)
		return
	}

	if event.Kind != StackEventConnectionStateChanged ||
		(event.Int1 != PeerConnecting && event.Int1 != PeerConnected) {
		s.log.Warn("stack event for untracked device dropped",
			"device", event.Device.String(), "event", event.String())
		return
	}

	sm, err := s.machineFor(event.Device)
	if err != nil {
		s.log.Info("inbound connection rejected",
			"device", event.Device.String(), "error", err)
		if derr := s.native.DisconnectHfp(event.Device); derr != nil {
			s.log.Error("reject disconnect failed",
				"device", event.Device.String(), "error", derr)
		}
		s.publishConnectionState(event.Device, ConnectionDisconnected, ConnectionDisconnected)
		return
	}

	sm.StackEvent(event)
}

// indicatorsChanged is the PhoneState change hook: the new snapshot is
// broadcast once and forwarded to every tracked device.
func (s *Service) indicatorsChanged(ind Indicators) {
	s.machines.Range(func(_ bluetooth.MacAddress, sm *StateMachine) bool {
		sm.DeviceStateChanged(ind)
		return true
	})

	s.indicatorEvents.PublishUpdated(bluetooth.IndicatorEventData{
		ServiceAvailable: ind.Service == 1,
		SignalStrength:   ind.Signal,
		Roaming:          ind.Roam == 1,
		BatteryCharge:    ind.Battery,
	})
}

// ---- machineHost ----

func (s *Service) ConnectionStateChanged(device bluetooth.MacAddress, prev, next ConnectionState) {
	s.publishConnectionState(device, prev, next)
	s.updateInbandRinging()
}

// MachineDisconnected is invoked once a machine rests in Disconnected
// with no deferred messages left to replay; only then may it be
// removed, or a replayed connect would run on an untracked machine.
func (s *Service) MachineDisconnected(device bluetooth.MacAddress) {
	s.reap(device)
}

func (s *Service) publishConnectionState(device bluetooth.MacAddress, prev, next ConnectionState) {
	s.connEvents.PublishUpdated(bluetooth.ConnectionEventData{
		Address:       device,
		PreviousState: prev.String(),
		State:         next.String(),
	})
}

// reap removes and stops a fully disconnected machine, moving the
// active device selection elsewhere if it pointed at it.
func (s *Service) reap(device bluetooth.MacAddress) {
	sm, ok := s.machines.LoadAndDelete(device)
	if !ok {
		return
	}
	sm.stop()

	if s.ActiveDevice() != device {
		return
	}

	fallback := bluetooth.MacAddress{}
	for _, connected := range s.ConnectedDevices() {
		fallback = connected
		break
	}

	if err := s.SetActiveDevice(fallback); err != nil {
		s.mu.Lock()
		s.activeDevice = bluetooth.MacAddress{}
		s.mu.Unlock()
	}
}

// updateInbandRinging notifies every connected peer when the in-band
// ringing policy flips. In-band ringtones are only offered while a
// single device is connected.
func (s *Service) updateInbandRinging() {
	enabled := s.IsInbandRingingEnabled()

	s.mu.Lock()
	changed := enabled != s.inbandNotify
	s.inbandNotify = enabled
	s.mu.Unlock()

	if !changed {
		return
	}

	for _, device := range s.ConnectedDevices() {
		if err := s.native.SendBsir(device, enabled); err != nil {
			s.log.Error("BSIR update failed", "device", device.String(), "error", err)
		}
	}
}

func (s *Service) AudioStateChanged(device bluetooth.MacAddress, prev, next AudioState) {
	s.audioEvents.PublishUpdated(bluetooth.AudioEventData{
		Address:       device,
		PreviousState: prev.String(),
		State:         next.String(),
	})

	// An active device whose audio setup failed loses the selection to
	// a device that can still route audio.
	if prev == AudioConnecting && next == AudioDisconnected && s.ActiveDevice() == device {
		s.failoverActiveDevice(device)
	}
}

// failoverActiveDevice moves the active device selection to another
// connected device. The current selection is kept when no alternative
// exists.
func (s *Service) failoverActiveDevice(failed bluetooth.MacAddress) {
	for _, connected := range s.ConnectedDevices() {
		if connected == failed {
			continue
		}

		if err := s.SetActiveDevice(connected); err != nil {
			s.log.Error("active device failover failed",
				"device", connected.String(), "error", err)
		}
		return
	}
}

func (s *Service) OkToAcceptConnection(device bluetooth.MacAddress) bool {
	if s.Priority(device) == PriorityOff {
		return false
	}

	// The asking machine is already registered; exclude it from the
	// connection count.
	others := 0
	s.machines.Range(func(addr bluetooth.MacAddress, _ *StateMachine) bool {
		if addr != device {
			others++
		}
		return true
	})

	return others < s.cfg.MaxConnections
}

func (s *Service) IsInbandRingingEnabled() bool {
	if !s.cfg.InbandRinging {
		return false
	}

	connected := 0
	s.machines.Range(func(_ bluetooth.MacAddress, sm *StateMachine) bool {
		if sm.ConnectionState() == ConnectionConnected {
			connected++
		}
		return true
	})

	return connected <= 1
}

func (s *Service) VolumeChanged(device bluetooth.MacAddress, volumeType, volume int) {
	s.volumeEvents.PublishUpdated(bluetooth.VolumeEventData{
		Address: device,
		Volume:  volume,
	})
}

func (s *Service) VendorCommand(device bluetooth.MacAddress, command string, companyID int, args []any) {
	s.log.Debug("vendor command",
		"device", device.String(), "command", command, "company", companyID, "args", args)
}

func (s *Service) HfIndicator(device bluetooth.MacAddress, indicator, value int) {
	s.log.Debug("HF indicator",
		"device", device.String(), "indicator", indicator, "value", value)
}
