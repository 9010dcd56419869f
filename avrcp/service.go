package avrcp

import (
	"log/slog"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
	"github.com/bluetuith-org/btprofiles/api/errorkinds"
	"github.com/puzpuzpuz/xsync/v3"
)

// Service is the AVRCP controller device registry. It owns one state
// machine per remote device and routes commands and stack events to
// the machine of their device.
type Service struct {
	cfg    Config
	native NativeInterface
	audio  AudioSystem
	log    *slog.Logger

	machines *xsync.MapOf[bluetooth.MacAddress, *StateMachine]

	connEvents   bluetooth.EventGroup[bluetooth.ConnectionEventData, bluetooth.ConnectionEventData]
	mediaEvents  bluetooth.EventGroup[bluetooth.MediaData, bluetooth.MediaData]
	browseEvents bluetooth.EventGroup[bluetooth.FolderEventData, bluetooth.FolderEventData]
	volumeEvents bluetooth.EventGroup[bluetooth.VolumeEventData, bluetooth.VolumeEventData]
}

// NewService creates an AVRCP controller service backed by the given
// native interface and local audio system.
func NewService(native NativeInterface, audio AudioSystem, cfg Config, log *slog.Logger) *Service {
	return &Service{
		cfg:          cfg.withDefaults(),
		native:       native,
		audio:        audio,
		log:          log.With("profile", "avrcp"),
		machines:     xsync.NewMapOf[bluetooth.MacAddress, *StateMachine](),
		connEvents:   bluetooth.AvrcpConnectionEvents(),
		mediaEvents:  bluetooth.MediaEvents(),
		browseEvents: bluetooth.BrowseEvents(),
		volumeEvents: bluetooth.VolumeEvents(),
	}
}

// Stop halts every state machine. In-flight mailbox messages are dropped.
func (s *Service) Stop() {
	s.machines.Range(func(_ bluetooth.MacAddress, sm *StateMachine) bool {
		sm.stop()
		return true
	})
	s.machines.Clear()
}

// machineFor returns an existing machine for the device, or creates
// one if admission allows it.
func (s *Service) machineFor(device bluetooth.MacAddress) (*StateMachine, error) {
	if device.IsNil() {
		return nil, errorkinds.ErrInvalidAddress
	}
	if sm, ok := s.machines.Load(device); ok {
		return sm, nil
	}

	// Machines are reaped once fully disconnected, so the map size is
	// the number of devices connected or in transit.
	if s.machines.Size() >= s.cfg.MaxConnections {
		return nil, errorkinds.ErrTooManyConnections
	}

	sm, loaded := s.machines.LoadOrCompute(device, func() *StateMachine {
		return newStateMachine(device, s.native, s.audio, s, s.cfg, s.log)
	})
	if !loaded {
		sm.start()
	}

	return sm, nil
}

// Disconnect tears down the control connection to the device.
func (s *Service) Disconnect(device bluetooth.MacAddress) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.Disconnect()

	return nil
}

// SendPassThrough sends a pass-through key event to the device.
func (s *Service) SendPassThrough(device bluetooth.MacAddress, keyCode, keyState int) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.SendPassThrough(keyCode, keyState)

	return nil
}

// SendGroupNavigation sends a group navigation key event to the device.
func (s *Service) SendGroupNavigation(device bluetooth.MacAddress, keyCode, keyState int) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.SendGroupNavigation(keyCode, keyState)

	return nil
}

// SetRepeat requests a repeat mode change on the device's player.
func (s *Service) SetRepeat(device bluetooth.MacAddress, value int) error {
	return s.setPlayerSetting(device, SettingRepeat, value)
}

// SetShuffle requests a shuffle mode change on the device's player.
func (s *Service) SetShuffle(device bluetooth.MacAddress, value int) error {
	return s.setPlayerSetting(device, SettingShuffle, value)
}

func (s *Service) setPlayerSetting(device bluetooth.MacAddress, setting, value int) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.SetPlayerSetting(setting, value)

	return nil
}

// RequestContents requests the contents of a browse node on the
// device. Contents arrive as browse events while pages are fetched.
func (s *Service) RequestContents(device bluetooth.MacAddress, id string) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.RequestContents(id)

	return nil
}

// PlayItem requests playback of a browsed item on the device.
func (s *Service) PlayItem(device bluetooth.MacAddress, uid string) error {
	sm, ok := s.machines.Load(device)
	if !ok {
		return errorkinds.ErrProfileNotConnected
	}

	sm.PlayItem(uid)

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

// ConnectedDevices lists devices with an established control connection.
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

// StackEvent routes a native stack event to the machine of its device.
// An event for an untracked device spins up a machine only when it
// announces an inbound connection that passes admission.
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
		if derr := s.native.Disconnect(event.Device); derr != nil {
			s.log.Error("reject disconnect failed",
				"device", event.Device.String(), "error", derr)
		}
		s.publishConnectionState(event.Device, ConnectionDisconnected, ConnectionDisconnected)
		return
	}

	sm.StackEvent(event)
}

// ---- machineHost ----

func (s *Service) ConnectionStateChanged(device bluetooth.MacAddress, prev, next ConnectionState) {
	s.publishConnectionState(device, prev, next)

	if next == ConnectionDisconnected {
		s.reap(device)
	}
}

func (s *Service) publishConnectionState(device bluetooth.MacAddress, prev, next ConnectionState) {
	s.connEvents.PublishUpdated(bluetooth.ConnectionEventData{
		Address:       device,
		PreviousState: prev.String(),
		State:         next.String(),
	})
}

// reap removes and stops a fully disconnected machine.
func (s *Service) reap(device bluetooth.MacAddress) {
	sm, ok := s.machines.LoadAndDelete(device)
	if !ok {
		return
	}

	sm.stop()
}

func (s *Service) FolderListChanged(device bluetooth.MacAddress, id string, items int) {
	s.browseEvents.PublishUpdated(bluetooth.FolderEventData{
		Address: device,
		ID:      id,
		Items:   items,
	})
}

func (s *Service) MediaChanged(device bluetooth.MacAddress, data bluetooth.MediaData) {
	s.mediaEvents.PublishUpdated(data)
}

func (s *Service) VolumeChanged(device bluetooth.MacAddress, percent int) {
	s.volumeEvents.PublishUpdated(bluetooth.VolumeEventData{
		Address: device,
		Volume:  percent,
	})
}
