package shim

import (
	"github.com/bluetuith-org/btprofiles/api/bluetooth"
	"github.com/bluetuith-org/btprofiles/hfp"
)

// hfpNative adapts the helper command set to the HFP native interface.
// Every method issues its command and returns without waiting for the
// helper's reply.
type hfpNative struct {
	s *Session
}

func (n *hfpNative) ConnectHfp(device bluetooth.MacAddress) error {
	return n.s.execAsync(HfpConnect(device))
}

func (n *hfpNative) DisconnectHfp(device bluetooth.MacAddress) error {
	return n.s.execAsync(HfpDisconnect(device))
}

func (n *hfpNative) ConnectAudio(device bluetooth.MacAddress) error {
	return n.s.execAsync(HfpConnectAudio(device))
}

func (n *hfpNative) DisconnectAudio(device bluetooth.MacAddress) error {
	return n.s.execAsync(HfpDisconnectAudio(device))
}

func (n *hfpNative) StartVoiceRecognition(device bluetooth.MacAddress) error {
	return n.s.execAsync(HfpVoiceRecognition(device, true))
}

func (n *hfpNative) StopVoiceRecognition(device bluetooth.MacAddress) error {
	return n.s.execAsync(HfpVoiceRecognition(device, false))
}

func (n *hfpNative) SetVolume(device bluetooth.MacAddress, volumeType, volume int) error {
	return n.s.execAsync(HfpSetVolume(device, volumeType, volume))
}

func (n *hfpNative) AtResponseCode(device bluetooth.MacAddress, code, cmeError int) error {
	return n.s.execAsync(HfpAtResponseCode(device, code, cmeError))
}

func (n *hfpNative) AtResponseString(device bluetooth.MacAddress, response string) error {
	return n.s.execAsync(HfpAtResponseString(device, response))
}

func (n *hfpNative) CindResponse(device bluetooth.MacAddress,
	service, numActive, numHeld, callState, signal, roam, battery int) error {

	return n.s.execAsync(HfpCindResponse(device,
		service, numActive, numHeld, callState, signal, roam, battery))
}

func (n *hfpNative) CopsResponse(device bluetooth.MacAddress, operator string) error {
	return n.s.execAsync(HfpCopsResponse(device, operator))
}

func (n *hfpNative) ClccResponse(device bluetooth.MacAddress,
	index, direction, status, mode int, multiparty bool, number string, numberType int) error {

	return n.s.execAsync(HfpClccResponse(device,
		index, direction, status, mode, multiparty, number, numberType))
}

func (n *hfpNative) PhoneStateChange(device bluetooth.MacAddress, state hfp.CallState) error {
	return n.s.execAsync(HfpPhoneStateChange(device, state))
}

func (n *hfpNative) NotifyDeviceStatus(device bluetooth.MacAddress, ind hfp.Indicators) error {
	return n.s.execAsync(HfpDeviceStatus(device, ind))
}

func (n *hfpNative) SetActiveDevice(device bluetooth.MacAddress) error {
	return n.s.execAsync(HfpSetActiveDevice(device))
}

func (n *hfpNative) SendBsir(device bluetooth.MacAddress, enabled bool) error {
	return n.s.execAsync(HfpSendBsir(device, enabled))
}

// avrcpNative adapts the helper command set to the AVRCP native
// interface, with the same fire-and-forget contract.
type avrcpNative struct {
	s *Session
}

func (n *avrcpNative) Disconnect(device bluetooth.MacAddress) error {
	return n.s.execAsync(AvrcpDisconnect(device))
}

func (n *avrcpNative) SendPassThroughCommand(device bluetooth.MacAddress, keyCode, keyState int) error {
	return n.s.execAsync(AvrcpPassThrough(device, keyCode, keyState))
}

func (n *avrcpNative) SendGroupNavigationCommand(device bluetooth.MacAddress, keyCode, keyState int) error {
	return n.s.execAsync(AvrcpGroupNavigation(device, keyCode, keyState))
}

func (n *avrcpNative) SetPlayerApplicationSetting(device bluetooth.MacAddress, setting, value int) error {
	return n.s.execAsync(AvrcpPlayerSetting(device, setting, value))
}

func (n *avrcpNative) GetPlayerList(device bluetooth.MacAddress, start, end int) error {
	return n.s.execAsync(AvrcpGetPlayerList(device, start, end))
}

func (n *avrcpNative) GetFolderList(device bluetooth.MacAddress, start, end int) error {
	return n.s.execAsync(AvrcpGetFolderList(device, start, end))
}

func (n *avrcpNative) GetNowPlayingList(device bluetooth.MacAddress, start, end int) error {
	return n.s.execAsync(AvrcpGetNowPlayingList(device, start, end))
}

func (n *avrcpNative) SetBrowsedPlayer(device bluetooth.MacAddress, playerID int) error {
	return n.s.execAsync(AvrcpSetBrowsedPlayer(device, playerID))
}

func (n *avrcpNative) SetAddressedPlayer(device bluetooth.MacAddress, playerID int) error {
	return n.s.execAsync(AvrcpSetAddressedPlayer(device, playerID))
}

func (n *avrcpNative) ChangeFolderPath(device bluetooth.MacAddress, direction int, uid string) error {
	return n.s.execAsync(AvrcpChangeFolderPath(device, direction, uid))
}

func (n *avrcpNative) PlayItem(device bluetooth.MacAddress, scope int, uid string) error {
	return n.s.execAsync(AvrcpPlayItem(device, scope, uid))
}

func (n *avrcpNative) SendAbsVolumeResponse(device bluetooth.MacAddress, absVol, label int) error {
	return n.s.execAsync(AvrcpAbsVolumeResponse(device, absVol, label))
}

func (n *avrcpNative) SendRegisterAbsVolumeResponse(device bluetooth.MacAddress, rspType, absVol, label int) error {
	return n.s.execAsync(AvrcpRegisterAbsVolumeResponse(device, rspType, absVol, label))
}

func (n *avrcpNative) GetPlaybackState(device bluetooth.MacAddress) error {
	return n.s.execAsync(AvrcpGetPlaybackState(device))
}
