package shim

import (
	"strconv"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
	"github.com/bluetuith-org/btprofiles/hfp"
)

// Option describes an option to a command.
type Option string

// The various types of options.
const (
	SocketOption     Option = "--socket-path"
	AddressOption    Option = "--address"
	StateOption      Option = "--state"
	VolumeOption     Option = "--volume"
	VolumeTypeOption Option = "--volume-type"
	CodeOption       Option = "--code"
	CmeErrorOption   Option = "--cme-error"
	ResponseOption   Option = "--response"
	NumberOption     Option = "--number"
	NumberTypeOption Option = "--number-type"
	IndexOption      Option = "--index"
	DirectionOption  Option = "--direction"
	CallStatusOption Option = "--call-status"
	ModeOption       Option = "--mode"
	MultipartyOption Option = "--multiparty"
	ActiveOption     Option = "--active"
	HeldOption       Option = "--held"
	SetupOption      Option = "--setup"
	ServiceOption    Option = "--service"
	SignalOption     Option = "--signal"
	RoamOption       Option = "--roam"
	BatteryOption    Option = "--battery"
	OperatorOption   Option = "--operator"
	KeyOption        Option = "--key"
	KeyStateOption   Option = "--key-state"
	SettingOption    Option = "--setting"
	ValueOption      Option = "--value"
	StartOption      Option = "--start"
	EndOption        Option = "--end"
	PlayerOption     Option = "--player-id"
	ScopeOption      Option = "--scope"
	UidOption        Option = "--uid"
	LabelOption      Option = "--label"
	TypeOption       Option = "--type"
	ToneOption       Option = "--tone"
	ChldOption       Option = "--chld"
)

// String returns a string representation of the option.
func (o Option) String() string {
	return string(o)
}

// StateOptionValue returns the appropriate value to the 'StateOption'
// according to how the 'enable' parameter is set.
func StateOptionValue(enable bool) string {
	if !enable {
		return "off"
	}

	return "on"
}

func itoa(v int) string { return strconv.Itoa(v) }

func btoa(v bool) string { return strconv.FormatBool(v) }

// Helper commands.

// HelperVersion invokes the "rpc version" command.
func HelperVersion() *Command[string] {
	return &Command[string]{cmd: "rpc version"}
}

// HFP commands.

// HfpConnect invokes the "hfp connect" command.
func HfpConnect(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp connect"}).WithOption(AddressOption, address.String())
}

// HfpDisconnect invokes the "hfp disconnect" command.
func HfpDisconnect(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp disconnect"}).WithOption(AddressOption, address.String())
}

// HfpConnectAudio invokes the "hfp audio connect" command.
func HfpConnectAudio(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp audio connect"}).WithOption(AddressOption, address.String())
}

// HfpDisconnectAudio invokes the "hfp audio disconnect" command.
func HfpDisconnectAudio(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp audio disconnect"}).WithOption(AddressOption, address.String())
}

// HfpVoiceRecognition invokes the "hfp voice-recognition" command.
func HfpVoiceRecognition(address bluetooth.MacAddress, start bool) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp voice-recognition"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[StateOption] = StateOptionValue(start)
	})
}

// HfpSetVolume invokes the "hfp set-volume" command.
func HfpSetVolume(address bluetooth.MacAddress, volumeType, volume int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp set-volume"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[VolumeTypeOption] = itoa(volumeType)
		om[VolumeOption] = itoa(volume)
	})
}

// HfpAtResponseCode invokes the "hfp at respond-code" command.
func HfpAtResponseCode(address bluetooth.MacAddress, code, cmeError int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp at respond-code"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[CodeOption] = itoa(code)
		om[CmeErrorOption] = itoa(cmeError)
	})
}

// HfpAtResponseString invokes the "hfp at respond-string" command.
func HfpAtResponseString(address bluetooth.MacAddress, response string) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp at respond-string"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[ResponseOption] = response
	})
}

// HfpCindResponse invokes the "hfp at respond-cind" command.
func HfpCindResponse(address bluetooth.MacAddress,
	service, numActive, numHeld, callState, signal, roam, battery int) *Command[NoResult] {

	return (&Command[NoResult]{cmd: "hfp at respond-cind"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[ServiceOption] = itoa(service)
		om[ActiveOption] = itoa(numActive)
		om[HeldOption] = itoa(numHeld)
		om[CallStatusOption] = itoa(callState)
		om[SignalOption] = itoa(signal)
		om[RoamOption] = itoa(roam)
		om[BatteryOption] = itoa(battery)
	})
}

// HfpCopsResponse invokes the "hfp at respond-cops" command.
func HfpCopsResponse(address bluetooth.MacAddress, operator string) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp at respond-cops"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[OperatorOption] = operator
	})
}

// HfpClccResponse invokes the "hfp at respond-clcc" command.
func HfpClccResponse(address bluetooth.MacAddress,
	index, direction, status, mode int, multiparty bool, number string, numberType int) *Command[NoResult] {

	return (&Command[NoResult]{cmd: "hfp at respond-clcc"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[IndexOption] = itoa(index)
		om[DirectionOption] = itoa(direction)
		om[CallStatusOption] = itoa(status)
		om[ModeOption] = itoa(mode)
		om[MultipartyOption] = btoa(multiparty)
		om[NumberOption] = number
		om[NumberTypeOption] = itoa(numberType)
	})
}

// HfpPhoneStateChange invokes the "hfp phone-state" command.
func HfpPhoneStateChange(address bluetooth.MacAddress, state hfp.CallState) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp phone-state"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[ActiveOption] = itoa(state.NumActive)
		om[HeldOption] = itoa(state.NumHeld)
		om[SetupOption] = itoa(int(state.Setup))
		om[NumberOption] = state.Number
		om[NumberTypeOption] = itoa(state.Type)
	})
}

// HfpDeviceStatus invokes the "hfp device-status" command.
func HfpDeviceStatus(address bluetooth.MacAddress, ind hfp.Indicators) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp device-status"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[ServiceOption] = itoa(ind.Service)
		om[SignalOption] = itoa(ind.Signal)
		om[RoamOption] = itoa(ind.Roam)
		om[BatteryOption] = itoa(ind.Battery)
	})
}

// HfpSetActiveDevice invokes the "hfp set-active-device" command.
func HfpSetActiveDevice(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp set-active-device"}).WithOption(AddressOption, address.String())
}

// HfpSendBsir invokes the "hfp send-bsir" command.
func HfpSendBsir(address bluetooth.MacAddress, enabled bool) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "hfp send-bsir"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[StateOption] = StateOptionValue(enabled)
	})
}

// AVRCP commands.

// AvrcpDisconnect invokes the "avrcp disconnect" command.
func AvrcpDisconnect(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp disconnect"}).WithOption(AddressOption, address.String())
}

// AvrcpPassThrough invokes the "avrcp pass-through" command.
func AvrcpPassThrough(address bluetooth.MacAddress, keyCode, keyState int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp pass-through"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[KeyOption] = itoa(keyCode)
		om[KeyStateOption] = itoa(keyState)
	})
}

// AvrcpGroupNavigation invokes the "avrcp group-navigation" command.
func AvrcpGroupNavigation(address bluetooth.MacAddress, keyCode, keyState int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp group-navigation"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[KeyOption] = itoa(keyCode)
		om[KeyStateOption] = itoa(keyState)
	})
}

// AvrcpPlayerSetting invokes the "avrcp player-setting" command.
func AvrcpPlayerSetting(address bluetooth.MacAddress, setting, value int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp player-setting"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[SettingOption] = itoa(setting)
		om[ValueOption] = itoa(value)
	})
}

// AvrcpGetPlayerList invokes the "avrcp browse player-list" command.
func AvrcpGetPlayerList(address bluetooth.MacAddress, start, end int) *Command[NoResult] {
	return browseCommand("avrcp browse player-list", address, start, end)
}

// AvrcpGetFolderList invokes the "avrcp browse folder-list" command.
func AvrcpGetFolderList(address bluetooth.MacAddress, start, end int) *Command[NoResult] {
	return browseCommand("avrcp browse folder-list", address, start, end)
}

// AvrcpGetNowPlayingList invokes the "avrcp browse now-playing" command.
func AvrcpGetNowPlayingList(address bluetooth.MacAddress, start, end int) *Command[NoResult] {
	return browseCommand("avrcp browse now-playing", address, start, end)
}

func browseCommand(cmd string, address bluetooth.MacAddress, start, end int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: cmd}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[StartOption] = itoa(start)
		om[EndOption] = itoa(end)
	})
}

// AvrcpSetBrowsedPlayer invokes the "avrcp set-browsed-player" command.
func AvrcpSetBrowsedPlayer(address bluetooth.MacAddress, playerID int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp set-browsed-player"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[PlayerOption] = itoa(playerID)
	})
}

// AvrcpSetAddressedPlayer invokes the "avrcp set-addressed-player" command.
func AvrcpSetAddressedPlayer(address bluetooth.MacAddress, playerID int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp set-addressed-player"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[PlayerOption] = itoa(playerID)
	})
}

// AvrcpChangeFolderPath invokes the "avrcp change-path" command.
func AvrcpChangeFolderPath(address bluetooth.MacAddress, direction int, uid string) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp change-path"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[DirectionOption] = itoa(direction)
		om[UidOption] = uid
	})
}

// AvrcpPlayItem invokes the "avrcp play-item" command.
func AvrcpPlayItem(address bluetooth.MacAddress, scope int, uid string) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp play-item"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[ScopeOption] = itoa(scope)
		om[UidOption] = uid
	})
}

// AvrcpAbsVolumeResponse invokes the "avrcp abs-volume respond" command.
func AvrcpAbsVolumeResponse(address bluetooth.MacAddress, absVol, label int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp abs-volume respond"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[VolumeOption] = itoa(absVol)
		om[LabelOption] = itoa(label)
	})
}

// AvrcpRegisterAbsVolumeResponse invokes the "avrcp abs-volume notify" command.
func AvrcpRegisterAbsVolumeResponse(address bluetooth.MacAddress, rspType, absVol, label int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp abs-volume notify"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[TypeOption] = itoa(rspType)
		om[VolumeOption] = itoa(absVol)
		om[LabelOption] = itoa(label)
	})
}

// AvrcpGetPlaybackState invokes the "avrcp playback-state" command.
func AvrcpGetPlaybackState(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "avrcp playback-state"}).WithOption(AddressOption, address.String())
}

// Audio commands.

// AudioSetVolume invokes the "audio set-volume" command.
func AudioSetVolume(index int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "audio set-volume"}).WithOption(VolumeOption, itoa(index))
}

// AudioGetVolume invokes the "audio get-volume" command.
func AudioGetVolume() *Command[int] {
	return &Command[int]{cmd: "audio get-volume"}
}

// Telephony commands.

// TelephonyAnswer invokes the "telephony answer" command.
func TelephonyAnswer(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "telephony answer"}).WithOption(AddressOption, address.String())
}

// TelephonyHangup invokes the "telephony hangup" command.
func TelephonyHangup(address bluetooth.MacAddress, virtualCall bool) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "telephony hangup"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[TypeOption] = btoa(virtualCall)
	})
}

// TelephonyDial invokes the "telephony dial" command.
func TelephonyDial(address bluetooth.MacAddress, number string) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "telephony dial"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[NumberOption] = number
	})
}

// TelephonyDtmf invokes the "telephony dtmf" command.
func TelephonyDtmf(address bluetooth.MacAddress, tone int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "telephony dtmf"}).WithOptions(func(om OptionMap) {
		om[AddressOption] = address.String()
		om[ToneOption] = itoa(tone)
	})
}

// TelephonyVoiceCommand invokes the "telephony voice-command" command.
func TelephonyVoiceCommand(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "telephony voice-command"}).WithOption(AddressOption, address.String())
}

// TelephonyChld invokes the "telephony chld" command.
func TelephonyChld(chld int) *Command[NoResult] {
	return (&Command[NoResult]{cmd: "telephony chld"}).WithOption(ChldOption, itoa(chld))
}

// TelephonyListCalls invokes the "telephony list-calls" command.
func TelephonyListCalls() *Command[NoResult] {
	return &Command[NoResult]{cmd: "telephony list-calls"}
}

// TelephonySubscriberNumber invokes the "telephony subscriber-number" command.
func TelephonySubscriberNumber() *Command[string] {
	return &Command[string]{cmd: "telephony subscriber-number"}
}

// TelephonyOperator invokes the "telephony operator" command.
func TelephonyOperator() *Command[string] {
	return &Command[string]{cmd: "telephony operator"}
}

// TelephonyQueryPhoneState invokes the "telephony query-phone-state" command.
func TelephonyQueryPhoneState() *Command[NoResult] {
	return &Command[NoResult]{cmd: "telephony query-phone-state"}
}
