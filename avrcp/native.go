package avrcp

import "github.com/bluetuith-org/btprofiles/api/bluetooth"

// Pass-through key codes (AV/C subunit operation ids).
const (
	KeyVolumeUp  = 0x41
	KeyVolumeDn  = 0x42
	KeyPlay      = 0x44
	KeyStop      = 0x45
	KeyPause     = 0x46
	KeyRewind    = 0x48
	KeyFastFwd   = 0x49
	KeyForward   = 0x4B
	KeyBackward  = 0x4C
)

// Pass-through key states.
const (
	KeyStatePressed  = 0
	KeyStateReleased = 1
)

// Change-path directions.
const (
	FolderUp   = 0
	FolderDown = 1
)

// Player application settings.
const (
	SettingRepeat  = 0x02
	SettingShuffle = 0x03
)

// Absolute volume registration response types.
const (
	NotificationInterim = 0
	NotificationChanged = 1
)

// AbsVolBase is the full-scale value of the absolute volume range
// exchanged with the remote.
const AbsVolBase = 127

// Listing limits: items are fetched a page at a time, and no folder
// listing grows past MaxFolderItems.
const (
	FolderItemsPageSize = 20
	MaxFolderItems      = 1000
)

// NativeInterface is the controller-role link layer. Commands are
// asynchronous; their outcomes arrive later as stack events on the
// owning machine's mailbox.
type NativeInterface interface {
	Disconnect(device bluetooth.MacAddress) error

	SendPassThroughCommand(device bluetooth.MacAddress, keyCode, keyState int) error
	SendGroupNavigationCommand(device bluetooth.MacAddress, keyCode, keyState int) error
	SetPlayerApplicationSetting(device bluetooth.MacAddress, setting, value int) error

	GetPlayerList(device bluetooth.MacAddress, start, end int) error
	GetFolderList(device bluetooth.MacAddress, start, end int) error
	GetNowPlayingList(device bluetooth.MacAddress, start, end int) error

	SetBrowsedPlayer(device bluetooth.MacAddress, playerID int) error
	SetAddressedPlayer(device bluetooth.MacAddress, playerID int) error
	ChangeFolderPath(device bluetooth.MacAddress, direction int, uid string) error
	PlayItem(device bluetooth.MacAddress, scope int, uid string) error

	SendAbsVolumeResponse(device bluetooth.MacAddress, absVol, label int) error
	SendRegisterAbsVolumeResponse(device bluetooth.MacAddress, rspType, absVol, label int) error

	GetPlaybackState(device bluetooth.MacAddress) error
}

// AudioSystem abstracts the local audio output the remote's absolute
// volume commands are applied to.
type AudioSystem interface {
	// MaxVolume returns the local volume scale's maximum index.
	MaxVolume() int

	// Volume returns the current local volume index.
	Volume() int

	// SetVolume moves the local volume to the given index.
	SetVolume(index int)
}
