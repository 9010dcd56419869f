package avrcp

import (
	"fmt"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
)

// StackEventKind discriminates events arriving from the native link layer.
type StackEventKind int

// The stack event kinds.
const (
	StackEventNone StackEventKind = iota
	StackEventConnectionStateChanged
	StackEventBrowseConnectionStateChanged
	StackEventRcFeatures
	StackEventSetAbsVolume
	StackEventRegisterAbsVolNotification
	StackEventVolumeChanged
	StackEventTrackChanged
	StackEventPlayPositionChanged
	StackEventPlayStatusChanged
	StackEventGetFolderItems
	StackEventGetFolderItemsOutOfRange
	StackEventGetPlayerItems
	StackEventFolderPath
	StackEventSetBrowsedPlayer
	StackEventSetAddressedPlayer
	StackEventAddressedPlayerChanged
	StackEventNowPlayingContentChanged
)

var stackEventNames = map[StackEventKind]string{
	StackEventNone:                         "NONE",
	StackEventConnectionStateChanged:       "CONNECTION_STATE_CHANGED",
	StackEventBrowseConnectionStateChanged: "BROWSE_CONNECTION_STATE_CHANGED",
	StackEventRcFeatures:                   "RC_FEATURES",
	StackEventSetAbsVolume:                 "SET_ABS_VOLUME",
	StackEventRegisterAbsVolNotification:   "REGISTER_ABS_VOL_NOTIFICATION",
	StackEventVolumeChanged:                "VOLUME_CHANGED",
	StackEventTrackChanged:                 "TRACK_CHANGED",
	StackEventPlayPositionChanged:          "PLAY_POS_CHANGED",
	StackEventPlayStatusChanged:            "PLAY_STATUS_CHANGED",
	StackEventGetFolderItems:               "GET_FOLDER_ITEMS",
	StackEventGetFolderItemsOutOfRange:     "GET_FOLDER_ITEMS_OUT_OF_RANGE",
	StackEventGetPlayerItems:               "GET_PLAYER_ITEMS",
	StackEventFolderPath:                   "FOLDER_PATH",
	StackEventSetBrowsedPlayer:             "SET_BROWSED_PLAYER",
	StackEventSetAddressedPlayer:           "SET_ADDRESSED_PLAYER",
	StackEventAddressedPlayerChanged:       "ADDRESSED_PLAYER_CHANGED",
	StackEventNowPlayingContentChanged:     "NOW_PLAYING_CONTENT_CHANGED",
}

// String returns the name of the stack event kind.
func (k StackEventKind) String() string {
	if name, ok := stackEventNames[k]; ok {
		return name
	}

	return fmt.Sprintf("StackEventKind(%d)", int(k))
}

// Connection states carried by CONNECTION_STATE_CHANGED events.
const (
	PeerDisconnected = iota
	PeerConnecting
	PeerConnected
	PeerDisconnecting
)

// StackEvent is a discriminated event from the native link layer.
// Int1 and Int2 carry numeric payloads whose meaning depends on Kind;
// Items, Players and Track carry browse listings and track metadata.
type StackEvent struct {
	Kind    StackEventKind
	Int1    int
	Int2    int
	Items   []BrowseItem
	Players []PlayerInfo
	Track   *bluetooth.TrackData
	Device  bluetooth.MacAddress
}

// String describes the event for logging.
func (e StackEvent) String() string {
	return fmt.Sprintf("%s[%d,%d]", e.Kind.String(), e.Int1, e.Int2)
}

// message is the tagged union drained by a machine's mailbox.
type message interface{ isMessage() }

type stackEventMsg struct{ event StackEvent }

type disconnectMsg struct{}

type passThroughMsg struct {
	keyCode  int
	keyState int
}

type groupNavigationMsg struct {
	keyCode  int
	keyState int
}

type getFolderListMsg struct{ id string }

type playItemMsg struct {
	uid   string
	scope int
}

type playerSettingMsg struct {
	setting int
	value   int
}

type timeoutMsg struct{ kind timeoutKind }

func (stackEventMsg) isMessage()      {}
func (disconnectMsg) isMessage()      {}
func (passThroughMsg) isMessage()     {}
func (groupNavigationMsg) isMessage() {}
func (getFolderListMsg) isMessage()   {}
func (playItemMsg) isMessage()        {}
func (playerSettingMsg) isMessage()   {}
func (timeoutMsg) isMessage()         {}

// timeoutKind identifies which deadline fired.
type timeoutKind int

const (
	timeoutCommand timeoutKind = iota
	timeoutAbsVolume
)

// String returns the name of the timeout kind.
func (k timeoutKind) String() string {
	switch k {
	case timeoutCommand:
		return "command"
	case timeoutAbsVolume:
		return "abs-volume"
	}

	return fmt.Sprintf("timeoutKind(%d)", int(k))
}
