package shim

import (
	"github.com/ugorji/go/codec"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
	"github.com/bluetuith-org/btprofiles/api/errorkinds"
	"github.com/bluetuith-org/btprofiles/avrcp"
	"github.com/bluetuith-org/btprofiles/hfp"
)

// Event stream identifiers carried by inbound helper messages.
const (
	eventNone = iota
	eventError
	eventHfp
	eventAvrcp
	eventVolume
)

// serverEvent describes a raw event that was sent from the helper.
type serverEvent struct {
	EventId int       `json:"event_id,omitempty"`
	Event   codec.Raw `json:"event"`
}

// hfpWireEvent is the wire form of an HFP stack event.
type hfpWireEvent struct {
	Kind    int    `json:"kind"`
	Int1    int    `json:"int1"`
	Int2    int    `json:"int2"`
	Str     string `json:"str"`
	Address string `json:"address"`
}

// avrcpWireEvent is the wire form of an AVRCP stack event.
type avrcpWireEvent struct {
	Kind    int    `json:"kind"`
	Int1    int    `json:"int1"`
	Int2    int    `json:"int2"`
	Address string `json:"address"`

	Items   []wireBrowseItem     `json:"items,omitempty"`
	Players []wirePlayerInfo     `json:"players,omitempty"`
	Track   *bluetooth.TrackData `json:"track,omitempty"`
}

// wireBrowseItem is the wire form of one browsed folder element.
type wireBrowseItem struct {
	Uid      string `json:"uid"`
	Title    string `json:"title"`
	Folder   bool   `json:"folder"`
	Playable bool   `json:"playable"`
}

// wirePlayerInfo is the wire form of one media player entry.
type wirePlayerInfo struct {
	Id         int    `json:"id"`
	Name       string `json:"name"`
	PlayStatus int    `json:"play_status"`
	PlayerType int    `json:"player_type"`
	Features   []byte `json:"features"`
}

// wireVolumeEvent is the wire form of a local audio volume change.
type wireVolumeEvent struct {
	Volume  int    `json:"volume"`
	Address string `json:"address"`
}

// decodeHfpEvent unmarshals a raw helper event into an HFP stack event.
func decodeHfpEvent(raw codec.Raw) (hfp.StackEvent, error) {
	var wire hfpWireEvent

	if err := unmarshalJSON(raw, &wire); err != nil {
		return hfp.StackEvent{}, errorkinds.ErrMalformedEvent
	}

	address, err := bluetooth.ParseMAC(wire.Address)
	if err != nil {
		return hfp.StackEvent{}, errorkinds.ErrMalformedEvent
	}

	return hfp.StackEvent{
		Kind:   hfp.StackEventKind(wire.Kind),
		Int1:   wire.Int1,
		Int2:   wire.Int2,
		Str:    wire.Str,
		Device: address,
	}, nil
}

// decodeAvrcpEvent unmarshals a raw helper event into an AVRCP stack event.
func decodeAvrcpEvent(raw codec.Raw) (avrcp.StackEvent, error) {
	var wire avrcpWireEvent

	if err := unmarshalJSON(raw, &wire); err != nil {
		return avrcp.StackEvent{}, errorkinds.ErrMalformedEvent
	}

	address, err := bluetooth.ParseMAC(wire.Address)
	if err != nil {
		return avrcp.StackEvent{}, errorkinds.ErrMalformedEvent
	}

	event := avrcp.StackEvent{
		Kind:   avrcp.StackEventKind(wire.Kind),
		Int1:   wire.Int1,
		Int2:   wire.Int2,
		Track:  wire.Track,
		Device: address,
	}

	if len(wire.Items) > 0 {
		event.Items = make([]avrcp.BrowseItem, 0, len(wire.Items))
		for _, item := range wire.Items {
			event.Items = append(event.Items, avrcp.BrowseItem{
				UID:      item.Uid,
				Title:    item.Title,
				Folder:   item.Folder,
				Playable: item.Playable,
			})
		}
	}

	if len(wire.Players) > 0 {
		event.Players = make([]avrcp.PlayerInfo, 0, len(wire.Players))
		for _, player := range wire.Players {
			info := avrcp.PlayerInfo{
				ID:         player.Id,
				Name:       player.Name,
				PlayStatus: player.PlayStatus,
				PlayerType: player.PlayerType,
			}
			copy(info.Features[:], player.Features)
			event.Players = append(event.Players, info)
		}
	}

	return event, nil
}

// decodeVolumeEvent unmarshals a raw helper event into a local volume change.
func decodeVolumeEvent(raw codec.Raw) (wireVolumeEvent, bluetooth.MacAddress, error) {
	var wire wireVolumeEvent

	if err := unmarshalJSON(raw, &wire); err != nil {
		return wire, bluetooth.MacAddress{}, errorkinds.ErrMalformedEvent
	}

	address, err := bluetooth.ParseMAC(wire.Address)
	if err != nil {
		return wire, bluetooth.MacAddress{}, errorkinds.ErrMalformedEvent
	}

	return wire, address, nil
}
