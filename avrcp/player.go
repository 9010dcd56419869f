package avrcp

import (
	"github.com/bluetuith-org/btprofiles/api/bluetooth"
)

// Remote player feature bits, as defined by the player feature bitmask
// of the media player item.
const (
	FeaturePlay        = 40
	FeatureStop        = 41
	FeaturePause       = 42
	FeatureRewind      = 44
	FeatureFastForward = 45
	FeatureForward     = 47
	FeaturePrevious    = 48
	FeatureBrowsing    = 59
)

// Play status values reported by the remote target.
const (
	PlayStatusStopped = 0x00
	PlayStatusPlaying = 0x01
	PlayStatusPaused  = 0x02
	PlayStatusFwdSeek = 0x03
	PlayStatusRevSeek = 0x04
	PlayStatusError   = 0xFF
)

// Available player actions, derived from the feature bitmask.
type Action int

// The player actions.
const (
	ActionPlay Action = 1 << iota
	ActionStop
	ActionPause
	ActionRewind
	ActionFastForward
	ActionForward
	ActionPrevious
)

// InvalidPlayerID marks a player record that has not been resolved
// against a player-list fetch.
const InvalidPlayerID = -1

// PlayerInfo is a player entry of a player-list fetch, as delivered by
// the link layer.
type PlayerInfo struct {
	ID         int
	Name       string
	PlayStatus int
	PlayerType int
	Features   [16]byte
}

// SupportsFeature reports whether the feature bit is set in the
// player's 128-bit feature mask.
func (p PlayerInfo) SupportsFeature(feature int) bool {
	if feature < 0 || feature >= len(p.Features)*8 {
		return false
	}

	return p.Features[feature/8]&(1<<(feature%8)) != 0
}

// Player tracks the state of one remote media player: identity,
// capabilities, playback status, elapsed time and the current track.
// A Player is owned by its machine's mailbox goroutine.
type Player struct {
	id       int
	name     string
	features [16]byte
	actions  Action

	playStatus int
	playTime   int64
	track      bluetooth.TrackData
	haveTrack  bool
}

// newDefaultPlayer returns an unresolved player with the baseline
// action set, used until the addressed player is known.
func newDefaultPlayer() *Player {
	return &Player{
		id:       InvalidPlayerID,
		playTime: bluetooth.PlayTimeUnknown,
		actions: ActionPlay | ActionStop | ActionPause |
			ActionForward | ActionPrevious,
	}
}

// newPlayer builds a player record from a player-list entry.
func newPlayer(info PlayerInfo) *Player {
	p := &Player{
		id:         info.ID,
		name:       info.Name,
		features:   info.Features,
		playStatus: info.PlayStatus,
		playTime:   bluetooth.PlayTimeUnknown,
	}
	p.deriveActions()

	return p
}

// ID returns the remote player identifier.
func (p *Player) ID() int { return p.id }

// Name returns the player's display name.
func (p *Player) Name() string { return p.name }

// Actions returns the derived available-action set.
func (p *Player) Actions() Action { return p.actions }

// SupportsFeature reports whether the feature bit is set.
func (p *Player) SupportsFeature(feature int) bool {
	return PlayerInfo{Features: p.features}.SupportsFeature(feature)
}

// Browsable reports whether the player supports the browsing channel.
func (p *Player) Browsable() bool {
	return p.SupportsFeature(FeatureBrowsing)
}

func (p *Player) deriveActions() {
	features := map[int]Action{
		FeaturePlay:        ActionPlay,
		FeatureStop:        ActionStop,
		FeaturePause:       ActionPause,
		FeatureRewind:      ActionRewind,
		FeatureFastForward: ActionFastForward,
		FeatureForward:     ActionForward,
		FeaturePrevious:    ActionPrevious,
	}

	for feature, action := range features {
		if p.SupportsFeature(feature) {
			p.actions |= action
		}
	}
}

// SetPlayStatus records a play status change. An error status makes
// any stored play time meaningless.
func (p *Player) SetPlayStatus(status int) {
	p.playStatus = status
	if status == PlayStatusError {
		p.playTime = bluetooth.PlayTimeUnknown
	}
}

// PlayStatus returns the last reported play status.
func (p *Player) PlayStatus() int { return p.playStatus }

// SetPlayTime records the elapsed play time in milliseconds.
func (p *Player) SetPlayTime(playTime int64) {
	p.playTime = playTime
}

// PlayTime returns the elapsed play time, or PlayTimeUnknown.
func (p *Player) PlayTime() int64 { return p.playTime }

// UpdateTrack replaces the current track metadata. It reports whether
// the track actually changed.
func (p *Player) UpdateTrack(track bluetooth.TrackData) bool {
	if p.haveTrack && p.track == track {
		return false
	}

	p.track = track
	p.haveTrack = true

	return true
}

// Track returns the current track metadata.
func (p *Player) Track() bluetooth.TrackData { return p.track }

// MediaStatus maps the wire play status to its external representation.
func MediaStatus(playStatus int) bluetooth.MediaStatus {
	switch playStatus {
	case PlayStatusStopped:
		return bluetooth.MediaStopped
	case PlayStatusPlaying:
		return bluetooth.MediaPlaying
	case PlayStatusPaused:
		return bluetooth.MediaPaused
	case PlayStatusFwdSeek:
		return bluetooth.MediaForwardSeek
	case PlayStatusRevSeek:
		return bluetooth.MediaReverseSeek
	}

	return bluetooth.MediaError
}

// PlaybackSpeed returns the nominal playback speed for a play status:
// 0 when stopped or paused, +-3 while seeking, 1 while playing.
func PlaybackSpeed(playStatus int) float32 {
	switch playStatus {
	case PlayStatusStopped, PlayStatusPaused:
		return 0
	case PlayStatusFwdSeek:
		return 3
	case PlayStatusRevSeek:
		return -3
	}

	return 1
}

// MediaData assembles the externally published playback snapshot.
func (p *Player) MediaData(device bluetooth.MacAddress) bluetooth.MediaData {
	position := p.playTime
	if p.playStatus == PlayStatusStopped {
		position = 0
	}

	return bluetooth.MediaData{
		Address:   device,
		Status:    MediaStatus(p.playStatus),
		Position:  position,
		TrackData: p.track,
	}
}
