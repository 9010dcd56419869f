package bluetooth

import (
	"github.com/bluetuith-org/btprofiles/api/errorkinds"
	"github.com/bluetuith-org/btprofiles/api/eventbus"
)

// EventID represents a unique event ID.
type EventID byte

// The different types of event IDs.
const (
	EventNone EventID = iota // The zero value for this type.
	EventError
	EventHfpConnection
	EventHfpAudio
	EventCall
	EventIndicator
	EventAvrcpConnection
	EventMediaPlayer
	EventBrowse
	EventVolume
)

// EventAction describes an action that is associated with an event.
type EventAction string

// The different types of event actions.
const (
	EventActionNone    EventAction = "none"
	EventActionUpdated EventAction = "updated"
	EventActionAdded   EventAction = "added"
	EventActionRemoved EventAction = "removed"
)

// eventNames holds names of different events.
var eventNames = map[EventID]string{
	EventNone:            "",
	EventError:           "error_event",
	EventHfpConnection:   "hfp_connection_event",
	EventHfpAudio:        "hfp_audio_event",
	EventCall:            "call_event",
	EventIndicator:       "indicator_event",
	EventAvrcpConnection: "avrcp_connection_event",
	EventMediaPlayer:     "media_player_event",
	EventBrowse:          "browse_event",
	EventVolume:          "volume_event",
}

// String returns the name of the event ID.
func (e EventID) String() string {
	return eventNames[e]
}

// Value returns the event ID.
func (e EventID) Value() uint {
	return uint(e)
}

// String returns the name of the event action.
func (e EventAction) String() string {
	return string(e)
}

// ConnectionEventData describes a profile connection state change.
// PreviousState and State carry state names so that observers do not
// depend on the profile cores' internal state types.
type ConnectionEventData struct {
	Address       MacAddress `json:"address,omitempty"`
	PreviousState string     `json:"previous_state,omitempty"`
	State         string     `json:"state,omitempty"`
}

// AudioEventData describes an SCO audio routing state change.
type AudioEventData struct {
	Address       MacAddress `json:"address,omitempty"`
	PreviousState string     `json:"previous_state,omitempty"`
	State         string     `json:"state,omitempty"`
}

// CallEventData describes a change in call activity on a device.
type CallEventData struct {
	Address    MacAddress `json:"address,omitempty"`
	NumActive  int        `json:"num_active"`
	NumHeld    int        `json:"num_held"`
	SetupState string     `json:"setup_state,omitempty"`
	Number     string     `json:"number,omitempty"`
}

// IndicatorEventData describes a change in the telephony indicators
// reported to connected peers.
type IndicatorEventData struct {
	ServiceAvailable bool `json:"service_available"`
	SignalStrength   int  `json:"signal_strength"`
	Roaming          bool `json:"roaming"`
	BatteryCharge    int  `json:"battery_charge"`
}

// FolderEventData describes a change in the cached contents of a
// browse tree folder.
type FolderEventData struct {
	Address MacAddress `json:"address,omitempty"`
	ID      string     `json:"id,omitempty"`
	Items   int        `json:"items"`
}

// VolumeEventData describes an absolute-volume change on a device.
type VolumeEventData struct {
	Address MacAddress `json:"address,omitempty"`
	Volume  int        `json:"volume"`
}

// emptyUpdatedDataEvent is published for event groups that only ever
// carry 'added' data.
type emptyUpdatedDataEvent struct{}

// NewDataEvents represents the set of events that contain complete
// information about an instance or event. These types of events are
// usually published with the [EventActionAdded] event action.
type NewDataEvents interface {
	errorkinds.GenericError | ConnectionEventData | AudioEventData |
		CallEventData | IndicatorEventData | FolderEventData |
		VolumeEventData | MediaData
}

// UpdatedDataEvents represents the set of events that carry state deltas.
// These types of events are usually published with the [EventActionUpdated]
// or [EventActionRemoved] event actions.
type UpdatedDataEvents interface {
	emptyUpdatedDataEvent | ConnectionEventData | AudioEventData |
		CallEventData | IndicatorEventData | FolderEventData |
		VolumeEventData | MediaData
}

// Events defines the set of possible event data types.
type Events interface {
	NewDataEvents | UpdatedDataEvents
}

// Event represents a general event.
type Event[T Events] struct {
	// ID holds the event ID.
	ID EventID `json:"event_id,omitempty"`

	// Action holds the corresponding action associated with this event.
	Action EventAction `json:"event_action,omitempty"`

	// Data holds the actual event data.
	Data T `json:"event_data,omitempty"`
}

// EventGroup holds a set of events that can be added ([NewDataEvents]) or
// updated ([UpdatedDataEvents]) for a particular event ID.
type EventGroup[N NewDataEvents, U UpdatedDataEvents] struct {
	// ID holds the event ID.
	ID EventID
}

// Subscriber describes a subscription to an event group.
type Subscriber[N NewDataEvents, U UpdatedDataEvents] struct {
	AddedEvents                  chan N
	UpdatedEvents, RemovedEvents chan U
	Done                         chan struct{}

	Unsubscribe eventbus.UnsubFunc
}

// PublishAdded publishes an event with the 'added' action.
func (e EventGroup[N, U]) PublishAdded(data N) {
	eventbus.Publish(e.ID, Event[N]{e.ID, EventActionAdded, data})
}

// PublishUpdated publishes an event with the 'updated' action.
func (e EventGroup[N, U]) PublishUpdated(data U) {
	eventbus.Publish(e.ID, Event[U]{e.ID, EventActionUpdated, data})
}

// PublishRemoved publishes an event with the 'removed' action.
func (e EventGroup[N, U]) PublishRemoved(data U) {
	eventbus.Publish(e.ID, Event[U]{e.ID, EventActionRemoved, data})
}

// Subscribe subscribes to an event group, and returns a subscriber whose
// channels receive the group's events until Unsubscribe is called.
func (e EventGroup[N, U]) Subscribe() (*Subscriber[N, U], bool) {
	id := eventbus.Subscribe(e.ID)

	sub := Subscriber[N, U]{
		AddedEvents:   make(chan N, 10),
		UpdatedEvents: make(chan U, 10),
		RemovedEvents: make(chan U, 10),
		Done:          make(chan struct{}, 1),
		Unsubscribe:   id.Unsubscribe,
	}

	if !id.IsActive() {
		close(sub.AddedEvents)
		close(sub.UpdatedEvents)
		close(sub.RemovedEvents)

		return &sub, false
	}

	go func() {
		for data := range id.C {
			switch v := data.(type) {
			case Event[N]:
				if v.Action != EventActionAdded {
					continue
				}

				select {
				case sub.AddedEvents <- v.Data:
				default:
				}

			case Event[U]:
				var ch chan U

				switch v.Action {
				case EventActionUpdated:
					ch = sub.UpdatedEvents

				case EventActionRemoved:
					ch = sub.RemovedEvents

				default:
					continue
				}

				select {
				case ch <- v.Data:
				default:
				}
			}
		}

		select {
		case sub.Done <- struct{}{}:
		default:
		}

		close(sub.AddedEvents)
		close(sub.UpdatedEvents)
		close(sub.RemovedEvents)
	}()

	return &sub, true
}

// HfpConnectionEvents returns an event interface to subscribe to
// HFP connection state events.
func HfpConnectionEvents() EventGroup[ConnectionEventData, ConnectionEventData] {
	return EventGroup[ConnectionEventData, ConnectionEventData]{ID: EventHfpConnection}
}

// HfpAudioEvents returns an event interface to subscribe to
// SCO audio state events.
func HfpAudioEvents() EventGroup[AudioEventData, AudioEventData] {
	return EventGroup[AudioEventData, AudioEventData]{ID: EventHfpAudio}
}

// CallEvents returns an event interface to subscribe to call activity events.
func CallEvents() EventGroup[CallEventData, CallEventData] {
	return EventGroup[CallEventData, CallEventData]{ID: EventCall}
}

// IndicatorEvents returns an event interface to subscribe to telephony
// indicator events.
func IndicatorEvents() EventGroup[IndicatorEventData, IndicatorEventData] {
	return EventGroup[IndicatorEventData, IndicatorEventData]{ID: EventIndicator}
}

// AvrcpConnectionEvents returns an event interface to subscribe to
// AVRCP connection state events.
func AvrcpConnectionEvents() EventGroup[ConnectionEventData, ConnectionEventData] {
	return EventGroup[ConnectionEventData, ConnectionEventData]{ID: EventAvrcpConnection}
}

// MediaEvents returns an event interface to subscribe to track and
// playback status events.
func MediaEvents() EventGroup[MediaData, MediaData] {
	return EventGroup[MediaData, MediaData]{ID: EventMediaPlayer}
}

// BrowseEvents returns an event interface to subscribe to browse
// folder content events.
func BrowseEvents() EventGroup[FolderEventData, FolderEventData] {
	return EventGroup[FolderEventData, FolderEventData]{ID: EventBrowse}
}

// VolumeEvents returns an event interface to subscribe to absolute
// volume events.
func VolumeEvents() EventGroup[VolumeEventData, VolumeEventData] {
	return EventGroup[VolumeEventData, VolumeEventData]{ID: EventVolume}
}

// ErrorEvents returns an event interface to subscribe to error events.
func ErrorEvents() EventGroup[errorkinds.GenericError, emptyUpdatedDataEvent] {
	return EventGroup[errorkinds.GenericError, emptyUpdatedDataEvent]{ID: EventError}
}
