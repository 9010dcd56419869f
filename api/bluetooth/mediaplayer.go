package bluetooth

// MediaStatus describes the playback status of a media player.
type MediaStatus string

// The different playback statuses of a media player.
const (
	MediaStopped     MediaStatus = "stopped"
	MediaPlaying     MediaStatus = "playing"
	MediaPaused      MediaStatus = "paused"
	MediaForwardSeek MediaStatus = "forward-seek"
	MediaReverseSeek MediaStatus = "reverse-seek"
	MediaError       MediaStatus = "error"
)

// PlayTimeUnknown marks an elapsed play time that cannot be trusted.
const PlayTimeUnknown = -1

// TrackData holds the metadata of a media track.
type TrackData struct {
	// Title holds the title of the track.
	Title string `json:"title,omitempty"`

	// Album holds the name of the album the track belongs to.
	Album string `json:"album,omitempty"`

	// Artist holds the name of the artist of the track.
	Artist string `json:"artist,omitempty"`

	// Genre holds the genre of the track.
	Genre string `json:"genre,omitempty"`

	// Duration holds the total playback time of the track in milliseconds.
	Duration int64 `json:"duration,omitempty"`

	// TrackNumber holds the position of the track within the album.
	TrackNumber int `json:"track_number,omitempty"`

	// TotalTracks holds the total number of tracks within the album.
	TotalTracks int `json:"total_tracks,omitempty"`
}

// MediaData holds the playback state of a media player.
type MediaData struct {
	// Address holds the address of the device the player belongs to.
	Address MacAddress `json:"address,omitempty"`

	// Status holds the playback status of the player.
	Status MediaStatus `json:"status,omitempty"`

	// Position holds the elapsed play time in milliseconds, or
	// PlayTimeUnknown when the status renders it meaningless.
	Position int64 `json:"position,omitempty"`

	TrackData
}
