package shim

import "go.uber.org/atomic"

// DefaultMaxVolume is the local mixer's volume index range when no
// value is configured.
const DefaultMaxVolume = 15

// AudioMixer exposes the helper's system audio volume as a local
// volume index scale. The cached index is kept current by volume
// events from the helper, so the getters never block on a round-trip.
type AudioMixer struct {
	session *Session
	max     int
	volume  *atomic.Int32
}

func newAudioMixer(session *Session, maxVolume int) *AudioMixer {
	if maxVolume <= 0 {
		maxVolume = DefaultMaxVolume
	}

	return &AudioMixer{
		session: session,
		max:     maxVolume,
		volume:  atomic.NewInt32(0),
	}
}

// MaxVolume returns the top volume index of the mixer.
func (m *AudioMixer) MaxVolume() int {
	return m.max
}

// Volume returns the current volume index.
func (m *AudioMixer) Volume() int {
	return int(m.volume.Load())
}

// SetVolume applies a volume index to the system output.
func (m *AudioMixer) SetVolume(index int) {
	if index < 0 {
		index = 0
	}
	if index > m.max {
		index = m.max
	}

	m.volume.Store(int32(index))
	if err := m.session.execAsync(AudioSetVolume(index)); err != nil {
		m.session.log.Warn("volume change failed", "error", err)
	}
}

// observe records a volume change reported by the helper.
func (m *AudioMixer) observe(index int) {
	m.volume.Store(int32(index))
}

// refresh queries the helper for the current volume.
func (m *AudioMixer) refresh() {
	index, err := AudioGetVolume().ExecuteWith(m.session.executor)
	if err != nil {
		m.session.log.Warn("volume query failed", "error", err)
		return
	}

	m.volume.Store(int32(index))
}
