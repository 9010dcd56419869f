package hfp

import (
	"sync"

	"go.uber.org/atomic"
)

// Indicators holds the CIND indicator values reported to peers:
// service availability, signal strength (0-5), roaming flag and
// battery charge (0-5), in their AT integer encodings.
type Indicators struct {
	Service int
	Signal  int
	Roam    int
	Battery int
}

// PhoneState tracks the telephony indicator and call activity state that
// is shared by every connected device. Updates arrive from the telephony
// collaborator; the onChange hook fires only when the reported indicator
// set actually changes, so peers see each delta exactly once.
type PhoneState struct {
	mu sync.Mutex

	simLoaded atomic.Bool

	serviceAvailable bool
	signal           int
	roaming          bool
	battery          int

	call CallState

	lastReported *Indicators
	onChange     func(Indicators)
}

// NewPhoneState returns an empty phone state tracker. The call snapshot
// starts idle; the zero CallState means an active call on the wire.
func NewPhoneState() *PhoneState {
	return &PhoneState{call: CallState{Setup: CallIdle}}
}

// OnChange registers the hook invoked when the reported indicators change.
func (p *PhoneState) OnChange(fn func(Indicators)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onChange = fn
}

// SetSimLoaded marks whether the SIM/subscription state has finished
// loading. Service availability is withheld until it has, to avoid
// reporting transient false availability to peers.
func (p *PhoneState) SetSimLoaded(loaded bool) {
	p.simLoaded.Store(loaded)
	p.reportIfChanged()
}

// SetServiceAvailability updates the network service indicator.
func (p *PhoneState) SetServiceAvailability(available bool) {
	p.mu.Lock()
	p.serviceAvailable = available
	p.mu.Unlock()

	p.reportIfChanged()
}

// SetSignalStrengthAsu updates the signal indicator from a raw ASU level.
func (p *PhoneState) SetSignalStrengthAsu(asu int) {
	p.mu.Lock()
	p.signal = SignalFromAsu(asu)
	p.mu.Unlock()

	p.reportIfChanged()
}

// SetRoaming updates the roaming indicator.
func (p *PhoneState) SetRoaming(roaming bool) {
	p.mu.Lock()
	p.roaming = roaming
	p.mu.Unlock()

	p.reportIfChanged()
}

// SetBatteryCharge updates the battery indicator (0-5).
func (p *PhoneState) SetBatteryCharge(level int) {
	if level < 0 || level > 5 {
		return
	}

	p.mu.Lock()
	p.battery = level
	p.mu.Unlock()

	p.reportIfChanged()
}

// SetCallState records the current telephony call activity snapshot.
func (p *PhoneState) SetCallState(state CallState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.call = state
}

// CallState returns the current telephony call activity snapshot.
func (p *PhoneState) CallState() CallState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.call
}

// Indicators returns the CIND indicator values as they should be
// reported to peers. Service is reported as unavailable until the
// SIM state has loaded, and signal is forced to zero without service.
func (p *PhoneState) Indicators() Indicators {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.indicatorsLocked()
}

func (p *PhoneState) indicatorsLocked() Indicators {
	ind := Indicators{Battery: p.battery}

	if p.serviceAvailable && p.simLoaded.Load() {
		ind.Service = 1
		ind.Signal = p.signal
	}

	if p.roaming {
		ind.Roam = 1
	}

	return ind
}

// reportIfChanged fires the change hook if the reported indicator set
// differs from the previously reported one.
func (p *PhoneState) reportIfChanged() {
	p.mu.Lock()

	ind := p.indicatorsLocked()
	if p.lastReported != nil && *p.lastReported == ind {
		p.mu.Unlock()
		return
	}

	p.lastReported = &ind
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(ind)
	}
}

// SignalFromAsu maps a raw ASU signal level to the 0-5 CIND scale.
func SignalFromAsu(asu int) int {
	switch {
	case asu <= 0 || asu == 99:
		return 0
	case asu >= 16:
		return 5
	case asu >= 8:
		return 4
	case asu >= 4:
		return 3
	case asu >= 2:
		return 2
	}

	return 1
}
