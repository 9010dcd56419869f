package hfp

import "testing"

func TestSignalFromAsu(t *testing.T) {
	cases := []struct {
		asu  int
		want int
	}{
		{-1, 0}, {0, 0}, {99, 0},
		{1, 1},
		{2, 2}, {3, 2},
		{4, 3}, {7, 3},
		{8, 4}, {15, 4},
		{16, 5}, {31, 5},
	}

	for _, tc := range cases {
		if got := SignalFromAsu(tc.asu); got != tc.want {
			t.Errorf("SignalFromAsu(%d) = %d, want %d", tc.asu, got, tc.want)
		}
	}
}

func TestIndicatorsWithheldUntilSimLoaded(t *testing.T) {
	p := NewPhoneState()
	p.SetServiceAvailability(true)
	p.SetSignalStrengthAsu(16)

	ind := p.Indicators()
	if ind.Service != 0 || ind.Signal != 0 {
		t.Fatalf("indicators reported before SIM loaded: %+v", ind)
	}

	p.SetSimLoaded(true)
	ind = p.Indicators()
	if ind.Service != 1 || ind.Signal != 5 {
		t.Fatalf("indicators = %+v, want service 1 signal 5", ind)
	}
}

func TestSignalForcedToZeroWithoutService(t *testing.T) {
	p := NewPhoneState()
	p.SetSimLoaded(true)
	p.SetSignalStrengthAsu(16)

	if ind := p.Indicators(); ind.Signal != 0 {
		t.Fatalf("signal = %d, want 0 without service", ind.Signal)
	}
}

func TestOnChangeFiresOncePerDelta(t *testing.T) {
	p := NewPhoneState()
	p.SetSimLoaded(true)

	var reports []Indicators
	p.OnChange(func(ind Indicators) { reports = append(reports, ind) })

	p.SetBatteryCharge(3)
	p.SetBatteryCharge(3)
	p.SetBatteryCharge(3)
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1 for repeated identical updates", len(reports))
	}

	p.SetBatteryCharge(4)
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2 after a real change", len(reports))
	}
	if reports[1].Battery != 4 {
		t.Fatalf("battery = %d, want 4", reports[1].Battery)
	}
}

func TestBatteryChargeRangeValidated(t *testing.T) {
	p := NewPhoneState()
	p.SetBatteryCharge(3)
	p.SetBatteryCharge(-1)
	p.SetBatteryCharge(6)

	if ind := p.Indicators(); ind.Battery != 3 {
		t.Fatalf("battery = %d, want 3", ind.Battery)
	}
}

func TestRoamingIndicator(t *testing.T) {
	p := NewPhoneState()
	p.SetRoaming(true)
	if ind := p.Indicators(); ind.Roam != 1 {
		t.Fatalf("roam = %d, want 1", ind.Roam)
	}

	p.SetRoaming(false)
	if ind := p.Indicators(); ind.Roam != 0 {
		t.Fatalf("roam = %d, want 0", ind.Roam)
	}
}
