package config

import (
	"strings"
	"testing"
)

func TestProfileConfigsUseOwnConnectionLimits(t *testing.T) {
	v := Values{
		Hfp:   HfpValues{MaxConnections: 2},
		Avrcp: AvrcpValues{MaxConnections: 1},
	}

	if got := v.HfpConfig().MaxConnections; got != 2 {
		t.Fatalf("hfp limit = %d, want 2", got)
	}
	if got := v.AvrcpConfig().MaxConnections; got != 1 {
		t.Fatalf("avrcp limit = %d, want 1", got)
	}
}

func TestValidateConnectionsRejectsNegativeLimits(t *testing.T) {
	for _, tc := range []struct {
		values Values
		key    string
	}{
		{Values{Hfp: HfpValues{MaxConnections: -1}}, "hfp.max-connections"},
		{Values{Avrcp: AvrcpValues{MaxConnections: -1}}, "avrcp.max-connections"},
	} {
		err := tc.values.validateConnections()
		if err == nil || !strings.Contains(err.Error(), tc.key) {
			t.Errorf("%s: err = %v, want validation failure", tc.key, err)
		}
	}
}
