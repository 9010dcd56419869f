package config

import (
	"fmt"
	"os"
	"time"

	"github.com/bluetuith-org/btprofiles/avrcp"
	"github.com/bluetuith-org/btprofiles/hfp"
	"github.com/bluetuith-org/btprofiles/shim"
)

// Values describes the possible configuration values that a user can
// modify and supply to the daemon.
type Values struct {
	Hfp   HfpValues   `koanf:"hfp"`
	Avrcp AvrcpValues `koanf:"avrcp"`
	Shim  ShimValues  `koanf:"shim"`
}

// HfpValues holds the hands-free profile settings.
type HfpValues struct {
	MaxConnections    int    `koanf:"max-connections"`
	InbandRinging     bool   `koanf:"inband-ringing"`
	ForceSco          bool   `koanf:"force-sco"`
	AudioRouteAllowed bool   `koanf:"audio-route-allowed"`
	ConnectTimeout    string `koanf:"connect-timeout"`
	DialTimeout       string `koanf:"dial-timeout"`
	VrTimeout         string `koanf:"vr-timeout"`
	ClccTimeout       string `koanf:"clcc-timeout"`

	connectTimeout time.Duration
	dialTimeout    time.Duration
	vrTimeout      time.Duration
	clccTimeout    time.Duration
}

// AvrcpValues holds the remote-control profile settings.
type AvrcpValues struct {
	MaxConnections int    `koanf:"max-connections"`
	CommandTimeout string `koanf:"command-timeout"`
	VolumeFixed    bool   `koanf:"volume-fixed"`
	MaxVolume      int    `koanf:"max-volume"`

	commandTimeout time.Duration
}

// ShimValues holds the native helper settings.
type ShimValues struct {
	Path       string `koanf:"path"`
	SocketPath string `koanf:"socket-path"`
}

// validateValues validates all configuration values.
func (v *Values) validateValues() error {
	for _, validate := range []func() error{
		v.validateConnections,
		v.validateTimeouts,
		v.validateVolume,
		v.validateShimPath,
	} {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

// validateConnections validates the per-profile device connection limits.
func (v *Values) validateConnections() error {
	if v.Hfp.MaxConnections < 0 {
		return fmt.Errorf("hfp.max-connections must not be negative")
	}
	if v.Avrcp.MaxConnections < 0 {
		return fmt.Errorf("avrcp.max-connections must not be negative")
	}

	return nil
}

// validateTimeouts parses and validates the profile timeout durations.
func (v *Values) validateTimeouts() error {
	for _, timeout := range []struct {
		name  string
		value string
		out   *time.Duration
	}{
		{"hfp.connect-timeout", v.Hfp.ConnectTimeout, &v.Hfp.connectTimeout},
		{"hfp.dial-timeout", v.Hfp.DialTimeout, &v.Hfp.dialTimeout},
		{"hfp.vr-timeout", v.Hfp.VrTimeout, &v.Hfp.vrTimeout},
		{"hfp.clcc-timeout", v.Hfp.ClccTimeout, &v.Hfp.clccTimeout},
		{"avrcp.command-timeout", v.Avrcp.CommandTimeout, &v.Avrcp.commandTimeout},
	} {
		if timeout.value == "" {
			continue
		}

		duration, err := time.ParseDuration(timeout.value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", timeout.name, timeout.value)
		}
		if duration <= 0 {
			return fmt.Errorf("%s: duration must be positive", timeout.name)
		}

		*timeout.out = duration
	}

	return nil
}

// validateVolume validates the local mixer's volume index range.
func (v *Values) validateVolume() error {
	if v.Avrcp.MaxVolume < 0 || v.Avrcp.MaxVolume > 127 {
		return fmt.Errorf("avrcp.max-volume must be within 0 and 127")
	}

	return nil
}

// validateShimPath validates the path to the native helper executable.
func (v *Values) validateShimPath() error {
	if v.Shim.Path == "" {
		return nil
	}

	if statpath, err := os.Stat(v.Shim.Path); err != nil || statpath.IsDir() {
		return fmt.Errorf("%s: helper executable is not accessible", v.Shim.Path)
	}

	return nil
}

// HfpConfig converts the validated values into a hands-free service
// configuration.
func (v *Values) HfpConfig() hfp.Config {
	return hfp.Config{
		MaxConnections:    v.Hfp.MaxConnections,
		InbandRinging:     v.Hfp.InbandRinging,
		ForceSco:          v.Hfp.ForceSco,
		AudioRouteAllowed: v.Hfp.AudioRouteAllowed,
		ConnectTimeout:    v.Hfp.connectTimeout,
		DialOutTimeout:    v.Hfp.dialTimeout,
		VrStartTimeout:    v.Hfp.vrTimeout,
		ClccTimeout:       v.Hfp.clccTimeout,
	}
}

// AvrcpConfig converts the validated values into a remote-control
// service configuration.
func (v *Values) AvrcpConfig() avrcp.Config {
	return avrcp.Config{
		MaxConnections: v.Avrcp.MaxConnections,
		VolumeFixed:    v.Avrcp.VolumeFixed,
		CommandTimeout: v.Avrcp.commandTimeout,
	}
}

// ShimConfig converts the validated values into a helper session
// configuration.
func (v *Values) ShimConfig() shim.Config {
	return shim.Config{
		ExecutablePath: v.Shim.Path,
		SocketPath:     v.Shim.SocketPath,
	}
}

// MaxVolume returns the configured volume index range for the local
// mixer, falling back to the helper's default when unset.
func (v *Values) MaxVolume() int {
	if v.Avrcp.MaxVolume == 0 {
		return shim.DefaultMaxVolume
	}

	return v.Avrcp.MaxVolume
}
