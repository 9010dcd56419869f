package bluetooth

import "github.com/google/uuid"

// Profile service class UUIDs used by the profile cores.
var (
	// HandsfreeUUID is the service class UUID of the Hands-Free unit role.
	HandsfreeUUID = uuid.MustParse("0000111E-0000-1000-8000-00805F9B34FB")

	// HandsfreeGatewayUUID is the service class UUID of the Hands-Free
	// audio gateway role.
	HandsfreeGatewayUUID = uuid.MustParse("0000111F-0000-1000-8000-00805F9B34FB")

	// AvrcpRemoteUUID is the service class UUID of the AVRCP controller role.
	AvrcpRemoteUUID = uuid.MustParse("0000110E-0000-1000-8000-00805F9B34FB")

	// AvrcpTargetUUID is the service class UUID of the AVRCP target role.
	AvrcpTargetUUID = uuid.MustParse("0000110C-0000-1000-8000-00805F9B34FB")
)

// DeviceData holds the properties of a remote device that are
// relevant to the profile cores.
type DeviceData struct {
	// Address holds the Bluetooth address of the device.
	Address MacAddress `json:"address,omitempty"`

	// Name holds the display name of the device.
	Name string `json:"name,omitempty"`

	// Bonded indicates whether the device is bonded (paired and trusted).
	Bonded bool `json:"bonded,omitempty"`

	// UUIDs holds the service class UUIDs advertised by the device.
	UUIDs []uuid.UUID `json:"uuids,omitempty"`
}

// HasProfile returns whether the device advertises the given service class.
func (d *DeviceData) HasProfile(profile uuid.UUID) bool {
	for _, u := range d.UUIDs {
		if u == profile {
			return true
		}
	}

	return false
}
