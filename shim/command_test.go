package shim

import (
	"strings"
	"testing"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
	"github.com/bluetuith-org/btprofiles/avrcp"
	"github.com/bluetuith-org/btprofiles/hfp"
)

func TestCommandString(t *testing.T) {
	cmd := (&Command[NoResult]{cmd: "hfp connect"}).
		WithOption(AddressOption, "AA:BB:CC:DD:EE:FF")

	want := "hfp connect --address AA:BB:CC:DD:EE:FF"
	if got := cmd.String(); got != want {
		t.Fatalf("command = %q, want %q", got, want)
	}

	slice := cmd.Slice()
	if len(slice) != 4 || slice[0] != "hfp" || slice[3] != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("slice = %v, want 4 space-separated elements", slice)
	}
}

func TestCommandStringMultipleOptions(t *testing.T) {
	cmd := AvrcpPassThrough(mustDecodeMAC(t, "AA:BB:CC:DD:EE:FF"), 0x44, 0)

	got := cmd.String()
	for _, part := range []string{"avrcp pass-through", "--address AA:BB:CC:DD:EE:FF", "--key 68", "--key-state 0"} {
		if !strings.Contains(got, part) {
			t.Fatalf("command %q missing %q", got, part)
		}
	}
}

func TestCommandErrorString(t *testing.T) {
	cerr := CommandError{Name: "hfp-connect", Description: "device unreachable"}
	if got := cerr.Error(); got != "hfp-connect: device unreachable" {
		t.Fatalf("error = %q", got)
	}

	cerr = CommandError{Name: "hfp-connect"}
	if got := cerr.Error(); !strings.Contains(got, "No information") {
		t.Fatalf("error = %q, want placeholder description", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	payload := map[string]any{
		"command":    []string{"hfp", "connect"},
		"request_id": int64(7),
	}

	data, err := marshalJSON(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Command   []string `json:"command"`
		RequestId int64    `json:"request_id"`
	}
	if err := unmarshalJSON(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.RequestId != 7 || len(decoded.Command) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestDecodeHfpEvent(t *testing.T) {
	raw := []byte(`{"kind":1,"int1":2,"int2":0,"str":"","address":"AA:BB:CC:DD:EE:FF"}`)

	event, err := decodeHfpEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if event.Kind != hfp.StackEventConnectionStateChanged || event.Int1 != 2 {
		t.Fatalf("event = %+v", event)
	}
	if event.Device.String() != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("device = %s", event.Device)
	}
}

func TestDecodeHfpEventBadAddress(t *testing.T) {
	raw := []byte(`{"kind":1,"address":"not-a-mac"}`)

	if _, err := decodeHfpEvent(raw); err == nil {
		t.Fatal("malformed address did not fail")
	}
}

func TestDecodeAvrcpEventWithItems(t *testing.T) {
	raw := []byte(`{"kind":10,"address":"AA:BB:CC:DD:EE:FF",` +
		`"items":[{"uid":"0001","title":"Song","folder":false,"playable":true}]}`)

	event, err := decodeAvrcpEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if event.Kind != avrcp.StackEventGetFolderItems {
		t.Fatalf("kind = %v", event.Kind)
	}
	if len(event.Items) != 1 || event.Items[0].UID != "0001" || !event.Items[0].Playable {
		t.Fatalf("items = %+v", event.Items)
	}
}

func TestDecodeAvrcpEventWithTrack(t *testing.T) {
	raw := []byte(`{"kind":7,"address":"AA:BB:CC:DD:EE:FF",` +
		`"track":{"title":"Song","artist":"Artist","duration":180000}}`)

	event, err := decodeAvrcpEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if event.Track == nil || event.Track.Title != "Song" || event.Track.Duration != 180000 {
		t.Fatalf("track = %+v", event.Track)
	}
}

func mustDecodeMAC(t *testing.T, s string) bluetooth.MacAddress {
	t.Helper()

	addr, err := bluetooth.ParseMAC(s)
	if err != nil {
		t.Fatalf("parse mac: %v", err)
	}

	return addr
}
