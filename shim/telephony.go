package shim

import (
	"time"

	"github.com/bluetuith-org/btprofiles/api/bluetooth"
)

// telephonyReplyTimeout bounds the synchronous telephony queries; the
// peer is waiting on an AT response, so long waits are worse than
// failing the command.
const telephonyReplyTimeout = 2 * time.Second

// telephony adapts the helper's telephony command set to the local
// telephony collaborator interface.
type telephony struct {
	s *Session
}

func (t *telephony) AnswerCall(device bluetooth.MacAddress) {
	if err := t.s.execAsync(TelephonyAnswer(device)); err != nil {
		t.s.log.Warn("answer call failed", "error", err)
	}
}

func (t *telephony) HangupCall(device bluetooth.MacAddress, virtualCall bool) {
	if err := t.s.execAsync(TelephonyHangup(device, virtualCall)); err != nil {
		t.s.log.Warn("hangup call failed", "error", err)
	}
}

func (t *telephony) DialCall(device bluetooth.MacAddress, number string) bool {
	_, err := TelephonyDial(device, number).ExecuteWith(t.s.executor, telephonyReplyTimeout)
	return err == nil
}

func (t *telephony) SendDtmf(device bluetooth.MacAddress, tone int) {
	if err := t.s.execAsync(TelephonyDtmf(device, tone)); err != nil {
		t.s.log.Warn("dtmf forward failed", "error", err)
	}
}

func (t *telephony) VoiceCommand(device bluetooth.MacAddress) bool {
	_, err := TelephonyVoiceCommand(device).ExecuteWith(t.s.executor, telephonyReplyTimeout)
	return err == nil
}

func (t *telephony) ProcessChld(chld int) bool {
	_, err := TelephonyChld(chld).ExecuteWith(t.s.executor, telephonyReplyTimeout)
	return err == nil
}

func (t *telephony) ListCurrentCalls() bool {
	_, err := TelephonyListCalls().ExecuteWith(t.s.executor, telephonyReplyTimeout)
	return err == nil
}

func (t *telephony) SubscriberNumber() (string, bool) {
	number, err := TelephonySubscriberNumber().ExecuteWith(t.s.executor, telephonyReplyTimeout)
	if err != nil || number == "" {
		return "", false
	}

	return number, true
}

func (t *telephony) NetworkOperator() string {
	operator, err := TelephonyOperator().ExecuteWith(t.s.executor, telephonyReplyTimeout)
	if err != nil {
		return ""
	}

	return operator
}

func (t *telephony) QueryPhoneState() {
	if err := t.s.execAsync(TelephonyQueryPhoneState()); err != nil {
		t.s.log.Warn("phone state query failed", "error", err)
	}
}
