package proto

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/iits-consulting/workadventure"
)

func decode(t *testing.T, raw string) ClientMessage {
	t.Helper()
	var msg ClientMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return msg
}

func assertMalformed(t *testing.T, err error, field string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected a validation failure")
	}
	var malformed *workadventure.MalformedMessageError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedMessageError, got %T: %v", err, err)
	}
	if malformed.Field != field {
		t.Fatalf("expected failure on %q, got %q", field, malformed.Field)
	}
}

func TestValidateAcceptsWellFormedMessages(t *testing.T) {
	accepted := []string{
		`{"type":"join","join":{"roomId":"lobby","name":"alice","position":{"x":1,"y":2}}}`,
		`{"type":"join","join":{"roomId":"lobby","name":"alice","uuid":"0b7fdb3a-8b1f-4b9f-9a39-7d6b7b1c8a10","position":{"x":0,"y":0,"direction":"left","moving":true}}}`,
		`{"type":"move","move":{"position":{"x":3,"y":4,"direction":"down"}}}`,
		`{"type":"silent","silent":{"silent":true}}`,
		`{"type":"item","item":{"itemId":2,"state":{"open":true}}}`,
		`{"type":"variable","variable":{"name":"doorState","value":"open"}}`,
		`{"type":"emote","emote":{"emote":"wave"}}`,
		`{"type":"signal","signal":{"receiverId":7,"signal":{"sdp":"offer"}}}`,
		`{"type":"conferenceToken","conferenceToken":{"conferenceRoom":"standup"}}`,
	}
	for _, raw := range accepted {
		if err := Validate(decode(t, raw)); err != nil {
			t.Fatalf("expected %s to validate, got %v", raw, err)
		}
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	err := Validate(decode(t, `{"type":"teleport"}`))
	assertMalformed(t, err, "type")
}

func TestValidateRejectsMissingType(t *testing.T) {
	err := Validate(decode(t, `{"join":{"roomId":"lobby","name":"alice"}}`))
	assertMalformed(t, err, "type")
}

func TestValidateRejectsMissingPayload(t *testing.T) {
	err := Validate(decode(t, `{"type":"move"}`))
	assertMalformed(t, err, "move")
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	err := Validate(decode(t, `{"type":"emote","move":{"position":{"x":1,"y":1}}}`))
	assertMalformed(t, err, "emote")
}

func TestValidateRejectsIncompleteJoin(t *testing.T) {
	rejected := []string{
		`{"type":"join","join":{"name":"alice","position":{"x":1,"y":2}}}`,
		`{"type":"join","join":{"roomId":"lobby","position":{"x":1,"y":2}}}`,
		`{"type":"join","join":{"roomId":"lobby","name":"alice"}}`,
		`{"type":"join","join":{"roomId":"lobby","name":"alice","uuid":"not-a-uuid","position":{"x":1,"y":2}}}`,
	}
	for _, raw := range rejected {
		assertMalformed(t, Validate(decode(t, raw)), "join")
	}
}

func TestValidateRejectsBadDirection(t *testing.T) {
	err := Validate(decode(t, `{"type":"move","move":{"position":{"x":1,"y":2,"direction":"sideways"}}}`))
	assertMalformed(t, err, "move")
}

func TestValidateRejectsEmptySignal(t *testing.T) {
	assertMalformed(t, Validate(decode(t, `{"type":"signal","signal":{"signal":{"sdp":"x"}}}`)), "signal")
	assertMalformed(t, Validate(decode(t, `{"type":"signal","signal":{"receiverId":7}}`)), "signal")
}
