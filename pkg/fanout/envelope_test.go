package fanout

import (
	"encoding/json"
	"testing"

	"github.com/go-zeromq/zmq4"
)

func TestEnvelopeEncodeDecode(t *testing.T) {
	msg, err := Envelope{
		UserID:     "42",
		ActionType: "report_finished",
		Payload:    map[string]interface{}{"report_id": "abc"},
	}.encode()
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	if len(msg.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(msg.Frames))
	}

	routingKey, payload, err := decodeMsg(msg)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if routingKey != "42" {
		t.Errorf("routing key should repeat the user id, got %q", routingKey)
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("payload frame should be JSON: %v", err)
	}
	if env.ActionType != "report_finished" || env.UserID != "42" {
		t.Errorf("envelope mismatch: %+v", env)
	}
}

func TestDecodeMsgRejectsWrongFrameCount(t *testing.T) {
	if _, _, err := decodeMsg(zmq4.NewMsg([]byte("only-one"))); err == nil {
		t.Errorf("single-frame message should be rejected")
	}
}
