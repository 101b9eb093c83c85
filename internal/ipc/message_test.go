package ipc

import (
	"encoding/json"
	"testing"
)

func TestDecodeValidMessage(t *testing.T) {
	raw := []byte(`{"type":"metrics","workerId":3,"data":{"rooms":2,"players":9,"memoryPercent":0.4},"timestamp":1700000000000}`)

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode returned error for valid frame: %v", err)
	}
	if msg.Type != TypeMetrics {
		t.Errorf("Type = %q, want %q", msg.Type, TypeMetrics)
	}
	if msg.WorkerID != 3 {
		t.Errorf("WorkerID = %d, want 3", msg.WorkerID)
	}
	if msg.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d, want 1700000000000", msg.Timestamp)
	}

	payload, err := DecodePayload[MetricsPayload](msg)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.Rooms != 2 || payload.Players != 9 {
		t.Errorf("payload = %+v, want rooms=2 players=9", payload)
	}
}

func TestDecodeNullWorkerID(t *testing.T) {
	raw := []byte(`{"type":"shutdown","workerId":null,"data":{},"timestamp":1}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode rejected null workerId: %v", err)
	}
	if msg.WorkerID != MasterID {
		t.Errorf("WorkerID = %d, want %d for null", msg.WorkerID, MasterID)
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing type", `{"workerId":1,"data":{},"timestamp":1}`},
		{"non-string type", `{"type":7,"workerId":1,"data":{},"timestamp":1}`},
		{"unknown type", `{"type":"teleport","workerId":1,"data":{},"timestamp":1}`},
		{"missing workerId", `{"type":"metrics","data":{},"timestamp":1}`},
		{"string workerId", `{"type":"metrics","workerId":"one","data":{},"timestamp":1}`},
		{"missing data", `{"type":"metrics","workerId":1,"timestamp":1}`},
		{"missing timestamp", `{"type":"metrics","workerId":1,"data":{}}`},
		{"string timestamp", `{"type":"metrics","workerId":1,"data":{},"timestamp":"now"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.raw)); err == nil {
				t.Errorf("Decode accepted malformed frame %q", tc.raw)
			}
		})
	}
}

func TestDecodeAcceptsEmptyAndNullData(t *testing.T) {
	for _, raw := range []string{
		`{"type":"shutdown","workerId":0,"data":null,"timestamp":1}`,
		`{"type":"shutdown","workerId":0,"data":{},"timestamp":1}`,
	} {
		if _, err := Decode([]byte(raw)); err != nil {
			t.Errorf("Decode rejected %q: %v", raw, err)
		}
	}
}

func TestNewStampsEnvelope(t *testing.T) {
	msg := New(TypeRoomCreated, 2, RoomEventPayload{RoomID: "r1", Code: "K3F9QX"})
	if msg.Timestamp == 0 {
		t.Error("expected non-zero timestamp")
	}

	// Round-trip through the wire form.
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode round trip: %v", err)
	}
	payload, err := DecodePayload[RoomEventPayload](back)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.Code != "K3F9QX" {
		t.Errorf("Code = %q, want K3F9QX", payload.Code)
	}
}

func TestNewNilPayloadHasDataField(t *testing.T) {
	msg := New(TypeShutdown, MasterID, nil)
	if string(msg.Data) != "{}" {
		t.Errorf("Data = %s, want {}", msg.Data)
	}
}
