package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ent0n29/postcraft/internal/content"
)

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","session_id":"s1","action":"sync","ts_ms":456}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.SessionID != "s1" || control.Action != ActionSync {
		t.Fatalf("unexpected client control: %+v", control)
	}
	if control.TSMs != 456 {
		t.Fatalf("TSMs = %d, want %d", control.TSMs, 456)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsUnknownAction(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"explode"}`)); err == nil {
		t.Fatalf("ParseClientMessage() error = nil, want invalid client_control")
	}
}

func TestParseClientMessageRejectsBadJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{`)); err == nil {
		t.Fatalf("ParseClientMessage() error = nil, want envelope error")
	}
}

func TestOrchestrationCompletedEncodesEmptyProduced(t *testing.T) {
	msg := NewOrchestrationCompleted("s1", nil, []content.Capability{content.CapabilityImage}, nil, 1500*time.Millisecond)
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["type"] != string(TypeOrchestrationCompleted) {
		t.Fatalf("type = %v", decoded["type"])
	}
	if produced, ok := decoded["produced"].([]any); !ok || len(produced) != 0 {
		t.Fatalf("produced = %#v, want empty array", decoded["produced"])
	}
	if decoded["duration_ms"].(float64) != 1500 {
		t.Fatalf("duration_ms = %v, want 1500", decoded["duration_ms"])
	}
}

func TestSessionUpdatedCarriesID(t *testing.T) {
	msg := NewSessionUpdated(&content.Session{ID: "abc"}, "upload")
	if msg.SessionID != "abc" || msg.Type != TypeSessionUpdated {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
