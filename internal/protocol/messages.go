package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ent0n29/postcraft/internal/content"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl          MessageType = "client_control"
	TypeSessionUpdated         MessageType = "session_updated"
	TypeOrchestrationStarted   MessageType = "orchestration_started"
	TypeOrchestrationCompleted MessageType = "orchestration_completed"
	TypeErrorEvent             MessageType = "error_event"
)

// Client control actions.
const (
	ActionSync = "sync"
	ActionPing = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type SessionUpdated struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"session_id"`
	Reason    string           `json:"reason"`
	Session   *content.Session `json:"session,omitempty"`
	TSMs      int64            `json:"ts_ms"`
}

type OrchestrationStarted struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Instruction string      `json:"instruction"`
	TSMs        int64       `json:"ts_ms"`
}

type OrchestrationCompleted struct {
	Type       MessageType          `json:"type"`
	SessionID  string               `json:"session_id"`
	Produced   []content.Capability `json:"produced"`
	Failed     []content.Capability `json:"failed,omitempty"`
	Fallbacks  []string             `json:"fallbacks,omitempty"`
	DurationMs int64                `json:"duration_ms"`
	TSMs       int64                `json:"ts_ms"`
}

// ErrorEvent carries a client-safe error. Detail never holds provider text.
type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func nowMs() int64 { return time.Now().UnixMilli() }

func NewSessionUpdated(sess *content.Session, reason string) SessionUpdated {
	msg := SessionUpdated{Type: TypeSessionUpdated, Reason: reason, Session: sess, TSMs: nowMs()}
	if sess != nil {
		msg.SessionID = sess.ID
	}
	return msg
}

// NewSessionExpired tells subscribers the session's TTL elapsed. The state
// itself is gone, so only the id and status are set.
func NewSessionExpired(sessionID string) SessionUpdated {
	return NewSessionUpdated(&content.Session{ID: sessionID, Status: content.StatusExpired}, "expired")
}

func NewOrchestrationStarted(sessionID, instruction string) OrchestrationStarted {
	return OrchestrationStarted{Type: TypeOrchestrationStarted, SessionID: sessionID, Instruction: instruction, TSMs: nowMs()}
}

func NewOrchestrationCompleted(sessionID string, produced, failed []content.Capability, fallbacks []string, took time.Duration) OrchestrationCompleted {
	if produced == nil {
		produced = []content.Capability{}
	}
	return OrchestrationCompleted{
		Type:       TypeOrchestrationCompleted,
		SessionID:  sessionID,
		Produced:   produced,
		Failed:     failed,
		Fallbacks:  fallbacks,
		DurationMs: took.Milliseconds(),
		TSMs:       nowMs(),
	}
}

func NewErrorEvent(sessionID, code, source, detail string, retryable bool) ErrorEvent {
	return ErrorEvent{Type: TypeErrorEvent, SessionID: sessionID, Code: code, Source: source, Retryable: retryable, Detail: detail}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action != ActionSync && msg.Action != ActionPing {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
