// Package model contains the webhook payloads and background tasks passed
// between layers.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Event types the bot reacts to.
const (
	EventTypeMessageReceive = "im.message.receive_v1"

	EventTypeApprovalInstance    = "approval_instance"
	EventTypeLeaveApproval       = "leave_approval"
	EventTypeLeaveApprovalV2     = "leave_approvalV2"
	EventTypeLeaveApprovalRevert = "leave_approval_revert"
)

// Envelope is an inbound webhook body. It covers both the 2.0 schema
// (header + event) and the older callback shape (type + uuid + event).
type Envelope struct {
	Schema string `json:"schema,omitempty"`

	// Challenge is set only on the URL verification handshake.
	Challenge *string `json:"challenge,omitempty"`
	Type      string  `json:"type,omitempty"`
	Token     string  `json:"token,omitempty"`
	UUID      string  `json:"uuid,omitempty"`
	EventID   string  `json:"event_id,omitempty"`
	TS        string  `json:"ts,omitempty"`

	Header *EventHeader    `json:"header,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}

// EventHeader is the 2.0 schema header.
type EventHeader struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Token      string `json:"token"`
	AppID      string `json:"app_id"`
	TenantKey  string `json:"tenant_key"`
}

// IsChallenge reports whether this is a verification handshake.
func (e *Envelope) IsChallenge() bool { return e.Challenge != nil }

// ID returns the platform supplied event id, or "" when the delivery has none.
func (e *Envelope) ID() string {
	if e.Header != nil && strings.TrimSpace(e.Header.EventID) != "" {
		return e.Header.EventID
	}
	if id := strings.TrimSpace(e.EventID); id != "" {
		return id
	}
	return strings.TrimSpace(e.UUID)
}

// EventType resolves the event type across schema versions.
func (e *Envelope) EventType() string {
	if e.Header != nil && e.Header.EventType != "" {
		return e.Header.EventType
	}
	if len(e.Event) > 0 {
		var inner struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(e.Event, &inner) == nil && inner.Type != "" {
			return inner.Type
		}
	}
	return e.Type
}

// Credentials are the per-route secrets carried in the dynamic webhook path.
// Agent fields address the AI backend; App fields address the platform app.
type Credentials struct {
	AgentID    string `json:"agent_id,omitempty"`
	AuthKey    string `json:"-"`
	AuthSecret string `json:"-"`
	AppID      string `json:"app_id,omitempty"`
	AppSecret  string `json:"-"`
}

// IsZero reports whether no credentials were supplied.
func (c Credentials) IsZero() bool { return c.AppID == "" && c.AppSecret == "" && c.AgentID == "" }

// TaskKind selects the background handler.
type TaskKind string

// Task kinds.
const (
	TaskChatMessage TaskKind = "chat_message"
	TaskApproval    TaskKind = "approval"
	TaskEvent       TaskKind = "event"
)

// KindForEventType maps an event type to the handler that owns it.
func KindForEventType(eventType string) TaskKind {
	switch eventType {
	case EventTypeMessageReceive:
		return TaskChatMessage
	case EventTypeApprovalInstance, EventTypeLeaveApproval, EventTypeLeaveApprovalV2,
		EventTypeLeaveApprovalRevert, "approval":
		return TaskApproval
	default:
		return TaskEvent
	}
}

// Task is one unit of background work created by the webhook gate.
type Task struct {
	ID          string
	EventID     string
	EventType   string
	Kind        TaskKind
	Credentials Credentials
	Envelope    Envelope
	ReceivedAt  time.Time
}

// MessageEvent is the event body of im.message.receive_v1.
type MessageEvent struct {
	Sender struct {
		SenderID struct {
			OpenID  string `json:"open_id"`
			UserID  string `json:"user_id"`
			UnionID string `json:"union_id"`
		} `json:"sender_id"`
		SenderType string `json:"sender_type"`
	} `json:"sender"`
	Message struct {
		MessageID   string `json:"message_id"`
		RootID      string `json:"root_id"`
		ParentID    string `json:"parent_id"`
		ChatID      string `json:"chat_id"`
		ChatType    string `json:"chat_type"`
		MessageType string `json:"message_type"`
		Content     string `json:"content"`
	} `json:"message"`
}

// Text extracts the plain text of a text message, or "".
func (m *MessageEvent) Text() string {
	if m.Message.MessageType != "text" {
		return ""
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(m.Message.Content), &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Text)
}

// ApprovalEvent is the event body of approval and leave callbacks.
type ApprovalEvent struct {
	Type           string `json:"type"`
	AppID          string `json:"app_id"`
	TenantKey      string `json:"tenant_key"`
	ApprovalCode   string `json:"approval_code"`
	InstanceCode   string `json:"instance_code"`
	Status         string `json:"status"`
	UserID         string `json:"user_id"`
	OpenID         string `json:"open_id"`
	OperateTime    string `json:"operate_time"`
	LeaveType      string `json:"leave_type"`
	LeaveName      string `json:"leave_name"`
	LeaveReason    string `json:"leave_reason"`
	LeaveStartTime string `json:"leave_start_time"`
	LeaveEndTime   string `json:"leave_end_time"`
}
