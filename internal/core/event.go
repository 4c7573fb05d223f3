package core

import (
	"encoding/json"
	"time"
)

// EventKind is a notification the relay emits to clients.
type EventKind int

const (
	// EventMessageNew carries a populated message to a chat room.
	EventMessageNew EventKind = iota
	// EventTyping carries an ephemeral typing indicator.
	EventTyping
	// EventMessageRead carries a read receipt.
	EventMessageRead
	// EventUserStatus carries a presence change.
	EventUserStatus
	// EventNotification alerts a participant outside the chat room.
	EventNotification
	// EventError notifies the sender about a failed operation.
	EventError

	// Call events
	// EventCallIncoming delivers a call offer to the callee.
	EventCallIncoming
	// EventCallAccepted delivers acceptance (with SDP answer) to the caller.
	EventCallAccepted
	// EventCallRejected delivers rejection with a reason code.
	EventCallRejected
	// EventCallEnded delivers hangup.
	EventCallEnded
	// EventCallCandidate delivers an ICE candidate.
	EventCallCandidate
	// EventCallQuality delivers peer quality metrics.
	EventCallQuality
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	ChatID  int64
	UserID  int64
	Message *Message
	Typing  *TypingInfo
	Read    *ReadReceipt
	Status  *UserStatus
	Notice  *Notification
	Error   *RelayError
	Call    *CallEvent
}

// ReadReceipt describes who read what.
type ReadReceipt struct {
	ChatID     int64
	UserID     int64
	MessageID  *int64  // nil when the whole chat was read
	MessageIDs []int64 // messages newly marked read
}

// UserStatus describes a presence change.
type UserStatus struct {
	UserID   int64
	Username string
	IsOnline bool
	LastSeen *time.Time
}

// Notification alerts a participant who may not have the chat open.
type Notification struct {
	Type    string // currently always "message"
	ChatID  int64
	Message *Message
}

// TypingInfo names the user behind a typing indicator.
type TypingInfo struct {
	ChatID   int64
	UserID   int64
	Username string
	Active   bool
}

// CallEvent holds data specific to call signaling events.
type CallEvent struct {
	CallID     string
	CallKind   string // "audio" or "video"
	FromID     int64
	FromName   string
	FromAvatar string
	Reason     string          // for rejected events
	Payload    json.RawMessage // opaque SDP offer/answer, ICE candidate, metrics
	JoinInfo   *CallJoinInfo   // SFU credentials for group calls, if configured
	Timestamp  int64           // unix seconds
}

// CallJoinInfo contains media-server connection credentials.
type CallJoinInfo struct {
	URL      string
	Token    string
	RoomName string
	Identity string
}

