package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoinChat      = "chat:join"
	InboundTypeLeaveChat     = "chat:leave"
	InboundTypeSendMessage   = "message:new"
	InboundTypeTypingStart   = "typing:start"
	InboundTypeTypingStop    = "typing:stop"
	InboundTypeMarkRead      = "message:read"
	InboundTypeCallOffer     = "call:offer"
	InboundTypeCallAccept    = "call:accept"
	InboundTypeCallReject    = "call:reject"
	InboundTypeCallEnd       = "call:end"
	InboundTypeCallCandidate = "call:candidate"
	InboundTypeCallQuality   = "call:quality-metrics"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventMessageNew    = "message:new"
	EventTypingStart   = "typing:start"
	EventTypingStop    = "typing:stop"
	EventMessageRead   = "message:read"
	EventUserStatus    = "user:status"
	EventNotification  = "notification:new"
	EventCallIncoming  = "call:incoming"
	EventCallAccept    = "call:accept"
	EventCallReject    = "call:reject"
	EventCallEnd       = "call:end"
	EventCallCandidate = "call:candidate"
	EventCallQuality   = "call:quality-metrics"
)

// ChatData addresses a chat for join, leave and typing messages.
type ChatData struct {
	ChatID int64 `json:"chat_id"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	ChatID      int64  `json:"chat_id"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	ReplyToID   *int64 `json:"reply_to_id,omitempty"`
}

// MarkReadData marks one message, or the whole chat when message_id is
// omitted, as read by the sender.
type MarkReadData struct {
	ChatID    int64  `json:"chat_id"`
	MessageID *int64 `json:"message_id,omitempty"`
}

// CallData carries call signaling in both directions. peer_id names the
// other side; the relay forwards without keeping call state. payload is the
// opaque WebRTC blob (SDP or ICE candidate) and is never inspected.
type CallData struct {
	CallID  string          `json:"call_id"`
	PeerID  int64           `json:"peer_id,omitempty"`
	ChatID  int64           `json:"chat_id,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage is a populated chat message as delivered to clients.
type EventMessage struct {
	ID           int64   `json:"id"`
	ChatID       int64   `json:"chat_id"`
	SenderID     int64   `json:"sender_id"`
	SenderName   string  `json:"sender_name"`
	SenderAvatar string  `json:"sender_avatar,omitempty"`
	Body         string  `json:"body"`
	ContentType  string  `json:"content_type"`
	ReplyToID    *int64  `json:"reply_to_id,omitempty"`
	ReadBy       []int64 `json:"read_by"`
	Deleted      bool    `json:"deleted,omitempty"`
	TS           int64   `json:"ts"`
}

// EventTyping notifies chat viewers that a user started or stopped typing.
type EventTyping struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// EventRead notifies chat viewers which messages a user has read.
type EventRead struct {
	ChatID     int64   `json:"chat_id"`
	UserID     int64   `json:"user_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// EventStatus notifies that a user went online or offline.
type EventStatus struct {
	UserID   int64  `json:"user_id"`
	Online   bool   `json:"online"`
	LastSeen *int64 `json:"last_seen,omitempty"`
}

// EventNotice is delivered to participants who are not viewing the chat a
// new message landed in.
type EventNotice struct {
	NoticeType string        `json:"notice_type"`
	ChatID     int64         `json:"chat_id"`
	Message    *EventMessage `json:"message,omitempty"`
}

// EventCall carries call signaling delivered to a client.
type EventCall struct {
	CallID     string          `json:"call_id"`
	Kind       string          `json:"kind,omitempty"`
	FromID     int64           `json:"from_id"`
	FromName   string          `json:"from_name,omitempty"`
	FromAvatar string          `json:"from_avatar,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Join       *CallJoin       `json:"join,omitempty"`
	TS         int64           `json:"ts"`
}

// CallJoin carries SFU connection details for group calls.
type CallJoin struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
