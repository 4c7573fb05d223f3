package core

import (
	"encoding/json"

	"github.com/nichat/nichat-server/internal/store"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinChat subscribes the connection to a chat room.
	CommandJoinChat CommandKind = iota
	// CommandLeaveChat unsubscribes the connection from a chat room.
	CommandLeaveChat
	// CommandSendMessage persists and fans out a chat message.
	CommandSendMessage
	// CommandTyping broadcasts an ephemeral typing indicator.
	CommandTyping
	// CommandMarkRead records read receipts and resets the unread counter.
	CommandMarkRead

	// Call signaling commands. The relay passes these through between the
	// two parties' personal rooms; call state lives only in the clients.

	// CommandCallOffer delivers a call offer to the callee.
	CommandCallOffer
	// CommandCallAccept delivers acceptance (with SDP answer) to the caller.
	CommandCallAccept
	// CommandCallReject delivers rejection with a reason code.
	CommandCallReject
	// CommandCallEnd delivers hangup to the peer.
	CommandCallEnd
	// CommandCallCandidate delivers an ICE candidate to the peer.
	CommandCallCandidate
	// CommandCallQuality relays periodic quality metrics to the peer.
	CommandCallQuality
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	// Chat commands
	ChatID      int64
	Body        string
	ContentType store.ContentType
	ReplyToID   *int64
	MessageID   *int64 // mark-read: nil means whole chat
	Typing      bool   // true for typing:start, false for typing:stop

	// Call commands. Payload is the opaque SDP/ICE blob passed through
	// unchanged; PeerID names the other party.
	CallID   string
	PeerID   int64
	CallKind string // "audio" or "video"
	Reason   string // for reject: declined, unsupported, timeout
	Payload  json.RawMessage
}
